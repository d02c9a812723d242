package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/coupon"
	"github.com/vladislavdragonenkov/storefront/internal/service/discount"
)

// queryLimit читает ?limit= с дефолтом для списочных ручек.
func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	return limit
}

type itemCreateRequest struct {
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	CategoryID    string `json:"category_id,omitempty"`
	PriceMinor    int64  `json:"price_minor"`
	StockQuantity int64  `json:"stock_quantity"`
}

type itemUpdateRequest struct {
	Name       string `json:"name"`
	CategoryID string `json:"category_id,omitempty"`
	PriceMinor int64  `json:"price_minor"`
	Active     bool   `json:"active"`
}

type itemResponse struct {
	ID            string    `json:"id"`
	SKU           string    `json:"sku"`
	Name          string    `json:"name"`
	CategoryID    string    `json:"category_id,omitempty"`
	PriceMinor    int64     `json:"price_minor"`
	StockQuantity int64     `json:"stock_quantity"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toItemResponse(item *domain.Item) itemResponse {
	return itemResponse{
		ID:            item.ID,
		SKU:           item.SKU,
		Name:          item.Name,
		CategoryID:    item.CategoryID,
		PriceMinor:    item.PriceMinor,
		StockQuantity: item.StockQuantity,
		Active:        item.Active,
		CreatedAt:     item.CreatedAt,
		UpdatedAt:     item.UpdatedAt,
	}
}

func (h *Handler) handleItemCreate(w http.ResponseWriter, r *http.Request) {
	var req itemCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	item, err := h.catalog.Create(r.Context(), catalog.CreateInput{
		SKU:           req.SKU,
		Name:          req.Name,
		CategoryID:    req.CategoryID,
		PriceMinor:    req.PriceMinor,
		StockQuantity: req.StockQuantity,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemResponse(item))
}

func (h *Handler) handleItemList(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.List(r.Context(), queryLimit(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := make([]itemResponse, 0, len(items))
	for i := range items {
		resp = append(resp, toItemResponse(&items[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleItemGet(w http.ResponseWriter, r *http.Request) {
	item, err := h.catalog.Get(r.Context(), r.PathValue("itemID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(item))
}

func (h *Handler) handleItemUpdate(w http.ResponseWriter, r *http.Request) {
	var req itemUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	item, err := h.catalog.Update(r.Context(), r.PathValue("itemID"), catalog.UpdateInput{
		Name:       req.Name,
		CategoryID: req.CategoryID,
		PriceMinor: req.PriceMinor,
		Active:     req.Active,
	})
	if err != nil {
		h.noteConflictRejection("item_update", err)
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(item))
}

func (h *Handler) handleItemDeactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Deactivate(r.Context(), r.PathValue("itemID")); err != nil {
		h.noteConflictRejection("item_deactivate", err)
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type stockSetRequest struct {
	Quantity int64 `json:"quantity"`
}

type stockAdjustRequest struct {
	Delta int64 `json:"delta"`
}

// handleItemSetStock выставляет абсолютный остаток, например после инвентаризации.
func (h *Handler) handleItemSetStock(w http.ResponseWriter, r *http.Request) {
	var req stockSetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	item, err := h.catalog.SetStock(r.Context(), r.PathValue("itemID"), req.Quantity)
	if err != nil {
		h.noteConflictRejection("set_stock", err)
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(item))
}

// handleItemAdjustStock смещает остаток на delta. Уход ниже нуля отклоняется
// целиком, частичное списание не выполняется.
func (h *Handler) handleItemAdjustStock(w http.ResponseWriter, r *http.Request) {
	var req stockAdjustRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	item, err := h.catalog.AdjustStock(r.Context(), r.PathValue("itemID"), req.Delta)
	if err != nil {
		h.noteStockRejection(err)
		h.noteConflictRejection("adjust_stock", err)
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(item))
}

type discountCreateRequest struct {
	Scope    string          `json:"scope"`
	ScopeID  string          `json:"scope_id"`
	Percent  decimal.Decimal `json:"percent"`
	StartsAt *time.Time      `json:"starts_at,omitempty"`
	EndsAt   *time.Time      `json:"ends_at,omitempty"`
}

type discountUpdateRequest struct {
	Percent  decimal.Decimal `json:"percent"`
	StartsAt *time.Time      `json:"starts_at,omitempty"`
	EndsAt   *time.Time      `json:"ends_at,omitempty"`
}

type discountResponse struct {
	ID        string          `json:"id"`
	Scope     string          `json:"scope"`
	ScopeID   string          `json:"scope_id"`
	Percent   decimal.Decimal `json:"percent"`
	StartsAt  *time.Time      `json:"starts_at,omitempty"`
	EndsAt    *time.Time      `json:"ends_at,omitempty"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toDiscountResponse(d *domain.PromotionalDiscount) discountResponse {
	return discountResponse{
		ID:        d.ID,
		Scope:     string(d.Scope),
		ScopeID:   d.ScopeID,
		Percent:   d.Percent,
		StartsAt:  d.StartsAt,
		EndsAt:    d.EndsAt,
		Active:    d.Active,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func (h *Handler) handleDiscountCreate(w http.ResponseWriter, r *http.Request) {
	var req discountCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.discounts.Create(r.Context(), discount.CreateInput{
		Scope:    domain.DiscountScope(req.Scope),
		ScopeID:  req.ScopeID,
		Percent:  req.Percent,
		StartsAt: req.StartsAt,
		EndsAt:   req.EndsAt,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDiscountResponse(created))
}

func (h *Handler) handleDiscountList(w http.ResponseWriter, r *http.Request) {
	list, err := h.discounts.List(r.Context(), queryLimit(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := make([]discountResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toDiscountResponse(&list[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleDiscountGet(w http.ResponseWriter, r *http.Request) {
	d, err := h.discounts.Get(r.Context(), r.PathValue("discountID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDiscountResponse(d))
}

func (h *Handler) handleDiscountUpdate(w http.ResponseWriter, r *http.Request) {
	var req discountUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	updated, err := h.discounts.Update(r.Context(), r.PathValue("discountID"), discount.UpdateInput{
		Percent:  req.Percent,
		StartsAt: req.StartsAt,
		EndsAt:   req.EndsAt,
	})
	if err != nil {
		h.noteConflictRejection("discount_update", err)
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDiscountResponse(updated))
}

func (h *Handler) handleDiscountDeactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.discounts.Deactivate(r.Context(), r.PathValue("discountID")); err != nil {
		h.noteConflictRejection("discount_deactivate", err)
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type couponCreateRequest struct {
	Code      string          `json:"code"`
	Percent   decimal.Decimal `json:"percent"`
	MaxUses   *int64          `json:"max_uses,omitempty"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

type couponUpdateRequest struct {
	Percent   decimal.Decimal `json:"percent"`
	MaxUses   *int64          `json:"max_uses,omitempty"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

type couponResponse struct {
	ID        string          `json:"id"`
	Code      string          `json:"code"`
	Percent   decimal.Decimal `json:"percent"`
	MaxUses   *int64          `json:"max_uses,omitempty"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toCouponResponse(c *domain.Coupon) couponResponse {
	return couponResponse{
		ID:        c.ID,
		Code:      c.Code,
		Percent:   c.Percent,
		MaxUses:   c.MaxUses,
		ExpiresAt: c.ExpiresAt,
		Active:    c.Active,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func (h *Handler) handleCouponCreate(w http.ResponseWriter, r *http.Request) {
	var req couponCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.coupons.Create(r.Context(), coupon.CreateInput{
		Code:      req.Code,
		Percent:   req.Percent,
		MaxUses:   req.MaxUses,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCouponResponse(created))
}

func (h *Handler) handleCouponGet(w http.ResponseWriter, r *http.Request) {
	c, err := h.coupons.Get(r.Context(), r.PathValue("couponID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponResponse(c))
}

func (h *Handler) handleCouponUpdate(w http.ResponseWriter, r *http.Request) {
	var req couponUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	updated, err := h.coupons.Update(r.Context(), r.PathValue("couponID"), coupon.UpdateInput{
		Percent:   req.Percent,
		MaxUses:   req.MaxUses,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		h.noteConflictRejection("coupon_update", err)
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponResponse(updated))
}

func (h *Handler) handleCouponDeactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.coupons.Deactivate(r.Context(), r.PathValue("couponID")); err != nil {
		h.noteConflictRejection("coupon_deactivate", err)
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
