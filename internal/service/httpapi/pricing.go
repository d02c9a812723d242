package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/service/pricing"
)

type quoteRequest struct {
	ItemID     string `json:"item_id"`
	Quantity   int64  `json:"quantity"`
	CouponCode string `json:"coupon_code,omitempty"`
}

type quoteResponse struct {
	ItemID        string          `json:"item_id"`
	Quantity      int64           `json:"quantity"`
	BaseMinor     int64           `json:"base_minor"`
	PromoPercent  decimal.Decimal `json:"promo_percent"`
	CouponPercent decimal.Decimal `json:"coupon_percent"`
	UnitMinor     int64           `json:"unit_minor"`
	TotalMinor    int64           `json:"total_minor"`
}

func toQuoteResponse(q *pricing.Quote) quoteResponse {
	return quoteResponse{
		ItemID:        q.ItemID,
		Quantity:      q.Quantity,
		BaseMinor:     q.BaseMinor,
		PromoPercent:  q.PromoPercent,
		CouponPercent: q.CouponPercent,
		UnitMinor:     q.UnitMinor,
		TotalMinor:    q.TotalMinor,
	}
}

// handlePriceQuote считает цену позиции без побочных эффектов:
// купон проверяется, но использование не списывается.
func (h *Handler) handlePriceQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	quote, err := h.pricing.ComputeLinePrice(r.Context(), pricing.LineRequest{
		ItemID:     req.ItemID,
		UserID:     userID(r),
		CouponCode: req.CouponCode,
		Quantity:   req.Quantity,
		Now:        time.Now().UTC(),
	})
	if err != nil {
		if req.CouponCode != "" {
			h.noteCouponRejection(err)
		}
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toQuoteResponse(quote))
}

type couponCodeRequest struct {
	Code string `json:"code"`
}

type couponValidateResponse struct {
	Code      string          `json:"code"`
	Percent   decimal.Decimal `json:"percent"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

// handleCouponValidate проверяет купон без списания использования.
func (h *Handler) handleCouponValidate(w http.ResponseWriter, r *http.Request) {
	var req couponCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	c, err := h.coupons.Validate(r.Context(), req.Code, userID(r), time.Now().UTC())
	if err != nil {
		h.noteCouponRejection(err)
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, couponValidateResponse{
		Code:      c.Code,
		Percent:   c.Percent,
		ExpiresAt: c.ExpiresAt,
	})
}

type couponRedeemResponse struct {
	RedemptionID string    `json:"redemption_id"`
	CouponID     string    `json:"coupon_id"`
	UserID       string    `json:"user_id"`
	UsedAt       time.Time `json:"used_at"`
}

// handleCouponRedeem списывает одно использование купона. Повтор с тем же
// Idempotency-Key возвращает сохранённый ответ вместо второго списания.
func (h *Handler) handleCouponRedeem(w http.ResponseWriter, r *http.Request) {
	rawBody, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req couponCodeRequest
	if err := unmarshalStrict(rawBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	h.withIdempotency(w, r, rawBody, func(ctx context.Context) (int, any) {
		redemption, err := h.coupons.Redeem(ctx, req.Code, userID(r), time.Now().UTC())
		if err != nil {
			h.noteCouponRejection(err)
			return h.domainErrorBody(err)
		}

		if h.metrics != nil {
			h.metrics.RecordCouponRedeemed()
		}
		return http.StatusOK, couponRedeemResponse{
			RedemptionID: redemption.ID,
			CouponID:     redemption.CouponID,
			UserID:       redemption.UserID,
			UsedAt:       redemption.UsedAt,
		}
	})
}
