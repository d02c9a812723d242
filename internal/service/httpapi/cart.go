package httpapi

import (
	"net/http"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type cartAddRequest struct {
	ItemID   string `json:"item_id"`
	Quantity int64  `json:"quantity"`
}

type cartQuantityRequest struct {
	Quantity int64 `json:"quantity"`
}

type cartLineResponse struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	Quantity  int64     `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type cartResponse struct {
	Lines []cartLineResponse `json:"lines"`
}

func toCartLineResponse(line *domain.CartLine) cartLineResponse {
	return cartLineResponse{
		ID:        line.ID,
		ItemID:    line.ItemID,
		Quantity:  line.Quantity,
		CreatedAt: line.CreatedAt,
		UpdatedAt: line.UpdatedAt,
	}
}

func (h *Handler) handleCartAdd(w http.ResponseWriter, r *http.Request) {
	var req cartAddRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	line, err := h.cart.AddOrMerge(r.Context(), userID(r), req.ItemID, req.Quantity)
	if err != nil {
		h.noteStockRejection(err)
		h.noteConflictRejection("cart_add", err)
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCartLineResponse(line))
}

func (h *Handler) handleCartList(w http.ResponseWriter, r *http.Request) {
	lines, err := h.cart.Lines(r.Context(), userID(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := cartResponse{Lines: make([]cartLineResponse, 0, len(lines))}
	for i := range lines {
		resp.Lines = append(resp.Lines, toCartLineResponse(&lines[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCartSetQuantity(w http.ResponseWriter, r *http.Request) {
	var req cartQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	line, err := h.cart.SetQuantity(r.Context(), userID(r), r.PathValue("lineID"), req.Quantity)
	if err != nil {
		h.noteStockRejection(err)
		h.noteConflictRejection("cart_set_quantity", err)
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCartLineResponse(line))
}

func (h *Handler) handleCartRemove(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.Remove(r.Context(), userID(r), r.PathValue("lineID")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCartClear(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.Clear(r.Context(), userID(r)); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
