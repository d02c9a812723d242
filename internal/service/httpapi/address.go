package httpapi

import (
	"net/http"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/address"
)

type addressRequest struct {
	Recipient  string `json:"recipient"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country"`
	IsDefault  bool   `json:"is_default,omitempty"`
}

func (req addressRequest) toInput() address.Input {
	return address.Input{
		Recipient:  req.Recipient,
		Line1:      req.Line1,
		Line2:      req.Line2,
		City:       req.City,
		PostalCode: req.PostalCode,
		Country:    req.Country,
		IsDefault:  req.IsDefault,
	}
}

type addressResponse struct {
	ID         string    `json:"id"`
	Recipient  string    `json:"recipient"`
	Line1      string    `json:"line1"`
	Line2      string    `json:"line2,omitempty"`
	City       string    `json:"city"`
	PostalCode string    `json:"postal_code,omitempty"`
	Country    string    `json:"country"`
	IsDefault  bool      `json:"is_default"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toAddressResponse(a *domain.Address) addressResponse {
	return addressResponse{
		ID:         a.ID,
		Recipient:  a.Recipient,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		IsDefault:  a.IsDefault,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

func (h *Handler) handleAddressCreate(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.addresses.Create(r.Context(), userID(r), req.toInput())
	if err != nil {
		h.noteConflictRejection("address_create", err)
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAddressResponse(created))
}

func (h *Handler) handleAddressList(w http.ResponseWriter, r *http.Request) {
	list, err := h.addresses.List(r.Context(), userID(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := make([]addressResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toAddressResponse(&list[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleAddressGet(w http.ResponseWriter, r *http.Request) {
	a, err := h.addresses.Get(r.Context(), userID(r), r.PathValue("addressID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAddressResponse(a))
}

func (h *Handler) handleAddressUpdate(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	updated, err := h.addresses.Update(r.Context(), userID(r), r.PathValue("addressID"), req.toInput())
	if err != nil {
		h.noteConflictRejection("address_update", err)
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAddressResponse(updated))
}

// handleAddressSetDefault назначает адрес дефолтным; прежний дефолт
// снимается в той же транзакции.
func (h *Handler) handleAddressSetDefault(w http.ResponseWriter, r *http.Request) {
	if err := h.addresses.SetDefault(r.Context(), userID(r), r.PathValue("addressID")); err != nil {
		h.noteConflictRejection("address_set_default", err)
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAddressDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.addresses.Delete(r.Context(), userID(r), r.PathValue("addressID")); err != nil {
		h.noteConflictRejection("address_delete", err)
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
