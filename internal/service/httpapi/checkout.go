package httpapi

import (
	"context"
	"net/http"
	"time"
)

type checkoutRequest struct {
	CouponCode string `json:"coupon_code,omitempty"`
}

// handleCheckout фиксирует корзину пользователя как заказ. Списание
// остатков, скидки и купон применяются атомарно; повтор с тем же
// Idempotency-Key возвращает уже созданный чек.
func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	rawBody, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req checkoutRequest
	if len(rawBody) > 0 {
		if err := unmarshalStrict(rawBody, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	h.withIdempotency(w, r, rawBody, func(ctx context.Context) (int, any) {
		if h.metrics != nil {
			h.metrics.RecordCheckoutStarted()
			h.metrics.RecordCheckoutInFlightStarted()
			defer h.metrics.RecordCheckoutInFlightFinished()
		}

		receipt, err := h.checkout.Commit(ctx, userID(r), req.CouponCode, time.Now().UTC())
		if err != nil {
			if h.metrics != nil {
				h.metrics.RecordCheckoutFailed()
			}
			if req.CouponCode != "" {
				h.noteCouponRejection(err)
			}
			h.noteStockRejection(err)
			h.noteConflictRejection("checkout", err)
			return h.domainErrorBody(err)
		}

		if h.metrics != nil {
			h.metrics.RecordCheckoutCompleted()
			if receipt.CouponCode != "" {
				h.metrics.RecordCouponRedeemed()
			}
		}
		return http.StatusCreated, receipt
	})
}
