package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/address"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/coupon"
	"github.com/vladislavdragonenkov/storefront/internal/service/discount"
	"github.com/vladislavdragonenkov/storefront/internal/service/pricing"
)

const (
	headerUserID         = "X-User-ID"
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotency-Replayed"

	defaultListLimit = 100
	maxBodyBytes     = 1 << 20
)

// Handler реализует JSON API витрины поверх доменных сервисов.
type Handler struct {
	catalog   *catalog.Service
	cart      *cart.Manager
	discounts *discount.Service
	coupons   *coupon.Service
	addresses *address.Service
	pricing   *pricing.Engine
	checkout  *checkout.Service
	idem      domain.IdempotencyRepository
	metrics   *metrics.CoreMetrics
	logger    *log.Entry
}

// Config — зависимости HTTP-обработчика.
type Config struct {
	Catalog     *catalog.Service
	Cart        *cart.Manager
	Discounts   *discount.Service
	Coupons     *coupon.Service
	Addresses   *address.Service
	Pricing     *pricing.Engine
	Checkout    *checkout.Service
	Idempotency domain.IdempotencyRepository
	Metrics     *metrics.CoreMetrics
	Logger      *log.Entry
}

// NewHandler конструирует обработчик с зависимостями.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New().WithField("component", "httpapi")
	}
	return &Handler{
		catalog:   cfg.Catalog,
		cart:      cfg.Cart,
		discounts: cfg.Discounts,
		coupons:   cfg.Coupons,
		addresses: cfg.Addresses,
		pricing:   cfg.Pricing,
		checkout:  cfg.Checkout,
		idem:      cfg.Idempotency,
		metrics:   cfg.Metrics,
		logger:    logger,
	}
}

// Router собирает все маршруты API.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// Корзина
	h.route(mux, "POST /cart/items", h.handleCartAdd)
	h.route(mux, "GET /cart", h.handleCartList)
	h.route(mux, "PUT /cart/items/{lineID}", h.handleCartSetQuantity)
	h.route(mux, "DELETE /cart/items/{lineID}", h.handleCartRemove)
	h.route(mux, "DELETE /cart", h.handleCartClear)

	// Цены и купоны
	h.route(mux, "POST /price/quote", h.handlePriceQuote)
	h.route(mux, "POST /coupons/validate", h.handleCouponValidate)
	h.route(mux, "POST /coupons/redeem", h.handleCouponRedeem)

	// Оформление заказа
	h.route(mux, "POST /checkout", h.handleCheckout)

	// Адреса
	h.route(mux, "POST /addresses", h.handleAddressCreate)
	h.route(mux, "GET /addresses", h.handleAddressList)
	h.route(mux, "GET /addresses/{addressID}", h.handleAddressGet)
	h.route(mux, "PUT /addresses/{addressID}", h.handleAddressUpdate)
	h.route(mux, "DELETE /addresses/{addressID}", h.handleAddressDelete)
	h.route(mux, "PUT /addresses/{addressID}/default", h.handleAddressSetDefault)

	// Каталог и административные операции
	h.route(mux, "POST /items", h.handleItemCreate)
	h.route(mux, "GET /items", h.handleItemList)
	h.route(mux, "GET /items/{itemID}", h.handleItemGet)
	h.route(mux, "PUT /items/{itemID}", h.handleItemUpdate)
	h.route(mux, "DELETE /items/{itemID}", h.handleItemDeactivate)
	h.route(mux, "PUT /items/{itemID}/stock", h.handleItemSetStock)
	h.route(mux, "POST /items/{itemID}/stock/adjustments", h.handleItemAdjustStock)

	h.route(mux, "POST /discounts", h.handleDiscountCreate)
	h.route(mux, "GET /discounts", h.handleDiscountList)
	h.route(mux, "GET /discounts/{discountID}", h.handleDiscountGet)
	h.route(mux, "PUT /discounts/{discountID}", h.handleDiscountUpdate)
	h.route(mux, "DELETE /discounts/{discountID}", h.handleDiscountDeactivate)

	h.route(mux, "POST /coupons", h.handleCouponCreate)
	h.route(mux, "GET /coupons/{couponID}", h.handleCouponGet)
	h.route(mux, "PUT /coupons/{couponID}", h.handleCouponUpdate)
	h.route(mux, "DELETE /coupons/{couponID}", h.handleCouponDeactivate)

	return mux
}

// route навешивает на маршрут метрики и access-лог.
func (h *Handler) route(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		fn(rec, r)

		elapsed := time.Since(start)
		if h.metrics != nil {
			h.metrics.RecordHTTPRequest(pattern, strconv.Itoa(rec.status))
			h.metrics.RecordRequestDuration(pattern, elapsed)
		}

		h.logger.WithFields(log.Fields{
			"method":     r.Method,
			"route":      pattern,
			"path":       r.URL.Path,
			"status":     rec.status,
			"latency_ms": elapsed.Milliseconds(),
		}).Info("http request")
	})
}

// statusRecorder запоминает статус ответа для метрик и логов.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// userID извлекает идентификатор пользователя из заголовка.
// Пустое значение превращается в ErrUserIDRequired на уровне сервисов.
func userID(r *http.Request) string {
	return r.Header.Get(headerUserID)
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeStored отдаёт ранее сохранённый ответ байт в байт.
func writeStored(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeDomainError отображает доменную ошибку в HTTP-статус.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	status, body := h.domainErrorBody(err)
	writeJSON(w, status, body)
}

// domainErrorBody строит статус и тело ошибки. Внутренние ошибки в ответ
// не утекают, только в лог.
func (h *Handler) domainErrorBody(err error) (int, any) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).Error("internal error")
		return status, map[string]string{"error": "internal error"}
	}
	return status, map[string]string{"error": err.Error()}
}

func statusForError(err error) int {
	switch {
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrCouponExhausted),
		errors.Is(err, domain.ErrConcurrentModification),
		errors.Is(err, domain.ErrVersionConflict),
		errors.Is(err, domain.ErrCouponCodeTaken),
		errors.Is(err, domain.ErrItemSKUTaken),
		errors.Is(err, domain.ErrIdempotencyKeyReused),
		errors.Is(err, domain.ErrIdempotencyInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrCouponInactive),
		errors.Is(err, domain.ErrCouponExpired),
		errors.Is(err, domain.ErrInvalidDiscountWindow),
		errors.Is(err, domain.ErrInvalidPercent),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrCartEmpty):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUserIDRequired),
		errors.Is(err, domain.ErrItemIDRequired),
		errors.Is(err, domain.ErrItemSKURequired),
		errors.Is(err, domain.ErrItemNameRequired),
		errors.Is(err, domain.ErrItemPriceInvalid),
		errors.Is(err, domain.ErrStockNegative),
		errors.Is(err, domain.ErrRecipientRequired),
		errors.Is(err, domain.ErrAddressLineRequired),
		errors.Is(err, domain.ErrCityRequired),
		errors.Is(err, domain.ErrCountryRequired),
		errors.Is(err, domain.ErrCouponCodeRequired),
		errors.Is(err, domain.ErrInvalidMaxUses),
		errors.Is(err, domain.ErrInvalidDiscountScope),
		errors.Is(err, domain.ErrScopeIDRequired),
		errors.Is(err, domain.ErrIdempotencyKeyRequired):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// noteCouponRejection учитывает отказ по купону в метриках.
// Вызывается только на купонных маршрутах, чтобы админские 404 не
// попадали в бизнес-счётчик.
func (h *Handler) noteCouponRejection(err error) {
	if h.metrics == nil {
		return
	}
	switch {
	case errors.Is(err, domain.ErrCouponNotFound):
		h.metrics.RecordCouponRejected("not_found")
	case errors.Is(err, domain.ErrCouponInactive):
		h.metrics.RecordCouponRejected("inactive")
	case errors.Is(err, domain.ErrCouponExpired):
		h.metrics.RecordCouponRejected("expired")
	case errors.Is(err, domain.ErrCouponExhausted):
		h.metrics.RecordCouponRejected("exhausted")
	}
}

// noteStockRejection учитывает отказ по остатку в метриках.
func (h *Handler) noteStockRejection(err error) {
	if h.metrics != nil && errors.Is(err, domain.ErrInsufficientStock) {
		h.metrics.RecordStockRejection()
	}
}

// noteConflictRejection учитывает отказ после исчерпания повторов.
func (h *Handler) noteConflictRejection(op string, err error) {
	if h.metrics != nil && errors.Is(err, domain.ErrConcurrentModification) {
		h.metrics.RecordConflictRejection(op)
	}
}
