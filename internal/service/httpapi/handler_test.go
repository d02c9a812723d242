package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/address"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/coupon"
	"github.com/vladislavdragonenkov/storefront/internal/service/discount"
	"github.com/vladislavdragonenkov/storefront/internal/service/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/service/pricing"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

type testEnv struct {
	router http.Handler
	store  *memory.Store
}

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: false, DisableTimestamp: true})
	logger.SetLevel(logrus.WarnLevel)
	return logger.WithField("component", "test")
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewStore()
	logger := loggerForTests()
	handler := httpapi.NewHandler(httpapi.Config{
		Catalog:     catalog.NewService(store, logger),
		Cart:        cart.NewManager(store, logger),
		Discounts:   discount.NewService(store, logger),
		Coupons:     coupon.NewService(store, logger),
		Addresses:   address.NewService(store, logger),
		Pricing:     pricing.NewEngine(store, logger),
		Checkout:    checkout.NewService(store, logger),
		Idempotency: store.Repos().Idempotency(),
		Metrics:     metrics.NewCoreMetrics(),
		Logger:      logger,
	})
	return &testEnv{router: handler.Router(), store: store}
}

type reqOptions struct {
	user    string
	idemKey string
	rawBody string
}

func (e *testEnv) send(t *testing.T, method, target string, body any, opts reqOptions) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch {
	case opts.rawBody != "":
		reader = bytes.NewReader([]byte(opts.rawBody))
	case body != nil:
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	default:
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	if opts.user != "" {
		req.Header.Set("X-User-ID", opts.user)
	}
	if opts.idemKey != "" {
		req.Header.Set("Idempotency-Key", opts.idemKey)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) do(t *testing.T, method, target, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return e.send(t, method, target, body, reqOptions{user: user})
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), "body: %s", rec.Body.String())
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	decodeInto(t, rec, &body)
	return body["error"]
}

// Представления ответов, достаточные для проверок.
type itemView struct {
	ID            string `json:"id"`
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	CategoryID    string `json:"category_id"`
	PriceMinor    int64  `json:"price_minor"`
	StockQuantity int64  `json:"stock_quantity"`
	Active        bool   `json:"active"`
}

type cartLineView struct {
	ID       string `json:"id"`
	ItemID   string `json:"item_id"`
	Quantity int64  `json:"quantity"`
}

type cartView struct {
	Lines []cartLineView `json:"lines"`
}

func (e *testEnv) createItem(t *testing.T, sku, name string, priceMinor, stock int64) itemView {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/items", "admin", map[string]any{
		"sku":            sku,
		"name":           name,
		"category_id":    "cat-audio",
		"price_minor":    priceMinor,
		"stock_quantity": stock,
	})
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())

	var item itemView
	decodeInto(t, rec, &item)
	return item
}

func (e *testEnv) createCoupon(t *testing.T, body map[string]any) map[string]any {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/coupons", "admin", body)
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())

	var created map[string]any
	decodeInto(t, rec, &created)
	return created
}

func (e *testEnv) addToCart(t *testing.T, user, itemID string, qty int64) cartLineView {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/cart/items", user, map[string]any{"item_id": itemID, "quantity": qty})
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())

	var line cartLineView
	decodeInto(t, rec, &line)
	return line
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t)

	t.Run("unknown item is 404", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/items/no-such-item", "admin", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
		require.NotEmpty(t, errorMessage(t, rec))
	})

	t.Run("malformed json is 400", func(t *testing.T) {
		rec := env.send(t, http.MethodPost, "/cart/items", nil, reqOptions{user: "user-1", rawBody: "{"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown field is 400", func(t *testing.T) {
		rec := env.send(t, http.MethodPost, "/cart/items", nil, reqOptions{
			user:    "user-1",
			rawBody: `{"item_id":"x","quantity":1,"color":"red"}`,
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing user header is 400", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/cart/items", "", map[string]any{"item_id": "x", "quantity": 1})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, errorMessage(t, rec), "user_id")
	})

	t.Run("invalid quantity is 422", func(t *testing.T) {
		item := env.createItem(t, "SKU-EM-1", "Наушники", 10000, 5)
		rec := env.do(t, http.MethodPost, "/cart/items", "user-1", map[string]any{"item_id": item.ID, "quantity": 0})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestRequestBodyLimit(t *testing.T) {
	env := newTestEnv(t)

	// Тело больше лимита обрывается на чтении и превращается в 400.
	huge := `{"item_id":"` + strings.Repeat("a", 1<<20) + `","quantity":1}`
	rec := env.send(t, http.MethodPost, "/cart/items", nil, reqOptions{user: "user-1", rawBody: huge})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestItemListLimit(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		env.createItem(t, "SKU-LIM-"+string(rune('A'+i)), "Товар", 1000, 1)
	}

	rec := env.do(t, http.MethodGet, "/items?limit=2", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var items []itemView
	decodeInto(t, rec, &items)
	require.Len(t, items, 2)

	// Некорректный limit откатывается к дефолту.
	rec = env.do(t, http.MethodGet, "/items?limit=-1", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &items)
	require.Len(t, items, 3)
}
