package httpapi_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type quoteView struct {
	ItemID        string `json:"item_id"`
	Quantity      int64  `json:"quantity"`
	BaseMinor     int64  `json:"base_minor"`
	PromoPercent  string `json:"promo_percent"`
	CouponPercent string `json:"coupon_percent"`
	UnitMinor     int64  `json:"unit_minor"`
	TotalMinor    int64  `json:"total_minor"`
}

func (e *testEnv) createDiscount(t *testing.T, scope, scopeID string, percent int64) {
	t.Helper()

	now := time.Now().UTC()
	rec := e.do(t, http.MethodPost, "/discounts", "admin", map[string]any{
		"scope":     scope,
		"scope_id":  scopeID,
		"percent":   percent,
		"starts_at": now.Add(-time.Hour),
		"ends_at":   now.Add(time.Hour),
	})
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
}

func TestPriceQuote(t *testing.T) {
	env := newTestEnv(t)
	item := env.createItem(t, "HDPH-0010", "Наушники", 10000, 10)
	env.createDiscount(t, "item", item.ID, 20)
	env.createCoupon(t, map[string]any{"code": "SAVE10", "percent": 10})

	rec := env.do(t, http.MethodPost, "/price/quote", "user-1", map[string]any{
		"item_id":     item.ID,
		"quantity":    2,
		"coupon_code": "save10",
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var quote quoteView
	decodeInto(t, rec, &quote)
	// 10000 → промо 20% → 8000 → купон 10% → 7200 за единицу.
	require.Equal(t, int64(10000), quote.BaseMinor)
	require.Equal(t, "20", quote.PromoPercent)
	require.Equal(t, "10", quote.CouponPercent)
	require.Equal(t, int64(7200), quote.UnitMinor)
	require.Equal(t, int64(14400), quote.TotalMinor)

	// Расчёт не тратит использование купона.
	redemptions, err := env.store.Repos().Coupons().CountRedemptions(context.Background(), couponID(t, env, "SAVE10"))
	require.NoError(t, err)
	require.Zero(t, redemptions)
}

func TestPriceQuoteWithoutCoupon(t *testing.T) {
	env := newTestEnv(t)
	item := env.createItem(t, "HDPH-0011", "Колонка", 5000, 10)

	rec := env.do(t, http.MethodPost, "/price/quote", "user-1", map[string]any{
		"item_id":  item.ID,
		"quantity": 3,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var quote quoteView
	decodeInto(t, rec, &quote)
	require.Equal(t, int64(5000), quote.UnitMinor)
	require.Equal(t, int64(15000), quote.TotalMinor)
	require.Equal(t, "0", quote.PromoPercent)
}

func TestPriceQuoteRejectsBadCoupon(t *testing.T) {
	env := newTestEnv(t)
	item := env.createItem(t, "HDPH-0012", "Кабель", 500, 10)

	rec := env.do(t, http.MethodPost, "/price/quote", "user-1", map[string]any{
		"item_id":     item.ID,
		"quantity":    1,
		"coupon_code": "GHOST",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func couponID(t *testing.T, env *testEnv, code string) string {
	t.Helper()

	c, err := env.store.Repos().Coupons().GetByCode(context.Background(), code)
	require.NoError(t, err)
	return c.ID
}

func TestCouponValidate(t *testing.T) {
	env := newTestEnv(t)
	env.createCoupon(t, map[string]any{"code": "WELCOME", "percent": 15})

	rec := env.do(t, http.MethodPost, "/coupons/validate", "user-1", map[string]any{"code": "welcome"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Code    string `json:"code"`
		Percent string `json:"percent"`
	}
	decodeInto(t, rec, &resp)
	require.Equal(t, "WELCOME", resp.Code)
	require.Equal(t, "15", resp.Percent)

	t.Run("unknown coupon", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/coupons/validate", "user-1", map[string]any{"code": "GHOST"})
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("expired coupon", func(t *testing.T) {
		expiry := time.Now().UTC().Add(-time.Minute)
		env.createCoupon(t, map[string]any{"code": "OLD", "percent": 5, "expires_at": expiry})

		rec := env.do(t, http.MethodPost, "/coupons/validate", "user-1", map[string]any{"code": "OLD"})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		require.Contains(t, errorMessage(t, rec), "expired")
	})

	t.Run("deactivated coupon", func(t *testing.T) {
		created := env.createCoupon(t, map[string]any{"code": "GONE", "percent": 5})
		rec := env.do(t, http.MethodDelete, "/coupons/"+created["id"].(string), "admin", nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = env.do(t, http.MethodPost, "/coupons/validate", "user-1", map[string]any{"code": "GONE"})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		require.Contains(t, errorMessage(t, rec), "inactive")
	})
}

func TestCouponRedeem(t *testing.T) {
	env := newTestEnv(t)
	env.createCoupon(t, map[string]any{"code": "ONCE", "percent": 10, "max_uses": 1})

	rec := env.do(t, http.MethodPost, "/coupons/redeem", "user-1", map[string]any{"code": "ONCE"})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var redemption struct {
		RedemptionID string `json:"redemption_id"`
		CouponID     string `json:"coupon_id"`
		UserID       string `json:"user_id"`
	}
	decodeInto(t, rec, &redemption)
	require.NotEmpty(t, redemption.RedemptionID)
	require.Equal(t, "user-1", redemption.UserID)

	// Лимит общий на купон, а не на пользователя.
	rec = env.do(t, http.MethodPost, "/coupons/redeem", "user-2", map[string]any{"code": "ONCE"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, errorMessage(t, rec), "exhausted")
}
