package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/address"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/coupon"
	"github.com/vladislavdragonenkov/storefront/internal/service/discount"
	"github.com/vladislavdragonenkov/storefront/internal/service/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/service/pricing"
)

// serviceSet собирает доменные сервисы, работающие поверх общего хранилища.
type serviceSet struct {
	catalog   *catalog.Service
	cart      *cart.Manager
	discounts *discount.Service
	coupons   *coupon.Service
	addresses *address.Service
	pricing   *pricing.Engine
	checkout  *checkout.Service
}

// buildServices создаёт сервисный слой поверх хранилища.
func buildServices(store domain.UnitOfWork, logger *log.Entry) *serviceSet {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	return &serviceSet{
		catalog:   catalog.NewService(store, logger.WithField("service", "catalog")),
		cart:      cart.NewManager(store, logger.WithField("service", "cart")),
		discounts: discount.NewService(store, logger.WithField("service", "discount")),
		coupons:   coupon.NewService(store, logger.WithField("service", "coupon")),
		addresses: address.NewService(store, logger.WithField("service", "address")),
		pricing:   pricing.NewEngine(store, logger.WithField("service", "pricing")),
		checkout:  checkout.NewService(store, logger.WithField("service", "checkout")),
	}
}

// buildAPIHandler связывает сервисный слой с HTTP-обработчиком.
func buildAPIHandler(store domain.UnitOfWork, services *serviceSet, coreMetrics *metrics.CoreMetrics, logger *log.Entry) *httpapi.Handler {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	return httpapi.NewHandler(httpapi.Config{
		Catalog:     services.catalog,
		Cart:        services.cart,
		Discounts:   services.discounts,
		Coupons:     services.coupons,
		Addresses:   services.addresses,
		Pricing:     services.pricing,
		Checkout:    services.checkout,
		Idempotency: store.Repos().Idempotency(),
		Metrics:     coreMetrics,
		Logger:      logger.WithField("layer", "http"),
	})
}
