package pricing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/coupon"
	"github.com/vladislavdragonenkov/storefront/internal/service/discount"
)

var hundred = decimal.NewFromInt(100)

// Engine считает цену позиции: базовая цена товара, затем промо-скидка,
// затем купон. Скидки перемножаются, а не складываются; в целые копейки
// цена округляется один раз, в самом конце.
type Engine struct {
	store  domain.UnitOfWork
	logger *log.Entry
}

// NewEngine создаёт прайсинг-движок.
func NewEngine(store domain.UnitOfWork, logger *log.Entry) *Engine {
	if logger == nil {
		logger = log.New().WithField("component", "pricing")
	}
	return &Engine{store: store, logger: logger}
}

// LineRequest — запрос цены одной позиции. CouponCode может быть пустым.
type LineRequest struct {
	ItemID     string
	UserID     string
	CouponCode string
	Quantity   int64
	Now        time.Time
}

// Quote — разбивка цены: база, применённые проценты и итог.
type Quote struct {
	ItemID        string
	Quantity      int64
	BaseMinor     int64
	PromoPercent  decimal.Decimal
	CouponPercent decimal.Decimal
	UnitMinor     int64
	TotalMinor    int64
}

// ComputeLinePrice считает цену позиции. Купон только проверяется,
// использование не списывается.
func (e *Engine) ComputeLinePrice(ctx context.Context, in LineRequest) (*Quote, error) {
	return ComputeWith(ctx, e.store.Repos(), in)
}

// ComputeWith — то же, что ComputeLinePrice, но поверх переданного
// набора репозиториев, чтобы оформление заказа могло считать цены
// внутри своей транзакции.
func ComputeWith(ctx context.Context, r domain.RepositorySet, in LineRequest) (*Quote, error) {
	if in.ItemID == "" {
		return nil, domain.ErrItemIDRequired
	}
	if in.Quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	item, err := r.Items().Get(ctx, in.ItemID)
	if err != nil {
		return nil, err
	}
	if !item.Active {
		return nil, domain.ErrItemNotFound
	}

	promoPercent, err := discount.ResolveWith(ctx, r.Discounts(), item.ID, item.CategoryID, in.Now)
	if err != nil {
		return nil, err
	}

	couponPercent := decimal.Zero
	if in.CouponCode != "" {
		c, err := coupon.ValidateWith(ctx, r.Coupons(), in.CouponCode, in.Now, false)
		if err != nil {
			return nil, err
		}
		couponPercent = c.Percent
	}

	unitMinor := ApplyDiscounts(item.PriceMinor, promoPercent, couponPercent)
	return &Quote{
		ItemID:        item.ID,
		Quantity:      in.Quantity,
		BaseMinor:     item.PriceMinor,
		PromoPercent:  promoPercent,
		CouponPercent: couponPercent,
		UnitMinor:     unitMinor,
		TotalMinor:    unitMinor * in.Quantity,
	}, nil
}

// ApplyDiscounts применяет к базовой цене промо-процент, затем
// купонный процент и округляет до целых копеек (половина — от нуля).
func ApplyDiscounts(baseMinor int64, promoPercent, couponPercent decimal.Decimal) int64 {
	price := decimal.NewFromInt(baseMinor)
	price = price.Mul(hundred.Sub(promoPercent)).Div(hundred)
	price = price.Mul(hundred.Sub(couponPercent)).Div(hundred)
	return price.Round(0).IntPart()
}
