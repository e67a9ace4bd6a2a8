// Package offers evaluates discount codes against cart lines.
package offers

import (
	"sort"
	"strings"
	"time"

	"github.com/goldleaf/storefront/internal/domain"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrInactive        = errors.New("offer is not active")
	ErrNotStarted      = errors.New("offer has not started yet")
	ErrExpired         = errors.New("offer has expired")
	ErrUsageExhausted  = errors.New("offer usage limit reached")
	ErrUserLimit       = errors.New("offer already used the maximum number of times")
	ErrMinOrderValue   = errors.New("cart total is below the offer minimum")
	ErrNoEligibleItems = errors.New("no cart items are eligible for this offer")
	ErrUnknownType     = errors.New("unknown offer type")
)

// Line priced cart line
type Line struct {
	ProductID  int64
	CategoryID int64
	UnitPrice  decimal.Decimal
	Quantity   int
}

func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Result struct {
	Subtotal         decimal.Decimal `json:"subtotal"`
	EligibleSubtotal decimal.Decimal `json:"eligible_subtotal"`
	Discount         decimal.Decimal `json:"discount"`
	FreeUnits        int             `json:"free_units,omitempty"`
}

// Subtotal sum of all line totals
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Total())
	}
	return sum
}

// CheckEligibility verifies the offer can be applied at now by a user who has used it userUses times.
func CheckEligibility(offer *domain.Offer, subtotal decimal.Decimal, now time.Time, userUses int64) error {
	if offer.Status != domain.OfferActive {
		return ErrInactive
	}
	if offer.StartsAt != nil && now.Before(*offer.StartsAt) {
		return ErrNotStarted
	}
	if offer.EndsAt != nil && now.After(*offer.EndsAt) {
		return ErrExpired
	}
	if offer.UsageLimit > 0 && offer.UsedCount >= offer.UsageLimit {
		return ErrUsageExhausted
	}
	if offer.PerUserLimit > 0 && userUses >= offer.PerUserLimit {
		return ErrUserLimit
	}
	if subtotal.LessThan(offer.MinOrderValue) {
		return ErrMinOrderValue
	}
	return nil
}

// EligibleLines filters lines by the offer's product and category sets
func EligibleLines(offer *domain.Offer, lines []Line) []Line {
	if len(offer.Products) == 0 && len(offer.Categories) == 0 {
		return lines
	}
	products := make(map[int64]struct{}, len(offer.Products))
	for _, p := range offer.Products {
		products[p.ID] = struct{}{}
	}
	categories := make(map[int64]struct{}, len(offer.Categories))
	for _, c := range offer.Categories {
		categories[c.ID] = struct{}{}
	}
	var out []Line
	for _, l := range lines {
		if _, ok := products[l.ProductID]; ok {
			out = append(out, l)
			continue
		}
		if _, ok := categories[l.CategoryID]; ok && l.CategoryID != 0 {
			out = append(out, l)
		}
	}
	return out
}

// Evaluate computes the discount the offer grants on lines.
// The discount is always within [0, eligible subtotal] and rounded to 2 places.
func Evaluate(offer *domain.Offer, lines []Line, now time.Time, userUses int64) (Result, error) {
	res := Result{Subtotal: Subtotal(lines), EligibleSubtotal: decimal.Zero, Discount: decimal.Zero}
	if err := CheckEligibility(offer, res.Subtotal, now, userUses); err != nil {
		return res, err
	}
	eligible := EligibleLines(offer, lines)
	res.EligibleSubtotal = Subtotal(eligible)
	if len(eligible) == 0 || !res.EligibleSubtotal.IsPositive() {
		return res, ErrNoEligibleItems
	}

	var discount decimal.Decimal
	switch strings.ToLower(offer.Type) {
	case domain.OfferPercentage:
		discount = res.EligibleSubtotal.Mul(offer.Value).Div(decimal.NewFromInt(100))
	case domain.OfferFixed:
		discount = decimal.Min(offer.Value, res.EligibleSubtotal)
	case domain.OfferBogo:
		discount, res.FreeUnits = bogo(offer, eligible)
	default:
		return res, errors.Wrap(ErrUnknownType, offer.Type)
	}

	if offer.MaxDiscount.IsPositive() && discount.GreaterThan(offer.MaxDiscount) {
		discount = offer.MaxDiscount
	}
	res.Discount = clamp(discount, res.EligibleSubtotal).Round(2)
	return res, nil
}

// bogo makes the cheapest GetQty units of every BuyQty+GetQty group free,
// after sorting all eligible units by price descending.
func bogo(offer *domain.Offer, lines []Line) (decimal.Decimal, int) {
	buy, get := offer.BuyQty, offer.GetQty
	if buy < 1 {
		buy = 1
	}
	if get < 1 {
		get = 1
	}
	var units []decimal.Decimal
	for _, l := range lines {
		for i := 0; i < l.Quantity; i++ {
			units = append(units, l.UnitPrice)
		}
	}
	sort.SliceStable(units, func(i, j int) bool {
		return units[i].GreaterThan(units[j])
	})

	group := buy + get
	discount := decimal.Zero
	free := 0
	for start := 0; start+group <= len(units); start += group {
		for _, price := range units[start+buy : start+group] {
			discount = discount.Add(price)
			free++
		}
	}
	return discount, free
}

func clamp(v, upper decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	if v.GreaterThan(upper) {
		return upper
	}
	return v
}

// Validate checks an offer definition before it is stored
func Validate(offer *domain.Offer) error {
	offer.Code = strings.ToUpper(strings.TrimSpace(offer.Code))
	if offer.Code == "" {
		return errors.New("offer code is required")
	}
	if offer.MinOrderValue.IsNegative() || offer.MaxDiscount.IsNegative() {
		return errors.New("amounts must not be negative")
	}
	if offer.UsageLimit < 0 || offer.PerUserLimit < 0 {
		return errors.New("limits must not be negative")
	}
	if offer.StartsAt != nil && offer.EndsAt != nil && offer.EndsAt.Before(*offer.StartsAt) {
		return errors.New("ends_at must be after starts_at")
	}
	switch offer.Type {
	case domain.OfferPercentage:
		if !offer.Value.IsPositive() || offer.Value.GreaterThan(decimal.NewFromInt(100)) {
			return errors.New("percentage value must be in (0, 100]")
		}
	case domain.OfferFixed:
		if !offer.Value.IsPositive() {
			return errors.New("fixed value must be positive")
		}
	case domain.OfferBogo:
		if offer.BuyQty < 1 || offer.GetQty < 1 {
			return errors.New("bogo buy_qty and get_qty must be at least 1")
		}
	default:
		return errors.Wrap(ErrUnknownType, offer.Type)
	}
	if offer.Status == "" {
		offer.Status = domain.OfferActive
	}
	return nil
}
