package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OfferPercentage = "percentage"
	OfferFixed      = "fixed"
	OfferBogo       = "bogo"

	OfferActive   = "active"
	OfferInactive = "inactive"
	OfferExpired  = "expired"
)

// Offer discount code. Empty product and category sets make every cart line eligible.
type Offer struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id,string"`
	Code          string          `gorm:"uniqueIndex;size:40" json:"code"`
	Title         string          `gorm:"size:200" json:"title"`
	Description   string          `gorm:"type:text" json:"description"`
	Type          string          `gorm:"size:20" json:"type"`
	Value         decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"value"`
	MinOrderValue decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"min_order_value"`
	MaxDiscount   decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"max_discount"` // 0 means no cap
	BuyQty        int             `gorm:"default:1" json:"buy_qty"`
	GetQty        int             `gorm:"default:1" json:"get_qty"`
	StartsAt      *time.Time      `json:"starts_at"`
	EndsAt        *time.Time      `gorm:"index" json:"ends_at"`
	UsageLimit    int64           `gorm:"default:0" json:"usage_limit"` // 0 means unlimited
	UsedCount     int64           `gorm:"default:0" json:"used_count"`
	PerUserLimit  int64           `gorm:"default:0" json:"per_user_limit"`
	IsPublic      bool            `gorm:"default:true" json:"is_public"`
	Status        string          `gorm:"size:20;index;default:active" json:"status"`
	Products      []Product       `gorm:"many2many:offer_products" json:"products,omitempty"`
	Categories    []Category      `gorm:"many2many:offer_categories" json:"categories,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (Offer) TableName() string {
	return "offers"
}
