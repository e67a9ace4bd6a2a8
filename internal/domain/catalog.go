package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ProductActive   = "active"
	ProductDraft    = "draft"
	ProductArchived = "archived"
)

type Category struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id,string"`
	ParentID    *int64    `gorm:"index" json:"parent_id,string,omitempty"`
	Name        string    `gorm:"size:120" json:"name"`
	Slug        string    `gorm:"uniqueIndex;size:140" json:"slug"`
	Description string    `gorm:"type:text" json:"description"`
	ImageURL    string    `gorm:"size:1024" json:"image_url"`
	Sort        int       `json:"sort"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Category) TableName() string {
	return "categories"
}

type Tag struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id,string"`
	Name      string    `gorm:"uniqueIndex;size:60" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (Tag) TableName() string {
	return "tags"
}

// Size ring/bangle/chain size label
type Size struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id,string"`
	Label     string    `gorm:"uniqueIndex;size:40" json:"label"`
	Sort      int       `json:"sort"`
	CreatedAt time.Time `json:"created_at"`
}

func (Size) TableName() string {
	return "sizes"
}

type Product struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id,string"`
	SKU            string          `gorm:"uniqueIndex;size:64" json:"sku"`
	Name           string          `gorm:"index;size:200" json:"name"`
	Slug           string          `gorm:"uniqueIndex;size:220" json:"slug"`
	Description    string          `gorm:"type:text" json:"description"`
	Material       string          `gorm:"size:60" json:"material"` // gold, silver, platinum
	Purity         string          `gorm:"size:20" json:"purity"`   // 22K, 925
	WeightGrams    decimal.Decimal `gorm:"type:decimal(10,3);default:0" json:"weight_grams"`
	Price          decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	CompareAtPrice decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"compare_at_price"`
	Stock          int             `gorm:"default:0" json:"stock"`
	CategoryID     *int64          `gorm:"index" json:"category_id,string,omitempty"`
	Category       *Category       `json:"category,omitempty"`
	Tags           []Tag           `gorm:"many2many:product_tags" json:"tags,omitempty"`
	Sizes          []Size          `gorm:"many2many:product_sizes" json:"sizes,omitempty"`
	Media          []Media         `json:"media,omitempty"`
	Status         string          `gorm:"size:20;index;default:active" json:"status"`
	IsFeatured     bool            `gorm:"index" json:"is_featured"`
	AvgRating      float64         `gorm:"default:0" json:"avg_rating"`
	ReviewCount    int             `gorm:"default:0" json:"review_count"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}

// Media uploaded object, optionally attached to a product
type Media struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id,string"`
	ProductID   *int64    `gorm:"index" json:"product_id,string,omitempty"`
	ObjectKey   string    `gorm:"uniqueIndex;size:255" json:"object_key"`
	URL         string    `gorm:"size:1024" json:"url"`
	ContentType string    `gorm:"size:100" json:"content_type"`
	Size        int64     `json:"size"`
	Kind        string    `gorm:"size:20" json:"kind"` // image | video
	Position    int       `gorm:"default:0" json:"position"`
	Alt         string    `gorm:"size:200" json:"alt"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Media) TableName() string {
	return "media"
}

type HomePageImage struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id,string"`
	Title     string    `gorm:"size:200" json:"title"`
	ImageURL  string    `gorm:"size:1024" json:"image_url"`
	ObjectKey string    `gorm:"size:255" json:"object_key"`
	LinkURL   string    `gorm:"size:1024" json:"link_url"`
	Position  int       `gorm:"default:0" json:"position"`
	Status    string    `gorm:"size:20;default:enabled" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (HomePageImage) TableName() string {
	return "home_page_images"
}

type TopPickProduct struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id,string"`
	ProductID int64     `gorm:"uniqueIndex" json:"product_id,string"`
	Product   *Product  `json:"product,omitempty"`
	Position  int       `gorm:"default:0" json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

func (TopPickProduct) TableName() string {
	return "top_pick_products"
}

type Review struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id,string"`
	UserID    int64     `gorm:"uniqueIndex:idx_review_user_product" json:"user_id,string"`
	ProductID int64     `gorm:"uniqueIndex:idx_review_user_product;index" json:"product_id,string"`
	User      *User     `json:"user,omitempty"`
	Rating    int       `json:"rating"`
	Title     string    `gorm:"size:200" json:"title"`
	Comment   string    `gorm:"type:text" json:"comment"`
	Status    string    `gorm:"size:20;default:published;index" json:"status"` // published | hidden
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Review) TableName() string {
	return "reviews"
}

const (
	ReviewPublished = "published"
	ReviewHidden    = "hidden"
)
