package domain

import "time"

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// User customer or administrator account. Email and Phone are nullable so
// that OTP-only customers and email-only admins can coexist under unique indexes.
type User struct {
	ID        int64     `json:"id,string"`
	Name      string    `gorm:"size:120" json:"name"`
	Email     *string   `gorm:"uniqueIndex;size:200" json:"email"`
	Phone     *string   `gorm:"uniqueIndex;size:20" json:"phone"`
	Password  string    `gorm:"size:100" json:"-"`
	Role      string    `gorm:"size:20;index;default:customer" json:"role"`
	Status    string    `gorm:"size:20;default:enabled" json:"status"`
	LastLogin time.Time `json:"last_login"`
	Addresses []Address `gorm:"constraint:OnDelete:CASCADE" json:"addresses,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// EmailValue returns the email or "" when unset
func (u User) EmailValue() string {
	if u.Email == nil {
		return ""
	}
	return *u.Email
}

// PhoneValue returns the phone or "" when unset
func (u User) PhoneValue() string {
	if u.Phone == nil {
		return ""
	}
	return *u.Phone
}

type Address struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id,string"`
	UserID    int64     `gorm:"index" json:"user_id,string"`
	Name      string    `gorm:"size:120" json:"name"`
	Phone     string    `gorm:"size:20" json:"phone"`
	Line1     string    `gorm:"size:255" json:"line1"`
	Line2     string    `gorm:"size:255" json:"line2"`
	City      string    `gorm:"size:100" json:"city"`
	State     string    `gorm:"size:100" json:"state"`
	Pincode   string    `gorm:"size:12" json:"pincode"`
	Country   string    `gorm:"size:60;default:India" json:"country"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Address) TableName() string {
	return "addresses"
}
