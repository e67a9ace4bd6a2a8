package storeapi

import (
	"net/http"
	"strings"

	"github.com/goldleaf/storefront/internal/auth"
	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/internal/webserver"
	"github.com/goldleaf/storefront/pkg/common"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type profilePayload struct {
	Name            string `json:"name" validate:"omitempty,min=2,max=120"`
	Email           string `json:"email" validate:"omitempty,email,max=200"`
	Password        string `json:"password" validate:"omitempty,min=8,max=72"`
	CurrentPassword string `json:"current_password"`
}

type addressPayload struct {
	Name      string `json:"name" validate:"required,max=120"`
	Phone     string `json:"phone" validate:"required,min=10,max=20"`
	Line1     string `json:"line1" validate:"required,max=255"`
	Line2     string `json:"line2" validate:"max=255"`
	City      string `json:"city" validate:"required,max=100"`
	State     string `json:"state" validate:"required,max=100"`
	Pincode   string `json:"pincode" validate:"required,numeric,len=6"`
	Country   string `json:"country" validate:"max=60"`
	IsDefault bool   `json:"is_default"`
}

func (p addressPayload) apply(a *domain.Address) {
	a.Name = strings.TrimSpace(p.Name)
	a.Phone = common.NormalizePhone(p.Phone)
	a.Line1 = strings.TrimSpace(p.Line1)
	a.Line2 = strings.TrimSpace(p.Line2)
	a.City = strings.TrimSpace(p.City)
	a.State = strings.TrimSpace(p.State)
	a.Pincode = p.Pincode
	a.Country = strings.TrimSpace(p.Country)
	if a.Country == "" {
		a.Country = "India"
	}
	a.IsDefault = p.IsDefault
}

func registerAccountRoutes() {
	webserver.ApiGET("/me", getProfile)
	webserver.ApiPUT("/me", updateProfile)
	webserver.ApiGET("/me/addresses", listAddresses)
	webserver.ApiPOST("/me/addresses", createAddress)
	webserver.ApiPUT("/me/addresses/:id", updateAddress)
	webserver.ApiDELETE("/me/addresses/:id", deleteAddress)
}

func currentUser(c echo.Context) (*domain.User, error) {
	var user domain.User
	if err := GetDB(c).First(&user, webserver.CurrentUserID(c)).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func getProfile(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return webserver.FailDB(c, err, "User")
	}
	return ok(c, user)
}

func updateProfile(c echo.Context) error {
	var payload profilePayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	user, err := currentUser(c)
	if err != nil {
		return webserver.FailDB(c, err, "User")
	}
	updates := map[string]interface{}{}
	if name := strings.TrimSpace(payload.Name); name != "" {
		updates["name"] = name
	}
	if email := strings.ToLower(strings.TrimSpace(payload.Email)); email != "" && email != user.EmailValue() {
		updates["email"] = email
	}
	if payload.Password != "" {
		if user.Password != "" && !auth.CheckPassword(user.Password, payload.CurrentPassword) {
			return fail(c, http.StatusBadRequest, "INVALID_CREDENTIALS", "Current password is incorrect", nil)
		}
		hash, err := auth.HashPassword(payload.Password)
		if err != nil {
			return fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update password", err.Error())
		}
		updates["password"] = hash
	}
	if len(updates) > 0 {
		if err := GetDB(c).Model(user).Updates(updates).Error; err != nil {
			return webserver.FailDB(c, err, "User")
		}
	}
	user, err = currentUser(c)
	if err != nil {
		return webserver.FailDB(c, err, "User")
	}
	return ok(c, user)
}

func listAddresses(c echo.Context) error {
	var rows []domain.Address
	err := GetDB(c).Where("user_id = ?", webserver.CurrentUserID(c)).
		Order("is_default DESC, id ASC").Find(&rows).Error
	if err != nil {
		return webserver.FailDB(c, err, "Address")
	}
	return ok(c, rows)
}

// saveAddress keeps at most one default address per user; the first address is always the default
func saveAddress(tx *gorm.DB, addr *domain.Address) error {
	var others int64
	if err := tx.Model(&domain.Address{}).Where("user_id = ? AND id <> ?", addr.UserID, addr.ID).Count(&others).Error; err != nil {
		return err
	}
	if others == 0 {
		addr.IsDefault = true
	}
	if addr.IsDefault {
		if err := tx.Model(&domain.Address{}).Where("user_id = ? AND id <> ?", addr.UserID, addr.ID).
			Update("is_default", false).Error; err != nil {
			return err
		}
	}
	return tx.Save(addr).Error
}

func createAddress(c echo.Context) error {
	var payload addressPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	addr := &domain.Address{UserID: webserver.CurrentUserID(c)}
	payload.apply(addr)
	if err := GetDB(c).Transaction(func(tx *gorm.DB) error { return saveAddress(tx, addr) }); err != nil {
		return webserver.FailDB(c, err, "Address")
	}
	return created(c, addr)
}

func updateAddress(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid address ID", nil)
	}
	var payload addressPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	var addr domain.Address
	if err := GetDB(c).Where("id = ? AND user_id = ?", id, webserver.CurrentUserID(c)).First(&addr).Error; err != nil {
		return webserver.FailDB(c, err, "Address")
	}
	payload.apply(&addr)
	if err := GetDB(c).Transaction(func(tx *gorm.DB) error { return saveAddress(tx, &addr) }); err != nil {
		return webserver.FailDB(c, err, "Address")
	}
	return ok(c, addr)
}

func deleteAddress(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid address ID", nil)
	}
	res := GetDB(c).Where("id = ? AND user_id = ?", id, webserver.CurrentUserID(c)).Delete(&domain.Address{})
	if res.Error != nil {
		return webserver.FailDB(c, res.Error, "Address")
	}
	if res.RowsAffected == 0 {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Address not found", nil)
	}
	return ok(c, map[string]interface{}{"id": id})
}
