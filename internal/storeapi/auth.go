package storeapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goldleaf/storefront/internal/auth"
	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/internal/otp"
	"github.com/goldleaf/storefront/internal/webserver"
	"github.com/goldleaf/storefront/pkg/common"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type registerPayload struct {
	Name     string `json:"name" validate:"required,min=2,max=120"`
	Email    string `json:"email" validate:"omitempty,email,max=200"`
	Phone    string `json:"phone" validate:"omitempty,min=10,max=20"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginPayload struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password" validate:"required"`
}

type otpSendPayload struct {
	Phone string `json:"phone" validate:"required,min=10,max=20"`
}

type otpVerifyPayload struct {
	Phone string `json:"phone" validate:"required"`
	Code  string `json:"code" validate:"required,numeric"`
	Hash  string `json:"hash" validate:"required"`
	Name  string `json:"name" validate:"omitempty,max=120"`
}

type tokenResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *domain.User `json:"user"`
	Created   bool         `json:"created,omitempty"`
}

func registerAuthRoutes() {
	webserver.PubPOST("/auth/register", register)
	webserver.PubPOST("/auth/login", login)
	webserver.PubPOST("/auth/otp/send", sendOTP)
	webserver.PubPOST("/auth/otp/verify", verifyOTP)
}

func issueToken(c echo.Context, user *domain.User, created bool) (*tokenResponse, error) {
	cfg := GetAppContext(c).Config()
	ttl := time.Duration(cfg.Web.TokenTTL) * time.Hour
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	token, exp, err := auth.Issue(cfg.Web.Secret, user, ttl)
	if err != nil {
		return nil, err
	}
	return &tokenResponse{Token: token, ExpiresAt: exp, User: user, Created: created}, nil
}

func register(c echo.Context) error {
	var payload registerPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	email := strings.ToLower(strings.TrimSpace(payload.Email))
	phone := common.NormalizePhone(payload.Phone)
	if email == "" && phone == "" {
		return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "Email or phone is required", nil)
	}
	hash, err := auth.HashPassword(payload.Password)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to register", err.Error())
	}
	user := &domain.User{
		ID:        common.UUIDint64(),
		Name:      strings.TrimSpace(payload.Name),
		Password:  hash,
		Role:      domain.RoleCustomer,
		Status:    common.ENABLED,
		LastLogin: time.Now(),
	}
	if email != "" {
		user.Email = &email
	}
	if phone != "" {
		user.Phone = &phone
	}
	if err := GetDB(c).Create(user).Error; err != nil {
		if webserver.IsDuplicateKey(err) {
			return fail(c, http.StatusConflict, "ALREADY_EXISTS", "An account with this email or phone already exists", nil)
		}
		return webserver.FailDB(c, err, "User")
	}
	GetAppContext(c).Bus().Publish(domain.TopicUserRegistered, user.ID)

	resp, err := issueToken(c, user, true)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to issue token", err.Error())
	}
	return created(c, resp)
}

func login(c echo.Context) error {
	var payload loginPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	db := GetDB(c)
	var user domain.User
	var err error
	switch {
	case strings.TrimSpace(payload.Email) != "":
		err = db.Where("email = ?", strings.ToLower(strings.TrimSpace(payload.Email))).First(&user).Error
	case strings.TrimSpace(payload.Phone) != "":
		err = db.Where("phone = ?", common.NormalizePhone(payload.Phone)).First(&user).Error
	default:
		return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "Email or phone is required", nil)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !auth.CheckPassword(user.Password, payload.Password)) {
		return fail(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid login or password", nil)
	}
	if err != nil {
		return webserver.FailDB(c, err, "User")
	}
	if user.Status != common.ENABLED {
		return fail(c, http.StatusForbidden, "ACCOUNT_DISABLED", "This account has been disabled", nil)
	}
	user.LastLogin = time.Now()
	db.Model(&user).Update("last_login", user.LastLogin)

	resp, err := issueToken(c, &user, false)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to issue token", err.Error())
	}
	return ok(c, resp)
}

func sendOTP(c echo.Context) error {
	var payload otpSendPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	appCtx := GetAppContext(c)
	manager := appCtx.OTP()
	if manager == nil {
		return fail(c, http.StatusServiceUnavailable, "OTP_UNAVAILABLE", "Phone login is not available", nil)
	}
	phone := common.NormalizePhone(payload.Phone)
	if len(phone) != 10 {
		return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid phone number", nil)
	}
	challenge, err := manager.Generate(phone)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to generate code", err.Error())
	}
	msg := fmt.Sprintf("%s is your %s verification code. It expires in %d minutes.",
		challenge.Code, appCtx.StoreSettings().Name, int(manager.TTL().Minutes()))
	if err := appCtx.SendOTP(c.Request().Context(), phone, msg); err != nil {
		zap.S().Warnf("otp: delivery to %s failed: %v", common.MaskPhone(phone), err)
		return fail(c, http.StatusBadGateway, "OTP_DELIVERY_FAILED", "Unable to deliver the verification code", nil)
	}
	return ok(c, challenge)
}

func verifyOTP(c echo.Context) error {
	var payload otpVerifyPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	appCtx := GetAppContext(c)
	manager := appCtx.OTP()
	if manager == nil {
		return fail(c, http.StatusServiceUnavailable, "OTP_UNAVAILABLE", "Phone login is not available", nil)
	}
	phone := common.NormalizePhone(payload.Phone)
	if err := manager.Verify(phone, payload.Code, payload.Hash); err != nil {
		switch {
		case errors.Is(err, otp.ErrExpired):
			return fail(c, http.StatusBadRequest, "OTP_EXPIRED", "The verification code has expired", nil)
		case errors.Is(err, otp.ErrReplayed):
			return fail(c, http.StatusBadRequest, "OTP_USED", "The verification code was already used", nil)
		default:
			return fail(c, http.StatusBadRequest, "OTP_INVALID", "Invalid verification code", nil)
		}
	}

	db := GetDB(c)
	var user domain.User
	isNew := false
	err := db.Where("phone = ?", phone).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		name := strings.TrimSpace(payload.Name)
		if name == "" {
			name = "Customer " + phone[len(phone)-4:]
		}
		user = domain.User{
			ID:        common.UUIDint64(),
			Name:      name,
			Phone:     &phone,
			Role:      domain.RoleCustomer,
			Status:    common.ENABLED,
			LastLogin: time.Now(),
		}
		if err := db.Create(&user).Error; err != nil {
			return webserver.FailDB(c, err, "User")
		}
		isNew = true
		appCtx.Bus().Publish(domain.TopicUserRegistered, user.ID)
	case err != nil:
		return webserver.FailDB(c, err, "User")
	default:
		if user.Status != common.ENABLED {
			return fail(c, http.StatusForbidden, "ACCOUNT_DISABLED", "This account has been disabled", nil)
		}
		user.LastLogin = time.Now()
		db.Model(&user).Update("last_login", user.LastLogin)
	}

	resp, err := issueToken(c, &user, isNew)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to issue token", err.Error())
	}
	return ok(c, resp)
}
