package adminapi

import (
	"net/http"

	"github.com/goldleaf/storefront/internal/webserver"
	"github.com/goldleaf/storefront/internal/whatsapp"
	"github.com/goldleaf/storefront/pkg/common"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type whatsAppSendPayload struct {
	Phone string `json:"phone" validate:"required,min=6,max=20"`
	Text  string `json:"text" validate:"required,max=4096"`
}

func registerWhatsAppRoutes() {
	webserver.AdminGET("/whatsapp/status", getWhatsAppStatus)
	webserver.AdminGET("/whatsapp/qr", getWhatsAppQR)
	webserver.AdminPOST("/whatsapp/connect", postWhatsAppConnect)
	webserver.AdminPOST("/whatsapp/send", postWhatsAppSend)
}

func waService(c echo.Context) (*whatsapp.Service, error) {
	svc := whatsapp.Get()
	if svc == nil {
		return nil, fail(c, http.StatusServiceUnavailable, "WA_NOT_INITIALIZED", "WhatsApp service not initialized", nil)
	}
	return svc, nil
}

func getWhatsAppStatus(c echo.Context) error {
	svc, err := waService(c)
	if svc == nil {
		return err
	}
	return ok(c, svc.Status())
}

// getWhatsAppQR returns the latest pairing code. The admin panel renders the QR from it.
func getWhatsAppQR(c echo.Context) error {
	svc, err := waService(c)
	if svc == nil {
		return err
	}
	code := svc.GetQRCode()
	return ok(c, map[string]interface{}{
		"code":   code,
		"has_qr": code != "",
	})
}

// postWhatsAppConnect starts a background connect; a fresh QR shows up on /whatsapp/qr
func postWhatsAppConnect(c echo.Context) error {
	svc, err := waService(c)
	if svc == nil {
		return err
	}
	svc.ConnectAsync()
	zap.L().Info("adminapi: triggered whatsapp connect")
	return ok(c, map[string]interface{}{"started": true})
}

// postWhatsAppSend sends a test message to a phone number
func postWhatsAppSend(c echo.Context) error {
	svc, err := waService(c)
	if svc == nil {
		return err
	}
	var payload whatsAppSendPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	phone := common.NormalizePhone(payload.Phone)
	if err := svc.SendText(c.Request().Context(), phone, payload.Text); err != nil {
		if errors.Is(err, whatsapp.ErrNotLoggedIn) {
			return fail(c, http.StatusConflict, "WA_NOT_PAIRED", "WhatsApp device is not paired", nil)
		}
		return fail(c, http.StatusBadGateway, "SEND_FAILED", "Failed to send message", err.Error())
	}
	return ok(c, map[string]interface{}{"sent": true, "phone": common.MaskPhone(phone)})
}
