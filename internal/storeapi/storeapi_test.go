package storeapi_test

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/goldleaf/storefront/internal/app"
	"github.com/goldleaf/storefront/internal/apptest"
	"github.com/goldleaf/storefront/internal/auth"
	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/internal/payment"
	"github.com/goldleaf/storefront/internal/storeapi"
	"github.com/goldleaf/storefront/internal/webserver"
	"github.com/goldleaf/storefront/pkg/common"
	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool                   `json:"success"`
	Data    jsoniter.RawMessage    `json:"data"`
	Meta    map[string]interface{} `json:"meta"`
	Error   struct {
		Code    string      `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details"`
	} `json:"error"`
}

func (e envelope) decode(t *testing.T, v interface{}) {
	t.Helper()
	require.NoError(t, jsoniter.Unmarshal(e.Data, v), string(e.Data))
}

type harness struct {
	t   *testing.T
	app *app.Application
	e   *echo.Echo
}

func newHarness(t *testing.T) *harness {
	storeapi.Init()
	a := apptest.New(t)
	return &harness{t: t, app: a, e: webserver.NewEcho(a)}
}

func (h *harness) do(method, path, body, token string, headers ...string) (*httptest.ResponseRecorder, envelope) {
	h.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	var env envelope
	_ = jsoniter.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

// customer creates a customer account and returns it with a token
func (h *harness) customer(phone string) (*domain.User, string) {
	h.t.Helper()
	u := &domain.User{ID: common.UUIDint64(), Name: "Meera", Phone: &phone, Role: domain.RoleCustomer, Status: common.ENABLED}
	require.NoError(h.t, h.app.DB().Create(u).Error)
	tok, _, err := auth.Issue(h.app.Config().Web.Secret, u, time.Hour)
	require.NoError(h.t, err)
	return u, tok
}

func (h *harness) product(sku string, price int64, stock int, sizes ...string) *domain.Product {
	h.t.Helper()
	p := &domain.Product{
		SKU: sku, Name: "Piece " + sku, Slug: strings.ToLower("piece-" + sku),
		Price: decimal.NewFromInt(price), Stock: stock, Status: domain.ProductActive,
	}
	for _, label := range sizes {
		var sz domain.Size
		require.NoError(h.t, h.app.DB().Where("label = ?", label).First(&sz).Error)
		p.Sizes = append(p.Sizes, sz)
	}
	require.NoError(h.t, h.app.DB().Create(p).Error)
	return p
}

func id(v int64) string {
	return strconv.FormatInt(v, 10)
}

const inlineAddress = `{"name":"Meera","phone":"9876543210","line1":"4 Lake View","city":"Jaipur","state":"RJ","pincode":"302001"}`

func TestRegisterAndLogin(t *testing.T) {
	h := newHarness(t)
	body := `{"name":"Anita","email":"Anita@Example.com","phone":"+91 98765 43210","password":"secret123"}`
	rec, env := h.do(http.MethodPost, "/api/v1/auth/register", body, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var reg struct {
		Token string      `json:"token"`
		User  domain.User `json:"user"`
	}
	env.decode(t, &reg)
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, "anita@example.com", reg.User.EmailValue())
	assert.Equal(t, "9876543210", reg.User.PhoneValue())

	rec, env = h.do(http.MethodPost, "/api/v1/auth/register", body, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_EXISTS", env.Error.Code)

	rec, env = h.do(http.MethodPost, "/api/v1/auth/register", `{"name":"Anita","password":"secret123"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	rec, env = h.do(http.MethodPost, "/api/v1/auth/login", `{"email":"anita@example.com","password":"wrong-pass"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", env.Error.Code)

	rec, env = h.do(http.MethodPost, "/api/v1/auth/login", `{"phone":"9876543210","password":"secret123"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var login struct {
		Token string `json:"token"`
	}
	env.decode(t, &login)

	rec, env = h.do(http.MethodPut, "/api/v1/me", `{"name":"Anita R","password":"newsecret1","current_password":"nope"}`, login.Token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = h.do(http.MethodPut, "/api/v1/me", `{"name":"Anita R"}`, login.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	var me domain.User
	env.decode(t, &me)
	assert.Equal(t, "Anita R", me.Name)
	assert.Equal(t, domain.RoleCustomer, me.Role)
}

func TestOTPLogin(t *testing.T) {
	h := newHarness(t)
	texts := &apptest.Texts{}
	h.app.SetTextSender(texts)
	h.app.SetSMS(texts)

	rec, env := h.do(http.MethodPost, "/api/v1/auth/otp/send", `{"phone":"+919811122233"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var challenge struct {
		Hash string `json:"hash"`
	}
	env.decode(t, &challenge)
	msg := texts.Last("9811122233")
	require.NotEmpty(t, msg)
	code := strings.Fields(msg)[0]

	body := `{"phone":"9811122233","code":"` + code + `","hash":"` + challenge.Hash + `"}`
	rec, env = h.do(http.MethodPost, "/api/v1/auth/otp/verify", body, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Token   string      `json:"token"`
		User    domain.User `json:"user"`
		Created bool        `json:"created"`
	}
	env.decode(t, &resp)
	assert.True(t, resp.Created)
	assert.Equal(t, "9811122233", resp.User.PhoneValue())

	rec, env = h.do(http.MethodPost, "/api/v1/auth/otp/verify", body, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "OTP_USED", env.Error.Code)

	bad := `{"phone":"9811122233","code":"000000","hash":"` + challenge.Hash + `"}`
	_, env = h.do(http.MethodPost, "/api/v1/auth/otp/verify", bad, "")
	assert.Contains(t, []string{"OTP_INVALID", "OTP_USED"}, env.Error.Code)
}

func TestAddresses(t *testing.T) {
	h := newHarness(t)
	_, tok := h.customer("9000000001")

	rec, env := h.do(http.MethodPost, "/api/v1/me/addresses", inlineAddress, tok)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var first domain.Address
	env.decode(t, &first)
	assert.True(t, first.IsDefault)
	assert.Equal(t, "India", first.Country)

	second := strings.Replace(inlineAddress, `"pincode":"302001"`, `"pincode":"302002","is_default":true`, 1)
	rec, _ = h.do(http.MethodPost, "/api/v1/me/addresses", second, tok)
	require.Equal(t, http.StatusCreated, rec.Code)

	_, env = h.do(http.MethodGet, "/api/v1/me/addresses", "", tok)
	var list []domain.Address
	env.decode(t, &list)
	require.Len(t, list, 2)
	assert.Equal(t, "302002", list[0].Pincode)
	assert.False(t, list[1].IsDefault)

	_, other := h.customer("9000000002")
	rec, _ = h.do(http.MethodDelete, "/api/v1/me/addresses/"+id(first.ID), "", other)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = h.do(http.MethodPost, "/api/v1/me/addresses", `{"name":"x"}`, tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestCatalogAndReviews(t *testing.T) {
	h := newHarness(t)
	ring := h.product("RING1", 12000, 3, "6", "7")
	h.product("CHAIN1", 9000, 0)

	rec, env := h.do(http.MethodGet, "/api/v1/products?in_stock=true&sort=price&order=asc", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []domain.Product
	env.decode(t, &rows)
	require.Len(t, rows, 1)
	assert.Equal(t, "RING1", rows[0].SKU)
	assert.EqualValues(t, 1, env.Meta["total"])

	rec, env = h.do(http.MethodGet, "/api/v1/products/"+ring.Slug, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		SKU   string        `json:"sku"`
		Sizes []domain.Size `json:"sizes"`
	}
	env.decode(t, &detail)
	assert.Equal(t, "RING1", detail.SKU)
	assert.Len(t, detail.Sizes, 2)

	rec, _ = h.do(http.MethodGet, "/api/v1/products/missing-slug", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, tok := h.customer("9000000003")
	reviewURL := "/api/v1/products/" + id(ring.ID) + "/reviews"
	rec, _ = h.do(http.MethodPost, reviewURL, `{"rating":4,"title":"Lovely"}`, tok)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, env = h.do(http.MethodPost, reviewURL, `{"rating":5}`, tok)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_REVIEWED", env.Error.Code)

	rec, _ = h.do(http.MethodPost, reviewURL, `{"rating":9}`, tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = h.do(http.MethodGet, reviewURL, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var reviews []struct {
		Author string `json:"author"`
		Rating int    `json:"rating"`
	}
	env.decode(t, &reviews)
	require.Len(t, reviews, 1)
	assert.Equal(t, "Meera", reviews[0].Author)
	assert.NotContains(t, string(env.Data), "9000000003")

	var fresh domain.Product
	require.NoError(t, h.app.DB().First(&fresh, ring.ID).Error)
	assert.Equal(t, 4.0, fresh.AvgRating)
	assert.Equal(t, 1, fresh.ReviewCount)

	rec, _ = h.do(http.MethodGet, "/api/v1/home", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, env = h.do(http.MethodGet, "/api/v1/sizes", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"label":"7"`)
}

type orderResponse struct {
	Order domain.Order `json:"order"`
	Payment *struct {
		GatewayOrderID string `json:"gateway_order_id"`
		KeyID          string `json:"key_id"`
		Amount         int64  `json:"amount"`
	} `json:"payment"`
}

func TestCartAndCODCheckout(t *testing.T) {
	h := newHarness(t)
	_, tok := h.customer("9000000004")
	ring := h.product("RING2", 1500, 2, "7")
	var size7 domain.Size
	require.NoError(t, h.app.DB().Where("label = ?", "7").First(&size7).Error)

	rec, env := h.do(http.MethodPost, "/api/v1/cart/items", `{"product_id":"`+id(ring.ID)+`"}`, tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error.Message, "size")

	body := `{"product_id":"` + id(ring.ID) + `","size_id":"` + id(size7.ID) + `","quantity":3}`
	rec, env = h.do(http.MethodPost, "/api/v1/cart/items", body, tok)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "OUT_OF_STOCK", env.Error.Code)

	body = `{"product_id":"` + id(ring.ID) + `","size_id":"` + id(size7.ID) + `","quantity":2}`
	rec, env = h.do(http.MethodPost, "/api/v1/cart/items", body, tok)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cart struct {
		ItemCount   int             `json:"item_count"`
		Subtotal    decimal.Decimal `json:"subtotal"`
		ShippingFee decimal.Decimal `json:"shipping_fee"`
		Total       decimal.Decimal `json:"total"`
	}
	env.decode(t, &cart)
	assert.Equal(t, 2, cart.ItemCount)
	assert.Equal(t, "3000", cart.Subtotal.String())
	assert.True(t, cart.ShippingFee.IsZero())

	rec, env = h.do(http.MethodPost, "/api/v1/orders", `{"payment_method":"cod","address":`+inlineAddress+`}`, tok)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var placed orderResponse
	env.decode(t, &placed)
	assert.Equal(t, domain.OrderConfirmed, placed.Order.Status)
	assert.Nil(t, placed.Payment)
	assert.Equal(t, "7", placed.Order.Items[0].SizeLabel)

	_, env = h.do(http.MethodGet, "/api/v1/cart", "", tok)
	env.decode(t, &cart)
	assert.Zero(t, cart.ItemCount)

	rec, env = h.do(http.MethodGet, "/api/v1/orders", "", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, env.Meta["total"])

	_, other := h.customer("9000000005")
	rec, _ = h.do(http.MethodGet, "/api/v1/orders/"+id(placed.Order.ID), "", other)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = h.do(http.MethodGet, "/api/v1/orders/"+id(placed.Order.ID)+"/tracking", "", tok)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = h.do(http.MethodPost, "/api/v1/orders/"+id(placed.Order.ID)+"/cancel", `{"reason":"ordered twice"}`, tok)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cancelled domain.Order
	env.decode(t, &cancelled)
	assert.Equal(t, domain.OrderCancelled, cancelled.Status)

	var fresh domain.Product
	require.NoError(t, h.app.DB().First(&fresh, ring.ID).Error)
	assert.Equal(t, 2, fresh.Stock)

	rec, env = h.do(http.MethodPost, "/api/v1/orders/"+id(placed.Order.ID)+"/cancel", `{}`, tok)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_STATE", env.Error.Code)

	h.app.Bus().WaitAsync()
}

func TestOfferApply(t *testing.T) {
	h := newHarness(t)
	_, tok := h.customer("9000000006")
	p := h.product("EAR1", 2000, 5)
	require.NoError(t, h.app.DB().Create(&domain.Offer{
		Code: "FESTIVE10", Type: domain.OfferPercentage, Value: decimal.NewFromInt(10),
		MinOrderValue: decimal.NewFromInt(3000), Status: domain.OfferActive, IsPublic: true,
	}).Error)

	rec, env := h.do(http.MethodGet, "/api/v1/offers", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), "FESTIVE10")

	rec, _ = h.do(http.MethodPost, "/api/v1/cart/items", `{"product_id":"`+id(p.ID)+`"}`, tok)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = h.do(http.MethodPost, "/api/v1/offers/apply", `{"code":"festive10"}`, tok)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "OFFER_NOT_APPLICABLE", env.Error.Code)

	rec, _ = h.do(http.MethodPut, "/api/v1/cart/items/0", `{"quantity":2}`, tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var item domain.CartItem
	require.NoError(t, h.app.DB().Where("product_id = ?", p.ID).First(&item).Error)
	rec, _ = h.do(http.MethodPut, "/api/v1/cart/items/"+id(item.ID), `{"quantity":2}`, tok)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = h.do(http.MethodPost, "/api/v1/offers/apply", `{"code":"festive10"}`, tok)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var quote struct {
		Discount decimal.Decimal `json:"discount"`
		Total    decimal.Decimal `json:"total"`
	}
	env.decode(t, &quote)
	assert.Equal(t, "400", quote.Discount.String())
	assert.Equal(t, "3600", quote.Total.String())

	rec, env = h.do(http.MethodPost, "/api/v1/offers/apply", `{"code":"NOPE"}`, tok)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "OFFER_NOT_FOUND", env.Error.Code)
}

func TestOnlineCheckoutAndPayment(t *testing.T) {
	h := newHarness(t)
	gw := &apptest.Gateway{Secret: "gw-secret"}
	h.app.SetPayment(gw)
	_, tok := h.customer("9000000007")
	p := h.product("BANGLE1", 1000, 4)

	rec, _ := h.do(http.MethodPost, "/api/v1/cart/items", `{"product_id":"`+id(p.ID)+`","quantity":1}`, tok)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := h.do(http.MethodPost, "/api/v1/orders", `{"payment_method":"online","address":`+inlineAddress+`}`, tok)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var placed orderResponse
	env.decode(t, &placed)
	assert.Equal(t, domain.OrderPending, placed.Order.Status)
	require.NotNil(t, placed.Payment)
	assert.Equal(t, "rzp_test_key", placed.Payment.KeyID)
	assert.EqualValues(t, 109900, placed.Payment.Amount)
	gwID := placed.Payment.GatewayOrderID

	verifyURL := "/api/v1/orders/" + id(placed.Order.ID) + "/payment/verify"
	rec, env = h.do(http.MethodPost, verifyURL, `{"gateway_order_id":"`+gwID+`","payment_id":"pay_1","signature":"bad"}`, tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_SIGNATURE", env.Error.Code)

	rec, env = h.do(http.MethodPost, verifyURL, `{"gateway_order_id":"order_other","payment_id":"pay_1","signature":"bad"}`, tok)
	assert.Equal(t, "PAYMENT_MISMATCH", env.Error.Code)

	sig := payment.Sign(gw.Secret, []byte(gwID+"|pay_1"))
	rec, env = h.do(http.MethodPost, verifyURL, `{"gateway_order_id":"`+gwID+`","payment_id":"pay_1","signature":"`+sig+`"}`, tok)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var paid domain.Order
	env.decode(t, &paid)
	assert.Equal(t, domain.PaymentPaid, paid.PaymentStatus)
	assert.Equal(t, domain.OrderConfirmed, paid.Status)

	hook := `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"` + gwID + `","status":"captured"}}}}`
	rec, _ = h.do(http.MethodPost, "/api/v1/payments/webhook", hook, "", "X-Razorpay-Signature", "forged")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env = h.do(http.MethodPost, "/api/v1/payments/webhook", hook, "", "X-Razorpay-Signature", payment.Sign(gw.Secret, []byte(hook)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"result":"duplicate"`)

	h.app.Bus().WaitAsync()
}

func TestOnlineCheckoutGatewayDown(t *testing.T) {
	h := newHarness(t)
	_, tok := h.customer("9000000008")
	p := h.product("PENDANT1", 1000, 1)
	rec, _ := h.do(http.MethodPost, "/api/v1/cart/items", `{"product_id":"`+id(p.ID)+`"}`, tok)
	require.Equal(t, http.StatusOK, rec.Code)

	// the default gateway client has no credentials in tests
	rec, env := h.do(http.MethodPost, "/api/v1/orders", `{"payment_method":"online","address":`+inlineAddress+`}`, tok)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "PAYMENT_GATEWAY_ERROR", env.Error.Code)

	var order domain.Order
	require.NoError(t, h.app.DB().Where("user_id <> 0").First(&order).Error)
	assert.Equal(t, domain.OrderCancelled, order.Status)
	var fresh domain.Product
	require.NoError(t, h.app.DB().First(&fresh, p.ID).Error)
	assert.Equal(t, 1, fresh.Stock)

	h.app.Bus().WaitAsync()
}

func TestTracking(t *testing.T) {
	h := newHarness(t)
	tracker := &apptest.Tracker{}
	h.app.SetTracker(tracker)
	user, tok := h.customer("9000000009")
	order := domain.Order{
		ID: common.UUIDint64(), OrderNo: "GLTRACK1", UserID: user.ID, Status: domain.OrderShipped,
		PaymentMethod: domain.PaymentMethodCOD, Courier: "Delhivery", AWB: "AWB123",
	}
	require.NoError(t, h.app.DB().Create(&order).Error)

	rec, env := h.do(http.MethodGet, "/api/v1/orders/"+id(order.ID)+"/tracking", "", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"live":false`)

	tracker.Set("AWB123", "IN TRANSIT")
	rec, env = h.do(http.MethodGet, "/api/v1/orders/"+id(order.ID)+"/tracking", "", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		Live     bool `json:"live"`
		Shipment struct {
			RawStatus string `json:"raw_status"`
		} `json:"shipment"`
	}
	env.decode(t, &view)
	assert.True(t, view.Live)
	assert.Equal(t, "IN TRANSIT", view.Shipment.RawStatus)
}
