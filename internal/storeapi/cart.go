package storeapi

import (
	"net/http"

	"github.com/goldleaf/storefront/internal/orders"
	"github.com/goldleaf/storefront/internal/webserver"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type cartItemPayload struct {
	ProductID string `json:"product_id" validate:"required,numeric"`
	SizeID    string `json:"size_id" validate:"omitempty,numeric"`
	Quantity  int    `json:"quantity" validate:"omitempty,min=1,max=50"`
}

type cartQuantityPayload struct {
	Quantity int `json:"quantity" validate:"min=0,max=50"`
}

type cartView struct {
	Items       []orders.CartLine `json:"items"`
	ItemCount   int               `json:"item_count"`
	Subtotal    decimal.Decimal   `json:"subtotal"`
	ShippingFee decimal.Decimal   `json:"shipping_fee"`
	Total       decimal.Decimal   `json:"total"`
}

func registerCartRoutes() {
	webserver.ApiGET("/cart", getCart)
	webserver.ApiPOST("/cart/items", addCartItem)
	webserver.ApiPUT("/cart/items/:id", updateCartItem)
	webserver.ApiDELETE("/cart/items/:id", removeCartItem)
	webserver.ApiDELETE("/cart", clearCart)
}

func renderCart(c echo.Context, svc *orders.Service) error {
	lines, err := svc.Cart(c.Request().Context(), webserver.CurrentUserID(c))
	if err != nil {
		return failOrder(c, err, "Cart")
	}
	view := cartView{Items: lines, Subtotal: decimal.Zero, ShippingFee: decimal.Zero}
	for _, l := range lines {
		view.ItemCount += l.Quantity
		view.Subtotal = view.Subtotal.Add(l.LineTotal)
	}
	if len(lines) > 0 {
		view.ShippingFee = GetAppContext(c).StoreSettings().ShippingFor(view.Subtotal)
	}
	view.Total = view.Subtotal.Add(view.ShippingFee)
	return ok(c, view)
}

func getCart(c echo.Context) error {
	return renderCart(c, orderService(c))
}

func addCartItem(c echo.Context) error {
	var payload cartItemPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	productID, _ := parseID(payload.ProductID)
	sizeID, _ := parseID(payload.SizeID)
	if payload.Quantity == 0 {
		payload.Quantity = 1
	}
	svc := orderService(c)
	if _, err := svc.AddToCart(c.Request().Context(), webserver.CurrentUserID(c), productID, sizeID, payload.Quantity); err != nil {
		return failOrder(c, err, "Cart item")
	}
	return renderCart(c, svc)
}

func updateCartItem(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid cart item ID", nil)
	}
	var payload cartQuantityPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	svc := orderService(c)
	if err := svc.SetCartQuantity(c.Request().Context(), webserver.CurrentUserID(c), id, payload.Quantity); err != nil {
		return failOrder(c, err, "Cart item")
	}
	return renderCart(c, svc)
}

func removeCartItem(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid cart item ID", nil)
	}
	svc := orderService(c)
	if err := svc.RemoveCartItem(c.Request().Context(), webserver.CurrentUserID(c), id); err != nil {
		return failOrder(c, err, "Cart item")
	}
	return renderCart(c, svc)
}

func clearCart(c echo.Context) error {
	svc := orderService(c)
	if err := svc.ClearCart(c.Request().Context(), webserver.CurrentUserID(c)); err != nil {
		return failOrder(c, err, "Cart")
	}
	return renderCart(c, svc)
}
