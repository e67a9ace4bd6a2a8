package adminapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/360EntSecGroup-Skylar/excelize"
	"github.com/araddon/dateparse"
	"github.com/gocarina/gocsv"
	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/internal/offers"
	"github.com/goldleaf/storefront/internal/orders"
	"github.com/goldleaf/storefront/internal/webserver"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"gorm.io/gorm"
)

const exportLimit = 10000

type statusPayload struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=500"`
}

type shipmentPayload struct {
	Courier     string `json:"courier" validate:"required,max=80"`
	AWB         string `json:"awb" validate:"required,max=64"`
	TrackingURL string `json:"tracking_url" validate:"omitempty,url,max=1024"`
}

// orderExportRow one line of the CSV/XLSX export
type orderExportRow struct {
	OrderNo       string `csv:"order_no"`
	CreatedAt     string `csv:"created_at"`
	Customer      string `csv:"customer"`
	Phone         string `csv:"phone"`
	Status        string `csv:"status"`
	PaymentMethod string `csv:"payment_method"`
	PaymentStatus string `csv:"payment_status"`
	Items         int    `csv:"items"`
	Subtotal      string `csv:"subtotal"`
	Discount      string `csv:"discount"`
	ShippingFee   string `csv:"shipping_fee"`
	Total         string `csv:"total"`
	OfferCode     string `csv:"offer_code"`
	City          string `csv:"city"`
	Pincode       string `csv:"pincode"`
	Courier       string `csv:"courier"`
	AWB           string `csv:"awb"`
}

var exportHeader = []string{
	"Order No", "Created At", "Customer", "Phone", "Status", "Payment Method", "Payment Status", "Items",
	"Subtotal", "Discount", "Shipping Fee", "Total", "Offer Code", "City", "Pincode", "Courier", "AWB",
}

func (r orderExportRow) values() []interface{} {
	return []interface{}{
		r.OrderNo, r.CreatedAt, r.Customer, r.Phone, r.Status, r.PaymentMethod, r.PaymentStatus, r.Items,
		r.Subtotal, r.Discount, r.ShippingFee, r.Total, r.OfferCode, r.City, r.Pincode, r.Courier, r.AWB,
	}
}

var adminOrderSorts = map[string]string{
	"id":         "orders.id",
	"total":      "orders.total",
	"status":     "orders.status",
	"created_at": "orders.created_at",
}

func registerOrderRoutes() {
	webserver.AdminGET("/orders", listOrders)
	webserver.AdminGET("/orders/export", exportOrders)
	webserver.AdminGET("/orders/:id", getOrder)
	webserver.AdminPUT("/orders/:id/status", updateOrderStatus)
	webserver.AdminPUT("/orders/:id/shipment", assignShipment)
}

// filterOrders applies status, payment_status, user_id, q and from/to query params
func filterOrders(c echo.Context, db *gorm.DB) (*gorm.DB, error) {
	query := db.Model(&domain.Order{})
	if status := c.QueryParam("status"); status != "" {
		query = query.Where("orders.status IN ?", strings.Split(status, ","))
	}
	if ps := c.QueryParam("payment_status"); ps != "" {
		query = query.Where("orders.payment_status = ?", ps)
	}
	if pm := c.QueryParam("payment_method"); pm != "" {
		query = query.Where("orders.payment_method = ?", pm)
	}
	if uid := c.QueryParam("user_id"); uid != "" {
		query = query.Where("orders.user_id = ?", cast.ToInt64(uid))
	}
	if q := strings.TrimSpace(c.QueryParam("q")); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(orders.order_no) LIKE ? OR LOWER(orders.ship_name) LIKE ? OR orders.ship_phone LIKE ? OR LOWER(orders.awb) LIKE ?",
			like, like, like, like)
	}
	if from := c.QueryParam("from"); from != "" {
		t, err := dateparse.ParseLocal(from)
		if err != nil {
			return nil, errors.Wrap(err, "from")
		}
		query = query.Where("orders.created_at >= ?", t)
	}
	if to := c.QueryParam("to"); to != "" {
		t, err := dateparse.ParseLocal(to)
		if err != nil {
			return nil, errors.Wrap(err, "to")
		}
		// a bare date includes the whole day
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			t = t.Add(24 * time.Hour)
		}
		query = query.Where("orders.created_at < ?", t)
	}
	return query, nil
}

func listOrders(c echo.Context) error {
	page, pageSize := parsePagination(c)
	query, err := filterOrders(c, GetDB(c))
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid date range", err.Error())
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return webserver.FailDB(c, err, "Order")
	}
	var rows []domain.Order
	err = query.Preload("User").
		Order(webserver.SortOrder(c, adminOrderSorts, "orders.id")).
		Offset((page - 1) * pageSize).Limit(pageSize).Find(&rows).Error
	if err != nil {
		return webserver.FailDB(c, err, "Order")
	}
	return paged(c, rows, total, page, pageSize)
}

func getOrder(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid order ID", nil)
	}
	order, err := orderService(c).Get(c.Request().Context(), id, 0)
	if err != nil {
		return webserver.FailDB(c, err, "Order")
	}
	var user domain.User
	if GetDB(c).First(&user, order.UserID).Error == nil {
		order.User = &user
	}
	return ok(c, order)
}

func updateOrderStatus(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid order ID", nil)
	}
	var payload statusPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	order, err := orderService(c).UpdateStatus(c.Request().Context(), id, domain.OrderStatus(payload.Status), payload.Note)
	if err != nil {
		switch errors.Cause(err) {
		case orders.ErrInvalidStatus:
			return fail(c, http.StatusBadRequest, "INVALID_STATUS", "Unknown order status", payload.Status)
		case orders.ErrStaleOrder:
			return fail(c, http.StatusConflict, "INVALID_STATE", "Order changed concurrently, reload and retry", nil)
		case orders.ErrOutOfStock:
			return fail(c, http.StatusConflict, "OUT_OF_STOCK", "Not enough stock to reopen the order", err.Error())
		case offers.ErrUsageExhausted:
			return fail(c, http.StatusConflict, "OFFER_EXHAUSTED", "Offer usage limit reached", nil)
		}
		return webserver.FailDB(c, err, "Order")
	}
	return ok(c, order)
}

func assignShipment(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid order ID", nil)
	}
	var payload shipmentPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	order, err := orderService(c).AssignShipment(c.Request().Context(), id, orders.ShipmentInput{
		Courier:     strings.TrimSpace(payload.Courier),
		AWB:         strings.TrimSpace(payload.AWB),
		TrackingURL: payload.TrackingURL,
	})
	if err != nil {
		return webserver.FailDB(c, err, "Order")
	}
	return ok(c, order)
}

func exportRows(c echo.Context) ([]orderExportRow, error) {
	query, err := filterOrders(c, GetDB(c))
	if err != nil {
		return nil, err
	}
	var rows []domain.Order
	err = query.Preload("User").Preload("Items").
		Order("orders.id DESC").Limit(exportLimit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]orderExportRow, 0, len(rows))
	for _, o := range rows {
		items := 0
		for _, it := range o.Items {
			items += it.Quantity
		}
		customer := o.ShipName
		if o.User != nil && o.User.Name != "" {
			customer = o.User.Name
		}
		out = append(out, orderExportRow{
			OrderNo:       o.OrderNo,
			CreatedAt:     o.CreatedAt.Format(time.DateTime),
			Customer:      customer,
			Phone:         o.ShipPhone,
			Status:        string(o.Status),
			PaymentMethod: o.PaymentMethod,
			PaymentStatus: o.PaymentStatus,
			Items:         items,
			Subtotal:      o.Subtotal.StringFixed(2),
			Discount:      o.Discount.StringFixed(2),
			ShippingFee:   o.ShippingFee.StringFixed(2),
			Total:         o.Total.StringFixed(2),
			OfferCode:     o.OfferCode,
			City:          o.ShipCity,
			Pincode:       o.ShipPincode,
			Courier:       o.Courier,
			AWB:           o.AWB,
		})
	}
	return out, nil
}

// exportOrders streams the filtered orders as format=csv (default) or format=xlsx
func exportOrders(c echo.Context) error {
	rows, err := exportRows(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "EXPORT_FAILED", "Failed to load orders", err.Error())
	}
	stamp := time.Now().Format("20060102-150405")
	switch strings.ToLower(c.QueryParam("format")) {
	case "", "csv":
		var buf bytes.Buffer
		if err := gocsv.Marshal(&rows, &buf); err != nil {
			return fail(c, http.StatusInternalServerError, "EXPORT_FAILED", "Failed to write CSV", err.Error())
		}
		c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="orders-%s.csv"`, stamp))
		return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
	case "xlsx":
		f := excelize.NewFile()
		const sheet = "Sheet1"
		for col, title := range exportHeader {
			f.SetCellValue(sheet, cellName(col, 1), title)
		}
		for i, r := range rows {
			for col, v := range r.values() {
				f.SetCellValue(sheet, cellName(col, i+2), v)
			}
		}
		var buf bytes.Buffer
		if err := f.Write(&buf); err != nil {
			return fail(c, http.StatusInternalServerError, "EXPORT_FAILED", "Failed to write XLSX", err.Error())
		}
		c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="orders-%s.xlsx"`, stamp))
		return c.Blob(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
	}
	return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "format must be csv or xlsx", nil)
}

// cellName maps a zero-based column and one-based row to A1 notation
func cellName(col, row int) string {
	name := ""
	for col >= 0 {
		name = string(rune('A'+col%26)) + name
		col = col/26 - 1
	}
	return fmt.Sprintf("%s%d", name, row)
}
