package adminapi

import (
	"net/http"
	"strings"

	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/internal/webserver"
	"github.com/goldleaf/storefront/pkg/common"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cast"
	"gorm.io/gorm"
)

type topPickPayload struct {
	ProductID string `json:"product_id" validate:"required,numeric"`
	Position  int    `json:"position"`
}

func registerStorefrontRoutes() {
	webserver.AdminGET("/homepage-images", listHomeImages)
	webserver.AdminPOST("/homepage-images", createHomeImage)
	webserver.AdminPUT("/homepage-images/:id", updateHomeImage)
	webserver.AdminDELETE("/homepage-images/:id", deleteHomeImage)

	webserver.AdminGET("/top-picks", listTopPicks)
	webserver.AdminPOST("/top-picks", createTopPick)
	webserver.AdminPUT("/top-picks/:id", updateTopPick)
	webserver.AdminDELETE("/top-picks/:id", deleteTopPick)
}

func listHomeImages(c echo.Context) error {
	var rows []domain.HomePageImage
	if err := GetDB(c).Order("position ASC, id ASC").Find(&rows).Error; err != nil {
		return webserver.FailDB(c, err, "Homepage image")
	}
	return ok(c, rows)
}

func formStatus(c echo.Context, fallback string) (string, bool) {
	status := strings.TrimSpace(c.FormValue("status"))
	if status == "" {
		return fallback, true
	}
	return status, status == common.ENABLED || status == common.DISABLED
}

// createHomeImage takes a multipart form: file, title, link_url, position, status
func createHomeImage(c echo.Context) error {
	status, valid := formStatus(c, common.ENABLED)
	if !valid {
		return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "status must be enabled or disabled", nil)
	}
	up, err := storeUpload(c, "file", "banners")
	if up == nil {
		return err
	}
	if up.Kind != "image" {
		discardUpload(c, up.Key)
		return fail(c, http.StatusBadRequest, "UNSUPPORTED_MEDIA_TYPE", "Homepage banners must be images", nil)
	}
	img := domain.HomePageImage{
		Title:     strings.TrimSpace(c.FormValue("title")),
		ImageURL:  up.URL,
		ObjectKey: up.Key,
		LinkURL:   strings.TrimSpace(c.FormValue("link_url")),
		Position:  cast.ToInt(c.FormValue("position")),
		Status:    status,
	}
	if err := GetDB(c).Create(&img).Error; err != nil {
		discardUpload(c, up.Key)
		return webserver.FailDB(c, err, "Homepage image")
	}
	return created(c, img)
}

// updateHomeImage edits metadata; a new file replaces the stored image
func updateHomeImage(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid image ID", nil)
	}
	db := GetDB(c)
	var img domain.HomePageImage
	if err := db.First(&img, id).Error; err != nil {
		return webserver.FailDB(c, err, "Homepage image")
	}
	status, valid := formStatus(c, img.Status)
	if !valid {
		return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "status must be enabled or disabled", nil)
	}
	oldKey := ""
	if _, ferr := c.FormFile("file"); ferr == nil {
		up, err := storeUpload(c, "file", "banners")
		if up == nil {
			return err
		}
		oldKey = img.ObjectKey
		img.ObjectKey, img.ImageURL = up.Key, up.URL
	}
	if v := c.FormValue("title"); v != "" {
		img.Title = strings.TrimSpace(v)
	}
	if v := c.FormValue("link_url"); v != "" {
		img.LinkURL = strings.TrimSpace(v)
	}
	if v := c.FormValue("position"); v != "" {
		img.Position = cast.ToInt(v)
	}
	img.Status = status
	if err := db.Save(&img).Error; err != nil {
		return webserver.FailDB(c, err, "Homepage image")
	}
	if oldKey != "" {
		discardUpload(c, oldKey)
	}
	return ok(c, img)
}

func deleteHomeImage(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid image ID", nil)
	}
	db := GetDB(c)
	var img domain.HomePageImage
	if err := db.First(&img, id).Error; err != nil {
		return webserver.FailDB(c, err, "Homepage image")
	}
	if err := db.Delete(&img).Error; err != nil {
		return webserver.FailDB(c, err, "Homepage image")
	}
	if img.ObjectKey != "" {
		discardUpload(c, img.ObjectKey)
	}
	return ok(c, map[string]interface{}{"id": id})
}

func listTopPicks(c echo.Context) error {
	var rows []domain.TopPickProduct
	err := GetDB(c).Preload("Product").Order("position ASC, id ASC").Find(&rows).Error
	if err != nil {
		return webserver.FailDB(c, err, "Top pick")
	}
	return ok(c, rows)
}

func (p *topPickPayload) resolve(db *gorm.DB) (int64, error) {
	id := cast.ToInt64(p.ProductID)
	return id, db.Select("id").First(&domain.Product{}, id).Error
}

func createTopPick(c echo.Context) error {
	var payload topPickPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	db := GetDB(c)
	productID, err := payload.resolve(db)
	if err != nil {
		return webserver.FailDB(c, err, "Product")
	}
	pick := domain.TopPickProduct{ProductID: productID, Position: payload.Position}
	if err := db.Create(&pick).Error; err != nil {
		if webserver.IsDuplicateKey(err) {
			return fail(c, http.StatusConflict, "ALREADY_EXISTS", "Product is already a top pick", nil)
		}
		return webserver.FailDB(c, err, "Top pick")
	}
	db.Preload("Product").First(&pick, pick.ID)
	return created(c, pick)
}

func updateTopPick(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid top pick ID", nil)
	}
	var payload topPickPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	db := GetDB(c)
	var pick domain.TopPickProduct
	if err := db.First(&pick, id).Error; err != nil {
		return webserver.FailDB(c, err, "Top pick")
	}
	productID, err := payload.resolve(db)
	if err != nil {
		return webserver.FailDB(c, err, "Product")
	}
	pick.ProductID, pick.Position = productID, payload.Position
	if err := db.Omit("Product").Save(&pick).Error; err != nil {
		return webserver.FailDB(c, err, "Top pick")
	}
	db.Preload("Product").First(&pick, pick.ID)
	return ok(c, pick)
}

func deleteTopPick(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid top pick ID", nil)
	}
	res := GetDB(c).Delete(&domain.TopPickProduct{}, id)
	if res.Error != nil {
		return webserver.FailDB(c, res.Error, "Top pick")
	}
	if res.RowsAffected == 0 {
		return webserver.FailDB(c, gorm.ErrRecordNotFound, "Top pick")
	}
	return ok(c, map[string]interface{}{"id": id})
}
