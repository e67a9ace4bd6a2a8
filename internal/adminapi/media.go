package adminapi

import (
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/internal/storage"
	"github.com/goldleaf/storefront/internal/webserver"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type reorderPayload struct {
	IDs []string `json:"ids" validate:"required,min=1"`
}

func registerMediaRoutes() {
	webserver.AdminGET("/media", listMedia)
	webserver.AdminPOST("/media", uploadMedia)
	webserver.AdminPUT("/media/:id", updateMedia)
	webserver.AdminDELETE("/media/:id", deleteMedia)
	webserver.AdminPUT("/products/:id/media/order", reorderMedia)
}

func listMedia(c echo.Context) error {
	page, pageSize := parsePagination(c)
	query := GetDB(c).Model(&domain.Media{})
	if pid := c.QueryParam("product_id"); pid != "" {
		query = query.Where("product_id = ?", cast.ToInt64(pid))
	}
	if kind := c.QueryParam("kind"); kind != "" {
		query = query.Where("kind = ?", kind)
	}
	var total int64
	query.Count(&total)
	var rows []domain.Media
	err := query.Order("product_id ASC, position ASC, id ASC").
		Offset((page - 1) * pageSize).Limit(pageSize).Find(&rows).Error
	if err != nil {
		return webserver.FailDB(c, err, "Media")
	}
	return paged(c, rows, total, page, pageSize)
}

// uploaded is one stored object
type uploaded struct {
	Key         string
	URL         string
	ContentType string
	Size        int64
	Kind        string
}

// storeUpload streams the multipart field to object storage after checking
// extension, content type and size. A nil result means the error response is
// already written; the returned error is only the outcome of writing it.
func storeUpload(c echo.Context, field, prefix string) (*uploaded, error) {
	store := GetAppContext(c).ObjectStore()
	if store == nil {
		return nil, fail(c, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Object storage is not configured", nil)
	}
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Missing upload field "+field, nil)
	}
	kind := storage.MediaKind(fh.Filename)
	if kind == "" {
		return nil, fail(c, http.StatusBadRequest, "UNSUPPORTED_MEDIA_TYPE", "File type is not allowed", path.Ext(fh.Filename))
	}
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		ext := strings.ToLower(path.Ext(fh.Filename))
		if contentType = mime.TypeByExtension(ext); contentType == "" {
			contentType = kind + "/" + strings.TrimPrefix(ext, ".")
		}
	}
	if !strings.HasPrefix(contentType, kind+"/") {
		return nil, fail(c, http.StatusBadRequest, "UNSUPPORTED_MEDIA_TYPE", "Content type does not match file extension", contentType)
	}
	limit := int64(GetAppContext(c).Config().Storage.MaxUploadMB) << 20
	if limit > 0 && fh.Size > limit {
		return nil, fail(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds upload limit",
			map[string]int64{"max_bytes": limit})
	}
	src, err := fh.Open()
	if err != nil {
		return nil, fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to read upload", err.Error())
	}
	defer src.Close()
	key := storage.NewObjectKey(prefix, fh.Filename)
	url, err := store.Put(c.Request().Context(), key, src, fh.Size, contentType)
	if err != nil {
		zap.L().Error("adminapi: upload failed", zap.String("key", key), zap.Error(err))
		return nil, fail(c, http.StatusBadGateway, "STORAGE_ERROR", "Failed to store file", nil)
	}
	return &uploaded{Key: key, URL: url, ContentType: contentType, Size: fh.Size, Kind: kind}, nil
}

func discardUpload(c echo.Context, key string) {
	if store := GetAppContext(c).ObjectStore(); store != nil {
		if err := store.Delete(c.Request().Context(), key); err != nil {
			zap.L().Warn("adminapi: discard upload failed", zap.String("key", key), zap.Error(err))
		}
	}
}

func uploadMedia(c echo.Context) error {
	productID, err := optionalID(c.FormValue("product_id"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	db := GetDB(c)
	if productID != nil {
		if err := db.Select("id").First(&domain.Product{}, *productID).Error; err != nil {
			return webserver.FailDB(c, err, "Product")
		}
	}
	up, err := storeUpload(c, "file", "products")
	if up == nil {
		return err
	}
	m := domain.Media{
		ProductID:   productID,
		ObjectKey:   up.Key,
		URL:         up.URL,
		ContentType: up.ContentType,
		Size:        up.Size,
		Kind:        up.Kind,
		Alt:         c.FormValue("alt"),
	}
	if productID != nil {
		db.Model(&domain.Media{}).Where("product_id = ?", *productID).
			Select("COALESCE(MAX(position) + 1, 0)").Scan(&m.Position)
	}
	if err := db.Create(&m).Error; err != nil {
		discardUpload(c, up.Key)
		return webserver.FailDB(c, err, "Media")
	}
	return created(c, m)
}

type mediaPayload struct {
	ProductID string `json:"product_id" validate:"omitempty,numeric"`
	Alt       string `json:"alt" validate:"max=200"`
}

func updateMedia(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid media ID", nil)
	}
	var payload mediaPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	productID, err := optionalID(payload.ProductID)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	db := GetDB(c)
	var m domain.Media
	if err := db.First(&m, id).Error; err != nil {
		return webserver.FailDB(c, err, "Media")
	}
	if productID != nil {
		if err := db.Select("id").First(&domain.Product{}, *productID).Error; err != nil {
			return webserver.FailDB(c, err, "Product")
		}
	}
	m.ProductID = productID
	m.Alt = payload.Alt
	if err := db.Save(&m).Error; err != nil {
		return webserver.FailDB(c, err, "Media")
	}
	return ok(c, m)
}

func deleteMedia(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid media ID", nil)
	}
	db := GetDB(c)
	var m domain.Media
	if err := db.First(&m, id).Error; err != nil {
		return webserver.FailDB(c, err, "Media")
	}
	if err := db.Delete(&m).Error; err != nil {
		return webserver.FailDB(c, err, "Media")
	}
	discardUpload(c, m.ObjectKey)
	return ok(c, map[string]interface{}{"id": id})
}

// reorderMedia sets positions following the given id order. Every id must belong to the product.
func reorderMedia(c echo.Context) error {
	productID, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	var payload reorderPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	ids, err := parseIDs(payload.IDs)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", err.Error(), nil)
	}
	db := GetDB(c)
	var owned int64
	db.Model(&domain.Media{}).Where("product_id = ? AND id IN ?", productID, ids).Count(&owned)
	if owned != int64(len(ids)) {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Media does not belong to product", nil)
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		for pos, id := range ids {
			if err := tx.Model(&domain.Media{}).Where("id = ?", id).Update("position", pos).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return webserver.FailDB(c, err, "Media")
	}
	var rows []domain.Media
	db.Where("product_id = ?", productID).Order("position ASC, id ASC").Find(&rows)
	return ok(c, rows)
}
