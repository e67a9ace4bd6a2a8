package adminapi

import (
	"net/http"
	"strings"

	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/internal/webserver"
	"github.com/goldleaf/storefront/pkg/common"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type categoryPayload struct {
	ParentID    string `json:"parent_id" validate:"omitempty,numeric"`
	Name        string `json:"name" validate:"required,min=1,max=120"`
	Slug        string `json:"slug" validate:"omitempty,max=140"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url" validate:"omitempty,url,max=1024"`
	Sort        int    `json:"sort"`
}

type tagPayload struct {
	Name string `json:"name" validate:"required,min=1,max=60"`
}

type sizePayload struct {
	Label string `json:"label" validate:"required,min=1,max=40"`
	Sort  int    `json:"sort"`
}

func registerTaxonomyRoutes() {
	webserver.AdminGET("/categories", listCategories)
	webserver.AdminPOST("/categories", createCategory)
	webserver.AdminPUT("/categories/:id", updateCategory)
	webserver.AdminDELETE("/categories/:id", deleteCategory)

	webserver.AdminGET("/tags", listTags)
	webserver.AdminPOST("/tags", createTag)
	webserver.AdminPUT("/tags/:id", updateTag)
	webserver.AdminDELETE("/tags/:id", deleteTag)

	webserver.AdminGET("/sizes", listSizes)
	webserver.AdminPOST("/sizes", createSize)
	webserver.AdminPUT("/sizes/:id", updateSize)
	webserver.AdminDELETE("/sizes/:id", deleteSize)
}

func listCategories(c echo.Context) error {
	var rows []domain.Category
	if err := GetDB(c).Order("sort ASC, name ASC").Find(&rows).Error; err != nil {
		return webserver.FailDB(c, err, "Category")
	}
	return ok(c, rows)
}

func (p *categoryPayload) apply(db *gorm.DB, cat *domain.Category) (string, error) {
	parentID, err := optionalID(p.ParentID)
	if err != nil {
		return "Invalid parent ID", err
	}
	if parentID != nil {
		if cat.ID != 0 && *parentID == cat.ID {
			return "A category cannot be its own parent", gorm.ErrInvalidData
		}
		var parent domain.Category
		if err := db.First(&parent, *parentID).Error; err != nil {
			return "Parent category not found", err
		}
		// one level of nesting only
		if parent.ParentID != nil {
			return "Parent category must be a top-level category", gorm.ErrInvalidData
		}
	}
	cat.ParentID = parentID
	cat.Name = strings.TrimSpace(p.Name)
	cat.Slug = common.Slugify(p.Slug)
	if cat.Slug == "" {
		cat.Slug = common.Slugify(p.Name)
	}
	cat.Description = p.Description
	cat.ImageURL = p.ImageURL
	cat.Sort = p.Sort
	return "", nil
}

func saveCategory(c echo.Context, cat *domain.Category, isNew bool) error {
	var payload categoryPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	db := GetDB(c)
	if msg, err := payload.apply(db, cat); err != nil {
		return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", msg, nil)
	}
	if err := db.Save(cat).Error; err != nil {
		if webserver.IsDuplicateKey(err) {
			return fail(c, http.StatusConflict, "ALREADY_EXISTS", "Category slug already exists", nil)
		}
		return webserver.FailDB(c, err, "Category")
	}
	if isNew {
		return created(c, cat)
	}
	return ok(c, cat)
}

func createCategory(c echo.Context) error {
	return saveCategory(c, &domain.Category{}, true)
}

func updateCategory(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid category ID", nil)
	}
	var cat domain.Category
	if err := GetDB(c).First(&cat, id).Error; err != nil {
		return webserver.FailDB(c, err, "Category")
	}
	return saveCategory(c, &cat, false)
}

// deleteCategory refuses while products or child categories still reference it
func deleteCategory(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid category ID", nil)
	}
	db := GetDB(c)
	var cat domain.Category
	if err := db.First(&cat, id).Error; err != nil {
		return webserver.FailDB(c, err, "Category")
	}
	var products, children int64
	db.Model(&domain.Product{}).Where("category_id = ?", id).Count(&products)
	db.Model(&domain.Category{}).Where("parent_id = ?", id).Count(&children)
	if products > 0 || children > 0 {
		return fail(c, http.StatusConflict, "IN_USE", "Category still has products or subcategories",
			map[string]int64{"products": products, "children": children})
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM offer_categories WHERE category_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&cat).Error
	})
	if err != nil {
		return webserver.FailDB(c, err, "Category")
	}
	return ok(c, map[string]interface{}{"id": id})
}

func listTags(c echo.Context) error {
	var rows []domain.Tag
	query := GetDB(c).Order("name ASC")
	if q := strings.TrimSpace(c.QueryParam("q")); q != "" {
		query = webserver.ILike(query, "name", q)
	}
	if err := query.Find(&rows).Error; err != nil {
		return webserver.FailDB(c, err, "Tag")
	}
	return ok(c, rows)
}

func createTag(c echo.Context) error {
	var payload tagPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	tag := domain.Tag{Name: strings.TrimSpace(payload.Name)}
	if err := GetDB(c).Create(&tag).Error; err != nil {
		if webserver.IsDuplicateKey(err) {
			return fail(c, http.StatusConflict, "ALREADY_EXISTS", "Tag already exists", nil)
		}
		return webserver.FailDB(c, err, "Tag")
	}
	return created(c, tag)
}

func updateTag(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid tag ID", nil)
	}
	var payload tagPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	db := GetDB(c)
	var tag domain.Tag
	if err := db.First(&tag, id).Error; err != nil {
		return webserver.FailDB(c, err, "Tag")
	}
	tag.Name = strings.TrimSpace(payload.Name)
	if err := db.Save(&tag).Error; err != nil {
		return webserver.FailDB(c, err, "Tag")
	}
	return ok(c, tag)
}

func deleteTag(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid tag ID", nil)
	}
	db := GetDB(c)
	var tag domain.Tag
	if err := db.First(&tag, id).Error; err != nil {
		return webserver.FailDB(c, err, "Tag")
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM product_tags WHERE tag_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&tag).Error
	})
	if err != nil {
		return webserver.FailDB(c, err, "Tag")
	}
	return ok(c, map[string]interface{}{"id": id})
}

func listSizes(c echo.Context) error {
	var rows []domain.Size
	if err := GetDB(c).Order("sort ASC, id ASC").Find(&rows).Error; err != nil {
		return webserver.FailDB(c, err, "Size")
	}
	return ok(c, rows)
}

func createSize(c echo.Context) error {
	var payload sizePayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	size := domain.Size{Label: strings.TrimSpace(payload.Label), Sort: payload.Sort}
	if err := GetDB(c).Create(&size).Error; err != nil {
		if webserver.IsDuplicateKey(err) {
			return fail(c, http.StatusConflict, "ALREADY_EXISTS", "Size already exists", nil)
		}
		return webserver.FailDB(c, err, "Size")
	}
	return created(c, size)
}

func updateSize(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid size ID", nil)
	}
	var payload sizePayload
	if err := bindAndValidate(c, &payload); err != nil {
		return err
	}
	db := GetDB(c)
	var size domain.Size
	if err := db.First(&size, id).Error; err != nil {
		return webserver.FailDB(c, err, "Size")
	}
	size.Label = strings.TrimSpace(payload.Label)
	size.Sort = payload.Sort
	if err := db.Save(&size).Error; err != nil {
		return webserver.FailDB(c, err, "Size")
	}
	return ok(c, size)
}

// deleteSize is refused while cart lines still reference the size
func deleteSize(c echo.Context) error {
	id, err := webserver.ParseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid size ID", nil)
	}
	db := GetDB(c)
	var size domain.Size
	if err := db.First(&size, id).Error; err != nil {
		return webserver.FailDB(c, err, "Size")
	}
	var inCarts int64
	db.Model(&domain.CartItem{}).Where("size_id = ?", id).Count(&inCarts)
	if inCarts > 0 {
		return fail(c, http.StatusConflict, "IN_USE", "Size is in customer carts", map[string]int64{"cart_items": inCarts})
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM product_sizes WHERE size_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&size).Error
	})
	if err != nil {
		return webserver.FailDB(c, err, "Size")
	}
	return ok(c, map[string]interface{}{"id": id})
}
