package ginserver

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	gin "github.com/gin-gonic/gin"

	"kisaanconnect/internal/app/commands"
	"kisaanconnect/internal/app/dto"
	listingapp "kisaanconnect/internal/app/handlers/listings"
	"kisaanconnect/internal/app/queries"
)

const defaultCropImage = `<svg width="300" height="200" xmlns="http://www.w3.org/2000/svg">
  <rect width="100%" height="100%" fill="#f8f9fa"/>
  <rect x="30" y="30" width="240" height="140" fill="none" stroke="#dee2e6" stroke-width="2" stroke-dasharray="8,4"/>
  <text x="150" y="105" font-family="Arial, sans-serif" font-size="14" fill="#6c757d" text-anchor="middle">Crop Image</text>
  <text x="150" y="125" font-family="Arial, sans-serif" font-size="14" fill="#6c757d" text-anchor="middle">Not Available</text>
</svg>`

type CropHTTP interface {
	Catalog(c *gin.Context)
	Suggestions(c *gin.Context)
	Mine(c *gin.Context)
	Get(c *gin.Context)
	Create(c *gin.Context)
	Update(c *gin.Context)
	Delete(c *gin.Context)
	DefaultImage(c *gin.Context)
}

type CropHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

func (h CropHandler) Catalog(c *gin.Context) {
	query := listingapp.SearchCropsQuery{
		Search:    strings.TrimSpace(c.Query("search")),
		Location:  strings.TrimSpace(c.Query("location")),
		CropType:  strings.TrimSpace(c.Query("cropType")),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
		Page:      queryInt(c, "page", 1),
		Limit:     queryInt(c, "limit", 10),
	}
	var err error
	if query.MinPrice, err = queryFloat(c, "minPrice"); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	if query.MaxPrice, err = queryFloat(c, "maxPrice"); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	result, err := queries.Ask[listingapp.SearchCropsQuery, dto.CropCatalog](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "crops": result.Crops, "pagination": result.Pagination})
}

func (h CropHandler) Suggestions(c *gin.Context) {
	query := listingapp.CropSuggestionsQuery{Prefix: c.Query("q")}
	names, err := queries.Ask[listingapp.CropSuggestionsQuery, []string](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "suggestions": names})
}

func (h CropHandler) Mine(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	crops, err := queries.Ask[listingapp.SellerCropsQuery, []dto.Crop](c.Request.Context(), h.Queries, listingapp.SellerCropsQuery{SellerID: p.ID})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "crops": crops})
}

func (h CropHandler) Get(c *gin.Context) {
	crop, err := queries.Ask[listingapp.GetCropQuery, dto.Crop](c.Request.Context(), h.Queries, listingapp.GetCropQuery{CropID: c.Param("id")})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "crop": crop})
}

func (h CropHandler) Create(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	image, err := formImage(c, "cropImage")
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	price, err := formFloat(c, "price")
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	quantity, err := formFloat(c, "quantity")
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	cmd := listingapp.CreateCropCommand{
		SellerID: p.ID,
		Name:     c.PostForm("cropName"),
		Price:    price,
		Quantity: quantity,
		Unit:     c.PostForm("unit"),
		Location: c.PostForm("location"),
		Image:    image,
	}
	crop, err := commands.Dispatch[listingapp.CreateCropCommand, *dto.Crop](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.Header("Location", fmt.Sprintf("/api/crops/%s", crop.ID))
	c.JSON(http.StatusCreated, gin.H{"success": true, "crop": crop})
}

func (h CropHandler) Update(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	image, err := formImage(c, "cropImage")
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	cmd := listingapp.UpdateCropCommand{
		ActorID:      p.ID,
		ActorIsAdmin: p.IsAdmin(),
		CropID:       c.Param("id"),
		Name:         optionalForm(c, "cropName"),
		Unit:         optionalForm(c, "unit"),
		Location:     optionalForm(c, "location"),
		Image:        image,
	}
	if cmd.Price, err = optionalFormFloat(c, "price"); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	if cmd.Quantity, err = optionalFormFloat(c, "quantity"); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	crop, err := commands.Dispatch[listingapp.UpdateCropCommand, *dto.Crop](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "crop": crop})
}

func (h CropHandler) Delete(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	cmd := listingapp.DeleteCropCommand{ActorID: p.ID, ActorIsAdmin: p.IsAdmin(), CropID: c.Param("id")}
	if _, err := commands.Dispatch[listingapp.DeleteCropCommand, *dto.Crop](c.Request.Context(), h.Commands, cmd); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Crop deleted"})
}

func (h CropHandler) DefaultImage(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, "image/svg+xml", []byte(defaultCropImage))
}

func queryFloat(c *gin.Context, key string) (float64, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative number", errBadRequest, key)
	}
	return v, nil
}

func formFloat(c *gin.Context, key string) (float64, error) {
	raw := strings.TrimSpace(c.PostForm(key))
	if raw == "" {
		return 0, fmt.Errorf("%w: %s is required", errBadRequest, key)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", errBadRequest, key)
	}
	return v, nil
}

func optionalForm(c *gin.Context, key string) *string {
	v, ok := c.GetPostForm(key)
	if !ok {
		return nil
	}
	return &v
}

func optionalFormFloat(c *gin.Context, key string) (*float64, error) {
	if _, ok := c.GetPostForm(key); !ok {
		return nil, nil
	}
	v, err := formFloat(c, key)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

var _ CropHTTP = (*CropHandler)(nil)
