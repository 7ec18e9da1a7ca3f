package ginserver

import (
	"log/slog"
	"net/http"
	"time"

	gin "github.com/gin-gonic/gin"

	"kisaanconnect/internal/app/dto"
	marketapp "kisaanconnect/internal/app/handlers/market"
	"kisaanconnect/internal/app/queries"
)

type MarketHTTP interface {
	Prices(c *gin.Context)
}

type MarketHandler struct {
	Queries queries.Bus
	Logger  *slog.Logger
}

func (h MarketHandler) Prices(c *gin.Context) {
	prices, err := queries.Ask[marketapp.MarketPricesQuery, []dto.MarketPrice](c.Request.Context(), h.Queries, marketapp.MarketPricesQuery{Category: c.Query("category")})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"data":        prices,
		"lastUpdated": time.Now().UTC(),
	})
}

var _ MarketHTTP = (*MarketHandler)(nil)
