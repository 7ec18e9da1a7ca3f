package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"kisaanconnect/internal/app/dto"
	directoryapp "kisaanconnect/internal/app/handlers/directory"
	"kisaanconnect/internal/app/queries"
)

type DirectoryHTTP interface {
	Farmers(c *gin.Context)
	Farmer(c *gin.Context)
	Dashboard(c *gin.Context)
}

type DirectoryHandler struct {
	Queries queries.Bus
	Logger  *slog.Logger
}

// Farmers is the admin directory of registered users.
func (h DirectoryHandler) Farmers(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	query := directoryapp.ListFarmersQuery{
		Roles:  p.Roles,
		Search: c.Query("search"),
		Page:   queryInt(c, "page", 1),
		Limit:  queryInt(c, "limit", 10),
	}
	page, err := queries.Ask[directoryapp.ListFarmersQuery, dto.FarmerPage](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h DirectoryHandler) Farmer(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	query := directoryapp.GetFarmerQuery{ActorID: p.ID, ActorIsAdmin: p.IsAdmin(), ID: c.Param("id")}
	farmer, err := queries.Ask[directoryapp.GetFarmerQuery, dto.UserProfile](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, farmer)
}

func (h DirectoryHandler) Dashboard(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	stats, err := queries.Ask[directoryapp.DashboardStatsQuery, dto.DashboardStats](c.Request.Context(), h.Queries, directoryapp.DashboardStatsQuery{Roles: p.Roles})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

var _ DirectoryHTTP = (*DirectoryHandler)(nil)
