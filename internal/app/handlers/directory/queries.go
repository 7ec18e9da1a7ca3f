package directory

import (
	"context"
	"time"

	"kisaanconnect/internal/app/dto"
	"kisaanconnect/internal/app/queries"
	"kisaanconnect/internal/app/uow"
	domainuser "kisaanconnect/internal/domain/user"
)

const (
	listFarmersKey    = "directory.list_farmers"
	getFarmerKey      = "directory.get_farmer"
	dashboardStatsKey = "directory.dashboard_stats"
	adminRole         = string(domainuser.RoleAdmin)

	defaultPageSize = 10
	maxPageSize     = 100
	recentWindow    = 30 * 24 * time.Hour
	topStates       = 10
)

// ListFarmersQuery pages through registered users for admins.
type ListFarmersQuery struct {
	Roles  []string
	Search string
	Page   int
	Limit  int
}

func (q ListFarmersQuery) Key() string          { return listFarmersKey }
func (q ListFarmersQuery) RequiredRole() string { return adminRole }
func (q ListFarmersQuery) ActorRoles() []string { return q.Roles }

type ListFarmersHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *ListFarmersHandler) Handle(ctx context.Context, q ListFarmersQuery) (dto.FarmerPage, error) {
	filter := domainuser.DirectoryFilter{Search: q.Search, Page: q.Page, Limit: q.Limit}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	unit, ctx, release, err := uow.BeginReadOnly(ctx, h.UoWFactory)
	if err != nil {
		return dto.FarmerPage{}, err
	}
	defer release()
	users, total, err := unit.Users().List(ctx, filter)
	if err != nil {
		return dto.FarmerPage{}, err
	}
	return dto.MapFarmerPage(users, total, filter.Page, filter.Limit), nil
}

// GetFarmerQuery is open to the farmer themselves and to admins.
type GetFarmerQuery struct {
	ActorID      string
	ActorIsAdmin bool
	ID           string
}

func (q GetFarmerQuery) Key() string { return getFarmerKey }

type GetFarmerHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *GetFarmerHandler) Handle(ctx context.Context, q GetFarmerQuery) (dto.UserProfile, error) {
	unit, ctx, release, err := uow.BeginReadOnly(ctx, h.UoWFactory)
	if err != nil {
		return dto.UserProfile{}, err
	}
	defer release()
	user, err := unit.Users().ByID(ctx, domainuser.ID(q.ID))
	if err != nil {
		return dto.UserProfile{}, err
	}
	if !q.ActorIsAdmin && (q.ActorID == "" || domainuser.ID(q.ActorID) != user.ID) {
		return dto.UserProfile{}, domainuser.ErrForbidden
	}
	return dto.MapUserProfile(user), nil
}

type DashboardStatsQuery struct {
	Roles []string
}

func (q DashboardStatsQuery) Key() string          { return dashboardStatsKey }
func (q DashboardStatsQuery) RequiredRole() string { return adminRole }
func (q DashboardStatsQuery) ActorRoles() []string { return q.Roles }

type DashboardStatsHandler struct {
	UoWFactory uow.UoWFactory
	Now        func() time.Time
}

func (h *DashboardStatsHandler) Handle(ctx context.Context, q DashboardStatsQuery) (dto.DashboardStats, error) {
	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	since := now.Add(-recentWindow)

	unit, ctx, release, err := uow.BeginReadOnly(ctx, h.UoWFactory)
	if err != nil {
		return dto.DashboardStats{}, err
	}
	defer release()
	census, err := unit.Users().Census(ctx, since, topStates)
	if err != nil {
		return dto.DashboardStats{}, err
	}
	crops, recentCrops, err := unit.Listings().Count(ctx, since)
	if err != nil {
		return dto.DashboardStats{}, err
	}
	return dto.DashboardStats{
		TotalFarmers:   census.Total,
		TotalCrops:     crops,
		RecentFarmers:  census.Recent,
		RecentCrops:    recentCrops,
		FarmersByState: dto.MapStateCounts(census.ByState),
		LastUpdated:    now.UTC(),
	}, nil
}

var (
	_ queries.Handler[ListFarmersQuery, dto.FarmerPage]        = (*ListFarmersHandler)(nil)
	_ queries.Handler[GetFarmerQuery, dto.UserProfile]         = (*GetFarmerHandler)(nil)
	_ queries.Handler[DashboardStatsQuery, dto.DashboardStats] = (*DashboardStatsHandler)(nil)
)
