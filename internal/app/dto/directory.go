package dto

import (
	"time"

	domainuser "kisaanconnect/internal/domain/user"
)

type FarmerPage struct {
	Farmers      []UserProfile `json:"farmers"`
	CurrentPage  int           `json:"currentPage"`
	TotalPages   int           `json:"totalPages"`
	TotalFarmers int           `json:"totalFarmers"`
	HasNext      bool          `json:"hasNext"`
	HasPrev      bool          `json:"hasPrev"`
}

type StateCount struct {
	State string `json:"state"`
	Count int    `json:"count"`
}

type DashboardStats struct {
	TotalFarmers   int          `json:"totalFarmers"`
	TotalCrops     int          `json:"totalCrops"`
	RecentFarmers  int          `json:"recentFarmers"`
	RecentCrops    int          `json:"recentCrops"`
	FarmersByState []StateCount `json:"farmersByState"`
	LastUpdated    time.Time    `json:"lastUpdated"`
}

func MapFarmerPage(users []*domainuser.User, total, page, limit int) FarmerPage {
	out := FarmerPage{
		Farmers:      make([]UserProfile, 0, len(users)),
		CurrentPage:  page,
		TotalFarmers: total,
		HasNext:      page*limit < total,
		HasPrev:      page > 1,
	}
	if limit > 0 {
		out.TotalPages = (total + limit - 1) / limit
	}
	for _, u := range users {
		out.Farmers = append(out.Farmers, MapUserProfile(u))
	}
	return out
}

func MapStateCounts(counts []domainuser.StateCount) []StateCount {
	out := make([]StateCount, 0, len(counts))
	for _, c := range counts {
		out = append(out, StateCount{State: c.State, Count: c.Count})
	}
	return out
}
