package ginserver

import (
	"net/http"
	"testing"

	"kisaanconnect/internal/app/dto"
)

func TestFarmerDirectoryIsAdminOnly(t *testing.T) {
	h := newHarness(t)

	if w := h.request(t, http.MethodGet, "/api/farmers", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w := h.request(t, http.MethodGet, "/api/farmers", "u1", nil); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for farmer, got %d", w.Code)
	}

	w := h.request(t, http.MethodGet, "/api/farmers?search=sita&limit=5", "admin", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	page := decode[dto.FarmerPage](t, w)
	if page.TotalFarmers != 1 || len(page.Farmers) != 1 || page.Farmers[0].FullName != "Sita Devi" {
		t.Fatalf("unexpected directory page %+v", page)
	}
	if page.CurrentPage != 1 || page.TotalPages != 1 || page.HasNext {
		t.Fatalf("unexpected pagination %+v", page)
	}
}

func TestFarmerProfileOwnerOrAdmin(t *testing.T) {
	h := newHarness(t)

	if w := h.request(t, http.MethodGet, "/api/farmers/u1", "u2", nil); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	w := h.request(t, http.MethodGet, "/api/farmers/u1", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for owner, got %d", w.Code)
	}
	if got := decode[dto.UserProfile](t, w); got.ID != "u1" || got.Location.District != "Nashik" {
		t.Fatalf("unexpected profile %+v", got)
	}
	if w := h.request(t, http.MethodGet, "/api/farmers/u2", "admin", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", w.Code)
	}
	if w := h.request(t, http.MethodGet, "/api/farmers/ghost", "admin", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestDashboardStats(t *testing.T) {
	h := newHarness(t)
	h.createCrop(t, "u1", "Onion", "25")

	if w := h.request(t, http.MethodGet, "/api/dashboard/stats", "u1", nil); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	w := h.request(t, http.MethodGet, "/api/dashboard/stats", "admin", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	stats := decode[dto.DashboardStats](t, w)
	if stats.TotalFarmers != 4 || stats.RecentFarmers != 4 || stats.TotalCrops != 1 || stats.RecentCrops != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(stats.FarmersByState) != 1 || stats.FarmersByState[0].State != "Maharashtra" || stats.FarmersByState[0].Count != 4 {
		t.Fatalf("unexpected state breakdown %+v", stats.FarmersByState)
	}
}
