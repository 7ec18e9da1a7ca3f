package ginserver

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kisaanconnect/internal/app/dto"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{G: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func (h *harness) multipart(t *testing.T, method, path, user string, fields map[string]string, picture []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if picture != nil {
		part, err := mw.CreateFormFile("cropImage", "crop.png")
		if err != nil {
			t.Fatalf("create file: %v", err)
		}
		if _, err := part.Write(picture); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+h.tokens[user])
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

type cropResponse struct {
	Success bool     `json:"success"`
	Crop    dto.Crop `json:"crop"`
}

type catalogResponse struct {
	Crops      []dto.Crop         `json:"crops"`
	Pagination dto.CropPagination `json:"pagination"`
}

func (h *harness) createCrop(t *testing.T, user, name, price string) dto.Crop {
	t.Helper()
	w := h.multipart(t, http.MethodPost, "/api/crops", user, map[string]string{
		"cropName": name,
		"price":    price,
		"quantity": "100",
		"unit":     "kg",
		"location": "Nashik",
	}, pngBytes(t))
	if w.Code != http.StatusCreated {
		t.Fatalf("create crop: expected 201, got %d %s", w.Code, w.Body.String())
	}
	crop := decode[cropResponse](t, w).Crop
	if w.Header().Get("Location") != "/api/crops/"+crop.ID {
		t.Fatalf("unexpected location header %q", w.Header().Get("Location"))
	}
	return crop
}

func TestCropLifecycle(t *testing.T) {
	h := newHarness(t)
	onion := h.createCrop(t, "u1", "Onion", "25")
	h.createCrop(t, "u2", "Tomato", "40")

	if onion.SellerName != "Ravi Kumar" || onion.ImageURL == "" {
		t.Fatalf("unexpected crop %+v", onion)
	}

	catalog := decode[catalogResponse](t, h.request(t, http.MethodGet, "/api/crops?search=oni", "", nil))
	if len(catalog.Crops) != 1 || catalog.Crops[0].ID != onion.ID {
		t.Fatalf("expected onion only, got %+v", catalog.Crops)
	}
	catalog = decode[catalogResponse](t, h.request(t, http.MethodGet, "/api/crops?sortBy=price&sortOrder=asc", "", nil))
	if len(catalog.Crops) != 2 || catalog.Crops[0].Name != "Onion" || catalog.Pagination.TotalCrops != 2 {
		t.Fatalf("expected price ascending catalog, got %+v", catalog)
	}

	w := h.multipart(t, http.MethodPut, "/api/crops/"+onion.ID, "u2", map[string]string{"price": "1"}, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner update, got %d %s", w.Code, w.Body.String())
	}
	w = h.multipart(t, http.MethodPut, "/api/crops/"+onion.ID, "u1", map[string]string{"price": "30"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("owner update: expected 200, got %d %s", w.Code, w.Body.String())
	}
	if got := decode[cropResponse](t, w).Crop; got.Price != 30 || got.Name != "Onion" {
		t.Fatalf("expected price change only, got %+v", got)
	}

	w = h.request(t, http.MethodDelete, "/api/crops/"+onion.ID, "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d %s", w.Code, w.Body.String())
	}
	if len(h.images.deleted) != 1 {
		t.Fatalf("expected stored image removed, got %v", h.images.deleted)
	}
	w = h.request(t, http.MethodGet, "/api/crops/"+onion.ID, "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
}

func TestCreateCropRequiresImageAndSession(t *testing.T) {
	h := newHarness(t)
	fields := map[string]string{"cropName": "Wheat", "price": "20", "quantity": "5", "unit": "quintal", "location": "Indore"}

	if w := h.multipart(t, http.MethodPost, "/api/crops", "", fields, pngBytes(t)); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w := h.multipart(t, http.MethodPost, "/api/crops", "u1", fields, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without image, got %d %s", w.Code, w.Body.String())
	}
	if w := h.multipart(t, http.MethodPost, "/api/crops", "u1", fields, []byte("plain text, not a picture")); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-image upload, got %d", w.Code)
	}
	fields["price"] = "cheap"
	if w := h.multipart(t, http.MethodPost, "/api/crops", "u1", fields, pngBytes(t)); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad price, got %d", w.Code)
	}
}

func TestDefaultImageIsSVG(t *testing.T) {
	h := newHarness(t)
	w := h.request(t, http.MethodGet, "/api/image/default", "", nil)
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "image/svg+xml") {
		t.Fatalf("unexpected default image response %d %q", w.Code, w.Header().Get("Content-Type"))
	}
}
