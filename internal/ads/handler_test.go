package ads

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DPJMedia/springford-ads/internal/middleware"
	"github.com/DPJMedia/springford-ads/internal/models"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestRouter(f *fixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(f.svc, nil)
	r := gin.New()
	r.GET("/slots/:slot/placement", h.Placement)
	api := r.Group("", func(c *gin.Context) {
		c.Set(middleware.ContextUserID, f.actor)
		c.Next()
	})
	api.GET("/ads", h.List)
	api.POST("/ads", h.Create)
	api.POST("/ads/rotation-check", h.RotationCheck)
	api.POST("/ads/images", h.UploadImage)
	api.GET("/ads/:id", h.Get)
	api.PUT("/ads/:id", h.Update)
	api.DELETE("/ads/:id", h.Delete)
	api.POST("/ads/:id/duplicate", h.Duplicate)
	api.PATCH("/ads/:id/toggle", h.Toggle)
	api.GET("/undo", h.PendingUndo)
	api.POST("/undo", h.Undo)
	api.DELETE("/undo", h.DismissUndo)
	return r
}

func serve(t *testing.T, r http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func saveRequest() SaveRequest {
	return SaveRequest{
		Title:     strp("Spring Fair"),
		ImageURL:  "https://cdn.example/ads/fair.png",
		LinkURL:   "https://springfordfair.example",
		StartDate: "2025-06-15",
		StartTime: "11:00 AM",
		EndDate:   "2025-06-20",
		EndTime:   "23:59",
		Slots:     []SlotRequest{{Slot: models.SlotArticleSidebar, FillSection: true}},
	}
}

func TestHandlerCreateConvertsCivilTime(t *testing.T) {
	f := newFixture(t, time.Minute)
	r := newTestRouter(f)

	w, env := serve(t, r, http.MethodPost, "/ads", saveRequest())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out struct {
		Ad       AdResponse `json:"ad"`
		Warnings []string   `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, time.Date(2025, 6, 15, 15, 0, 0, 0, time.UTC), out.Ad.StartDate.UTC())
	assert.Equal(t, CivilStamp{Date: "2025-06-15", Time: "11:00", Time12: "11:00 AM"}, out.Ad.StartLocal)
	assert.Equal(t, "11:59 PM", out.Ad.EndLocal.Time12)
	assert.Equal(t, models.StatusActive, out.Ad.Status)
	assert.True(t, out.Ad.IsActive, "enabled by default")
	require.Len(t, out.Ad.Slots, 1)
	assert.True(t, out.Ad.Slots[0].FillSection)
	assert.Empty(t, out.Warnings)
}

func TestHandlerCreateBadClockFallsBackToMidnight(t *testing.T) {
	f := newFixture(t, time.Minute)
	r := newTestRouter(f)
	req := saveRequest()
	req.StartTime = "quarter past"

	w, env := serve(t, r, http.MethodPost, "/ads", req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out struct {
		Ad       AdResponse `json:"ad"`
		Warnings []string   `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, "00:00", out.Ad.StartLocal.Time)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "start_time")
}

func TestHandlerCreateBadDate(t *testing.T) {
	f := newFixture(t, time.Minute)
	r := newTestRouter(f)
	req := saveRequest()
	req.EndDate = "06/20/2025"

	w, env := serve(t, r, http.MethodPost, "/ads", req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, string(env.Data), `"field":"end_date"`)
}

func TestHandlerCreateRotationRequired(t *testing.T) {
	f := newFixture(t, time.Minute)
	incumbent := f.store.seed(activeAd("incumbent", nil, 1), models.SlotArticleSidebar)
	r := newTestRouter(f)

	w, env := serve(t, r, http.MethodPost, "/ads", saveRequest())
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.True(t, strings.HasPrefix(env.Error, "Rotation is required"))
	assert.Contains(t, string(env.Data), `"field":"runtime_seconds"`)

	req := saveRequest()
	req.RuntimeSeconds = intp(12)
	req.Siblings = map[uuid.UUID]int{incumbent.ID: 12}
	w, _ = serve(t, r, http.MethodPost, "/ads", req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	got, _ := f.store.ad(incumbent.ID)
	assert.Equal(t, 12, *got.RuntimeSeconds)
}

func TestHandlerRotationCheck(t *testing.T) {
	f := newFixture(t, time.Minute)
	incumbent := f.store.seed(activeAd("incumbent", nil, 1), models.SlotArticleSidebar)
	r := newTestRouter(f)

	w, env := serve(t, r, http.MethodPost, "/ads/rotation-check", RotationCheckRequest{Slots: []models.Slot{models.SlotArticleSidebar}})
	require.Equal(t, http.StatusOK, w.Code)
	var req RotationRequirement
	require.NoError(t, json.Unmarshal(env.Data, &req))
	assert.True(t, req.Required)
	require.Len(t, req.Conflicts, 1)
	assert.Equal(t, incumbent.ID, req.Conflicts[0].ID)

	w, _ = serve(t, r, http.MethodPost, "/ads/rotation-check", RotationCheckRequest{Slots: []models.Slot{"footer"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = serve(t, r, http.MethodPost, "/ads/rotation-check", RotationCheckRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerRotationCheckUsesCurrentSlots(t *testing.T) {
	f := newFixture(t, time.Minute)
	incumbent := f.store.seed(activeAd("incumbent", intp(10), 1), models.SlotArticleSidebar)
	self := f.store.seed(activeAd("self", intp(10), 2), models.SlotArticleSidebar)
	alone := f.store.seed(activeAd("alone", nil, 3), models.SlotHomeBannerTop)
	r := newTestRouter(f)

	w, env := serve(t, r, http.MethodPost, "/ads/rotation-check", RotationCheckRequest{AdID: &self.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var req RotationRequirement
	require.NoError(t, json.Unmarshal(env.Data, &req))
	assert.True(t, req.Required)
	require.Len(t, req.Conflicts, 1)
	assert.Equal(t, incumbent.ID, req.Conflicts[0].ID)

	w, env = serve(t, r, http.MethodPost, "/ads/rotation-check", RotationCheckRequest{AdID: &alone.ID})
	require.Equal(t, http.StatusOK, w.Code)
	req = RotationRequirement{}
	require.NoError(t, json.Unmarshal(env.Data, &req))
	assert.False(t, req.Required)
}

func TestHandlerDismissUndo(t *testing.T) {
	f := newFixture(t, time.Minute)
	a := f.store.seed(activeAd("a", nil, 1), models.SlotArticleSidebar)
	r := newTestRouter(f)

	w, _ := serve(t, r, http.MethodPatch, "/ads/"+a.ID.String()+"/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = serve(t, r, http.MethodDelete, "/undo", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, env := serve(t, r, http.MethodGet, "/undo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"pending":false`)

	w, _ = serve(t, r, http.MethodPost, "/undo", nil)
	assert.Equal(t, http.StatusGone, w.Code)
	got, _ := f.store.ad(a.ID)
	assert.False(t, got.IsActive, "a dismissed toggle stays applied")
}

func TestHandlerDeleteAndUndo(t *testing.T) {
	f := newFixture(t, time.Minute)
	a := f.store.seed(activeAd("a", nil, 1), models.SlotArticleSidebar)
	r := newTestRouter(f)

	w, _ := serve(t, r, http.MethodDelete, "/ads/"+a.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env := serve(t, r, http.MethodGet, "/undo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"pending":true`)

	w, _ = serve(t, r, http.MethodPost, "/undo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, ok := f.store.ad(a.ID)
	assert.True(t, ok)

	w, env = serve(t, r, http.MethodPost, "/undo", nil)
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, "Nothing to undo.", env.Error)
}

func TestHandlerUpdateWithoutEnabledFlag(t *testing.T) {
	f := newFixture(t, time.Minute)
	off := activeAd("off", nil, 1)
	off.IsActive = false
	a := f.store.seed(off, models.SlotArticleSidebar)
	r := newTestRouter(f)

	w, _ := serve(t, r, http.MethodPut, "/ads/"+a.ID.String(), saveRequest())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got, _ := f.store.ad(a.ID)
	assert.False(t, got.IsActive, "a disabled ad stays disabled")
}

func TestHandlerToggleAndDuplicate(t *testing.T) {
	f := newFixture(t, time.Minute)
	a := f.store.seed(activeAd("a", nil, 1), models.SlotArticleSidebar)
	r := newTestRouter(f)

	w, env := serve(t, r, http.MethodPatch, "/ads/"+a.ID.String()+"/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"is_active":false`)

	w, _ = serve(t, r, http.MethodPost, "/ads/"+a.ID.String()+"/duplicate", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w, env = serve(t, r, http.MethodGet, "/ads", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []AdResponse
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 2)
}

func TestHandlerNotFoundAndBadID(t *testing.T) {
	f := newFixture(t, time.Minute)
	r := newTestRouter(f)

	w, _ := serve(t, r, http.MethodGet, "/ads/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, env := serve(t, r, http.MethodGet, "/ads/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Advertisement not found.", env.Error)
}

func TestHandlerPlacement(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.store.seed(activeAd("a", nil, 1), models.SlotArticleSidebar)
	r := newTestRouter(f)

	w, env := serve(t, r, http.MethodGet, "/slots/article-sidebar/placement", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "public, max-age=5", w.Header().Get("Cache-Control"))
	var p Placement
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Len(t, p.Ads, 1)

	w, _ = serve(t, r, http.MethodGet, "/slots/footer/placement", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func multipartCreate(t *testing.T, payload SaveRequest, filename, contentType string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("payload", string(raw)))
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="image"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, _ = part.Write([]byte("image-bytes"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/ads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandlerCreateMultipart(t *testing.T) {
	f := newFixture(t, time.Minute)
	r := newTestRouter(f)
	payload := saveRequest()
	payload.ImageURL = ""

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartCreate(t, payload, "fair.png", "image/png"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "https://cdn.example/ads/fair.png")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, multipartCreate(t, payload, "fair.pdf", "application/pdf"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerImagePermissionDenied(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.images.err = permissionDenied
	r := newTestRouter(f)
	payload := saveRequest()
	payload.ImageURL = ""

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartCreate(t, payload, "fair.png", "image/png"))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "permissions")
	assert.Empty(t, f.store.writes)
}
