package ads

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DPJMedia/springford-ads/internal/middleware"
	"github.com/DPJMedia/springford-ads/internal/models"
	"github.com/DPJMedia/springford-ads/internal/schedule"
	"github.com/DPJMedia/springford-ads/pkg/response"
	"github.com/DPJMedia/springford-ads/pkg/storage"
)

// SlotRequest selects one slot for an ad.
type SlotRequest struct {
	Slot        models.Slot `json:"ad_slot"`
	FillSection bool        `json:"fill_section"`
}

// SaveRequest is the body for POST /ads and PUT /ads/:id. Dates and times are
// Eastern civil time; times accept "3:04 PM" or "15:04".
type SaveRequest struct {
	Title          *string              `json:"title"`
	ImageURL       string               `json:"image_url"`
	LinkURL        string               `json:"link_url"`
	IsActive       *bool                `json:"is_active"`
	StartDate      string               `json:"start_date"`
	StartTime      string               `json:"start_time"`
	EndDate        string               `json:"end_date"`
	EndTime        string               `json:"end_time"`
	DisplayOrder   *int                 `json:"display_order"`
	LabelColor     *string              `json:"label_color"`
	LabelPosition  models.LabelPosition `json:"label_position"`
	Slots          []SlotRequest        `json:"slots"`
	RuntimeSeconds *int                 `json:"runtime_seconds"`
	Siblings       map[uuid.UUID]int    `json:"sibling_runtime_seconds"`
}

// RotationCheckRequest is the body for POST /ads/rotation-check. Without
// slots, the ad's current slots are checked.
type RotationCheckRequest struct {
	AdID  *uuid.UUID    `json:"ad_id"`
	Slots []models.Slot `json:"slots"`
}

// CivilStamp renders an instant in Eastern civil time.
type CivilStamp struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	Time12 string `json:"time_12h"`
}

// AdResponse is an ad as returned by the admin API.
type AdResponse struct {
	AdView
	StartLocal CivilStamp `json:"start_local"`
	EndLocal   CivilStamp `json:"end_local"`
}

// Handler serves the advertisement admin API and the public placement endpoint.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an advertisement handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// List handles GET /ads.
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]AdResponse, 0, len(list))
	for _, v := range list {
		out = append(out, toResponse(v))
	}
	response.OK(c, out)
}

// Get handles GET /ads/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := adIDParam(c)
	if !ok {
		return
	}
	v, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, toResponse(*v))
}

// Create handles POST /ads. Accepts JSON, or multipart with a "payload" JSON
// field and an optional "image" file.
func (h *Handler) Create(c *gin.Context) {
	in, warnings, ok := h.bindInput(c)
	if !ok {
		return
	}
	defer closeImage(in.Image)
	v, err := h.svc.Create(c.Request.Context(), actorID(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, gin.H{"ad": toResponse(*v), "warnings": warnings})
}

// Update handles PUT /ads/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := adIDParam(c)
	if !ok {
		return
	}
	in, warnings, ok := h.bindInput(c)
	if !ok {
		return
	}
	defer closeImage(in.Image)
	v, err := h.svc.Update(c.Request.Context(), actorID(c), id, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"ad": toResponse(*v), "warnings": warnings})
}

// Duplicate handles POST /ads/:id/duplicate.
func (h *Handler) Duplicate(c *gin.Context) {
	id, ok := adIDParam(c)
	if !ok {
		return
	}
	v, undo, err := h.svc.Duplicate(c.Request.Context(), actorID(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, gin.H{"ad": toResponse(*v), "undo": undo})
}

// Toggle handles PATCH /ads/:id/toggle.
func (h *Handler) Toggle(c *gin.Context) {
	id, ok := adIDParam(c)
	if !ok {
		return
	}
	v, undo, err := h.svc.ToggleEnabled(c.Request.Context(), actorID(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"id": v.ID, "is_active": v.IsActive, "status": v.Status, "undo": undo})
}

// Delete handles DELETE /ads/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := adIDParam(c)
	if !ok {
		return
	}
	undo, err := h.svc.Delete(c.Request.Context(), actorID(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"id": id, "undo": undo})
}

// RotationCheck handles POST /ads/rotation-check so the editor can ask for
// intervals before submitting.
func (h *Handler) RotationCheck(c *gin.Context) {
	var req RotationCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if len(req.Slots) == 0 && req.AdID == nil {
		response.BadRequest(c, "slots or ad_id required")
		return
	}
	for _, s := range req.Slots {
		if !s.Valid() {
			response.BadRequest(c, "unknown ad slot: "+string(s))
			return
		}
	}
	result, err := h.svc.CheckRotation(c.Request.Context(), req.AdID, req.Slots)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, result)
}

// PendingUndo handles GET /undo.
func (h *Handler) PendingUndo(c *gin.Context) {
	p, ok := h.svc.PendingUndo(actorID(c))
	if !ok {
		response.OK(c, gin.H{"pending": false})
		return
	}
	response.OK(c, gin.H{"pending": true, "kind": p.Kind, "description": p.Description, "expires_at": p.ExpiresAt})
}

// Undo handles POST /undo.
func (h *Handler) Undo(c *gin.Context) {
	p, err := h.svc.Undo(c.Request.Context(), actorID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"undone": p.Kind, "description": p.Description, "ad_id": p.Snapshot.Ad.ID})
}

// DismissUndo handles DELETE /undo.
func (h *Handler) DismissUndo(c *gin.Context) {
	h.svc.DismissUndo(actorID(c))
	response.NoContent(c)
}

// UploadImage handles POST /ads/images (multipart field "image").
func (h *Handler) UploadImage(c *gin.Context) {
	img, ok := h.formImage(c)
	if !ok {
		return
	}
	if img == nil {
		response.BadRequest(c, "missing file (form field: image)")
		return
	}
	defer closeImage(img)
	url, err := h.svc.UploadImage(c.Request.Context(), *img)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"image_url": url})
}

// Placement handles GET /slots/:slot/placement (public).
func (h *Handler) Placement(c *gin.Context) {
	p, err := h.svc.Placement(c.Request.Context(), models.Slot(c.Param("slot")))
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			response.NotFound(c, ve.Message)
			return
		}
		h.fail(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=5")
	response.OK(c, p)
}

func (h *Handler) bindInput(c *gin.Context) (AdInput, []string, bool) {
	var req SaveRequest
	var img *ImageUpload
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := json.Unmarshal([]byte(c.PostForm("payload")), &req); err != nil {
			response.BadRequest(c, "invalid payload: "+err.Error())
			return AdInput{}, nil, false
		}
		var ok bool
		if img, ok = h.formImage(c); !ok {
			return AdInput{}, nil, false
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return AdInput{}, nil, false
	}

	in, warnings, err := req.toInput()
	if err != nil {
		closeImage(img)
		h.fail(c, err)
		return AdInput{}, nil, false
	}
	for _, w := range warnings {
		h.logger.Warn("civil time fallback", zap.String("detail", w))
	}
	in.Image = img
	return in, warnings, true
}

func (h *Handler) formImage(c *gin.Context) (*ImageUpload, bool) {
	file, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, true
	}
	if err != nil {
		response.BadRequest(c, "invalid image upload")
		return nil, false
	}
	if file.Size > storage.MaxImageSize {
		response.BadRequest(c, "file size exceeds 10MB limit")
		return nil, false
	}
	if !storage.ValidateImageType(file.Header.Get("Content-Type"), file.Filename) {
		response.BadRequest(c, "invalid file type: only jpg, png, webp and gif images allowed")
		return nil, false
	}
	rc, err := file.Open()
	if err != nil {
		h.logger.Error("open uploaded file failed", zap.Error(err))
		response.Internal(c, "failed to read file")
		return nil, false
	}
	return &ImageUpload{
		Filename:    file.Filename,
		ContentType: storage.ContentTypeForFilename(file.Filename),
		Body:        rc,
		Size:        file.Size,
	}, true
}

// toInput converts civil dates to instants. An unreadable time of day falls
// back to midnight and is reported as a warning rather than an error.
func (r SaveRequest) toInput() (AdInput, []string, error) {
	var warnings []string
	start, err := schedule.ToInstant(r.StartDate, defaultClock(r.StartTime))
	if errors.Is(err, schedule.ErrInvalidDate) {
		return AdInput{}, nil, invalid("start_date", "Please choose a valid start date.")
	}
	if err != nil {
		warnings = append(warnings, "start_time: "+err.Error()+"; using 12:00 AM")
	}
	end, err := schedule.ToInstant(r.EndDate, defaultClock(r.EndTime))
	if errors.Is(err, schedule.ErrInvalidDate) {
		return AdInput{}, nil, invalid("end_date", "Please choose a valid end date.")
	}
	if err != nil {
		warnings = append(warnings, "end_time: "+err.Error()+"; using 12:00 AM")
	}

	slots := make([]models.SlotAssignment, len(r.Slots))
	for i, s := range r.Slots {
		slots[i] = models.SlotAssignment{Slot: s.Slot, FillSection: s.FillSection}
	}
	return AdInput{
		Title:         r.Title,
		ImageURL:      r.ImageURL,
		LinkURL:       r.LinkURL,
		IsActive:      r.IsActive,
		StartDate:     start,
		EndDate:       end,
		DisplayOrder:  r.DisplayOrder,
		LabelColor:    r.LabelColor,
		LabelPosition: r.LabelPosition,
		Slots:         slots,
		Rotation:      RotationPlan{Interval: r.RuntimeSeconds, Siblings: r.Siblings},
	}, warnings, nil
}

func closeImage(img *ImageUpload) {
	if img == nil {
		return
	}
	if rc, ok := img.Body.(io.Closer); ok {
		_ = rc.Close()
	}
}

func defaultClock(clock string) string {
	if strings.TrimSpace(clock) == "" {
		return "00:00"
	}
	return clock
}

func (h *Handler) fail(c *gin.Context, err error) {
	msg := UserMessage(err)
	var ve *ValidationError
	var pe *PartialSaveError
	switch {
	case errors.As(err, &ve):
		response.Invalid(c, msg, gin.H{"field": ve.Field, "ad_id": ve.AdID})
	case errors.Is(err, ErrAdNotFound):
		response.NotFound(c, msg)
	case errors.Is(err, ErrUndoExpired):
		response.Gone(c, msg)
	case errors.Is(err, ErrImagePermission):
		h.logger.Error("image storage permission denied", zap.Error(err))
		response.ServiceUnavailable(c, msg)
	case errors.As(err, &pe):
		h.logger.Error("advertisement save incomplete", zap.String("step", pe.Step), zap.Error(pe.Err))
		response.Internal(c, msg)
	default:
		h.logger.Error("advertisement request failed", zap.Error(err))
		response.Internal(c, msg)
	}
}

func toResponse(v AdView) AdResponse {
	sd, st := schedule.ToCivil(v.StartDate)
	ed, et := schedule.ToCivil(v.EndDate)
	return AdResponse{
		AdView:     v,
		StartLocal: CivilStamp{Date: sd, Time: st, Time12: schedule.Format12(st)},
		EndLocal:   CivilStamp{Date: ed, Time: et, Time12: schedule.Format12(et)},
	}
}

func adIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid ad id")
		return uuid.Nil, false
	}
	return id, true
}

func actorID(c *gin.Context) uuid.UUID {
	v, _ := c.Get(middleware.ContextUserID)
	id, _ := v.(uuid.UUID)
	return id
}
