package slots

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/DPJMedia/springford-ads/internal/models"
	"github.com/DPJMedia/springford-ads/pkg/response"
)

// SettingsStore reads per-slot settings.
type SettingsStore interface {
	ListSettings(ctx context.Context) ([]models.AdSetting, error)
}

// SlotView is a catalog entry with its fallback setting.
type SlotView struct {
	models.SlotInfo
	UseFallback bool `json:"use_fallback"`
}

// Handler serves the slot catalog.
type Handler struct {
	store  SettingsStore
	logger *zap.Logger
}

// NewHandler creates a slot catalog handler.
func NewHandler(store SettingsStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// List handles GET /slots. Slots without a settings row show the filler.
func (h *Handler) List(c *gin.Context) {
	settings, err := h.store.ListSettings(c.Request.Context())
	if err != nil {
		h.logger.Error("list ad settings failed", zap.Error(err))
		response.Internal(c, "failed to load ad slots")
		return
	}
	response.OK(c, Merge(models.Catalog(), settings))
}

// Merge joins the catalog with stored settings, in catalog order. Settings
// rows for slots outside the catalog are ignored.
func Merge(catalog []models.SlotInfo, settings []models.AdSetting) []SlotView {
	byslot := make(map[models.Slot]bool, len(settings))
	for _, s := range settings {
		byslot[s.Slot] = s.UseFallback
	}
	out := make([]SlotView, 0, len(catalog))
	for _, info := range catalog {
		fallback, ok := byslot[info.Slot]
		if !ok {
			fallback = true
		}
		out = append(out, SlotView{SlotInfo: info, UseFallback: fallback})
	}
	return out
}
