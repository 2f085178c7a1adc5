package ads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DPJMedia/springford-ads/internal/models"
	"github.com/DPJMedia/springford-ads/internal/schedule"
	"github.com/DPJMedia/springford-ads/pkg/storage"
)

// AdStore persists advertisements.
type AdStore interface {
	InsertAd(ctx context.Context, a *models.Advertisement) error
	UpdateAd(ctx context.Context, a *models.Advertisement) error
	GetAd(ctx context.Context, id uuid.UUID) (*models.Advertisement, error)
	ListAds(ctx context.Context) ([]models.Advertisement, error)
	DeleteAd(ctx context.Context, id uuid.UUID) error
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	SetRotationInterval(ctx context.Context, id uuid.UUID, seconds *int) error
	MaxDisplayOrder(ctx context.Context, slots []models.Slot) (int, error)
}

// SlotStore persists slot assignments and reads per-slot settings.
type SlotStore interface {
	SetAssignments(ctx context.Context, adID uuid.UUID, list []models.SlotAssignment) error
	DeleteAssignments(ctx context.Context, adID uuid.UUID) error
	AssignmentsForSlot(ctx context.Context, slot models.Slot) ([]models.SlotAssignment, error)
	AssignmentsForAd(ctx context.Context, adID uuid.UUID) ([]models.SlotAssignment, error)
	SlotsForAd(ctx context.Context, adID uuid.UUID) ([]models.Slot, error)
	CountForSlot(ctx context.Context, slot models.Slot) (int, error)
	UseFallback(ctx context.Context, slot models.Slot) (bool, error)
}

// ImageStore uploads an image and returns its public URL.
type ImageStore interface {
	UploadImage(ctx context.Context, filename, contentType string, body io.Reader, size int64) (string, error)
}

// Notifier receives lifecycle events. Delivery is fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, ev models.AdEvent)
}

// Broadcaster tells connected dashboards that the ad list changed.
type Broadcaster interface {
	AdsChanged(ctx context.Context)
}

// ImageUpload is an image file submitted with a save.
type ImageUpload struct {
	Filename    string
	ContentType string
	Body        io.Reader
	Size        int64
}

// AdInput is everything an editor submits when creating or editing an ad.
// Image, when set, takes precedence over ImageURL. A nil DisplayOrder or
// IsActive is defaulted on create and left unchanged on update.
type AdInput struct {
	Title         *string
	ImageURL      string
	Image         *ImageUpload
	LinkURL       string
	IsActive      *bool
	StartDate     time.Time
	EndDate       time.Time
	DisplayOrder  *int
	LabelColor    *string
	LabelPosition models.LabelPosition
	Slots         []models.SlotAssignment
	Rotation      RotationPlan
}

// AdView is an advertisement with its slots and current status.
type AdView struct {
	models.Advertisement
	Status models.Status           `json:"status"`
	Slots  []models.SlotAssignment `json:"slots"`
}

// Service creates, edits, duplicates, toggles and deletes advertisements and
// keeps their slot assignments and rotation intervals consistent.
//
// Each operation runs its store calls in a fixed order and does not lock
// against other callers. A failure after the first write is reported as a
// PartialSaveError; earlier writes are not rolled back.
type Service struct {
	ads         AdStore
	slots       SlotStore
	images      ImageStore
	notifier    Notifier
	broadcaster Broadcaster
	rotation    *Coordinator
	undo        *LedgerRegistry
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates the advertisement service. images, notifier and
// broadcaster may be nil.
func NewService(ads AdStore, slots SlotStore, images ImageStore, notifier Notifier, broadcaster Broadcaster, undo *LedgerRegistry, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if undo == nil {
		undo = NewLedgerRegistry(DefaultUndoTTL)
	}
	return &Service{
		ads:         ads,
		slots:       slots,
		images:      images,
		notifier:    notifier,
		broadcaster: broadcaster,
		rotation:    NewCoordinator(ads, slots, logger),
		undo:        undo,
		logger:      logger,
		now:         time.Now,
	}
}

// CheckRotation reports whether saving an ad into slots requires rotation.
// adID is nil for a new ad.
func (s *Service) CheckRotation(ctx context.Context, adID *uuid.UUID, slots []models.Slot) (*RotationRequirement, error) {
	if len(slots) == 0 && adID != nil {
		held, err := s.slots.SlotsForAd(ctx, *adID)
		if err != nil {
			return nil, fmt.Errorf("load slots: %w", err)
		}
		slots = held
	}
	return s.rotation.Check(ctx, adID, slots, s.now())
}

// ListAds returns the full advertisement list for reload loops.
func (s *Service) ListAds(ctx context.Context) ([]models.Advertisement, error) {
	return s.ads.ListAds(ctx)
}

// List returns every ad with its slots and status.
func (s *Service) List(ctx context.Context) ([]AdView, error) {
	list, err := s.ads.ListAds(ctx)
	if err != nil {
		return nil, fmt.Errorf("list advertisements: %w", err)
	}
	now := s.now()
	out := make([]AdView, 0, len(list))
	for _, a := range list {
		assigned, err := s.slots.AssignmentsForAd(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("list assignments: %w", err)
		}
		out = append(out, AdView{Advertisement: a, Status: schedule.ResolveAd(a, now), Slots: assigned})
	}
	return out, nil
}

// Get returns one ad with its slots and status.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*AdView, error) {
	a, err := s.ads.GetAd(ctx, id)
	if err != nil {
		return nil, err
	}
	assigned, err := s.slots.AssignmentsForAd(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return &AdView{Advertisement: *a, Status: schedule.ResolveAd(*a, s.now()), Slots: assigned}, nil
}

// Create validates in, uploads its image, inserts the ad, saves its slots and
// writes any sibling rotation intervals, in that order.
func (s *Service) Create(ctx context.Context, actor uuid.UUID, in AdInput) (*AdView, error) {
	ctx = context.WithoutCancel(ctx)
	slots, err := s.validate(in, "")
	if err != nil {
		return nil, err
	}
	req, err := s.rotation.Check(ctx, nil, slots, s.now())
	if err != nil {
		return nil, fmt.Errorf("check rotation: %w", err)
	}
	if err := s.rotation.Validate(req, in.Rotation); err != nil {
		return nil, err
	}
	imageURL, err := s.resolveImage(ctx, in)
	if err != nil {
		return nil, err
	}

	a := &models.Advertisement{ID: uuid.New(), CreatedBy: actor, IsActive: true}
	applyInput(a, in, imageURL, req)
	if in.DisplayOrder != nil {
		a.DisplayOrder = *in.DisplayOrder
	} else {
		top, err := s.ads.MaxDisplayOrder(ctx, slots)
		if err != nil {
			return nil, fmt.Errorf("load display order: %w", err)
		}
		a.DisplayOrder = top + 1
	}

	if err := s.ads.InsertAd(ctx, a); err != nil {
		return nil, partial("insert advertisement", err)
	}
	assigned := bindSlots(a.ID, in.Slots)
	if err := s.slots.SetAssignments(ctx, a.ID, assigned); err != nil {
		return nil, partial("save slot assignments", err)
	}
	if err := s.rotation.Propagate(ctx, req, in.Rotation); err != nil {
		return nil, partial("update rotation intervals", err)
	}

	s.logger.Info("advertisement created", zap.String("ad_id", a.ID.String()), zap.String("actor", actor.String()), zap.Bool("rotation", req.Required))
	s.changed(ctx, models.EventAdCreated, *a, actor)
	return &AdView{Advertisement: *a, Status: schedule.ResolveAd(*a, s.now()), Slots: assigned}, nil
}

// Update validates in and overwrites the ad and its full slot set.
func (s *Service) Update(ctx context.Context, actor, id uuid.UUID, in AdInput) (*AdView, error) {
	ctx = context.WithoutCancel(ctx)
	existing, err := s.ads.GetAd(ctx, id)
	if err != nil {
		return nil, err
	}
	slots, err := s.validate(in, existing.ImageURL)
	if err != nil {
		return nil, err
	}
	req, err := s.rotation.Check(ctx, &id, slots, s.now())
	if err != nil {
		return nil, fmt.Errorf("check rotation: %w", err)
	}
	if err := s.rotation.Validate(req, in.Rotation); err != nil {
		return nil, err
	}
	imageURL := existing.ImageURL
	if in.Image != nil || in.ImageURL != "" {
		if imageURL, err = s.resolveImage(ctx, in); err != nil {
			return nil, err
		}
	}

	a := existing.Clone()
	applyInput(&a, in, imageURL, req)
	if in.DisplayOrder != nil {
		a.DisplayOrder = *in.DisplayOrder
	}

	if err := s.ads.UpdateAd(ctx, &a); err != nil {
		return nil, partial("update advertisement", err)
	}
	assigned := bindSlots(a.ID, in.Slots)
	if err := s.slots.SetAssignments(ctx, a.ID, assigned); err != nil {
		return nil, partial("save slot assignments", err)
	}
	if err := s.rotation.Propagate(ctx, req, in.Rotation); err != nil {
		return nil, partial("update rotation intervals", err)
	}

	s.logger.Info("advertisement updated", zap.String("ad_id", a.ID.String()), zap.String("actor", actor.String()), zap.Bool("rotation", req.Required))
	s.changed(ctx, models.EventAdUpdated, a, actor)
	return &AdView{Advertisement: a, Status: schedule.ResolveAd(a, s.now()), Slots: assigned}, nil
}

// Duplicate copies every field and slot of id into a new ad that sorts after
// all existing ads.
func (s *Service) Duplicate(ctx context.Context, actor, id uuid.UUID) (*AdView, Handle, error) {
	ctx = context.WithoutCancel(ctx)
	src, err := s.ads.GetAd(ctx, id)
	if err != nil {
		return nil, Handle{}, err
	}
	srcSlots, err := s.slots.AssignmentsForAd(ctx, id)
	if err != nil {
		return nil, Handle{}, fmt.Errorf("load assignments: %w", err)
	}
	top, err := s.ads.MaxDisplayOrder(ctx, nil)
	if err != nil {
		return nil, Handle{}, fmt.Errorf("load display order: %w", err)
	}

	cp := src.Clone()
	cp.ID = uuid.New()
	cp.CreatedBy = actor
	cp.CreatedAt = time.Time{}
	cp.DisplayOrder = top + 1
	if err := s.ads.InsertAd(ctx, &cp); err != nil {
		return nil, Handle{}, partial("insert advertisement", err)
	}
	assigned := bindSlots(cp.ID, srcSlots)
	if err := s.slots.SetAssignments(ctx, cp.ID, assigned); err != nil {
		return nil, Handle{}, partial("save slot assignments", err)
	}

	h := s.undo.For(actor).Record(PendingUndo{
		Kind:        UndoDuplicate,
		Description: "Duplicated " + adLabel(*src),
		Snapshot:    Snapshot{Ad: cp.Clone(), Assignments: assigned},
	})
	s.logger.Info("advertisement duplicated", zap.String("source_id", id.String()), zap.String("ad_id", cp.ID.String()))
	s.changed(ctx, models.EventAdCreated, cp, actor)
	return &AdView{Advertisement: cp, Status: schedule.ResolveAd(cp, s.now()), Slots: assigned}, h, nil
}

// Delete removes id's slots, then the ad, then clears the interval of any ad
// left alone in a slot it shared. The prior state stays undoable for the
// ledger TTL.
func (s *Service) Delete(ctx context.Context, actor, id uuid.UUID) (Handle, error) {
	ctx = context.WithoutCancel(ctx)
	a, err := s.ads.GetAd(ctx, id)
	if err != nil {
		return Handle{}, err
	}
	assigned, err := s.slots.AssignmentsForAd(ctx, id)
	if err != nil {
		return Handle{}, fmt.Errorf("load assignments: %w", err)
	}
	snap := Snapshot{Ad: a.Clone(), Assignments: assigned}

	if err := s.slots.DeleteAssignments(ctx, id); err != nil {
		return Handle{}, partial("delete slot assignments", err)
	}
	if err := s.ads.DeleteAd(ctx, id); err != nil {
		return Handle{}, partial("delete advertisement", err)
	}
	released, err := s.rotation.ReleaseSlots(ctx, slotNames(assigned))
	snap.Released = released
	h := s.undo.For(actor).Record(PendingUndo{
		Kind:        UndoDelete,
		Description: "Deleted " + adLabel(*a),
		Snapshot:    snap,
	})
	if err != nil {
		return h, partial("clear rotation intervals", err)
	}

	s.logger.Info("advertisement deleted", zap.String("ad_id", id.String()), zap.String("actor", actor.String()), zap.Int("released", len(released)))
	s.changed(ctx, models.EventAdDeleted, *a, actor)
	return h, nil
}

// ToggleEnabled flips is_active and leaves slots and rotation untouched.
func (s *Service) ToggleEnabled(ctx context.Context, actor, id uuid.UUID) (*AdView, Handle, error) {
	ctx = context.WithoutCancel(ctx)
	a, err := s.ads.GetAd(ctx, id)
	if err != nil {
		return nil, Handle{}, err
	}
	prev := a.IsActive
	if err := s.ads.SetEnabled(ctx, id, !prev); err != nil {
		return nil, Handle{}, fmt.Errorf("toggle advertisement: %w", err)
	}
	a.IsActive = !prev

	verb := "Disabled "
	if a.IsActive {
		verb = "Enabled "
	}
	h := s.undo.For(actor).Record(PendingUndo{
		Kind:        UndoToggle,
		Description: verb + adLabel(*a),
		Snapshot:    Snapshot{Ad: a.Clone(), PrevEnabled: prev},
	})
	s.changed(ctx, models.EventAdToggled, *a, actor)
	return &AdView{Advertisement: *a, Status: schedule.ResolveAd(*a, s.now())}, h, nil
}

// UploadImage stores a standalone image and returns its public URL.
func (s *Service) UploadImage(ctx context.Context, img ImageUpload) (string, error) {
	return s.resolveImage(context.WithoutCancel(ctx), AdInput{Image: &img})
}

// PendingUndo returns actor's live undo entry, if any.
func (s *Service) PendingUndo(actor uuid.UUID) (PendingUndo, bool) {
	return s.undo.Peek(actor)
}

// DismissUndo drops actor's live undo entry without reversing it.
func (s *Service) DismissUndo(actor uuid.UUID) {
	s.undo.For(actor).Discard()
}

// Undo reverses actor's live undo entry. ErrUndoExpired is returned when the
// entry is gone; nothing is changed in that case.
func (s *Service) Undo(ctx context.Context, actor uuid.UUID) (PendingUndo, error) {
	ctx = context.WithoutCancel(ctx)
	p, ok := s.undo.For(actor).Take()
	if !ok {
		return PendingUndo{}, ErrUndoExpired
	}
	snap := p.Snapshot
	switch p.Kind {
	case UndoDelete:
		ad := snap.Ad.Clone()
		if err := s.ads.InsertAd(ctx, &ad); err != nil {
			return p, partial("restore advertisement", err)
		}
		if err := s.slots.SetAssignments(ctx, ad.ID, snap.Assignments); err != nil {
			return p, partial("restore slot assignments", err)
		}
		for _, r := range snap.Released {
			if err := s.ads.SetRotationInterval(ctx, r.AdID, r.Previous); err != nil && !errors.Is(err, ErrAdNotFound) {
				return p, partial("restore rotation intervals", err)
			}
		}
		s.changed(ctx, models.EventAdCreated, ad, actor)
	case UndoDuplicate:
		if err := s.slots.DeleteAssignments(ctx, snap.Ad.ID); err != nil {
			return p, partial("delete slot assignments", err)
		}
		if err := s.ads.DeleteAd(ctx, snap.Ad.ID); err != nil {
			return p, partial("delete advertisement", err)
		}
		s.changed(ctx, models.EventAdDeleted, snap.Ad, actor)
	case UndoToggle:
		if err := s.ads.SetEnabled(ctx, snap.Ad.ID, snap.PrevEnabled); err != nil {
			return p, fmt.Errorf("restore enabled flag: %w", err)
		}
		ad := snap.Ad.Clone()
		ad.IsActive = snap.PrevEnabled
		s.changed(ctx, models.EventAdToggled, ad, actor)
	default:
		return p, fmt.Errorf("unknown undo kind %q", p.Kind)
	}
	s.logger.Info("undo applied", zap.String("kind", string(p.Kind)), zap.String("ad_id", snap.Ad.ID.String()), zap.String("actor", actor.String()))
	return p, nil
}

func (s *Service) validate(in AdInput, currentImage string) ([]models.Slot, error) {
	if in.Image == nil && strings.TrimSpace(in.ImageURL) == "" && currentImage == "" {
		return nil, invalid("image_url", "Please upload an image.")
	}
	if strings.TrimSpace(in.LinkURL) == "" {
		return nil, invalid("link_url", "Please enter a link URL.")
	}
	if len(in.Slots) == 0 {
		return nil, invalid("ad_slots", "Please select at least one ad slot.")
	}
	slots := make([]models.Slot, 0, len(in.Slots))
	seen := make(map[models.Slot]bool, len(in.Slots))
	for _, as := range in.Slots {
		if !as.Slot.Valid() {
			return nil, invalid("ad_slots", fmt.Sprintf("Unknown ad slot %q.", as.Slot))
		}
		if seen[as.Slot] {
			return nil, invalid("ad_slots", fmt.Sprintf("Ad slot %q is selected more than once.", as.Slot))
		}
		seen[as.Slot] = true
		slots = append(slots, as.Slot)
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return nil, invalid("start_date", "Please choose a start and end date.")
	}
	if !in.StartDate.Before(in.EndDate) {
		return nil, invalid("end_date", "End date must be after the start date.")
	}
	if in.LabelPosition != "" && !in.LabelPosition.Valid() {
		return nil, invalid("label_position", fmt.Sprintf("Unknown label position %q.", in.LabelPosition))
	}
	return slots, nil
}

func (s *Service) resolveImage(ctx context.Context, in AdInput) (string, error) {
	if in.Image == nil {
		return strings.TrimSpace(in.ImageURL), nil
	}
	if s.images == nil {
		return "", fmt.Errorf("%w: image storage not configured", ErrImageUpload)
	}
	url, err := s.images.UploadImage(ctx, in.Image.Filename, in.Image.ContentType, in.Image.Body, in.Image.Size)
	if errors.Is(err, storage.ErrPermissionDenied) {
		s.logger.Error("image upload denied", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrImagePermission, err)
	}
	if err != nil {
		s.logger.Error("image upload failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrImageUpload, err)
	}
	return url, nil
}

func (s *Service) changed(ctx context.Context, t models.EventType, a models.Advertisement, actor uuid.UUID) {
	if s.broadcaster != nil {
		s.broadcaster.AdsChanged(ctx)
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, models.NewAdEvent(t, a, actor, s.now()))
	}
}

// applyInput copies editable fields onto a. The interval is kept only when
// rotation is required; otherwise it does not apply and is stored as null.
func applyInput(a *models.Advertisement, in AdInput, imageURL string, req *RotationRequirement) {
	a.Title = in.Title
	a.ImageURL = imageURL
	a.LinkURL = strings.TrimSpace(in.LinkURL)
	if in.IsActive != nil {
		a.IsActive = *in.IsActive
	}
	a.StartDate = in.StartDate.UTC()
	a.EndDate = in.EndDate.UTC()
	a.LabelColor = in.LabelColor
	a.LabelPosition = in.LabelPosition
	if a.LabelPosition == "" {
		a.LabelPosition = models.LabelTopLeft
	}
	a.RuntimeSeconds = nil
	if req != nil && req.Required && in.Rotation.Interval != nil {
		v := *in.Rotation.Interval
		a.RuntimeSeconds = &v
	}
}

func bindSlots(adID uuid.UUID, in []models.SlotAssignment) []models.SlotAssignment {
	out := make([]models.SlotAssignment, len(in))
	for i, as := range in {
		out[i] = models.SlotAssignment{AdID: adID, Slot: as.Slot, FillSection: as.FillSection}
	}
	return out
}

func slotNames(list []models.SlotAssignment) []models.Slot {
	out := make([]models.Slot, len(list))
	for i, as := range list {
		out[i] = as.Slot
	}
	return out
}
