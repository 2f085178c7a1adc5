package ads

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DPJMedia/springford-ads/internal/models"
	"github.com/DPJMedia/springford-ads/pkg/storage"
)

// memStore is an in-memory AdStore and SlotStore. fail injects an error for
// the named method.
type memStore struct {
	mu       sync.Mutex
	ads      map[uuid.UUID]models.Advertisement
	assigned map[uuid.UUID][]models.SlotAssignment
	settings map[models.Slot]bool
	fail     map[string]error
	clock    time.Time
	writes   []string
}

func newMemStore() *memStore {
	return &memStore{
		ads:      make(map[uuid.UUID]models.Advertisement),
		assigned: make(map[uuid.UUID][]models.SlotAssignment),
		settings: make(map[models.Slot]bool),
		fail:     make(map[string]error),
		clock:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) failing(method string) error {
	return m.fail[method]
}

func (m *memStore) InsertAd(_ context.Context, a *models.Advertisement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing("InsertAd"); err != nil {
		return err
	}
	if a.CreatedAt.IsZero() {
		m.clock = m.clock.Add(time.Second)
		a.CreatedAt = m.clock
	}
	a.UpdatedAt = a.CreatedAt
	m.ads[a.ID] = a.Clone()
	m.writes = append(m.writes, "InsertAd")
	return nil
}

func (m *memStore) UpdateAd(_ context.Context, a *models.Advertisement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing("UpdateAd"); err != nil {
		return err
	}
	if _, ok := m.ads[a.ID]; !ok {
		return ErrAdNotFound
	}
	m.ads[a.ID] = a.Clone()
	m.writes = append(m.writes, "UpdateAd")
	return nil
}

func (m *memStore) GetAd(_ context.Context, id uuid.UUID) (*models.Advertisement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing("GetAd"); err != nil {
		return nil, err
	}
	a, ok := m.ads[id]
	if !ok {
		return nil, ErrAdNotFound
	}
	c := a.Clone()
	return &c, nil
}

func (m *memStore) ListAds(_ context.Context) ([]models.Advertisement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing("ListAds"); err != nil {
		return nil, err
	}
	out := make([]models.Advertisement, 0, len(m.ads))
	for _, a := range m.ads {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *memStore) DeleteAd(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing("DeleteAd"); err != nil {
		return err
	}
	delete(m.ads, id)
	m.writes = append(m.writes, "DeleteAd")
	return nil
}

func (m *memStore) SetEnabled(_ context.Context, id uuid.UUID, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.ads[id]
	if !ok {
		return ErrAdNotFound
	}
	a.IsActive = enabled
	m.ads[id] = a
	m.writes = append(m.writes, "SetEnabled")
	return nil
}

func (m *memStore) SetRotationInterval(_ context.Context, id uuid.UUID, seconds *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing("SetRotationInterval"); err != nil {
		return err
	}
	a, ok := m.ads[id]
	if !ok {
		return ErrAdNotFound
	}
	a.RuntimeSeconds = nil
	if seconds != nil {
		v := *seconds
		a.RuntimeSeconds = &v
	}
	m.ads[id] = a
	m.writes = append(m.writes, "SetRotationInterval")
	return nil
}

func (m *memStore) MaxDisplayOrder(_ context.Context, slots []models.Slot) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[models.Slot]bool, len(slots))
	for _, s := range slots {
		want[s] = true
	}
	top := 0
	for id, a := range m.ads {
		if len(slots) > 0 && !m.inAnyLocked(id, want) {
			continue
		}
		if a.DisplayOrder > top {
			top = a.DisplayOrder
		}
	}
	return top, nil
}

func (m *memStore) inAnyLocked(id uuid.UUID, want map[models.Slot]bool) bool {
	for _, as := range m.assigned[id] {
		if want[as.Slot] {
			return true
		}
	}
	return false
}

func (m *memStore) SetAssignments(_ context.Context, adID uuid.UUID, list []models.SlotAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing("SetAssignments"); err != nil {
		return err
	}
	cp := make([]models.SlotAssignment, len(list))
	copy(cp, list)
	if len(cp) == 0 {
		delete(m.assigned, adID)
	} else {
		m.assigned[adID] = cp
	}
	m.writes = append(m.writes, "SetAssignments")
	return nil
}

func (m *memStore) DeleteAssignments(_ context.Context, adID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing("DeleteAssignments"); err != nil {
		return err
	}
	delete(m.assigned, adID)
	m.writes = append(m.writes, "DeleteAssignments")
	return nil
}

func (m *memStore) AssignmentsForSlot(_ context.Context, slot models.Slot) ([]models.SlotAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SlotAssignment
	for _, list := range m.assigned {
		for _, as := range list {
			if as.Slot == slot {
				out = append(out, as)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AdID.String() < out[j].AdID.String() })
	return out, nil
}

func (m *memStore) AssignmentsForAd(_ context.Context, adID uuid.UUID) ([]models.SlotAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SlotAssignment, len(m.assigned[adID]))
	copy(out, m.assigned[adID])
	return out, nil
}

func (m *memStore) SlotsForAd(_ context.Context, adID uuid.UUID) ([]models.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Slot, 0, len(m.assigned[adID]))
	for _, as := range m.assigned[adID] {
		out = append(out, as.Slot)
	}
	return out, nil
}

func (m *memStore) CountForSlot(ctx context.Context, slot models.Slot) (int, error) {
	list, err := m.AssignmentsForSlot(ctx, slot)
	return len(list), err
}

func (m *memStore) UseFallback(_ context.Context, slot models.Slot) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.settings[slot]
	if !ok {
		return true, nil
	}
	return v, nil
}

// seed stores a with the given slots directly, bypassing the service.
func (m *memStore) seed(a models.Advertisement, slots ...models.Slot) models.Advertisement {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.LabelPosition == "" {
		a.LabelPosition = models.LabelTopLeft
	}
	_ = m.InsertAd(context.Background(), &a)
	list := make([]models.SlotAssignment, len(slots))
	for i, s := range slots {
		list[i] = models.SlotAssignment{AdID: a.ID, Slot: s}
	}
	_ = m.SetAssignments(context.Background(), a.ID, list)
	m.mu.Lock()
	m.writes = nil
	m.mu.Unlock()
	return a
}

func (m *memStore) ad(id uuid.UUID) (models.Advertisement, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.ads[id]
	return a, ok
}

type fakeImages struct {
	url   string
	err   error
	calls int
}

func (f *fakeImages) UploadImage(_ context.Context, filename, _ string, body io.Reader, _ int64) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	_, _ = io.Copy(io.Discard, body)
	return f.url + filename, nil
}

type recorder struct {
	mu      sync.Mutex
	events  []models.AdEvent
	changes int
}

func (r *recorder) Notify(_ context.Context, ev models.AdEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) AdsChanged(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes++
}

func (r *recorder) types() []models.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

var errStore = errors.New("store unavailable")

var permissionDenied = errors.Join(storage.ErrPermissionDenied, errors.New("AccessDenied"))

func intp(v int) *int { return &v }

func strp(s string) *string { return &s }

func boolp(b bool) *bool { return &b }
