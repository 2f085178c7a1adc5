package ads

import (
	"sync"
	"time"

	"github.com/DPJMedia/springford-ads/internal/models"
)

// DefaultUndoTTL is how long a destructive action stays reversible.
const DefaultUndoTTL = 10 * time.Second

// UndoKind names the action a PendingUndo reverses.
type UndoKind string

const (
	UndoDelete    UndoKind = "delete"
	UndoDuplicate UndoKind = "duplicate"
	UndoToggle    UndoKind = "toggle"
)

// Snapshot is the state captured immediately before an action.
// Ad is filled for every kind and Assignments for delete and duplicate.
// Released is set by delete, PrevEnabled by toggle.
type Snapshot struct {
	Ad          models.Advertisement    `json:"ad"`
	Assignments []models.SlotAssignment `json:"assignments"`
	Released    []ReleasedInterval      `json:"released,omitempty"`
	PrevEnabled bool                    `json:"prev_enabled"`
}

// PendingUndo is one reversible action.
type PendingUndo struct {
	Kind        UndoKind  `json:"kind"`
	Description string    `json:"description"`
	Snapshot    Snapshot  `json:"snapshot"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Handle describes the entry recorded by Record.
type Handle struct {
	Kind        UndoKind  `json:"kind"`
	Description string    `json:"description"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Ledger holds at most one pending undo. Recording a new one replaces the old
// entry and stops its timer. An entry that outlives its TTL is discarded.
type Ledger struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	pending *PendingUndo
	timer   *time.Timer
	seq     uint64
}

// NewLedger creates a ledger. ttl <= 0 uses DefaultUndoTTL.
func NewLedger(ttl time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = DefaultUndoTTL
	}
	return &Ledger{ttl: ttl, now: time.Now}
}

// Record stores p as the live entry and starts its countdown.
func (l *Ledger) Record(p PendingUndo) Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.timer != nil {
		l.timer.Stop()
	}
	l.seq++
	seq := l.seq
	p.ExpiresAt = l.now().Add(l.ttl)
	l.pending = &p
	l.timer = time.AfterFunc(l.ttl, func() { l.expire(seq) })
	return Handle{Kind: p.Kind, Description: p.Description, ExpiresAt: p.ExpiresAt}
}

// Peek returns the live entry without consuming it.
func (l *Ledger) Peek() (PendingUndo, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending == nil || l.now().After(l.pending.ExpiresAt) {
		return PendingUndo{}, false
	}
	return *l.pending, true
}

// Take removes and returns the live entry. ok is false when nothing is pending
// or the entry already expired.
func (l *Ledger) Take() (PendingUndo, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.pending
	l.clear()
	if p == nil || l.now().After(p.ExpiresAt) {
		return PendingUndo{}, false
	}
	return *p, true
}

// Discard drops the live entry without reversing it.
func (l *Ledger) Discard() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clear()
}

func (l *Ledger) expire(seq uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seq == seq {
		l.clear()
	}
}

func (l *Ledger) clear() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.pending = nil
}
