package ads

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// LedgerRegistry holds one undo ledger per acting administrator (thread-safe).
type LedgerRegistry struct {
	mu      sync.RWMutex
	ttl     time.Duration
	ledgers map[string]*Ledger
}

// NewLedgerRegistry creates a registry whose ledgers share ttl.
func NewLedgerRegistry(ttl time.Duration) *LedgerRegistry {
	return &LedgerRegistry{ttl: ttl, ledgers: make(map[string]*Ledger)}
}

// For returns the ledger for actor, creating it on first use.
func (reg *LedgerRegistry) For(actor uuid.UUID) *Ledger {
	key := actor.String()
	reg.mu.RLock()
	l := reg.ledgers[key]
	reg.mu.RUnlock()
	if l != nil {
		return l
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if l = reg.ledgers[key]; l == nil {
		l = NewLedger(reg.ttl)
		reg.ledgers[key] = l
	}
	return l
}

// Peek returns actor's live entry, if any.
func (reg *LedgerRegistry) Peek(actor uuid.UUID) (PendingUndo, bool) {
	reg.mu.RLock()
	l := reg.ledgers[actor.String()]
	reg.mu.RUnlock()
	if l == nil {
		return PendingUndo{}, false
	}
	return l.Peek()
}

// Close stops every pending timer and forgets all entries.
func (reg *LedgerRegistry) Close() {
	reg.mu.Lock()
	ledgers := reg.ledgers
	reg.ledgers = make(map[string]*Ledger)
	reg.mu.Unlock()
	for _, l := range ledgers {
		l.Discard()
	}
}
