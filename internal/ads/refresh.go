package ads

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DPJMedia/springford-ads/internal/models"
	"github.com/DPJMedia/springford-ads/internal/schedule"
)

const (
	DefaultReloadInterval = 30 * time.Second
	DefaultTickInterval   = time.Second
)

// Loader fetches the full advertisement list.
type Loader func(ctx context.Context) ([]models.Advertisement, error)

// RefreshHooks are optional callbacks fired by a RefreshLoop. They run on the
// loop's goroutines and must not block for long.
type RefreshHooks struct {
	// OnReload receives the freshly loaded list and its statuses.
	OnReload func(ads []models.Advertisement, statuses map[uuid.UUID]models.Status)
	// OnTick receives recomputed statuses when no reload was needed.
	OnTick func(statuses map[uuid.UUID]models.Status)
	OnActivated func(ad models.Advertisement)
	OnExpired   func(ad models.Advertisement)
}

// RefreshLoop keeps one loaded advertisement list current. It runs two
// independent cadences: a full reload every reloadEvery and a status
// recomputation every tickEvery. A scheduled->active flip seen on a tick
// triggers an immediate reload. Start and Stop control both together.
type RefreshLoop struct {
	load        Loader
	hooks       RefreshHooks
	logger      *zap.Logger
	reloadEvery time.Duration
	tickEvery   time.Duration
	now         func() time.Time

	mu   sync.Mutex
	ads  []models.Advertisement
	prev map[uuid.UUID]models.Status

	ctl      sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	reloadCh chan struct{}
}

// NewRefreshLoop creates a refresh loop. Zero intervals use the defaults.
func NewRefreshLoop(load Loader, reloadEvery, tickEvery time.Duration, hooks RefreshHooks, logger *zap.Logger) *RefreshLoop {
	if reloadEvery <= 0 {
		reloadEvery = DefaultReloadInterval
	}
	if tickEvery <= 0 {
		tickEvery = DefaultTickInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefreshLoop{
		load:        load,
		hooks:       hooks,
		logger:      logger,
		reloadEvery: reloadEvery,
		tickEvery:   tickEvery,
		now:         time.Now,
		prev:        make(map[uuid.UUID]models.Status),
		reloadCh:    make(chan struct{}, 1),
	}
}

// Start loads the list and begins both cadences. Call Stop() to release resources.
func (r *RefreshLoop) Start() {
	r.ctl.Lock()
	defer r.ctl.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(2)
	go r.runReload(ctx)
	go r.runTick(ctx)
	r.logger.Debug("refresh loop started", zap.Duration("reload", r.reloadEvery), zap.Duration("tick", r.tickEvery))
}

// Stop halts both cadences and waits for them to exit.
func (r *RefreshLoop) Stop() {
	r.ctl.Lock()
	defer r.ctl.Unlock()
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.cancel = nil
	r.wg.Wait()
	r.logger.Debug("refresh loop stopped")
}

// Reload asks for an out-of-band reload. Requests made while one is queued are merged.
func (r *RefreshLoop) Reload() {
	select {
	case r.reloadCh <- struct{}{}:
	default:
	}
}

// Snapshot returns a copy of the loaded list and the last computed statuses.
func (r *RefreshLoop) Snapshot() ([]models.Advertisement, map[uuid.UUID]models.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ads := make([]models.Advertisement, len(r.ads))
	copy(ads, r.ads)
	statuses := make(map[uuid.UUID]models.Status, len(r.prev))
	for id, st := range r.prev {
		statuses[id] = st
	}
	return ads, statuses
}

func (r *RefreshLoop) runReload(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.reloadEvery)
	defer ticker.Stop()

	r.reload(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.reloadCh:
			r.reload(ctx)
		case <-ticker.C:
			r.reload(ctx)
		}
	}
}

func (r *RefreshLoop) runTick(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.tickEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *RefreshLoop) reload(ctx context.Context) {
	list, err := r.load(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("refresh loop load ads failed", zap.Error(err))
		}
		return
	}
	r.mu.Lock()
	r.ads = list
	statuses, activated, expired := r.observeLocked(r.now())
	r.mu.Unlock()

	r.fire(activated, expired)
	if r.hooks.OnReload != nil {
		r.hooks.OnReload(list, statuses)
	}
}

func (r *RefreshLoop) tick() {
	r.mu.Lock()
	statuses, activated, expired := r.observeLocked(r.now())
	r.mu.Unlock()

	r.fire(activated, expired)
	if len(activated) > 0 {
		r.Reload()
		return
	}
	if r.hooks.OnTick != nil {
		r.hooks.OnTick(statuses)
	}
}

// observeLocked recomputes every status against the previous map and replaces
// it. Ads seen for the first time never count as a transition, and a disabled
// ad is not reported as expired.
func (r *RefreshLoop) observeLocked(now time.Time) (statuses map[uuid.UUID]models.Status, activated, expired []models.Advertisement) {
	statuses = make(map[uuid.UUID]models.Status, len(r.ads))
	for _, a := range r.ads {
		st := schedule.ResolveAd(a, now)
		statuses[a.ID] = st
		old, seen := r.prev[a.ID]
		if !seen || old == st {
			continue
		}
		if old == models.StatusScheduled && st == models.StatusActive {
			activated = append(activated, a)
		}
		if old == models.StatusActive && st == models.StatusExpired && a.IsActive {
			expired = append(expired, a)
		}
	}
	r.prev = statuses
	out := make(map[uuid.UUID]models.Status, len(statuses))
	for id, st := range statuses {
		out[id] = st
	}
	return out, activated, expired
}

func (r *RefreshLoop) fire(activated, expired []models.Advertisement) {
	for _, a := range activated {
		r.logger.Info("advertisement became active", zap.String("ad_id", a.ID.String()))
		if r.hooks.OnActivated != nil {
			r.hooks.OnActivated(a)
		}
	}
	for _, a := range expired {
		r.logger.Info("advertisement expired", zap.String("ad_id", a.ID.String()))
		if r.hooks.OnExpired != nil {
			r.hooks.OnExpired(a)
		}
	}
}
