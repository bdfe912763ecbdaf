package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/herald/pkg/event"
	"github.com/cuemby/herald/pkg/log"
	"github.com/cuemby/herald/pkg/manager"
	"github.com/cuemby/herald/pkg/metrics"
	"github.com/cuemby/herald/pkg/wire"
	"github.com/rs/zerolog"
)

// DefaultTick is how often the scheduler checks periodic events
const DefaultTick = 10 * time.Millisecond

// Scheduler fires produced periodic events when their period elapses
type Scheduler struct {
	manager *manager.EventManager
	catalog *Catalog
	tick    time.Duration
	now     func() time.Time
	logger  zerolog.Logger
	stopCh  chan struct{}
}

// NewScheduler creates a new scheduler
func NewScheduler(mgr *manager.EventManager, catalog *Catalog, tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Scheduler{
		manager: mgr,
		catalog: catalog,
		tick:    tick,
		now:     time.Now,
		logger:  log.WithComponent("scheduler"),
		stopCh:  make(chan struct{}),
	}
}

// Start begins the scheduler loop in the background
func (s *Scheduler) Start() {
	go func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			<-s.stopCh
			cancel()
		}()
		_ = s.Run(ctx)
	}()
}

// Stop stops a scheduler started with Start
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

// Run is the main scheduler loop. It returns when ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	metrics.RegisterComponent(metrics.ComponentScheduler, true, "running")
	defer metrics.UpdateComponent(metrics.ComponentScheduler, false, "stopped")

	for {
		select {
		case <-ticker.C:
			s.schedule(ctx, s.now())
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// schedule performs one pass over the periodic events and returns how many
// fired
func (s *Scheduler) schedule(ctx context.Context, now time.Time) int {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulerTickDuration)

	tx := s.manager.Lock()
	defer tx.Unlock()

	fired := 0
	for _, e := range tx.ProducedPeriodic() {
		if !e.Due(now) {
			continue
		}
		if s.fire(ctx, tx, e) {
			fired++
		}
	}
	return fired
}

// Trigger fires every produced change-based event of payloadType that match
// accepts. Applications call it when the value behind payloadType changed;
// match decides which conditions the new value satisfies. A nil match
// accepts every event.
func (s *Scheduler) Trigger(ctx context.Context, payloadType wire.Code, match func(e *event.Event) bool) (int, error) {
	if _, ok := s.catalog.Lookup(payloadType); !ok {
		return 0, fmt.Errorf("no source registered for %s", payloadType)
	}

	tx := s.manager.Lock()
	defer tx.Unlock()

	fired := 0
	for _, e := range tx.Produced() {
		if e.IsPeriodic() || e.PayloadType != payloadType {
			continue
		}
		if match != nil && !match(e.Clone()) {
			continue
		}
		if s.fire(ctx, tx, e) {
			fired++
		}
	}
	return fired, nil
}

func (s *Scheduler) fire(ctx context.Context, tx *manager.Tx, e *event.Event) bool {
	key := e.Key()
	source, ok := s.catalog.Lookup(e.PayloadType)
	if !ok {
		s.logger.Debug().Stringer("event", key).Msg("No source for payload type")
		return false
	}

	payload, err := source(ctx, e.Clone())
	if err != nil {
		s.logger.Warn().Err(err).Stringer("event", key).Msg("Payload source failed")
		return false
	}

	res, err := tx.GenerateEvent(ctx, key, payload)
	if err != nil && !errors.Is(err, manager.ErrAllSendsFailed) {
		s.logger.Warn().Err(err).Stringer("event", key).Msg("Failed to fire event")
		return false
	}
	if len(res.Failed) > 0 {
		s.logger.Debug().Stringer("event", key).Int("failed", len(res.Failed)).Msg("Event fired with delivery failures")
	}
	return true
}
