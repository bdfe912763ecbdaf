package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/herald/pkg/event"
	"github.com/cuemby/herald/pkg/manager"
	"github.com/cuemby/herald/pkg/types"
	"github.com/cuemby/herald/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner      = types.MustParseAddress("1.1.1.1")
	subscriber = types.MustParseAddress("2.1.1.1")
)

// countingTransport records the destination of every sent packet
type countingTransport struct {
	mu   sync.Mutex
	sent []wire.Packet
}

func (c *countingTransport) Send(_ context.Context, packet []byte) error {
	pkt, err := wire.Unmarshal(packet)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, pkt)
	return nil
}

func (c *countingTransport) SendAndWait(ctx context.Context, packet []byte, _ func(wire.Packet) bool) (wire.Packet, error) {
	if err := c.Send(ctx, packet); err != nil {
		return wire.Packet{}, err
	}
	<-ctx.Done()
	return wire.Packet{}, ctx.Err()
}

func (c *countingTransport) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func setup(t *testing.T) (*manager.EventManager, *countingTransport, *Catalog) {
	t.Helper()
	tr := &countingTransport{}
	mgr, err := manager.NewEventManager(&manager.Config{Owner: owner, Transport: tr})
	require.NoError(t, err)
	mgr.RegisterPayload(manager.Payload{Query: wire.CodeQueryTime, Periodic: true, ChangeBased: true})

	catalog := NewCatalog()
	catalog.Register(wire.CodeQueryTime, func(_ context.Context, _ *event.Event) (wire.Message, error) {
		return &wire.ReportTime{Time: time.Unix(1700000000, 0)}, nil
	})
	return mgr, tr, catalog
}

func create(t *testing.T, mgr *manager.EventManager, s wire.EventSetup) *event.Event {
	t.Helper()
	e, err := mgr.CreateEvent(subscriber, &wire.CreateEvent{RequestID: 1, EventSetup: s})
	require.NoError(t, err)
	return e
}

func TestScheduleFiresDuePeriodicEvents(t *testing.T) {
	mgr, tr, catalog := setup(t)
	create(t, mgr, wire.EventSetup{
		PayloadType:   wire.CodeQueryTime,
		Kind:          types.EventKindPeriodic,
		RequestedRate: types.Ptr(10.0),
	})
	s := NewScheduler(mgr, catalog, time.Millisecond)

	now := time.Now()
	assert.Equal(t, 1, s.schedule(context.Background(), now), "never fired event is due")
	assert.Equal(t, 1, tr.count())

	// LastFired comes from the manager clock, so measure from it
	produced := mgr.ProducedEvents()
	require.Len(t, produced, 1)
	last := produced[0].LastFired

	assert.Equal(t, 0, s.schedule(context.Background(), last.Add(50*time.Millisecond)))
	assert.Equal(t, 1, s.schedule(context.Background(), last.Add(100*time.Millisecond)))
	assert.Equal(t, 2, tr.count())

	produced = mgr.ProducedEvents()
	require.Len(t, produced, 1)
	assert.Equal(t, uint8(2), produced[0].Sequence)
}

func TestScheduleSkipsChangeBasedEvents(t *testing.T) {
	mgr, tr, catalog := setup(t)
	create(t, mgr, wire.EventSetup{
		PayloadType: wire.CodeQueryTime,
		Kind:        types.EventKindEveryChange,
	})
	s := NewScheduler(mgr, catalog, time.Millisecond)

	assert.Equal(t, 0, s.schedule(context.Background(), time.Now()))
	assert.Equal(t, 0, tr.count())
}

func TestScheduleWithoutSource(t *testing.T) {
	mgr, tr, _ := setup(t)
	create(t, mgr, wire.EventSetup{
		PayloadType:   wire.CodeQueryTime,
		Kind:          types.EventKindPeriodic,
		RequestedRate: types.Ptr(5.0),
	})
	s := NewScheduler(mgr, NewCatalog(), time.Millisecond)

	assert.Equal(t, 0, s.schedule(context.Background(), time.Now()))
	assert.Equal(t, 0, tr.count())
}

func TestScheduleSourceError(t *testing.T) {
	mgr, tr, _ := setup(t)
	create(t, mgr, wire.EventSetup{
		PayloadType:   wire.CodeQueryTime,
		Kind:          types.EventKindPeriodic,
		RequestedRate: types.Ptr(5.0),
	})
	catalog := NewCatalog()
	catalog.Register(wire.CodeQueryTime, func(context.Context, *event.Event) (wire.Message, error) {
		return nil, errors.New("sensor offline")
	})
	s := NewScheduler(mgr, catalog, time.Millisecond)

	assert.Equal(t, 0, s.schedule(context.Background(), time.Now()))
	assert.Equal(t, 0, tr.count())
}

func TestPeriodicWithoutReplacementKeepsFiring(t *testing.T) {
	mgr, tr, catalog := setup(t)
	create(t, mgr, wire.EventSetup{
		PayloadType:   wire.CodeQueryTime,
		Kind:          types.EventKindPeriodicWithoutReplacement,
		RequestedRate: types.Ptr(100.0),
	})
	s := NewScheduler(mgr, catalog, time.Millisecond)

	now := time.Now()
	assert.Equal(t, 1, s.schedule(context.Background(), now))
	assert.Equal(t, 1, s.schedule(context.Background(), now.Add(time.Hour)))
	assert.Equal(t, 2, tr.count())
}

func TestTriggerOneTimeRemovesEvent(t *testing.T) {
	mgr, tr, catalog := setup(t)
	create(t, mgr, wire.EventSetup{
		PayloadType: wire.CodeQueryTime,
		Kind:        types.EventKindOneTime,
	})
	s := NewScheduler(mgr, catalog, time.Millisecond)

	fired, err := s.Trigger(context.Background(), wire.CodeQueryTime, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 1, tr.count())
	assert.Empty(t, mgr.ProducedEvents())

	fired, err = s.Trigger(context.Background(), wire.CodeQueryTime, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, fired)
}

func TestTrigger(t *testing.T) {
	mgr, tr, catalog := setup(t)
	low := create(t, mgr, wire.EventSetup{
		PayloadType: wire.CodeQueryTime,
		Kind:        types.EventKindEveryChange,
		Conditions:  types.Conditions{LowerLimit: types.Ptr(1.0)},
	})
	create(t, mgr, wire.EventSetup{
		PayloadType: wire.CodeQueryTime,
		Kind:        types.EventKindEveryChange,
		Conditions:  types.Conditions{LowerLimit: types.Ptr(50.0)},
	})
	s := NewScheduler(mgr, catalog, time.Millisecond)

	value := 10.0
	fired, err := s.Trigger(context.Background(), wire.CodeQueryTime, func(e *event.Event) bool {
		return e.Conditions == nil || e.Conditions.LowerLimit == nil || value >= *e.Conditions.LowerLimit
	})
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
	require.Equal(t, 1, tr.count())
	assert.Equal(t, subscriber, tr.sent[0].Header.Destination)

	decoded, err := tr.sent[0].Decode(wire.DefaultRegistry)
	require.NoError(t, err)
	msg, ok := decoded.(*wire.EventMessage)
	require.True(t, ok)
	assert.Equal(t, low.ID, msg.EventID)

	fired, err = s.Trigger(context.Background(), wire.CodeQueryTime, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, fired)
}

func TestTriggerUnknownPayload(t *testing.T) {
	mgr, _, catalog := setup(t)
	s := NewScheduler(mgr, catalog, time.Millisecond)

	_, err := s.Trigger(context.Background(), wire.Code(0x7777), nil)
	assert.Error(t, err)
}

func TestRunFiresUntilCanceled(t *testing.T) {
	mgr, tr, catalog := setup(t)
	create(t, mgr, wire.EventSetup{
		PayloadType:   wire.CodeQueryTime,
		Kind:          types.EventKindPeriodic,
		RequestedRate: types.Ptr(200.0),
	})
	s := NewScheduler(mgr, catalog, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return tr.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestStartStop(t *testing.T) {
	mgr, tr, catalog := setup(t)
	create(t, mgr, wire.EventSetup{
		PayloadType:   wire.CodeQueryTime,
		Kind:          types.EventKindPeriodic,
		RequestedRate: types.Ptr(200.0),
	})
	s := NewScheduler(mgr, catalog, time.Millisecond)
	s.Start()
	assert.Eventually(t, func() bool { return tr.count() >= 1 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()
}

func TestCatalog(t *testing.T) {
	c := NewCatalog()
	_, ok := c.Lookup(wire.CodeQueryTime)
	assert.False(t, ok)

	c.Register(wire.CodeQueryTime, func(context.Context, *event.Event) (wire.Message, error) { return nil, nil })
	_, ok = c.Lookup(wire.CodeQueryTime)
	assert.True(t, ok)
	assert.Equal(t, []wire.Code{wire.CodeQueryTime}, c.Codes())
}
