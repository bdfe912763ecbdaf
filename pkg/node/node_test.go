package node

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/herald/pkg/event"
	"github.com/cuemby/herald/pkg/manager"
	"github.com/cuemby/herald/pkg/metrics"
	"github.com/cuemby/herald/pkg/storage"
	"github.com/cuemby/herald/pkg/transport"
	"github.com/cuemby/herald/pkg/types"
	"github.com/cuemby/herald/pkg/wire"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var (
	subAddr  = types.MustParseAddress("1.1.1.1")
	provAddr = types.MustParseAddress("2.1.1.1")
	rawAddr  = types.MustParseAddress("3.1.1.1")
)

var clockTime = time.Unix(1700000000, 0).UTC()

func newNode(t *testing.T, network *transport.Network, addr types.Address, mutate ...func(*Config)) *Node {
	t.Helper()
	cfg := &Config{
		Address:           addr,
		Conn:              network.Attach(addr),
		RequestTimeout:    500 * time.Millisecond,
		HeartbeatInterval: 50 * time.Millisecond,
		PeerTimeout:       time.Second,
		SweepInterval:     20 * time.Millisecond,
		SchedulerTick:     2 * time.Millisecond,
	}
	for _, m := range mutate {
		m(cfg)
	}
	n, err := New(cfg)
	require.NoError(t, err)
	return n
}

// run starts n and returns a function that stops it and waits for Run
func run(t *testing.T, n *Node) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	var stopped bool
	stop := func() {
		if stopped {
			return
		}
		stopped = true
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("node did not stop")
		}
	}
	t.Cleanup(func() {
		stop()
		_ = n.Close()
	})
	return stop
}

func newProvider(t *testing.T, network *transport.Network) *Node {
	t.Helper()
	prov := newNode(t, network, provAddr)
	prov.RegisterSource(
		manager.Payload{Query: wire.CodeQueryTime, Periodic: true, ChangeBased: true},
		func(context.Context, *event.Event) (wire.Message, error) {
			return &wire.ReportTime{Time: clockTime}, nil
		},
	)
	return prov
}

func collect(n *Node) <-chan Notification {
	ch := make(chan Notification, 256)
	n.OnNotification(func(note Notification) {
		select {
		case ch <- note:
		default:
		}
	})
	return ch
}

func receive(t *testing.T, ch <-chan Notification) Notification {
	t.Helper()
	select {
	case note := <-ch:
		return note
	case <-time.After(2 * time.Second):
		t.Fatal("no notification")
		return Notification{}
	}
}

func newStore(t *testing.T) *storage.BoltStore {
	t.Helper()
	s, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func periodic(rate float64) wire.EventSetup {
	return wire.EventSetup{
		PayloadType:   wire.CodeQueryTime,
		Kind:          types.EventKindPeriodic,
		RequestedRate: types.Ptr(rate),
	}
}

func everyChange() wire.EventSetup {
	return wire.EventSetup{PayloadType: wire.CodeQueryTime, Kind: types.EventKindEveryChange}
}

func TestNewRequiresConn(t *testing.T) {
	_, err := New(&Config{Address: subAddr})
	assert.ErrorIs(t, err, manager.ErrNoTransport)
}

func TestSubscribeReceivesPeriodicNotifications(t *testing.T) {
	network := transport.NewNetwork()
	prov := newProvider(t, network)
	sub := newNode(t, network, subAddr)
	notes := collect(sub)
	run(t, prov)
	run(t, sub)

	e, err := sub.Subscribe(context.Background(), provAddr, periodic(100))
	require.NoError(t, err)
	assert.Equal(t, provAddr, e.Provider)

	first := receive(t, notes)
	second := receive(t, notes)
	third := receive(t, notes)

	assert.Equal(t, e.Key(), first.Key)
	assert.Equal(t, first.Sequence+1, second.Sequence)
	assert.Equal(t, second.Sequence+1, third.Sequence)
	assert.False(t, third.Gap)

	report, ok := first.Payload.(*wire.ReportTime)
	require.True(t, ok)
	assert.True(t, clockTime.Equal(report.Time))
}

func TestFireChangeBasedEvent(t *testing.T) {
	network := transport.NewNetwork()
	prov := newProvider(t, network)
	sub := newNode(t, network, subAddr)
	notes := collect(sub)
	run(t, prov)
	run(t, sub)

	e, err := sub.Subscribe(context.Background(), provAddr, everyChange())
	require.NoError(t, err)

	fired, err := prov.Fire(context.Background(), wire.CodeQueryTime, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	note := receive(t, notes)
	assert.Equal(t, e.Key(), note.Key)
	assert.Equal(t, uint8(0), note.Sequence)
}

func TestQuery(t *testing.T) {
	network := transport.NewNetwork()
	prov := newProvider(t, network)
	sub := newNode(t, network, subAddr)
	run(t, prov)
	run(t, sub)

	_, err := sub.Subscribe(context.Background(), provAddr, everyChange())
	require.NoError(t, err)

	report, err := sub.Query(context.Background(), provAddr, &wire.QueryEvents{})
	require.NoError(t, err)
	require.Len(t, report.Events, 1)
	assert.Equal(t, types.EventKindEveryChange, report.Events[0].Kind)
	assert.Equal(t, wire.CodeQueryTime, report.Events[0].PayloadType)
}

func TestQueryTimeout(t *testing.T) {
	network := transport.NewNetwork()
	sub := newNode(t, network, subAddr)
	silent := network.Attach(provAddr)
	defer silent.Close()
	run(t, sub)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := sub.Query(ctx, provAddr, &wire.QueryEvents{})
	assert.Error(t, err)
}

func TestCancelUpdatesJournal(t *testing.T) {
	network := transport.NewNetwork()
	store := newStore(t)
	prov := newProvider(t, network)
	sub := newNode(t, network, subAddr, func(c *Config) { c.Store = store })
	run(t, prov)
	run(t, sub)

	e, err := sub.Subscribe(context.Background(), provAddr, everyChange())
	require.NoError(t, err)

	journaled, err := store.GetSubscription(e.Key().String())
	require.NoError(t, err)
	assert.Equal(t, provAddr, journaled.Provider)

	require.NoError(t, sub.Cancel(context.Background(), e.Key()))

	_, err = store.GetSubscription(e.Key().String())
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Eventually(t, func() bool { return len(prov.Manager().ProducedEvents()) == 0 },
		time.Second, 10*time.Millisecond)
}

func TestResubscribe(t *testing.T) {
	network := transport.NewNetwork()
	store := newStore(t)

	stale := &storage.Subscription{Provider: provAddr, EventID: 7, Setup: periodic(2)}
	unsupported := &storage.Subscription{
		Provider: provAddr,
		EventID:  1,
		Setup:    wire.EventSetup{PayloadType: wire.Code(0x7777), Kind: types.EventKindEveryChange},
	}
	require.NoError(t, store.PutSubscription(stale))
	require.NoError(t, store.PutSubscription(unsupported))

	prov := newProvider(t, network)
	sub := newNode(t, network, subAddr, func(c *Config) { c.Store = store })
	run(t, prov)
	run(t, sub)

	restored, err := sub.Resubscribe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	subs, err := store.ListSubscriptions()
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, uint8(0), subs[0].EventID)
	assert.True(t, stale.CreatedAt.Equal(subs[0].CreatedAt), "creation time survives the new event id")

	produced := prov.Manager().ProducedEvents()
	require.Len(t, produced, 1)
	assert.True(t, produced[0].HasSubscriber(subAddr))
}

func TestProviderShutdownDropsSubscription(t *testing.T) {
	network := transport.NewNetwork()
	store := newStore(t)
	prov := newProvider(t, network)
	sub := newNode(t, network, subAddr, func(c *Config) { c.Store = store })
	run(t, prov)
	run(t, sub)

	_, err := sub.Subscribe(context.Background(), provAddr, everyChange())
	require.NoError(t, err)

	require.NoError(t, prov.Shutdown(context.Background()))

	assert.Eventually(t, func() bool { return len(sub.Manager().SubscribedEvents()) == 0 },
		time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		subs, err := store.ListSubscriptions()
		return err == nil && len(subs) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestPeerLossDropsSubscription(t *testing.T) {
	network := transport.NewNetwork()
	prov := newProvider(t, network)
	sub := newNode(t, network, subAddr, func(c *Config) { c.PeerTimeout = 150 * time.Millisecond })
	stopProv := run(t, prov)
	run(t, sub)

	_, err := sub.Subscribe(context.Background(), provAddr, periodic(50))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return len(sub.Peers()) == 1 }, time.Second, 10*time.Millisecond)

	before := testutil.ToFloat64(metrics.PeersLost)
	stopProv()

	assert.Eventually(t, func() bool { return len(sub.Manager().SubscribedEvents()) == 0 },
		2*time.Second, 10*time.Millisecond)
	assert.Empty(t, sub.Peers())
	assert.Greater(t, testutil.ToFloat64(metrics.PeersLost), before)
}

func notification(t *testing.T, seq uint8) wire.Packet {
	t.Helper()
	body, err := wire.EncodeEmbedded(&wire.ReportTime{Time: clockTime})
	require.NoError(t, err)
	buf, err := wire.Marshal(subAddr, provAddr, &wire.EventMessage{
		EventID:     0,
		PayloadType: wire.CodeQueryTime,
		Sequence:    seq,
		Payload:     body,
	})
	require.NoError(t, err)
	pkt, err := wire.Unmarshal(buf)
	require.NoError(t, err)
	return pkt
}

func TestSequenceGapDetection(t *testing.T) {
	network := transport.NewNetwork()
	sub := newNode(t, network, subAddr)
	defer sub.Close()
	notes := collect(sub)

	require.NoError(t, sub.Manager().AddEvent(&event.Event{
		ID:          0,
		Kind:        types.EventKindEveryChange,
		PayloadType: wire.CodeQueryTime,
		Provider:    provAddr,
	}))

	before := testutil.ToFloat64(metrics.SequenceGaps)
	ctx := context.Background()
	for _, seq := range []uint8{254, 255, 0, 3, 3} {
		sub.handle(ctx, notification(t, seq))
	}

	var got []Notification
	for range 5 {
		got = append(got, receive(t, notes))
	}
	assert.False(t, got[0].Gap)
	assert.False(t, got[1].Gap)
	assert.False(t, got[2].Gap, "wrap from 255 to 0 is not a gap")
	assert.True(t, got[3].Gap)
	assert.Equal(t, 2, got[3].Missed)
	assert.False(t, got[4].Gap, "a repeated sequence is not a gap")
	assert.Equal(t, before+2, testutil.ToFloat64(metrics.SequenceGaps))
}

func TestNotificationForUnknownSubscriptionIsDropped(t *testing.T) {
	network := transport.NewNetwork()
	sub := newNode(t, network, subAddr)
	defer sub.Close()
	notes := collect(sub)

	sub.handle(context.Background(), notification(t, 0))
	assert.Empty(t, notes)
}

func TestHeartbeatQueryAnswered(t *testing.T) {
	network := transport.NewNetwork()
	n := newNode(t, network, subAddr)
	raw := network.Attach(rawAddr)
	defer raw.Close()
	run(t, n)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = raw.Serve(ctx, func(context.Context, wire.Packet) {}) }()

	buf, err := wire.Marshal(subAddr, rawAddr, &wire.QueryHeartbeatPulse{})
	require.NoError(t, err)
	header := wire.Header{Code: wire.CodeQueryHeartbeatPulse, Destination: subAddr, Source: rawAddr}

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	pkt, err := raw.SendAndWait(waitCtx, buf, transport.ReplyTo(header, wire.CodeReportHeartbeatPulse))
	require.NoError(t, err)
	assert.Equal(t, wire.CodeReportHeartbeatPulse, pkt.Code)

	peers := n.Peers()
	require.Len(t, peers, 1)
	assert.Equal(t, rawAddr, peers[0].Address)
}

func TestHeartbeatsSentToPeers(t *testing.T) {
	network := transport.NewNetwork()
	raw := network.Attach(rawAddr)
	defer raw.Close()
	n := newNode(t, network, subAddr, func(c *Config) { c.Peers = []types.Address{rawAddr} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	beats := make(chan wire.Packet, 16)
	go func() {
		_ = raw.Serve(ctx, func(_ context.Context, pkt wire.Packet) {
			select {
			case beats <- pkt:
			default:
			}
		})
	}()
	run(t, n)

	for range 2 {
		select {
		case pkt := <-beats:
			assert.Equal(t, wire.CodeReportHeartbeatPulse, pkt.Code)
			assert.Equal(t, subAddr, pkt.Source)
		case <-time.After(2 * time.Second):
			t.Fatal("no heartbeat")
		}
	}
}

func TestHeartbeatQueriesSubscribedProviders(t *testing.T) {
	network := transport.NewNetwork()
	raw := network.Attach(rawAddr)
	defer raw.Close()
	n := newNode(t, network, subAddr)
	require.NoError(t, n.Manager().AddEvent(&event.Event{
		ID:          0,
		Kind:        types.EventKindEveryChange,
		PayloadType: wire.CodeQueryTime,
		Provider:    rawAddr,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queries := make(chan wire.Packet, 16)
	go func() {
		_ = raw.Serve(ctx, func(_ context.Context, pkt wire.Packet) {
			select {
			case queries <- pkt:
			default:
			}
		})
	}()
	run(t, n)

	select {
	case pkt := <-queries:
		assert.Equal(t, wire.CodeQueryHeartbeatPulse, pkt.Code)
		assert.Equal(t, subAddr, pkt.Source)
	case <-time.After(2 * time.Second):
		t.Fatal("provider was not asked for a pulse")
	}
}

func TestReceiveSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())

	network := transport.NewNetwork()
	raw := network.Attach(rawAddr)
	defer raw.Close()
	n := newNode(t, network, subAddr, func(c *Config) { c.TracerProvider = tp })
	defer n.Close()

	buf, err := wire.Marshal(subAddr, rawAddr, &wire.QueryHeartbeatPulse{})
	require.NoError(t, err)
	pkt, err := wire.Unmarshal(buf)
	require.NoError(t, err)
	n.handle(context.Background(), pkt)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "herald.receive", spans[0].Name)

	attrs := make(map[string]string)
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, rawAddr.String(), attrs["herald.source"])
	assert.Equal(t, wire.CodeReportHeartbeatPulse.String(), attrs["herald.reply"])
}

func TestShutdownKeepsJournal(t *testing.T) {
	network := transport.NewNetwork()
	store := newStore(t)
	prov := newProvider(t, network)
	sub := newNode(t, network, subAddr, func(c *Config) { c.Store = store })
	run(t, prov)
	run(t, sub)

	e, err := sub.Subscribe(context.Background(), provAddr, everyChange())
	require.NoError(t, err)

	require.NoError(t, sub.Shutdown(context.Background()))
	assert.Empty(t, sub.Manager().SubscribedEvents())
	assert.Eventually(t, func() bool { return len(prov.Manager().ProducedEvents()) == 0 },
		time.Second, 10*time.Millisecond)

	// Give the notice watcher a chance to run before checking
	time.Sleep(50 * time.Millisecond)
	_, err = store.GetSubscription(e.Key().String())
	assert.NoError(t, err)
}
