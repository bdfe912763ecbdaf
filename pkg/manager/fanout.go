package manager

import (
	"context"
	"fmt"

	"github.com/cuemby/herald/pkg/event"
	"github.com/cuemby/herald/pkg/events"
	"github.com/cuemby/herald/pkg/metrics"
	"github.com/cuemby/herald/pkg/types"
	"github.com/cuemby/herald/pkg/wire"
)

// FanoutResult reports the delivery of one firing
type FanoutResult struct {
	Key      event.Key
	Sequence uint8
	Sent     []types.Address
	Failed   map[types.Address]error
}

// GenerateEvent fires the produced event stored under key with payload
func (m *EventManager) GenerateEvent(ctx context.Context, key event.Key, payload wire.Message) (FanoutResult, error) {
	tx := m.Lock()
	defer tx.Unlock()
	return tx.GenerateEvent(ctx, key, payload)
}

// GenerateEvent encodes the notification once and sends it to every
// subscriber, rewriting only the destination between sends. A send failure
// does not stop the remaining sends. The sequence number advances once per
// firing. A one-time event is deleted after it fires.
func (tx *Tx) GenerateEvent(ctx context.Context, key event.Key, payload wire.Message) (FanoutResult, error) {
	res := FanoutResult{Key: key}
	m := tx.m
	if m.transport == nil {
		return res, ErrNoTransport
	}

	e, ok := m.produced[key]
	if !ok {
		return res, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	subscribers := e.Subscribers.Sorted()
	if len(subscribers) == 0 {
		return res, fmt.Errorf("%w: %s has no subscribers", ErrNotFound, key)
	}

	body, err := wire.EncodeEmbedded(payload)
	if err != nil {
		return res, fmt.Errorf("failed to encode payload of %s: %w", key, err)
	}
	env := &wire.EventMessage{
		EventID:     e.ID,
		PayloadType: e.PayloadType,
		Sequence:    e.Sequence,
		Payload:     body,
	}
	buf, err := wire.Marshal(subscribers[0], m.owner, env)
	if err != nil {
		return res, fmt.Errorf("failed to encode notification of %s: %w", key, err)
	}

	timer := metrics.NewTimer()
	for i, sub := range subscribers {
		if i > 0 {
			if err := wire.PatchDestination(buf, sub); err != nil {
				return res, err
			}
		}
		if err := m.transport.Send(ctx, buf); err != nil {
			if res.Failed == nil {
				res.Failed = make(map[types.Address]error)
			}
			res.Failed[sub] = err
			metrics.NotificationFailures.Inc()
			m.logger.Warn().Err(err).Stringer("event", key).Stringer("subscriber", sub).Msg("Notification not delivered")
			continue
		}
		res.Sent = append(res.Sent, sub)
		metrics.NotificationsSent.Inc()
	}
	timer.ObserveDuration(metrics.FanoutDuration)

	res.Sequence = e.Sequence
	e.Sequence++
	e.LastFired = m.now()
	m.publish(events.NoticeEventFired, "event fired", key,
		"sequence", fmt.Sprintf("%d", res.Sequence),
		"sent", fmt.Sprintf("%d", len(res.Sent)))

	if e.Kind == types.EventKindOneTime {
		_, _ = tx.DeleteEvent(key)
	}

	if len(res.Sent) == 0 {
		return res, fmt.Errorf("%w: %s", ErrAllSendsFailed, key)
	}
	return res, nil
}
