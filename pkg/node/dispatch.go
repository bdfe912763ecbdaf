package node

import (
	"context"
	"time"

	"github.com/cuemby/herald/pkg/event"
	"github.com/cuemby/herald/pkg/metrics"
	"github.com/cuemby/herald/pkg/types"
	"github.com/cuemby/herald/pkg/wire"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Notification is one delivery of a subscribed event
type Notification struct {
	Key      event.Key
	Sequence uint8
	Payload  wire.Message

	// Gap is set when sequence numbers were skipped since the previous
	// notification of the same event; Missed counts them
	Gap    bool
	Missed int

	ReceivedAt time.Time
}

// handle is the receive loop handler
func (n *Node) handle(ctx context.Context, pkt wire.Packet) {
	ctx, span := n.tracer.Start(ctx, "herald.receive",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("herald.code", pkt.Code.String()),
			attribute.String("herald.source", pkt.Source.String()),
			attribute.String("herald.destination", pkt.Destination.String()),
		),
	)
	defer span.End()

	n.reconciler.Touch(pkt.Source)

	msg, err := pkt.Decode(n.registry)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		n.logger.Debug().Err(err).Stringer("code", pkt.Code).Stringer("peer", pkt.Source).Msg("Dropping undecodable packet")
		return
	}

	var reply wire.Message
	switch m := msg.(type) {
	case *wire.CreateEvent:
		reply = n.manager.HandleCreateEvent(pkt.Source, m)
	case *wire.UpdateEvent:
		reply = n.manager.HandleUpdateEvent(pkt.Source, m)
	case *wire.CancelEvent:
		reply = n.manager.HandleCancelEvent(pkt.Source, m)
	case *wire.QueryEvents:
		reply = n.manager.HandleQueryEvents(m)
	case *wire.EventMessage:
		n.deliver(ctx, pkt.Source, m)
	case *wire.QueryHeartbeatPulse:
		reply = &wire.ReportHeartbeatPulse{}
	case *wire.ReportHeartbeatPulse:
	default:
		// Late confirms and rejects of requests that already timed out
		// end up here.
		n.logger.Debug().Stringer("code", pkt.Code).Stringer("peer", pkt.Source).Msg("Ignoring unsolicited message")
	}

	if reply != nil {
		span.SetAttributes(attribute.String("herald.reply", reply.Code().String()))
		if err := n.send(ctx, pkt.Source, reply); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
}

// send encodes msg from this node to dst
func (n *Node) send(ctx context.Context, dst types.Address, msg wire.Message) error {
	buf, err := wire.Marshal(dst, n.addr, msg)
	if err != nil {
		n.logger.Error().Err(err).Stringer("code", msg.Code()).Msg("Failed to encode message")
		return err
	}
	if err := n.conn.Send(ctx, buf); err != nil {
		n.logger.Warn().Err(err).Stringer("code", msg.Code()).Stringer("peer", dst).Msg("Failed to send message")
		return err
	}
	return nil
}

// deliver hands a notification of a subscribed event to the callbacks
func (n *Node) deliver(ctx context.Context, src types.Address, m *wire.EventMessage) {
	tx := n.manager.Lock()
	e, ok := tx.FindSubscribed(src, m.PayloadType, m.EventID)
	var key event.Key
	if ok {
		key = e.Key()
	}
	tx.Unlock()

	if !ok {
		n.logger.Debug().
			Stringer("peer", src).
			Stringer("payload_type", m.PayloadType).
			Uint8("event_id", m.EventID).
			Msg("Notification for unknown subscription")
		return
	}

	payload, err := wire.DecodeEmbedded(m.Payload, n.registry)
	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
		n.logger.Warn().Err(err).Stringer("event", key).Msg("Failed to decode notification payload")
		return
	}

	note := Notification{
		Key:        key,
		Sequence:   m.Sequence,
		Payload:    payload,
		ReceivedAt: time.Now(),
	}

	n.mu.Lock()
	if last, seen := n.lastSeq[key.String()]; seen && m.Sequence != last {
		// uint8 arithmetic follows the sequence wrap
		if missed := int(m.Sequence - last - 1); missed > 0 {
			note.Gap = true
			note.Missed = missed
		}
	}
	n.lastSeq[key.String()] = m.Sequence
	handlers := make([]func(Notification), len(n.handlers))
	copy(handlers, n.handlers)
	n.mu.Unlock()

	if note.Gap {
		metrics.SequenceGaps.Add(float64(note.Missed))
		n.logger.Debug().Stringer("event", key).Int("missed", note.Missed).Msg("Sequence gap")
	}

	for _, h := range handlers {
		h(note)
	}
}
