// Package emitter publishes composed display states over MQTT and accepts
// control-plane commands.
package emitter

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync/atomic"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/time/rate"

	"github.com/e7canasta/sensorview/internal/render"
	"github.com/e7canasta/sensorview/internal/slot"
)

// Drop reasons reported to OnDrop.
const (
	DropRateLimited  = "rate_limited"
	DropOverwritten  = "overwritten"
	DropDisconnected = "disconnected"
	DropPublishError = "publish_error"
)

// Hooks observe emitter activity (metrics). Nil fields are skipped.
type Hooks struct {
	OnPublish func()
	OnDrop    func(reason string)
}

// Emitter is a render.Observer that forwards snapshots to MQTT.
//
// Observe runs on the render goroutine and never blocks: snapshots pass a
// rate limiter and land in a latest-value slot; Run drains the slot and
// does the network I/O.
type Emitter struct {
	transport Transport
	topic     string
	qos       byte
	limiter   *rate.Limiter
	pending   *slot.Slot[render.Snapshot]
	hooks     Hooks

	published atomic.Uint64
	dropped   atomic.Uint64
}

// New creates an emitter publishing at most maxRateHz messages per second.
func New(t Transport, topic string, qos byte, maxRateHz float64, hooks Hooks) *Emitter {
	return &Emitter{
		transport: t,
		topic:     topic,
		qos:       qos,
		limiter:   rate.NewLimiter(rate.Limit(maxRateHz), 1),
		pending:   slot.New[render.Snapshot]("telemetry"),
		hooks:     hooks,
	}
}

// Observe implements render.Observer.
func (e *Emitter) Observe(s render.Snapshot) {
	if !e.limiter.Allow() {
		e.drop(DropRateLimited)
		return
	}
	if e.pending.Publish(s) {
		e.drop(DropOverwritten)
	}
}

// Run publishes pending snapshots until ctx is done.
func (e *Emitter) Run(ctx context.Context) error {
	slog.Info("emitter: started", "topic", e.topic, "qos", e.qos)
	defer e.pending.Close()

	for {
		snap, err := e.pending.Wait(ctx)
		if err != nil {
			if stderrors.Is(err, slot.ErrClosed) || ctx.Err() != nil {
				slog.Info("emitter: stopped", "published", e.published.Load(), "dropped", e.dropped.Load())
				return nil
			}
			return err
		}

		if !e.transport.Connected() {
			e.drop(DropDisconnected)
			continue
		}

		payload, err := Encode(snap)
		if err != nil {
			slog.Error("emitter: failed to encode snapshot", "error", err)
			e.drop(DropPublishError)
			continue
		}
		if err := e.transport.Publish(e.topic, e.qos, payload); err != nil {
			slog.Warn("emitter: publish failed", "error", err)
			e.drop(DropPublishError)
			continue
		}

		e.published.Add(1)
		if e.hooks.OnPublish != nil {
			e.hooks.OnPublish()
		}
		slog.Debug("emitter: snapshot published", "cycle", snap.Cycle, "size", len(payload))
	}
}

// Published returns the number of snapshots published.
func (e *Emitter) Published() uint64 { return e.published.Load() }

// Dropped returns the number of snapshots not published.
func (e *Emitter) Dropped() uint64 { return e.dropped.Load() }

func (e *Emitter) drop(reason string) {
	e.dropped.Add(1)
	if e.hooks.OnDrop != nil {
		e.hooks.OnDrop(reason)
	}
}

// Encode serializes a snapshot as msgpack.
func Encode(s render.Snapshot) ([]byte, error) {
	return msgpack.Marshal(s)
}

// Decode parses a msgpack snapshot.
func Decode(b []byte) (render.Snapshot, error) {
	var s render.Snapshot
	err := msgpack.Unmarshal(b, &s)
	return s, err
}
