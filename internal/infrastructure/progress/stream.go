package progress

import (
	"context"
	"time"

	"github.com/mohammadpnp/product-import/internal/domain/catalog"
)

const DefaultPollInterval = 500 * time.Millisecond

// emitter forwards snapshots that differ from the previous one and closes the
// stream after a terminal snapshot.
type emitter struct {
	out  chan catalog.ProgressEvent
	last *catalog.ProgressSnapshot
}

func newEmitter() *emitter {
	return &emitter{out: make(chan catalog.ProgressEvent)}
}

// push reports whether the stream should keep going.
func (e *emitter) push(ctx context.Context, snap catalog.ProgressSnapshot) bool {
	if e.last == nil || *e.last != snap {
		if !e.send(ctx, catalog.ProgressEvent{Snapshot: snap}) {
			return false
		}
		e.last = &snap
	}
	if snap.Terminal() {
		e.send(ctx, catalog.ProgressEvent{Snapshot: snap, Done: true})
		return false
	}
	return true
}

func (e *emitter) send(ctx context.Context, ev catalog.ProgressEvent) bool {
	select {
	case e.out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Poller tails a progress reader at a fixed interval.
type Poller struct {
	reader   catalog.ProgressReader
	interval time.Duration
}

func NewPoller(reader catalog.ProgressReader, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{reader: reader, interval: interval}
}

func (p *Poller) Stream(ctx context.Context, jobID string) (<-chan catalog.ProgressEvent, error) {
	em := newEmitter()

	go func() {
		defer close(em.out)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			if !em.push(ctx, p.reader.Read(ctx, jobID)) {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return em.out, nil
}
