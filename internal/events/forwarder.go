package events

import (
	"context"
	"log/slog"
	"time"

	"complexityofneed.org/internal/obs"
)

// Forwarder drains a bus subscription into a Publisher. Publish failures are
// logged and counted; they never reach the request that caused the event.
type Forwarder struct {
	bus     *Bus
	pub     Publisher
	log     *slog.Logger
	timeout time.Duration
}

// NewForwarder wires bus to pub. timeout bounds each publish.
func NewForwarder(bus *Bus, pub Publisher, log *slog.Logger, timeout time.Duration) *Forwarder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Forwarder{bus: bus, pub: pub, log: log, timeout: timeout}
}

// Start subscribes immediately and forwards in the background until ctx ends.
// The returned channel is closed once the subscription is drained.
func (f *Forwarder) Start(ctx context.Context) <-chan struct{} {
	events := f.bus.Subscribe(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range events {
			f.forward(ctx, evt)
		}
	}()
	return done
}

func (f *Forwarder) forward(ctx context.Context, evt Event) {
	// Buffered events still go out during shutdown.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	defer cancel()
	if err := f.pub.Publish(pctx, evt); err != nil {
		obs.ObserveEventPublish("error")
		f.log.Warn("domain event publish failed",
			"offender_no", evt.SubjectID,
			"active", evt.Active,
			"error", err,
		)
		return
	}
	obs.ObserveEventPublish("ok")
}
