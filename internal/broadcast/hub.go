package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event kinds sent to viewers.
const (
	KindSignIn  = "signin"
	KindSignOut = "signout"
	KindSweep   = "sweep"
	// KindResync tells a subscriber that events were lost and it must reload.
	KindResync = "resync"
)

// Event is one change notification. Versions increase by one per published
// change, so a subscriber that sees a jump knows it missed something.
type Event struct {
	Version uint64          `json:"version"`
	Kind    string          `json:"kind"`
	At      time.Time       `json:"at"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Publisher assigns a version to a change and fans it out.
type Publisher interface {
	Publish(ctx context.Context, kind string, data any) (Event, error)
}

// Subscriber streams events newer than the given version.
type Subscriber interface {
	Subscribe(ctx context.Context, since uint64) <-chan Event
	Version() uint64
}

const subscriberBuffer = 32

type subscriber struct {
	ch      chan Event
	dropped bool
}

// Hub is the in-process fan-out point. It keeps a bounded backlog so a
// reconnecting viewer can be replayed from its last seen version.
type Hub struct {
	mu      sync.Mutex
	version uint64
	backlog []Event
	limit   int
	subs    map[*subscriber]struct{}
	logger  *zap.Logger
}

// NewHub creates a hub remembering up to backlog events.
func NewHub(backlog int, logger *zap.Logger) *Hub {
	if backlog <= 0 {
		backlog = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		limit:  backlog,
		subs:   make(map[*subscriber]struct{}),
		logger: logger,
	}
}

// Publish versions the change locally and delivers it to every subscriber.
func (h *Hub) Publish(_ context.Context, kind string, data any) (Event, error) {
	raw, err := encode(data)
	if err != nil {
		return Event{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.version++
	evt := Event{Version: h.version, Kind: kind, At: time.Now().UTC(), Data: raw}
	h.deliverLocked(evt)
	return evt, nil
}

// Deliver fans out an event that was versioned elsewhere (the Redis relay).
func (h *Hub) Deliver(evt Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if evt.Version > h.version {
		h.version = evt.Version
	}
	h.deliverLocked(evt)
}

// Advance moves the version forward without emitting an event.
func (h *Hub) Advance(v uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if v > h.version {
		h.version = v
	}
}

func (h *Hub) deliverLocked(evt Event) {
	h.backlog = append(h.backlog, evt)
	if len(h.backlog) > h.limit {
		h.backlog = h.backlog[len(h.backlog)-h.limit:]
	}
	for sub := range h.subs {
		select {
		case sub.ch <- evt:
		default:
			// slow viewer; it will see the version gap and resync
			if !sub.dropped {
				h.logger.Warn("dropping event for slow subscriber", zap.Uint64("version", evt.Version))
			}
			sub.dropped = true
		}
	}
}

// Version returns the latest version seen by the hub.
func (h *Hub) Version() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.version
}

// Subscribe returns a channel of events with Version > since. Backlogged
// events are replayed first; if the backlog no longer reaches back to since,
// a single resync event is sent instead. The channel closes when ctx ends.
func (h *Hub) Subscribe(ctx context.Context, since uint64) <-chan Event {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer+h.limit)}

	h.mu.Lock()
	switch {
	case since > h.version:
		// the viewer is ahead of us, typically after a server restart
		sub.ch <- Event{Version: h.version, Kind: KindResync, At: time.Now().UTC()}
	case since < h.version:
		if len(h.backlog) == 0 || h.backlog[0].Version > since+1 {
			sub.ch <- Event{Version: h.version, Kind: KindResync, At: time.Now().UTC()}
		} else {
			for _, evt := range h.backlog {
				if evt.Version > since {
					sub.ch <- evt
				}
			}
		}
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, sub)
		close(sub.ch)
		h.mu.Unlock()
	}()
	return sub.ch
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func encode(data any) (json.RawMessage, error) {
	if data == nil {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return raw, nil
}
