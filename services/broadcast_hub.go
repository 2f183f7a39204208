package services

import (
	"context"
	"log"
	"sync"

	"evg-scoreboard/models"

	"github.com/google/uuid"
)

// SnapshotSource provides the current ranking to a viewer that connects before any publish.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*models.LeaderboardSnapshot, error)
}

// Subscription is one registered viewer.
type Subscription struct {
	ID       string
	ViewerID string
	ch       chan *models.LeaderboardSnapshot
}

// Updates yields the registration snapshot first, then every later publish.
// The channel is closed on Unregister.
func (s *Subscription) Updates() <-chan *models.LeaderboardSnapshot {
	return s.ch
}

// BroadcastHub fans snapshots out to viewers. Publish never blocks: each viewer has a
// small buffer, and a full buffer is replaced by the newest snapshot since every
// snapshot is a complete state.
type BroadcastHub struct {
	mu        sync.Mutex
	source    SnapshotSource
	buffer    int
	subs      map[string]*Subscription
	latest    *models.LeaderboardSnapshot
	coalesced uint64
}

func NewBroadcastHub(buffer int) *BroadcastHub {
	if buffer < 1 {
		buffer = 1
	}
	return &BroadcastHub{
		buffer: buffer,
		subs:   make(map[string]*Subscription),
	}
}

func (h *BroadcastHub) SetSource(src SnapshotSource) {
	h.mu.Lock()
	h.source = src
	h.mu.Unlock()
}

// Register adds a viewer and queues the current snapshot for it before releasing the hub,
// so no publish can slip between the initial state and the live stream.
// The source is asked on every registration: it may have rolled over to a new day
// since the last publish. A newer published snapshot still wins.
func (h *BroadcastHub) Register(ctx context.Context, viewerID string) (*Subscription, error) {
	h.mu.Lock()
	src := h.source
	h.mu.Unlock()

	var initial *models.LeaderboardSnapshot
	if src != nil {
		snap, err := src.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		initial = snap
	}

	sub := &Subscription{
		ID:       uuid.NewString(),
		ViewerID: viewerID,
		ch:       make(chan *models.LeaderboardSnapshot, h.buffer),
	}

	h.mu.Lock()
	if h.latest != nil && (initial == nil || h.latest.Version >= initial.Version) {
		initial = h.latest
	} else if initial != nil {
		h.latest = initial
	}
	h.subs[sub.ID] = sub
	if initial != nil {
		h.deliver(sub, initial)
	}
	count := len(h.subs)
	h.mu.Unlock()

	log.Printf("📡 [HUB] viewer %s registered (subscription %s, %d connected)", viewerID, sub.ID, count)
	return sub, nil
}

// Unregister removes a viewer and closes its channel. Safe to call twice.
func (h *BroadcastHub) Unregister(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	if _, ok := h.subs[sub.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.subs, sub.ID)
	close(sub.ch)
	count := len(h.subs)
	h.mu.Unlock()

	log.Printf("📴 [HUB] viewer %s unregistered (%d connected)", sub.ViewerID, count)
}

// Publish pushes snap to every viewer. Snapshots older than the latest one are ignored.
func (h *BroadcastHub) Publish(snap *models.LeaderboardSnapshot) {
	if snap == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest != nil && snap.Version <= h.latest.Version {
		return
	}
	h.latest = snap
	for _, sub := range h.subs {
		h.deliver(sub, snap)
	}
}

// deliver enqueues snap, evicting the oldest queued snapshot when the buffer is full.
// Called with h.mu held; the viewer may drain concurrently, which only shortens the loop.
func (h *BroadcastHub) deliver(sub *Subscription, snap *models.LeaderboardSnapshot) {
	for {
		select {
		case sub.ch <- snap:
			return
		default:
		}
		select {
		case <-sub.ch:
			h.coalesced++
		default:
		}
	}
}

// Latest returns the newest published snapshot, or nil.
func (h *BroadcastHub) Latest() *models.LeaderboardSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

func (h *BroadcastHub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Coalesced counts snapshots replaced before a slow viewer read them.
func (h *BroadcastHub) Coalesced() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.coalesced
}

// Close unregisters every viewer.
func (h *BroadcastHub) Close() {
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()
	for _, sub := range subs {
		h.Unregister(sub)
	}
}
