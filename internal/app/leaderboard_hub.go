package app

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"drill-service/internal/domain"
)

const hubBufferSize = 8

// LeaderboardHub streams per-drill leaderboards to live subscribers. It is a
// Publisher: every finished attempt triggers a recompute and broadcast.
type LeaderboardHub struct {
	boards *LeaderboardService
	limit  int
	log    *zap.Logger

	mu     sync.Mutex
	topics map[string]map[chan domain.DrillLeaderboard]struct{}
}

func NewLeaderboardHub(boards *LeaderboardService, limit int, log *zap.Logger) *LeaderboardHub {
	if log == nil {
		log = zap.NewNop()
	}
	return &LeaderboardHub{
		boards: boards,
		limit:  domain.NormalizeLimit(limit, domain.DefaultLeaderboardLimit),
		log:    log,
		topics: make(map[string]map[chan domain.DrillLeaderboard]struct{}),
	}
}

// Subscribe returns a channel that receives leaderboard updates for a drill,
// starting with the current snapshot. The caller must invoke cancel.
func (h *LeaderboardHub) Subscribe(ctx context.Context, drillID string) (<-chan domain.DrillLeaderboard, func(), error) {
	initial, err := h.boards.TopByDrillScore(ctx, drillID, h.limit)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan domain.DrillLeaderboard, hubBufferSize)
	ch <- initial

	h.mu.Lock()
	subs, ok := h.topics[drillID]
	if !ok {
		subs = make(map[chan domain.DrillLeaderboard]struct{})
		h.topics[drillID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.topics[drillID]
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(h.topics, drillID)
		}
	}
	return ch, cancel, nil
}

// Publish recomputes and broadcasts the drill leaderboard when an attempt finishes.
func (h *LeaderboardHub) Publish(ctx context.Context, event domain.Event) error {
	if !event.Finished() || !h.hasSubscribers(event.DrillID) {
		return nil
	}
	lb, err := h.boards.TopByDrillScore(ctx, event.DrillID, h.limit)
	if err != nil {
		return err
	}
	h.broadcast(lb)
	return nil
}

// Subscribers reports how many live subscribers a drill has.
func (h *LeaderboardHub) Subscribers(drillID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[drillID])
}

func (h *LeaderboardHub) hasSubscribers(drillID string) bool {
	return h.Subscribers(drillID) > 0
}

func (h *LeaderboardHub) broadcast(lb domain.DrillLeaderboard) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.topics[lb.DrillID] {
		select {
		case ch <- lb:
		default:
			// Slow subscriber: drop the stale snapshot so the newest one fits.
			select {
			case <-ch:
			default:
			}
			ch <- lb
			h.log.Debug("dropped stale leaderboard", zap.String("drill_id", lb.DrillID))
		}
	}
}
