package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zaqqye/simlab_backend/internal/apperr"
)

// RoomReserver grants exclusive use of rooms for the read-check-write span of
// a booking change.
type RoomReserver interface {
	// TryReserve acquires every room or none. It fails with
	// apperr.ErrRoomNotAvailable when a room stays busy past the reserver's
	// wait bound or ctx ends first.
	TryReserve(ctx context.Context, roomIDs []string) error
	Release(roomIDs []string)
}

// LocalReserver keeps one token per room in process memory.
type LocalReserver struct {
	mu      sync.Mutex
	tokens  map[string]chan struct{}
	timeout time.Duration
}

// NewLocalReserver returns a reserver waiting at most timeout for a busy
// room. A zero timeout fails immediately on contention.
func NewLocalReserver(timeout time.Duration) *LocalReserver {
	return &LocalReserver{tokens: map[string]chan struct{}{}, timeout: timeout}
}

func (r *LocalReserver) token(id string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok {
		t = make(chan struct{}, 1)
		r.tokens[id] = t
	}
	return t
}

func (r *LocalReserver) TryReserve(ctx context.Context, roomIDs []string) error {
	ids := sortedIDs(roomIDs)
	var timer <-chan time.Time
	if r.timeout > 0 {
		t := time.NewTimer(r.timeout)
		defer t.Stop()
		timer = t.C
	}
	// Acquire in sorted order so two overlapping multi-room requests cannot
	// deadlock each other.
	for i, id := range ids {
		tok := r.token(id)
		if r.timeout <= 0 {
			select {
			case tok <- struct{}{}:
				continue
			default:
				r.Release(ids[:i])
				return apperr.ErrRoomNotAvailable.WithMeta("room_id", id)
			}
		}
		select {
		case tok <- struct{}{}:
		case <-timer:
			r.Release(ids[:i])
			return apperr.ErrRoomNotAvailable.WithMeta("room_id", id)
		case <-ctx.Done():
			r.Release(ids[:i])
			return apperr.ErrRoomNotAvailable.WithMeta("room_id", id)
		}
	}
	return nil
}

func (r *LocalReserver) Release(roomIDs []string) {
	for _, id := range sortedIDs(roomIDs) {
		select {
		case <-r.token(id):
		default:
		}
	}
}

func sortedIDs(ids []string) []string {
	out := uniqueIDs(ids)
	sort.Strings(out)
	return out
}
