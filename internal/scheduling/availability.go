package scheduling

import (
	"context"
	"sort"

	"github.com/zaqqye/simlab_backend/internal/models"
)

// AvailabilityChecker decides whether rooms can host a group over a window.
// It never mutates state and reports infeasibility as false, not as an error.
type AvailabilityChecker struct {
	rooms    RoomCatalog
	bookings BookingStore
}

func NewAvailabilityChecker(rooms RoomCatalog, bookings BookingStore) *AvailabilityChecker {
	return &AvailabilityChecker{rooms: rooms, bookings: bookings}
}

// within returns a checker reading bookings through bs, typically a Tx.
func (a *AvailabilityChecker) within(bs BookingStore) *AvailabilityChecker {
	return &AvailabilityChecker{rooms: a.rooms, bookings: bs}
}

// IsAvailable reports whether every room is free for the whole window.
func (a *AvailabilityChecker) IsAvailable(ctx context.Context, roomIDs []string, w Window) (bool, error) {
	return a.IsAvailableExcluding(ctx, roomIDs, w, "")
}

// IsAvailableExcluding is IsAvailable ignoring the bookings owned by
// simulationID, so a simulation never conflicts with itself.
func (a *AvailabilityChecker) IsAvailableExcluding(ctx context.Context, roomIDs []string, w Window, simulationID string) (bool, error) {
	if !w.Valid() || len(roomIDs) == 0 {
		return false, nil
	}
	for _, id := range uniqueIDs(roomIDs) {
		existing, err := a.bookings.BookingsForRoom(ctx, id)
		if err != nil {
			return false, err
		}
		for _, b := range existing {
			if simulationID != "" && b.SimulationIDRef == simulationID {
				continue
			}
			if w.Overlaps(b.StartsAt, b.EndsAt) {
				return false, nil
			}
		}
	}
	return true, nil
}

// HasCapacity reports whether the smallest requested room seats requiredSeats.
func (a *AvailabilityChecker) HasCapacity(ctx context.Context, roomIDs []string, requiredSeats int) (bool, error) {
	if len(roomIDs) == 0 {
		return false, nil
	}
	rooms, err := a.rooms.FindRooms(ctx, uniqueIDs(roomIDs))
	if err != nil {
		return false, err
	}
	return minCapacity(rooms) >= requiredSeats, nil
}

// FreeRooms lists active rooms that seat requiredSeats and are free for w,
// smallest first.
func (a *AvailabilityChecker) FreeRooms(ctx context.Context, w Window, requiredSeats int) ([]models.Room, error) {
	if !w.Valid() {
		return nil, nil
	}
	all, err := a.rooms.AllRooms(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Room
	for _, r := range all {
		if !r.Active || r.Capacity < requiredSeats {
			continue
		}
		ok, err := a.IsAvailable(ctx, []string{r.ID}, w)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Capacity != out[j].Capacity {
			return out[i].Capacity < out[j].Capacity
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func minCapacity(rooms []models.Room) int {
	if len(rooms) == 0 {
		return 0
	}
	min := rooms[0].Capacity
	for _, r := range rooms[1:] {
		if r.Capacity < min {
			min = r.Capacity
		}
	}
	return min
}

// uniqueIDs drops blanks and duplicates, keeping first-seen order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
