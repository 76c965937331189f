package realtime

import "sync"

// Registry tracks which users are currently present in each session room.
// It is an injected, lifecycle-scoped structure with explicit create,
// lookup and evict operations; nothing else in the process holds live
// connection state.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[int64]struct{}
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[int64]struct{})}
}

func (r *Registry) Join(roomID string, userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		room = make(map[int64]struct{})
		r.rooms[roomID] = room
	}
	room[userID] = struct{}{}
}

func (r *Registry) Leave(roomID string, userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(room, userID)
	if len(room) == 0 {
		delete(r.rooms, roomID)
	}
}

func (r *Registry) Present(roomID string) []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room := r.rooms[roomID]
	users := make([]int64, 0, len(room))
	for userID := range room {
		users = append(users, userID)
	}
	return users
}

func (r *Registry) Count(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

func (r *Registry) Evict(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, roomID)
}
