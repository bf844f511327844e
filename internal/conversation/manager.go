package conversation

import (
	"sort"
	"sync"
)

// Manager owns one Tree per room for the lifetime of the process
type Manager struct {
	mu    sync.Mutex
	trees map[string]*Tree
}

// NewManager creates an empty manager
func NewManager() *Manager {
	return &Manager{trees: make(map[string]*Tree)}
}

// Tree returns the tree for roomID, creating it on first access
func (m *Manager) Tree(roomID string) *Tree {
	m.mu.Lock()
	defer m.mu.Unlock()

	tree, ok := m.trees[roomID]
	if !ok {
		tree = NewTree(roomID)
		m.trees[roomID] = tree
	}
	return tree
}

// Rooms lists rooms with a tree, sorted
func (m *Manager) Rooms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	rooms := make([]string, 0, len(m.trees))
	for id := range m.trees {
		rooms = append(rooms, id)
	}
	sort.Strings(rooms)
	return rooms
}

// RoomStats summarizes one tree
type RoomStats struct {
	RoomID   string `json:"room_id"`
	Messages int    `json:"messages"`
	Pending  int    `json:"pending"`
}

// Stats returns per-room counts for status reporting
func (m *Manager) Stats() []RoomStats {
	var stats []RoomStats
	for _, room := range m.Rooms() {
		tree := m.Tree(room)
		stats = append(stats, RoomStats{
			RoomID:   room,
			Messages: tree.Len(),
			Pending:  tree.PendingCount(),
		})
	}
	return stats
}
