package realtime

import "sync"

// Registry tracks live connections and their room memberships. Each Gateway
// owns one.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
	rooms map[string]map[*Conn]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Conn),
		rooms: make(map[string]map[*Conn]struct{}),
	}
}

func (r *Registry) Add(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID] = c
}

// Remove drops c from the registry and from every room it joined.
func (r *Registry) Remove(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, c.ID)
	c.mu.Lock()
	rooms := c.rooms
	c.rooms = make(map[string]struct{})
	c.mu.Unlock()
	for room := range rooms {
		r.leaveLocked(c, room)
	}
}

func (r *Registry) Join(c *Conn, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[*Conn]struct{})
	}
	r.rooms[room][c] = struct{}{}
	c.mu.Lock()
	c.rooms[room] = struct{}{}
	c.mu.Unlock()
}

func (r *Registry) Leave(c *Conn, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
	r.leaveLocked(c, room)
}

func (r *Registry) leaveLocked(c *Conn, room string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// Broadcast queues ev for every member of room except skip.
func (r *Registry) Broadcast(room string, ev Outbound, skip *Conn) int {
	r.mu.RLock()
	members := make([]*Conn, 0, len(r.rooms[room]))
	for c := range r.rooms[room] {
		if c != skip {
			members = append(members, c)
		}
	}
	r.mu.RUnlock()
	delivered := 0
	for _, c := range members {
		if c.Enqueue(ev) {
			delivered++
		}
	}
	return delivered
}

func (r *Registry) Members(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}
