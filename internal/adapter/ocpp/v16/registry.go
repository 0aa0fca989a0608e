package v16

import "sync"

// Registry owns the fixed session table. Slot 0 is reserved for the
// operator UI; slots 1..MaxChargers hold charger sessions. Sessions are
// allocated once and recycled, so counters persist across reconnects of
// the same slot.
type Registry struct {
	mu            sync.Mutex
	slots         []*Session
	numConnectors int
}

func NewRegistry(maxChargers, numConnectors int) *Registry {
	r := &Registry{
		slots:         make([]*Session, maxChargers+1),
		numConnectors: numConnectors,
	}
	for i := range r.slots {
		r.slots[i] = newSession(i, numConnectors)
	}
	return r
}

// Attach claims the first free charger slot for conn. Returns nil when
// every slot is occupied. The slot is claimed under the registry lock;
// protocol state resets under the session lock, which the operator primer
// also takes.
func (r *Registry) Attach(conn Conn) *Session {
	r.mu.Lock()
	var s *Session
	for i := 1; i < len(r.slots); i++ {
		if !r.slots[i].Occupied {
			s = r.slots[i]
			s.Occupied = true
			s.setConn(conn)
			break
		}
	}
	r.mu.Unlock()
	if s == nil {
		return nil
	}
	s.mu.Lock()
	s.resetState(r.numConnectors)
	s.mu.Unlock()
	return s
}

// AttachOperator rebinds conn to the operator slot. A connection that was
// first seated in a charger slot (the operator UI is indistinguishable
// from a charger until its handshake arrives) is released from it.
func (r *Registry) AttachOperator(conn Conn) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 1; i < len(r.slots); i++ {
		if r.slots[i].Occupied && r.slots[i].conn == conn {
			r.slots[i].Occupied = false
			r.slots[i].setConn(nil)
		}
	}
	op := r.slots[0]
	op.Occupied = true
	op.setConn(conn)
	return op
}

// Detach frees the slot bound to conn and returns the session as it was
// at disconnect, or nil if conn held no slot. The pending slot is released
// so a blocked outbound caller unwinds.
func (r *Registry) Detach(conn Conn) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slots {
		if s.Occupied && s.conn == conn {
			s.Occupied = false
			s.setConn(nil)
			s.Pending.Release()
			return s
		}
	}
	return nil
}

// ByConn resolves the session bound to conn.
func (r *Registry) ByConn(conn Conn) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slots {
		if s.Occupied && s.conn == conn {
			return s
		}
	}
	return nil
}

// ByID resolves a charger slot by number; nil for out-of-range or free
// slots and for the operator slot.
func (r *Registry) ByID(id int) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id < 1 || id >= len(r.slots) {
		return nil
	}
	if !r.slots[id].Occupied {
		return nil
	}
	return r.slots[id]
}

// Operator returns the operator session when one is connected.
func (r *Registry) Operator() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.slots[0].Occupied {
		return nil
	}
	return r.slots[0]
}

// Chargers returns the occupied charger sessions in slot order.
func (r *Registry) Chargers() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.slots)-1)
	for i := 1; i < len(r.slots); i++ {
		if r.slots[i].Occupied {
			out = append(out, r.slots[i])
		}
	}
	return out
}

// AllChargerSlots returns every charger session in slot order, occupied or
// not. The operator stream primer describes all slots, so free ones are
// included with whatever state their last occupant left behind.
func (r *Registry) AllChargerSlots() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, len(r.slots)-1)
	copy(out, r.slots[1:])
	return out
}

// Connected reports the number of occupied charger slots.
func (r *Registry) Connected() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for i := 1; i < len(r.slots); i++ {
		if r.slots[i].Occupied {
			n++
		}
	}
	return n
}
