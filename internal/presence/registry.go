package presence

// Registry maps room -> member connections and room -> distinct viewer identities.
// It performs no locking; the Coordinator loop is its only caller.
type Registry struct {
	// room -> connID -> identity
	members map[string]map[string]string
	// room -> identity set
	identities map[string]map[string]struct{}
}

// RemoveResult describes what a Remove call changed.
type RemoveResult struct {
	Removed        bool // the connection was a member of the room
	IdentityGone   bool // the identity set shrank
	RoomDeleted    bool // the member set became empty and the room was dropped
	RemainingCount int  // viewer count after the removal
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		members:    make(map[string]map[string]string),
		identities: make(map[string]map[string]struct{}),
	}
}

// Add inserts connID (with its identity) into room, creating the room if needed.
// It reports whether the room's identity set grew. Repeated identical calls are no-ops.
func (r *Registry) Add(room, connID, identity string) bool {
	m, ok := r.members[room]
	if !ok {
		m = make(map[string]string)
		r.members[room] = m
		r.identities[room] = make(map[string]struct{})
	}
	m[connID] = identity

	ids := r.identities[room]
	if _, seen := ids[identity]; seen {
		return false
	}
	ids[identity] = struct{}{}
	return true
}

// Remove drops connID from room. The connection's identity leaves the identity set only
// when no remaining member of the room shares it. An empty room is deleted from both maps.
func (r *Registry) Remove(room, connID string) RemoveResult {
	m, ok := r.members[room]
	if !ok {
		return RemoveResult{}
	}
	identity, ok := m[connID]
	if !ok {
		return RemoveResult{RemainingCount: len(r.identities[room])}
	}
	delete(m, connID)
	res := RemoveResult{Removed: true}

	if len(m) == 0 {
		r.deleteRoom(room)
		res.IdentityGone = true
		res.RoomDeleted = true
		return res
	}

	stillActive := false
	for _, other := range m {
		if other == identity {
			stillActive = true
			break
		}
	}
	if !stillActive {
		delete(r.identities[room], identity)
		res.IdentityGone = true
	}
	res.RemainingCount = len(r.identities[room])
	return res
}

// ViewerCount returns the number of distinct identities in room, 0 when the room is absent.
func (r *Registry) ViewerCount(room string) int {
	ids, ok := r.identities[room]
	if !ok {
		return 0
	}
	return len(ids)
}

// Exists reports whether room is present in the registry.
func (r *Registry) Exists(room string) bool {
	_, ok := r.members[room]
	return ok
}

// MemberCount returns the number of connections in room.
func (r *Registry) MemberCount(room string) int {
	return len(r.members[room])
}

// Sweep deletes every room whose member set is empty and returns how many were removed.
func (r *Registry) Sweep() int {
	n := 0
	for room, m := range r.members {
		if len(m) == 0 {
			r.deleteRoom(room)
			n++
		}
	}
	// identity sets without a member map are orphans.
	for room := range r.identities {
		if _, ok := r.members[room]; !ok {
			delete(r.identities, room)
			n++
		}
	}
	return n
}

// Snapshot returns room -> viewer count for every room.
func (r *Registry) Snapshot() map[string]int {
	out := make(map[string]int, len(r.members))
	for room := range r.members {
		out[room] = len(r.identities[room])
	}
	return out
}

func (r *Registry) deleteRoom(room string) {
	delete(r.members, room)
	delete(r.identities, room)
}
