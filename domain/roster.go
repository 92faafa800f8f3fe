package domain

// Roster is the insertion-ordered mapping of connected participants.
// The host's roster is the source of truth; every client holds a replica
// that converges to it through idempotent mutations plus snapshot resets.
//
// Roster is NOT safe for concurrent use. It is owned by the session
// manager goroutine and must only be mutated there.
type Roster struct {
	entries map[ConnectionID]*Participant
	order   []ConnectionID
}

func NewRoster() *Roster {
	return &Roster{entries: make(map[ConnectionID]*Participant)}
}

// Add inserts a participant with ready=false. A second Add for the same
// ConnectionID is a no-op and preserves the first-assigned attributes,
// which guards against duplicate-join replays.
// Returns true if the roster changed.
func (r *Roster) Add(id ConnectionID, identity Identity, displayName string) bool {
	if _, ok := r.entries[id]; ok {
		return false
	}
	r.entries[id] = &Participant{
		ConnectionID: id,
		Identity:     identity,
		DisplayName:  displayName,
	}
	r.order = append(r.order, id)
	return true
}

// Remove deletes a participant. Removing an absent id is a no-op.
// Returns true if the roster changed.
func (r *Roster) Remove(id ConnectionID) bool {
	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// SetReady updates the readiness of a participant in place.
// Updating an absent id is a no-op. Returns true if the roster changed.
func (r *Roster) SetReady(id ConnectionID, ready bool) bool {
	p, ok := r.entries[id]
	if !ok {
		return false
	}
	if p.Ready == ready {
		return false
	}
	p.Ready = ready
	return true
}

// Get returns a copy of the participant for id.
func (r *Roster) Get(id ConnectionID) (Participant, bool) {
	p, ok := r.entries[id]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// FindByIdentity scans for a participant with the given identity.
// This is a deliberate O(n) walk: identity lookup is not a hot path,
// it happens at most once per removal.
func (r *Roster) FindByIdentity(identity Identity) (Participant, bool) {
	for _, id := range r.order {
		if p := r.entries[id]; p.Identity == identity {
			return *p, true
		}
	}
	return Participant{}, false
}

// AllReady reports whether the session may start: the roster is non-empty
// and every participant is ready. An empty roster is never ready.
func (r *Roster) AllReady() bool {
	if len(r.order) == 0 {
		return false
	}
	for _, id := range r.order {
		if !r.entries[id].Ready {
			return false
		}
	}
	return true
}

// Snapshot returns the participants in insertion order. The returned slice
// and its elements are copies; callers may retain them.
func (r *Roster) Snapshot() []Participant {
	out := make([]Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.entries[id])
	}
	return out
}

// Reset replaces the whole roster with the given participants, keeping
// their order. Used when a full snapshot from the host heals a replica.
func (r *Roster) Reset(participants []Participant) {
	r.entries = make(map[ConnectionID]*Participant, len(participants))
	r.order = r.order[:0]
	for _, p := range participants {
		p := p
		if _, ok := r.entries[p.ConnectionID]; ok {
			continue
		}
		r.entries[p.ConnectionID] = &p
		r.order = append(r.order, p.ConnectionID)
	}
}

// Clear empties the roster. Called on disconnection.
func (r *Roster) Clear() {
	r.entries = make(map[ConnectionID]*Participant)
	r.order = nil
}

func (r *Roster) Len() int {
	return len(r.order)
}
