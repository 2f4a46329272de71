package event

// Store is the per-instance event store, keyed by ID. It never deletes
// entries: events are created externally, ingested once, annotated in
// place, and kept forever.
type Store struct {
	byID map[ID]*Event

	// forks holds additional events arriving at an already-occupied id
	// with a different UUID — the branches of an equivocation. The first
	// arrival stays canonical in byID so descendants' parent lookups keep
	// resolving.
	forks map[ID][]*Event
}

// NewStore returns an empty event store.
func NewStore() *Store {
	return &Store{
		byID:  map[ID]*Event{},
		forks: map[ID][]*Event{},
	}
}

// Get returns the stored event for id, if any.
func (s *Store) Get(id ID) (*Event, bool) {
	e, ok := s.byID[id]
	return e, ok
}

// Has reports whether id is already stored.
func (s *Store) Has(id ID) bool {
	_, ok := s.byID[id]
	return ok
}

// Put stores e, indexed by its own ID. Re-storing an already-present id is
// a no-op, so duplicate ingest stays idempotent.
func (s *Store) Put(e *Event) {
	if _, exists := s.byID[e.ID]; exists {
		return
	}
	s.byID[e.ID] = e
}

// PutFork records a conflicting event at an id already held by a
// different event. Exact duplicates (same UUID) are dropped.
func (s *Store) PutFork(e *Event) {
	for _, f := range s.forks[e.ID] {
		if f.UUID == e.UUID {
			return
		}
	}
	s.forks[e.ID] = append(s.forks[e.ID], e)
}

// ForksOf returns the non-canonical branches recorded for id.
func (s *Store) ForksOf(id ID) []*Event {
	return s.forks[id]
}

// Len returns the number of distinct event ids stored.
func (s *Store) Len() int {
	return len(s.byID)
}

// All returns every stored event. Order is unspecified.
func (s *Store) All() []*Event {
	out := make([]*Event, 0, len(s.byID))
	for _, e := range s.byID {
		out = append(out, e)
	}
	return out
}
