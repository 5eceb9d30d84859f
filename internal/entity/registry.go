package entity

// Registry owns the compiled entity table.
//
// It is read-only after construction: entities are a static property of the
// node's configuration, not a runtime-configurable set. Because nothing
// mutates it, the Registry is shared by every task without locking.
type Registry struct {
	byID    map[ID]*Definition
	byTopic map[string]ID
	byPin   map[int]ID

	// order preserves document order for deterministic iteration.
	order []ID
}

// newRegistry builds the lookup indexes. Compile has already guaranteed
// uniqueness of identifiers, topics and pins.
func newRegistry(defs []*Definition) *Registry {
	r := &Registry{
		byID:    make(map[ID]*Definition, len(defs)),
		byTopic: make(map[string]ID),
		byPin:   make(map[int]ID),
		order:   make([]ID, 0, len(defs)),
	}
	for _, def := range defs {
		r.byID[def.ID] = def
		r.order = append(r.order, def.ID)

		r.byTopic[def.StateTopic] = def.ID
		if def.CommandTopic != "" {
			r.byTopic[def.CommandTopic] = def.ID
		}
		if def.Kind == KindBinarySensor {
			r.byPin[def.Pin] = def.ID
		}
	}
	return r
}

// LookupByTopic resolves an MQTT topic (state or command) to the owning
// entity. Used for O(1) dispatch of inbound messages.
func (r *Registry) LookupByTopic(topic string) (ID, bool) {
	id, ok := r.byTopic[topic]
	return id, ok
}

// LookupByPin resolves a GPIO pin to the entity bound to it.
func (r *Registry) LookupByPin(pin int) (ID, bool) {
	id, ok := r.byPin[pin]
	return id, ok
}

// Get returns the definition for an identifier.
// The returned definition is shared and must not be modified.
func (r *Registry) Get(id ID) (*Definition, error) {
	def, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return def, nil
}

// OfKind returns all entities of the given kind in document order.
func (r *Registry) OfKind(kind Kind) []*Definition {
	var out []*Definition
	for _, id := range r.order {
		if def := r.byID[id]; def.Kind == kind {
			out = append(out, def)
		}
	}
	return out
}

// All returns every entity in document order.
func (r *Registry) All() []*Definition {
	out := make([]*Definition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Len returns the number of compiled entities.
func (r *Registry) Len() int {
	return len(r.order)
}
