package octree

// EventKind identifies a structural change of the tree.
type EventKind int

const (
	EventInsertOctant EventKind = iota
	EventRemoveOctant
	EventInsertEntry
	EventRemoveEntry
	EventTransformChanged
)

func (k EventKind) String() string {
	switch k {
	case EventInsertOctant:
		return "insert_octant"
	case EventRemoveOctant:
		return "remove_octant"
	case EventInsertEntry:
		return "insert_entry"
	case EventRemoveEntry:
		return "remove_entry"
	case EventTransformChanged:
		return "transform_changed"
	default:
		return "unknown"
	}
}

// Event describes a change notified to the registered callbacks.
//
// Node is the node where the change happened. Level is the node the
// notification is delivered for: every callback is invoked once per level,
// from Node up to the root. ID is zero for octant events.
type Event struct {
	Kind  EventKind
	Node  *Node
	Level *Node
	ID    ID
}

// IsRootLevel reports whether the event is the notification delivered for the
// root. Each change produces exactly one root level notification.
func (e Event) IsRootLevel() bool {
	return e.Level.parent == nil
}

// EventHandler is a function called synchronously when the tree changes.
type EventHandler func(e Event)

type eventHandler struct {
	id     int
	handle EventHandler
}

// RegisterCallback registers h to be called on every change. The returned
// function unregisters it.
func (t *Tree) RegisterCallback(h EventHandler) (cancel func()) {
	t.nextHandlerID++
	id := t.nextHandlerID
	t.handlers = append(t.handlers, eventHandler{id: id, handle: h})

	return func() {
		for i, eh := range t.handlers {
			if eh.id == id {
				t.handlers = append(t.handlers[:i:i], t.handlers[i+1:]...)
				return
			}
		}
	}
}

func (t *Tree) emit(kind EventKind, origin *Node, id ID) {
	if len(t.handlers) == 0 {
		return
	}

	for level := origin; level != nil; level = level.parent {
		e := Event{
			Kind:  kind,
			Node:  origin,
			Level: level,
			ID:    id,
		}
		for _, h := range t.handlers {
			h.handle(e)
		}
	}
}
