package octree

import (
	"sync/atomic"
	"time"

	"github.com/aukilabs/sjon/spatial"
)

// ViewerID identifies a camera computing visibility against the tree.
type ViewerID uint8

const (
	// MaxViewers is the number of viewers a tree can track at the same time.
	MaxViewers = 32

	// VisibilitySlots is the size of the ring of visibility frames. A viewer
	// keeps reading its last complete pass while a new one is marked, until
	// the ring wraps over its frame.
	VisibilitySlots = 8
)

// VisibilityState holds, for each slot of the ring, the nonce of the frame
// that last marked the node and the bitset of the viewers that saw it during
// that frame. Both are packed in one word: nonce in the high 32 bits, viewers
// in the low 32 bits.
type VisibilityState struct {
	slots [VisibilitySlots]atomic.Uint64
}

type visibilitySnapshot [VisibilitySlots]uint64

func packVisibility(nonce uint32, viewers uint32) uint64 {
	return uint64(nonce)<<32 | uint64(viewers)
}

func unpackVisibility(w uint64) (nonce uint32, viewers uint32) {
	return uint32(w >> 32), uint32(w)
}

func (v *VisibilityState) mark(slot int, nonce uint32, bit uint32) {
	v.merge(slot, packVisibility(nonce, bit))
}

// merge ORs the viewers of w into the slot when it belongs to the same frame
// and replaces the slot content when it belongs to an older one.
func (v *VisibilityState) merge(slot int, w uint64) {
	nonce, viewers := unpackVisibility(w)

	for {
		old := v.slots[slot].Load()
		next := w

		oldNonce, oldViewers := unpackVisibility(old)
		if oldNonce == nonce {
			next = packVisibility(nonce, oldViewers|viewers)
		}

		if old == next || v.slots[slot].CompareAndSwap(old, next) {
			return
		}
	}
}

func (v *VisibilityState) isMarked(slot int, nonce uint32, bit uint32) bool {
	n, viewers := unpackVisibility(v.slots[slot].Load())
	return n == nonce && viewers&bit != 0
}

func (v *VisibilityState) snapshot() visibilitySnapshot {
	var s visibilitySnapshot
	for i := range v.slots {
		s[i] = v.slots[i].Load()
	}
	return s
}

func viewerBit(viewer ViewerID) uint32 {
	return 1 << viewer
}

// claimSlot returns the frame the viewer marks its next pass into. Viewers
// share the current frame until one of them computes twice, which opens the
// next slot of the ring and invalidates whatever it held.
func (t *Tree) claimSlot(viewer ViewerID) (int, uint32) {
	t.visibilityMu.Lock()
	defer t.visibilityMu.Unlock()

	bit := viewerBit(viewer)
	slot := int(t.cursor % VisibilitySlots)

	if t.cursor == 0 || t.slotViewers[slot]&bit != 0 {
		t.cursor++
		if t.cursor == 0 {
			t.cursor++
		}

		slot = int(t.cursor % VisibilitySlots)
		t.slotNonces[slot].Store(t.cursor)
		t.slotViewers[slot] = 0
	}

	t.slotViewers[slot] |= bit
	return slot, t.cursor
}

// CalculateVisibility marks every node intersecting the frustum as visible
// for the viewer. The result of the pass becomes observable once it is
// complete; until then IsVisible keeps answering from the previous pass.
//
// Passes for different viewers can run concurrently with each other and with
// ray tests, but never with a mutation of the tree.
func (t *Tree) CalculateVisibility(viewer ViewerID, f spatial.Frustum) error {
	if viewer >= MaxViewers {
		return invalidViewerError(viewer)
	}

	start := time.Now()
	slot, nonce := t.claimSlot(viewer)
	bit := viewerBit(viewer)

	if f.IntersectsBox(t.root.bounds) {
		t.root.markVisible(f, slot, nonce, bit, f.ContainsBox(t.root.bounds))
	}

	t.viewerNonces[viewer].Store(nonce)
	instrumentVisibilityPass(t.name, time.Since(start))
	return nil
}

func (n *Node) markVisible(f spatial.Frustum, slot int, nonce uint32, bit uint32, inside bool) {
	n.visibility.mark(slot, nonce, bit)
	if !n.divided {
		return
	}

	for i := range n.octants {
		childInside := inside
		if !inside {
			if !f.IntersectsBox(n.octants[i].bounds) {
				continue
			}
			childInside = f.ContainsBox(n.octants[i].bounds)
		}
		n.octants[i].node.markVisible(f, slot, nonce, bit, childInside)
	}
}

// IsVisible reports whether the node was marked during the last complete
// visibility pass of the viewer.
func (t *Tree) IsVisible(n *Node, viewer ViewerID) bool {
	if n == nil || viewer >= MaxViewers {
		return false
	}

	nonce := t.viewerNonces[viewer].Load()
	if nonce == 0 {
		return false
	}

	slot := int(nonce % VisibilitySlots)
	if t.slotNonces[slot].Load() != nonce {
		return false
	}
	return n.visibility.isMarked(slot, nonce, viewerBit(viewer))
}

// IsEntryVisible reports whether the node holding the entry is visible for
// the viewer.
func (t *Tree) IsEntryVisible(id ID, viewer ViewerID) (bool, error) {
	if viewer >= MaxViewers {
		return false, invalidViewerError(viewer)
	}

	e, ok := t.entries[id]
	if !ok {
		return false, notFoundError(id)
	}
	return t.IsVisible(e.node, viewer), nil
}

// VisibleEntries returns the ids of the entries held by nodes visible for the
// viewer.
func (t *Tree) VisibleEntries(viewer ViewerID) []ID {
	var ids []ID
	t.Walk(func(n *Node) bool {
		if !t.IsVisible(n, viewer) {
			return false
		}
		for _, e := range n.entries {
			ids = append(ids, e.id)
		}
		return true
	})
	return ids
}

// mergeVisibility copies the live frames of a snapshot into n and its
// ancestors so that every viewer that saw the source of a move keeps seeing
// the entry at its destination.
func (t *Tree) mergeVisibility(n *Node, s visibilitySnapshot) {
	for slot, w := range s {
		nonce, viewers := unpackVisibility(w)
		if nonce == 0 || viewers == 0 || t.slotNonces[slot].Load() != nonce {
			continue
		}

		for dst := n; dst != nil; dst = dst.parent {
			dst.visibility.merge(slot, w)
		}
	}
}
