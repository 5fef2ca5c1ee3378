package octree

import (
	"github.com/aukilabs/sjon/spatial"
)

// Octant is one of the 8 fixed sub-regions of a node. It owns a child node
// only while its parent is divided.
type Octant struct {
	bounds spatial.BoundingBox
	node   *Node
}

func (o Octant) Bounds() spatial.BoundingBox {
	return o.bounds
}

// Node is a cell of the tree.
type Node struct {
	tree       *Tree
	parent     *Node
	depth      int
	bounds     spatial.BoundingBox
	divided    bool
	octants    [8]Octant
	entries    []*Entry
	visibility VisibilityState
}

func newNode(t *Tree, parent *Node, depth int, bounds spatial.BoundingBox) *Node {
	n := &Node{
		tree:   t,
		parent: parent,
		depth:  depth,
		bounds: bounds,
	}
	n.resetOctants()
	return n
}

func (n *Node) resetOctants() {
	for i := range n.octants {
		n.octants[i] = Octant{bounds: n.bounds.Octant(i)}
	}
}

func (n *Node) Bounds() spatial.BoundingBox {
	return n.bounds
}

// Depth returns the level of the node. The root is at depth 0.
func (n *Node) Depth() int {
	return n.depth
}

func (n *Node) Divided() bool {
	return n.divided
}

// Parent returns the parent of the node, nil for the root.
func (n *Node) Parent() *Node {
	return n.parent
}

// Child returns the child node of the i-th octant, nil when the node is not
// divided.
func (n *Node) Child(i int) *Node {
	return n.octants[i].node
}

func (n *Node) Octant(i int) Octant {
	return n.octants[i]
}

// EntryIDs returns the ids of the entries directly held by the node.
func (n *Node) EntryIDs() []ID {
	ids := make([]ID, len(n.entries))
	for i, e := range n.entries {
		ids[i] = e.id
	}
	return ids
}

func (n *Node) EntryCount() int {
	return len(n.entries)
}

func (n *Node) IsVisible(viewer ViewerID) bool {
	return n.tree.IsVisible(n, viewer)
}

// Divide creates the 8 children of the node. It panics when the node is
// already divided.
func (n *Node) Divide() {
	if n.divided {
		invariantViolation("divide called on a divided node", n)
	}

	for i := range n.octants {
		n.octants[i].node = newNode(n.tree, n, n.depth+1, n.octants[i].bounds)
	}
	n.divided = true
	n.tree.nodeCount += len(n.octants)

	for i := range n.octants {
		n.tree.emit(EventInsertOctant, n.octants[i].node, 0)
	}
}

// Undivide destroys the children of the node, recursively undividing them
// first. It panics when the node is not divided or when one of its
// descendants still holds entries. Entries held by the node itself stay.
func (n *Node) Undivide() {
	if !n.divided {
		invariantViolation("undivide called on a node that is not divided", n)
	}
	if !n.childrenEmptyExcept(nil) {
		invariantViolation("undivide called on a node with entries below it", n)
	}
	n.undivide()
}

func (n *Node) undivide() {
	for i := range n.octants {
		child := n.octants[i].node
		if child.divided {
			child.undivide()
		}

		n.tree.emit(EventRemoveOctant, child, 0)
		child.parent = nil
		n.octants[i].node = nil
	}

	n.divided = false
	n.tree.nodeCount -= len(n.octants)
}

// isEmpty reports whether neither the node nor its descendants hold entries.
func (n *Node) isEmpty() bool {
	if len(n.entries) != 0 {
		return false
	}
	if !n.divided {
		return true
	}
	return n.childrenEmptyExcept(nil)
}

func (n *Node) childrenEmptyExcept(skip *Node) bool {
	if !n.divided {
		return true
	}
	for i := range n.octants {
		child := n.octants[i].node
		if child == skip {
			continue
		}
		if !child.isEmpty() {
			return false
		}
	}
	return true
}

func (n *Node) removeEntry(e *Entry) {
	for i, held := range n.entries {
		if held == e {
			last := len(n.entries) - 1
			n.entries[i] = n.entries[last]
			n.entries[last] = nil
			n.entries = n.entries[:last]
			return
		}
	}
}

type harvestedEntry struct {
	entry      *Entry
	visibility visibilitySnapshot
}

// harvest detaches every entry of the subtree and undivides it.
func (n *Node) harvest(out []harvestedEntry) []harvestedEntry {
	if n.divided {
		for i := range n.octants {
			out = n.octants[i].node.harvest(out)
		}
	}

	snapshot := n.visibility.snapshot()
	entries := n.entries
	n.entries = nil

	for _, e := range entries {
		e.node = nil
		out = append(out, harvestedEntry{
			entry:      e,
			visibility: snapshot,
		})
		n.tree.emit(EventRemoveEntry, n, e.id)
	}

	if n.divided {
		n.undivide()
	}
	return out
}
