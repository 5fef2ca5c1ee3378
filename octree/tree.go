package octree

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/sjon/spatial"
)

const (
	DefaultName         = "octree"
	DefaultMaxDepth     = 12
	DefaultGrowthFactor = 1.5
)

// Options configures a tree. Zero values are replaced by defaults.
type Options struct {
	// The name used to tag logs and metrics.
	Name string

	// The depth below which nodes are never divided.
	MaxDepth int

	// The factor applied to the root bounds when an entry escapes them. Must
	// be greater than 1.
	GrowthFactor float32

	// Disables the copy of visibility from the source to the destination
	// node when an entry is relocated.
	DisableFlickerPrevention bool

	// Disables the pruning of empty nodes after removals and moves.
	DisableCollapse bool
}

// Tree is a dynamic octree indexing entry bounding boxes for visibility and
// ray queries.
//
// Mutations (Insert, Remove, Update, Rebuild, Divide and Undivide) must be
// serialized by the caller. Visibility passes and ray tests can run
// concurrently with each other between mutations.
type Tree struct {
	name              string
	maxDepth          int
	growthFactor      float32
	flickerPrevention bool
	collapse          bool

	root      *Node
	entries   map[ID]*Entry
	nodeCount int
	rebuilds  uint64

	visibilityMu sync.Mutex
	cursor       uint32
	slotViewers  [VisibilitySlots]uint32
	slotNonces   [VisibilitySlots]atomic.Uint32
	viewerNonces [MaxViewers]atomic.Uint32

	handlers      []eventHandler
	nextHandlerID int

	rayDisabledBuckets atomic.Uint64
	rayNodeVisits      atomic.Uint64
}

// New creates a tree whose root covers the given bounds.
func New(bounds spatial.BoundingBox, opts Options) (*Tree, error) {
	if !bounds.IsValid() {
		return nil, degenerateBoundsError(0, bounds)
	}

	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.MaxDepth == 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.GrowthFactor == 0 {
		opts.GrowthFactor = DefaultGrowthFactor
	}

	if opts.MaxDepth < 0 {
		return nil, errors.New("invalid max depth").
			WithType(ErrTypeInvalidOptions).
			WithTag("max_depth", opts.MaxDepth)
	}
	if !(opts.GrowthFactor > 1) || math.IsInf(float64(opts.GrowthFactor), 0) {
		return nil, errors.New("growth factor must be greater than 1").
			WithType(ErrTypeInvalidOptions).
			WithTag("growth_factor", opts.GrowthFactor)
	}

	t := &Tree{
		name:              opts.Name,
		maxDepth:          opts.MaxDepth,
		growthFactor:      opts.GrowthFactor,
		flickerPrevention: !opts.DisableFlickerPrevention,
		collapse:          !opts.DisableCollapse,
		entries:           make(map[ID]*Entry),
		nodeCount:         1,
	}
	t.root = newNode(t, nil, 0, bounds)
	t.instrumentSize()
	return t, nil
}

func (t *Tree) Name() string {
	return t.name
}

func (t *Tree) Root() *Node {
	return t.root
}

func (t *Tree) Bounds() spatial.BoundingBox {
	return t.root.bounds
}

// Len returns the number of registered entries.
func (t *Tree) Len() int {
	return len(t.entries)
}

func (t *Tree) Entry(id ID) (*Entry, bool) {
	e, ok := t.entries[id]
	return e, ok
}

// Walk calls fn for each node, parents before children. Children of a node
// are skipped when fn returns false for it.
func (t *Tree) Walk(fn func(*Node) bool) {
	walk(t.root, fn)
}

func walk(n *Node, fn func(*Node) bool) {
	if !fn(n) || !n.divided {
		return
	}
	for i := range n.octants {
		walk(n.octants[i].node, fn)
	}
}

// Insert indexes a bounding box under the given id. The root is extended
// when it does not contain the box. Inserting an id that is already
// registered updates its bounds and applies the options to it.
func (t *Tree) Insert(id ID, bounds spatial.BoundingBox, opts ...EntryOption) error {
	if !bounds.IsValid() {
		return degenerateBoundsError(id, bounds)
	}

	existing, registered := t.entries[id]

	candidate := Entry{
		id:      id,
		bounds:  bounds,
		rayTest: true,
	}
	if registered {
		candidate = *existing
	}
	for _, opt := range opts {
		opt(&candidate)
	}
	if candidate.bucket >= MaxBuckets {
		return errors.New("invalid entry bucket").
			WithType(ErrTypeInvalidOptions).
			WithTag("id", id).
			WithTag("bucket", candidate.bucket)
	}

	if registered {
		if err := t.Update(id, bounds); err != nil {
			return err
		}
		existing.payload = candidate.payload
		existing.bucket = candidate.bucket
		existing.rayTest = candidate.rayTest
		return nil
	}

	e := &candidate
	if !t.root.bounds.Contains(bounds) {
		if err := t.extend(id, bounds); err != nil {
			return err
		}
	}
	t.place(t.root, e)
	t.instrumentSize()
	return nil
}

// place stores the entry in the deepest node under n that contains it,
// dividing nodes on the way.
func (t *Tree) place(n *Node, e *Entry) *Node {
	for n.depth < t.maxDepth {
		i := n.bounds.OctantIndex(e.bounds)
		if i < 0 {
			break
		}
		if !n.divided {
			n.Divide()
		}
		n = n.octants[i].node
	}

	n.entries = append(n.entries, e)
	e.node = n
	t.entries[e.id] = e
	t.emit(EventInsertEntry, n, e.id)
	return n
}

// Remove unregisters the entry and prunes the nodes it leaves empty.
func (t *Tree) Remove(id ID) error {
	e, ok := t.entries[id]
	if !ok {
		return notFoundError(id)
	}

	n := e.node
	n.removeEntry(e)
	delete(t.entries, id)
	e.node = nil

	t.emit(EventRemoveEntry, n, id)
	t.collapseParents(n)
	t.instrumentSize()
	return nil
}

// Update sets the bounds of a registered entry and relocates it when the
// bounds no longer fit its node or fit one of its children. Updating with the
// current bounds does nothing.
func (t *Tree) Update(id ID, bounds spatial.BoundingBox) error {
	e, ok := t.entries[id]
	if !ok {
		return notFoundError(id)
	}
	if !bounds.IsValid() {
		return degenerateBoundsError(id, bounds)
	}
	if e.bounds.Equal(bounds) {
		return nil
	}

	defer t.instrumentSize()
	src := e.node

	if !t.root.bounds.Contains(bounds) {
		previous := e.bounds
		e.bounds = bounds
		if err := t.extend(id, bounds); err != nil {
			e.bounds = previous
			return err
		}
		return nil
	}

	if src.bounds.Contains(bounds) {
		if src.depth >= t.maxDepth || src.bounds.OctantIndex(bounds) < 0 {
			e.bounds = bounds
			t.emit(EventTransformChanged, src, id)
			return nil
		}

		t.relocate(e, bounds, src)
		return nil
	}

	dst := src.parent
	for !dst.bounds.Contains(bounds) {
		dst = dst.parent
	}
	t.relocate(e, bounds, dst)
	t.collapseParents(src)
	return nil
}

// Move is an alias of Update.
func (t *Tree) Move(id ID, bounds spatial.BoundingBox) error {
	return t.Update(id, bounds)
}

// relocate detaches the entry from its node and places it again starting
// from the given node.
func (t *Tree) relocate(e *Entry, bounds spatial.BoundingBox, from *Node) {
	src := e.node
	visibility := src.visibility.snapshot()

	src.removeEntry(e)
	t.emit(EventRemoveEntry, src, e.id)

	e.bounds = bounds
	dst := t.place(from, e)

	if t.flickerPrevention {
		t.mergeVisibility(dst, visibility)
	}
}

// collapseParents undivides the highest ancestor of n, or n itself, whose
// descendants are all empty. The climb stops at the first node holding
// entries and never rescans the branch it comes from.
func (t *Tree) collapseParents(n *Node) {
	if !t.collapse {
		return
	}

	var candidate *Node
	if n.divided {
		if !n.childrenEmptyExcept(nil) {
			return
		}
		candidate = n
	}

	for branch := n; len(branch.entries) == 0 && branch.parent != nil; branch = branch.parent {
		if !branch.parent.childrenEmptyExcept(branch) {
			break
		}
		candidate = branch.parent
	}

	if candidate != nil {
		candidate.Undivide()
	}
}

// SetBucketRayTest enables or disables ray testing for all the entries in
// the given bucket.
func (t *Tree) SetBucketRayTest(b Bucket, enabled bool) error {
	if b >= MaxBuckets {
		return errors.New("invalid bucket").
			WithType(ErrTypeInvalidOptions).
			WithTag("bucket", b)
	}

	bit := uint64(1) << b
	if enabled {
		t.rayDisabledBuckets.And(^bit)
	} else {
		t.rayDisabledBuckets.Or(bit)
	}
	return nil
}
