package octree

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/sjon/spatial"
)

// extend grows the root so that it contains the bounds of the given entry and
// places every entry again. The tree is left untouched when the grown root
// would overflow float32.
func (t *Tree) extend(id ID, b spatial.BoundingBox) error {
	bounds := t.root.bounds.Union(b).Scale(t.growthFactor)
	for bounds.IsValid() && !bounds.Contains(b) {
		bounds = bounds.Scale(t.growthFactor)
	}
	if !bounds.IsValid() {
		return errors.New("octree root can't grow to contain the bounding box").
			WithType(ErrTypeDegenerateBounds).
			WithTag("id", id).
			WithTag("bounds", b.String()).
			WithTag("root", t.root.bounds.String())
	}
	t.rebuild(bounds)

	logs.WithTag("tree", t.name).
		WithTag("bounds", bounds.String()).
		WithTag("entries", len(t.entries)).
		WithTag("rebuilds", t.rebuilds).
		Info("octree root extended")
	return nil
}

// Rebuild removes every entry and places it again from the root. Nodes left
// divided by past moves are collapsed in the process.
func (t *Tree) Rebuild() {
	t.rebuild(t.root.bounds)
	t.instrumentSize()
}

func (t *Tree) rebuild(bounds spatial.BoundingBox) {
	harvested := t.root.harvest(make([]harvestedEntry, 0, len(t.entries)))

	t.root.bounds = bounds
	t.root.resetOctants()

	for _, h := range harvested {
		dst := t.place(t.root, h.entry)
		if t.flickerPrevention {
			t.mergeVisibility(dst, h.visibility)
		}
	}

	t.rebuilds++
	instrumentRebuild(t.name)
}
