package octree

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/sjon/spatial"
)

const (
	// ErrTypeNotFound is returned when an operation targets an id that is not
	// registered in the tree.
	ErrTypeNotFound = "octree-entry-not-found"

	// ErrTypeDegenerateBounds is returned when a bounding box is empty or has
	// non finite corners.
	ErrTypeDegenerateBounds = "octree-degenerate-bounds"

	// ErrTypeInvariantViolation is the type of the errors the tree panics
	// with when its structure is broken. Those are never returned.
	ErrTypeInvariantViolation = "octree-invariant-violation"

	ErrTypeInvalidViewer  = "octree-invalid-viewer"
	ErrTypeInvalidOptions = "octree-invalid-options"
)

func notFoundError(id ID) error {
	return errors.New("octree entry not found").
		WithType(ErrTypeNotFound).
		WithTag("id", id)
}

func degenerateBoundsError(id ID, b spatial.BoundingBox) error {
	return errors.New("degenerate bounding box").
		WithType(ErrTypeDegenerateBounds).
		WithTag("id", id).
		WithTag("bounds", b.String())
}

func invalidViewerError(viewer ViewerID) error {
	return errors.New("invalid viewer").
		WithType(ErrTypeInvalidViewer).
		WithTag("viewer", viewer).
		WithTag("max_viewers", MaxViewers)
}

func invariantViolation(msg string, n *Node) {
	panic(errors.New(msg).
		WithType(ErrTypeInvariantViolation).
		WithTag("depth", n.depth).
		WithTag("bounds", n.bounds.String()))
}
