package octree

import (
	"github.com/aukilabs/sjon/spatial"
)

// ID identifies an entry. It is supplied by the caller and stays stable for
// the lifetime of the indexed object.
type ID uint64

// Bucket groups entries so ray tests can be disabled for a whole category at
// once.
type Bucket uint8

// MaxBuckets is the number of buckets a tree can tell apart.
const MaxBuckets = 64

// Entry is the registration record of an indexed object.
type Entry struct {
	id      ID
	bounds  spatial.BoundingBox
	payload any
	bucket  Bucket
	rayTest bool
	node    *Node
}

func (e *Entry) ID() ID {
	return e.id
}

func (e *Entry) Bounds() spatial.BoundingBox {
	return e.bounds
}

func (e *Entry) Payload() any {
	return e.payload
}

func (e *Entry) Bucket() Bucket {
	return e.bucket
}

func (e *Entry) RayTestEnabled() bool {
	return e.rayTest
}

// Node returns the node that holds the entry.
func (e *Entry) Node() *Node {
	return e.node
}

// EntryOption configures an entry on insertion.
type EntryOption func(*Entry)

// WithPayload attaches an opaque value returned with ray hits. A payload
// implementing spatial.RayTester refines bounding box hits.
func WithPayload(p any) EntryOption {
	return func(e *Entry) {
		e.payload = p
	}
}

func WithBucket(b Bucket) EntryOption {
	return func(e *Entry) {
		e.bucket = b
	}
}

// WithRayTest enables or disables ray testing for the entry. Entries are ray
// tested by default.
func WithRayTest(enabled bool) EntryOption {
	return func(e *Entry) {
		e.rayTest = enabled
	}
}
