package models

import (
	"sync"
	"time"

	"github.com/aukilabs/sjon/octree"
	"github.com/aukilabs/sjon/spatial"
	"github.com/go-gl/mathgl/mgl32"
)

// Shape is the volume used to refine ray hits against an entity.
type Shape int

const (
	ShapeBox Shape = iota
	ShapeSphere
)

func (s Shape) String() string {
	switch s {
	case ShapeSphere:
		return "sphere"
	default:
		return "box"
	}
}

// Entity is an object of a scene indexed by its world bounding box.
type Entity struct {
	ID             uint32
	Bucket         octree.Bucket
	Shape          Shape
	Static         bool
	DisableRayTest bool

	mutex    sync.RWMutex
	bounds   spatial.BoundingBox
	velocity mgl32.Vec3
}

func (e *Entity) SetBounds(v spatial.BoundingBox) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.bounds = v
}

func (e *Entity) Bounds() spatial.BoundingBox {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.bounds
}

func (e *Entity) SetVelocity(v mgl32.Vec3) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.velocity = v
}

// Velocity returns the velocity of the entity in units per second.
func (e *Entity) Velocity() mgl32.Vec3 {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.velocity
}

// Step moves the entity by its velocity over dt and returns its new bounds.
// Static entities never move.
func (e *Entity) Step(dt time.Duration) spatial.BoundingBox {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.bounds = e.nextBounds(dt)
	return e.bounds
}

// NextBounds returns the bounds the entity would have after a step of dt,
// without moving it.
func (e *Entity) NextBounds(dt time.Duration) spatial.BoundingBox {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.nextBounds(dt)
}

func (e *Entity) nextBounds(dt time.Duration) spatial.BoundingBox {
	if e.Static || e.velocity == (mgl32.Vec3{}) {
		return e.bounds
	}
	return e.bounds.Translate(e.velocity.Mul(float32(dt.Seconds())))
}

// TestRay refines a bounding box hit with the shape of the entity. Spheres
// are inscribed in the bounding box.
func (e *Entity) TestRay(r spatial.Ray) (spatial.RayHit, bool) {
	b := e.Bounds()

	if e.Shape != ShapeSphere {
		return r.IntersectBox(b)
	}

	size := b.Size()
	radius := min(size[0], size[1], size[2]) / 2
	return r.IntersectSphere(b.Center(), radius)
}

func (e *Entity) octreeID() octree.ID {
	return octree.ID(e.ID)
}

func (e *Entity) octreeOptions() []octree.EntryOption {
	return []octree.EntryOption{
		octree.WithPayload(e),
		octree.WithBucket(e.Bucket),
		octree.WithRayTest(!e.DisableRayTest),
	}
}
