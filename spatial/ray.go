package spatial

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Ray is a segment going from From to To. Hits further than To are ignored.
type Ray struct {
	From mgl32.Vec3 `json:"from"`
	To   mgl32.Vec3 `json:"to"`
}

// NewRay returns the segment starting at origin going length units along
// direction.
func NewRay(origin mgl32.Vec3, direction mgl32.Vec3, length float32) Ray {
	return Ray{
		From: origin,
		To:   origin.Add(direction.Normalize().Mul(length)),
	}
}

func (r Ray) Direction() mgl32.Vec3 {
	return r.To.Sub(r.From).Normalize()
}

func (r Ray) Length() float32 {
	return r.To.Sub(r.From).Len()
}

// PointAt returns the point at the given distance from From.
func (r Ray) PointAt(distance float32) mgl32.Vec3 {
	return r.From.Add(r.Direction().Mul(distance))
}

// RayHit describes where a ray enters a shape.
type RayHit struct {
	Point    mgl32.Vec3 `json:"point"`
	Normal   mgl32.Vec3 `json:"normal"`
	Distance float32    `json:"distance"`
}

// RayTester is implemented by shapes that can refine a bounding box hit, such
// as meshes attached to an octree entry.
type RayTester interface {
	TestRay(r Ray) (RayHit, bool)
}

// IntersectBox runs a slab test between r and b. When From is inside b the hit
// is reported at distance 0 with a zero normal.
func (r Ray) IntersectBox(b BoundingBox) (RayHit, bool) {
	if b.IsEmpty() {
		return RayHit{}, false
	}

	delta := r.To.Sub(r.From)
	tMin := float32(0)
	tMax := float32(1)
	enterAxis := -1
	var enterSign float32

	for axis := 0; axis < 3; axis++ {
		origin := r.From[axis]
		dir := delta[axis]

		if dir == 0 {
			// parallel to the slab:
			if origin < b.Min[axis] || origin > b.Max[axis] {
				return RayHit{}, false
			}
			continue
		}

		inv := 1 / dir
		t1 := (b.Min[axis] - origin) * inv
		t2 := (b.Max[axis] - origin) * inv
		sign := float32(-1)
		if t1 > t2 {
			t1, t2 = t2, t1
			sign = 1
		}

		if t1 > tMin {
			tMin = t1
			enterAxis = axis
			enterSign = sign
		}
		if t2 < tMax {
			tMax = t2
		}
		if tMin > tMax {
			return RayHit{}, false
		}
	}

	length := delta.Len()
	hit := RayHit{
		Point:    r.From.Add(delta.Mul(tMin)),
		Distance: tMin * length,
	}
	if enterAxis >= 0 {
		hit.Normal[enterAxis] = enterSign
	}
	return hit, true
}

// IntersectSphere returns where r enters the sphere. When From is inside the
// sphere the hit is reported at distance 0 with a zero normal.
func (r Ray) IntersectSphere(center mgl32.Vec3, radius float32) (RayHit, bool) {
	delta := r.To.Sub(r.From)
	offset := r.From.Sub(center)

	a := delta.Dot(delta)
	b := 2 * offset.Dot(delta)
	c := offset.Dot(offset) - radius*radius

	if a == 0 {
		if c <= 0 {
			return RayHit{Point: r.From}, true
		}
		return RayHit{}, false
	}

	discriminant := b*b - 4*a*c
	if discriminant < 0 {
		return RayHit{}, false
	}

	sqrt := float32(math.Sqrt(float64(discriminant)))
	tMin := (-b - sqrt) / (2 * a)
	tMax := (-b + sqrt) / (2 * a)

	switch {
	case tMin >= 0 && tMin <= 1:
		point := r.From.Add(delta.Mul(tMin))
		return RayHit{
			Point:    point,
			Normal:   point.Sub(center).Normalize(),
			Distance: tMin * delta.Len(),
		}, true

	case tMin < 0 && tMax >= 0:
		return RayHit{Point: r.From}, true

	default:
		return RayHit{}, false
	}
}
