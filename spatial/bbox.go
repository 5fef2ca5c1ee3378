package spatial

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// BoundingBox is an axis-aligned box. A box whose Min is greater than its Max
// on any axis is empty.
type BoundingBox struct {
	Min mgl32.Vec3 `json:"min"`
	Max mgl32.Vec3 `json:"max"`
}

func NewBoundingBox(min mgl32.Vec3, max mgl32.Vec3) BoundingBox {
	return BoundingBox{Min: min, Max: max}
}

// NewBoundingBoxFromCenter returns the box centered on c with the given
// half-extents.
func NewBoundingBoxFromCenter(c mgl32.Vec3, extents mgl32.Vec3) BoundingBox {
	return BoundingBox{Min: c.Sub(extents), Max: c.Add(extents)}
}

// EmptyBoundingBox returns a box that contains nothing and is the identity of
// Union.
func EmptyBoundingBox() BoundingBox {
	inf := (float32)(math.Inf(1))
	return BoundingBox{
		Min: mgl32.Vec3{inf, inf, inf},
		Max: mgl32.Vec3{-inf, -inf, -inf},
	}
}

func (b BoundingBox) IsEmpty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

// IsValid reports whether b is a non-empty box with finite corners. Boxes with
// a zero extent on some axes are valid.
func (b BoundingBox) IsValid() bool {
	return IsFinite(b.Min) && IsFinite(b.Max) && !b.IsEmpty()
}

func (b BoundingBox) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

func (b BoundingBox) Size() mgl32.Vec3 {
	return b.Max.Sub(b.Min)
}

func (b BoundingBox) Equal(o BoundingBox) bool {
	return b.Min == o.Min && b.Max == o.Max
}

// Contains reports whether o lies fully inside b. Touching faces count as
// inside.
func (b BoundingBox) Contains(o BoundingBox) bool {
	return o.Min[0] >= b.Min[0] && o.Max[0] <= b.Max[0] &&
		o.Min[1] >= b.Min[1] && o.Max[1] <= b.Max[1] &&
		o.Min[2] >= b.Min[2] && o.Max[2] <= b.Max[2]
}

func (b BoundingBox) ContainsPoint(p mgl32.Vec3) bool {
	return p[0] >= b.Min[0] && p[0] <= b.Max[0] &&
		p[1] >= b.Min[1] && p[1] <= b.Max[1] &&
		p[2] >= b.Min[2] && p[2] <= b.Max[2]
}

func (b BoundingBox) Intersects(o BoundingBox) bool {
	return b.Max[0] >= o.Min[0] && b.Min[0] <= o.Max[0] &&
		b.Max[1] >= o.Min[1] && b.Min[1] <= o.Max[1] &&
		b.Max[2] >= o.Min[2] && b.Min[2] <= o.Max[2]
}

func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	if b.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return b
	}
	return BoundingBox{Min: minVec(b.Min, o.Min), Max: maxVec(b.Max, o.Max)}
}

// Scale grows or shrinks b around its center by factor f.
func (b BoundingBox) Scale(f float32) BoundingBox {
	c := b.Center()
	half := b.Size().Mul(0.5 * f)
	return BoundingBox{Min: c.Sub(half), Max: c.Add(half)}
}

// Translate returns b moved by offset.
func (b BoundingBox) Translate(offset mgl32.Vec3) BoundingBox {
	return BoundingBox{Min: b.Min.Add(offset), Max: b.Max.Add(offset)}
}

// Octant returns the i-th of the 8 sub-boxes split at the center of b. Bit 0 of
// i selects the high half on x, bit 1 on y and bit 2 on z.
func (b BoundingBox) Octant(i int) BoundingBox {
	c := b.Center()
	var o BoundingBox
	for axis := 0; axis < 3; axis++ {
		if i&(1<<axis) == 0 {
			o.Min[axis] = b.Min[axis]
			o.Max[axis] = c[axis]
		} else {
			o.Min[axis] = c[axis]
			o.Max[axis] = b.Max[axis]
		}
	}
	return o
}

// OctantIndex returns the index of the single octant of b that fully contains
// o, or -1 when o straddles a split plane or is not inside b. A box lying
// exactly on a split plane belongs to the low side so that the answer is
// always unique.
func (b BoundingBox) OctantIndex(o BoundingBox) int {
	if !b.Contains(o) {
		return -1
	}

	c := b.Center()
	index := 0
	for axis := 0; axis < 3; axis++ {
		switch {
		case o.Max[axis] <= c[axis]:
		case o.Min[axis] >= c[axis]:
			index |= 1 << axis
		default:
			return -1
		}
	}
	return index
}

// Corner returns one of the 8 corners of b using the same bit layout as
// Octant.
func (b BoundingBox) Corner(i int) mgl32.Vec3 {
	var p mgl32.Vec3
	for axis := 0; axis < 3; axis++ {
		if i&(1<<axis) == 0 {
			p[axis] = b.Min[axis]
		} else {
			p[axis] = b.Max[axis]
		}
	}
	return p
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("[%g %g %g]-[%g %g %g]",
		b.Min[0], b.Min[1], b.Min[2],
		b.Max[0], b.Max[1], b.Max[2],
	)
}
