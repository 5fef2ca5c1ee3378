package spatial

import (
	"github.com/go-gl/mathgl/mgl32"
)

const (
	PlaneLeft = iota
	PlaneRight
	PlaneBottom
	PlaneTop
	PlaneNear
	PlaneFar
)

// Frustum is a convex volume bounded by 6 planes whose normals point inwards.
// Each plane is stored as (nx, ny, nz, d) with nx*x + ny*y + nz*z + d >= 0
// for points inside.
type Frustum struct {
	Planes [6]mgl32.Vec4
}

// NewFrustum extracts the frustum planes from a view-projection matrix using
// the Gribb-Hartmann method. The matrix follows OpenGL clip-space conventions
// as produced by mgl32.Perspective and mgl32.Ortho.
func NewFrustum(viewProjection mgl32.Mat4) Frustum {
	r0, r1, r2, r3 := viewProjection.Rows()

	f := Frustum{
		Planes: [6]mgl32.Vec4{
			PlaneLeft:   r3.Add(r0),
			PlaneRight:  r3.Sub(r0),
			PlaneBottom: r3.Add(r1),
			PlaneTop:    r3.Sub(r1),
			PlaneNear:   r3.Add(r2),
			PlaneFar:    r3.Sub(r2),
		},
	}

	for i, p := range f.Planes {
		length := p.Vec3().Len()
		if length != 0 {
			f.Planes[i] = p.Mul(1 / length)
		}
	}
	return f
}

func planeDistance(p mgl32.Vec4, v mgl32.Vec3) float32 {
	return p[0]*v[0] + p[1]*v[1] + p[2]*v[2] + p[3]
}

// positiveVertex returns the corner of b furthest along the plane normal.
func positiveVertex(p mgl32.Vec4, b BoundingBox) mgl32.Vec3 {
	v := b.Min
	for axis := 0; axis < 3; axis++ {
		if p[axis] >= 0 {
			v[axis] = b.Max[axis]
		}
	}
	return v
}

// negativeVertex returns the corner of b furthest against the plane normal.
func negativeVertex(p mgl32.Vec4, b BoundingBox) mgl32.Vec3 {
	v := b.Max
	for axis := 0; axis < 3; axis++ {
		if p[axis] >= 0 {
			v[axis] = b.Min[axis]
		}
	}
	return v
}

// IntersectsBox reports whether b is at least partially inside f. The test is
// conservative: some boxes near frustum corners are reported as intersecting
// while being outside.
func (f Frustum) IntersectsBox(b BoundingBox) bool {
	for _, p := range f.Planes {
		if planeDistance(p, positiveVertex(p, b)) < 0 {
			return false
		}
	}
	return true
}

// ContainsBox reports whether b is fully inside f.
func (f Frustum) ContainsBox(b BoundingBox) bool {
	for _, p := range f.Planes {
		if planeDistance(p, negativeVertex(p, b)) < 0 {
			return false
		}
	}
	return true
}

func (f Frustum) ContainsPoint(v mgl32.Vec3) bool {
	for _, p := range f.Planes {
		if planeDistance(p, v) < 0 {
			return false
		}
	}
	return true
}
