package spatial

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func TestRayIntersectBox(t *testing.T) {
	b := box(-1, -1, -1, 1, 1, 1)

	t.Run("hit along x", func(t *testing.T) {
		r := Ray{
			From: mgl32.Vec3{-8, 0, 0},
			To:   mgl32.Vec3{8, 0, 0},
		}

		hit, ok := r.IntersectBox(b)
		require.True(t, ok)
		require.Equal(t, float32(7), hit.Distance)
		require.Equal(t, mgl32.Vec3{-1, 0, 0}, hit.Point)
		require.Equal(t, mgl32.Vec3{-1, 0, 0}, hit.Normal)
	})

	t.Run("hit along negative y", func(t *testing.T) {
		r := Ray{
			From: mgl32.Vec3{0, 8, 0},
			To:   mgl32.Vec3{0, -8, 0},
		}

		hit, ok := r.IntersectBox(b)
		require.True(t, ok)
		require.Equal(t, float32(7), hit.Distance)
		require.Equal(t, mgl32.Vec3{0, 1, 0}, hit.Normal)
	})

	t.Run("segment too short", func(t *testing.T) {
		r := Ray{
			From: mgl32.Vec3{-10, 0, 0},
			To:   mgl32.Vec3{-5, 0, 0},
		}

		_, ok := r.IntersectBox(b)
		require.False(t, ok)
	})

	t.Run("box behind the ray", func(t *testing.T) {
		r := Ray{
			From: mgl32.Vec3{5, 0, 0},
			To:   mgl32.Vec3{10, 0, 0},
		}

		_, ok := r.IntersectBox(b)
		require.False(t, ok)
	})

	t.Run("parallel miss", func(t *testing.T) {
		r := Ray{
			From: mgl32.Vec3{-10, 2, 0},
			To:   mgl32.Vec3{10, 2, 0},
		}

		_, ok := r.IntersectBox(b)
		require.False(t, ok)
	})

	t.Run("origin inside", func(t *testing.T) {
		r := Ray{
			From: mgl32.Vec3{0, 0, 0},
			To:   mgl32.Vec3{10, 0, 0},
		}

		hit, ok := r.IntersectBox(b)
		require.True(t, ok)
		require.Zero(t, hit.Distance)
		require.Equal(t, mgl32.Vec3{}, hit.Normal)
	})

	t.Run("diagonal hit", func(t *testing.T) {
		r := NewRay(mgl32.Vec3{-5, -5, -5}, mgl32.Vec3{1, 1, 1}, 100)

		hit, ok := r.IntersectBox(b)
		require.True(t, ok)
		require.True(t, hit.Point.ApproxEqualThreshold(mgl32.Vec3{-1, -1, -1}, 0.001))
	})
}

func TestRayIntersectSphere(t *testing.T) {
	t.Run("hit", func(t *testing.T) {
		r := Ray{
			From: mgl32.Vec3{-8, 0, 0},
			To:   mgl32.Vec3{8, 0, 0},
		}

		hit, ok := r.IntersectSphere(mgl32.Vec3{}, 1)
		require.True(t, ok)
		require.Equal(t, float32(7), hit.Distance)
		require.Equal(t, mgl32.Vec3{-1, 0, 0}, hit.Point)
		require.Equal(t, mgl32.Vec3{-1, 0, 0}, hit.Normal)
	})

	t.Run("miss", func(t *testing.T) {
		r := Ray{
			From: mgl32.Vec3{-8, 2, 0},
			To:   mgl32.Vec3{8, 2, 0},
		}

		_, ok := r.IntersectSphere(mgl32.Vec3{}, 1)
		require.False(t, ok)
	})

	t.Run("box corner outside the sphere", func(t *testing.T) {
		r := NewRay(mgl32.Vec3{-5, -5, -5}, mgl32.Vec3{0, 0, 1}, 100)

		_, boxHit := r.IntersectBox(NewBoundingBoxFromCenter(mgl32.Vec3{-5, -5, 0}, mgl32.Vec3{1, 1, 1}))
		require.True(t, boxHit)

		_, ok := r.IntersectSphere(mgl32.Vec3{-4.2, -4.2, 0}, 1)
		require.False(t, ok)
	})

	t.Run("origin inside", func(t *testing.T) {
		r := Ray{
			From: mgl32.Vec3{0.5, 0, 0},
			To:   mgl32.Vec3{8, 0, 0},
		}

		hit, ok := r.IntersectSphere(mgl32.Vec3{}, 1)
		require.True(t, ok)
		require.Zero(t, hit.Distance)
	})

	t.Run("sphere behind the segment", func(t *testing.T) {
		r := Ray{
			From: mgl32.Vec3{2, 0, 0},
			To:   mgl32.Vec3{8, 0, 0},
		}

		_, ok := r.IntersectSphere(mgl32.Vec3{}, 1)
		require.False(t, ok)
	})
}

func TestRayHelpers(t *testing.T) {
	r := NewRay(mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 2, 0}, 4)

	require.Equal(t, mgl32.Vec3{1, 4, 0}, r.To)
	require.Equal(t, float32(4), r.Length())
	require.Equal(t, mgl32.Vec3{0, 1, 0}, r.Direction())
	require.Equal(t, mgl32.Vec3{1, 2, 0}, r.PointAt(2))
}
