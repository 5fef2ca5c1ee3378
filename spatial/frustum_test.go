package spatial

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func TestFrustumOrtho(t *testing.T) {
	// Looking down -z from the origin, sees x and y in [-10, 10] and z in
	// [-100, -1].
	f := NewFrustum(mgl32.Ortho(-10, 10, -10, 10, 1, 100))

	t.Run("box inside is contained", func(t *testing.T) {
		b := box(-1, -1, -51, 1, 1, -49)
		require.True(t, f.IntersectsBox(b))
		require.True(t, f.ContainsBox(b))
	})

	t.Run("box behind the camera is outside", func(t *testing.T) {
		b := box(-1, -1, 49, 1, 1, 51)
		require.False(t, f.IntersectsBox(b))
		require.False(t, f.ContainsBox(b))
	})

	t.Run("box across a side plane intersects", func(t *testing.T) {
		b := box(9, 0, -50, 11, 1, -49)
		require.True(t, f.IntersectsBox(b))
		require.False(t, f.ContainsBox(b))
	})

	t.Run("box enclosing the frustum intersects", func(t *testing.T) {
		b := box(-500, -500, -500, 500, 500, 500)
		require.True(t, f.IntersectsBox(b))
		require.False(t, f.ContainsBox(b))
	})

	t.Run("points", func(t *testing.T) {
		require.True(t, f.ContainsPoint(mgl32.Vec3{0, 0, -2}))
		require.False(t, f.ContainsPoint(mgl32.Vec3{0, 0, -0.5}))
		require.False(t, f.ContainsPoint(mgl32.Vec3{0, 0, -101}))
	})
}

func TestFrustumPerspective(t *testing.T) {
	projection := mgl32.Perspective(mgl32.DegToRad(90), 1, 0.1, 100)
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0})
	f := NewFrustum(projection.Mul4(view))

	require.True(t, f.ContainsPoint(mgl32.Vec3{0, 0, -10}))
	require.True(t, f.ContainsPoint(mgl32.Vec3{9, 0, -10}))
	require.False(t, f.ContainsPoint(mgl32.Vec3{11, 0, -10}))
	require.False(t, f.ContainsPoint(mgl32.Vec3{0, 0, 10}))

	require.True(t, f.IntersectsBox(box(-1, -1, -11, 1, 1, -9)))
	require.False(t, f.IntersectsBox(box(-1, -1, 9, 1, 1, 11)))
}
