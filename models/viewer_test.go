package models

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func TestViewerCamera(t *testing.T) {
	var v Viewer

	c := DefaultCamera()
	c.Eye = mgl32.Vec3{1, 2, 3}
	v.SetCamera(c)
	require.Equal(t, c, v.Camera())
}

func TestCameraFrustum(t *testing.T) {
	t.Run("default camera looks down -z", func(t *testing.T) {
		f := DefaultCamera().Frustum()

		require.True(t, f.ContainsPoint(mgl32.Vec3{0, 0, -10}))
		require.False(t, f.ContainsPoint(mgl32.Vec3{0, 0, 10}))
		require.False(t, f.ContainsPoint(mgl32.Vec3{0, 0, -2000}))
	})

	t.Run("camera looking at a target", func(t *testing.T) {
		c := DefaultCamera()
		c.Eye = mgl32.Vec3{100, 0, 0}
		c.Target = mgl32.Vec3{}
		f := c.Frustum()

		require.True(t, f.ContainsPoint(mgl32.Vec3{}))
		require.False(t, f.ContainsPoint(mgl32.Vec3{200, 0, 0}))
	})
}
