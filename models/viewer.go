package models

import (
	"sync"

	"github.com/aukilabs/sjon/octree"
	"github.com/aukilabs/sjon/spatial"
	"github.com/go-gl/mathgl/mgl32"
)

// Camera describes a perspective camera. FovY is in degrees.
type Camera struct {
	Eye    mgl32.Vec3 `json:"eye"`
	Target mgl32.Vec3 `json:"target"`
	Up     mgl32.Vec3 `json:"up"`
	FovY   float32    `json:"fov_y"`
	Aspect float32    `json:"aspect"`
	Near   float32    `json:"near"`
	Far    float32    `json:"far"`
}

// DefaultCamera returns a camera at the origin looking down -z.
func DefaultCamera() Camera {
	return Camera{
		Target: mgl32.Vec3{0, 0, -1},
		Up:     mgl32.Vec3{0, 1, 0},
		FovY:   60,
		Aspect: 16.0 / 9.0,
		Near:   0.1,
		Far:    1000,
	}
}

func (c Camera) Frustum() spatial.Frustum {
	projection := mgl32.Perspective(mgl32.DegToRad(c.FovY), c.Aspect, c.Near, c.Far)
	view := mgl32.LookAtV(c.Eye, c.Target, c.Up)
	return spatial.NewFrustum(projection.Mul4(view))
}

// Viewer is a camera computing visibility against a scene.
type Viewer struct {
	ID   uint32
	Name string

	mutex  sync.RWMutex
	camera Camera
}

func (v *Viewer) SetCamera(c Camera) {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.camera = c
}

func (v *Viewer) Camera() Camera {
	v.mutex.RLock()
	defer v.mutex.RUnlock()

	return v.camera
}

func (v *Viewer) Frustum() spatial.Frustum {
	return v.Camera().Frustum()
}

// Viewer ids start at 1 while octree viewer ids start at 0.
func (v *Viewer) octreeID() octree.ViewerID {
	return octree.ViewerID(v.ID - 1)
}
