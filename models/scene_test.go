package models

import (
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/sjon/octree"
	"github.com/aukilabs/sjon/spatial"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newTestScene(t *testing.T) *Scene {
	tree, err := octree.New(box(-100, -100, -100, 100, 100, 100), octree.Options{
		Name: t.Name(),
	})
	require.NoError(t, err)

	scene := NewScene(tree, time.Millisecond*5)
	t.Cleanup(scene.Close)
	return scene
}

func newTestEntity(b spatial.BoundingBox) *Entity {
	e := &Entity{}
	e.SetBounds(b)
	return e
}

func newTestViewer(t *testing.T, scene *Scene) *Viewer {
	c := DefaultCamera()
	c.Aspect = 1

	v := &Viewer{Name: "camera"}
	v.SetCamera(c)
	require.NoError(t, scene.AddViewer(v))
	return v
}

func TestSceneAddEntity(t *testing.T) {
	t.Run("entities get sequential ids", func(t *testing.T) {
		scene := newTestScene(t)

		for i := 1; i <= 3; i++ {
			e := newTestEntity(box(1, 1, 1, 2, 2, 2))
			require.NoError(t, scene.AddEntity(e))
			require.Equal(t, uint32(i), e.ID)
		}

		require.Equal(t, 3, scene.EntityCount())
		require.Equal(t, 3, scene.DebugInfo().Entries)

		entities := scene.Entities()
		require.Len(t, entities, 3)
		for i, e := range entities {
			require.Equal(t, uint32(i+1), e.ID)
		}

		labels := prometheus.Labels{sceneLabel: scene.SceneUUID}
		require.Equal(t, float64(3), testutil.ToFloat64(sceneEntities.With(labels)))
	})

	t.Run("invalid bounds", func(t *testing.T) {
		scene := newTestScene(t)

		err := scene.AddEntity(newTestEntity(box(2, 2, 2, 1, 1, 1)))
		require.Error(t, err)
		require.Equal(t, octree.ErrTypeDegenerateBounds, errors.Type(err))
		require.Zero(t, scene.EntityCount())

		e := newTestEntity(box(1, 1, 1, 2, 2, 2))
		require.NoError(t, scene.AddEntity(e))
		require.Equal(t, uint32(1), e.ID)
	})

	t.Run("entity outside the scene extends it", func(t *testing.T) {
		scene := newTestScene(t)

		require.NoError(t, scene.AddEntity(newTestEntity(box(500, 0, 0, 501, 1, 1))))
		require.True(t, scene.Bounds().Contains(box(500, 0, 0, 501, 1, 1)))
		require.Equal(t, uint64(1), scene.DebugInfo().Rebuilds)
	})
}

func TestSceneRemoveEntity(t *testing.T) {
	scene := newTestScene(t)

	e := newTestEntity(box(1, 1, 1, 2, 2, 2))
	require.NoError(t, scene.AddEntity(e))
	require.NoError(t, scene.RemoveEntity(e.ID))
	require.Zero(t, scene.EntityCount())

	_, ok := scene.EntityByID(e.ID)
	require.False(t, ok)

	err := scene.RemoveEntity(e.ID)
	require.Error(t, err)
	require.Equal(t, ErrTypeEntityNotFound, errors.Type(err))

	other := newTestEntity(box(1, 1, 1, 2, 2, 2))
	require.NoError(t, scene.AddEntity(other))
	require.Equal(t, e.ID, other.ID)
}

func TestSceneMoveEntity(t *testing.T) {
	scene := newTestScene(t)

	e := newTestEntity(box(1, 1, 1, 2, 2, 2))
	require.NoError(t, scene.AddEntity(e))

	require.NoError(t, scene.MoveEntity(e.ID, box(-5, -5, -5, -4, -4, -4)))
	require.Equal(t, box(-5, -5, -5, -4, -4, -4), e.Bounds())

	err := scene.MoveEntity(e.ID, box(1, 0, 0, 0, 1, 1))
	require.Equal(t, octree.ErrTypeDegenerateBounds, errors.Type(err))
	require.Equal(t, box(-5, -5, -5, -4, -4, -4), e.Bounds())

	err = scene.MoveEntity(42, box(1, 1, 1, 2, 2, 2))
	require.Equal(t, ErrTypeEntityNotFound, errors.Type(err))
}

func TestSceneViewers(t *testing.T) {
	t.Run("add and remove", func(t *testing.T) {
		scene := newTestScene(t)
		v := newTestViewer(t, scene)
		require.Equal(t, uint32(1), v.ID)

		res, ok := scene.ViewerByID(v.ID)
		require.True(t, ok)
		require.Same(t, v, res)
		require.Len(t, scene.Viewers(), 1)

		require.NoError(t, scene.RemoveViewer(v.ID))
		require.Empty(t, scene.Viewers())

		err := scene.RemoveViewer(v.ID)
		require.Equal(t, ErrTypeViewerNotFound, errors.Type(err))
	})

	t.Run("viewer limit", func(t *testing.T) {
		scene := newTestScene(t)
		for i := 0; i < octree.MaxViewers; i++ {
			newTestViewer(t, scene)
		}

		err := scene.AddViewer(&Viewer{})
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeViewerLimit))

		require.NoError(t, scene.RemoveViewer(7))
		v := &Viewer{}
		require.NoError(t, scene.AddViewer(v))
		require.Equal(t, uint32(7), v.ID)
	})
}

func TestSceneTick(t *testing.T) {
	scene := newTestScene(t)
	v := newTestViewer(t, scene)

	front := newTestEntity(box(1, 1, -11, 2, 2, -9))
	require.NoError(t, scene.AddEntity(front))

	behind := newTestEntity(box(1, 1, 9, 2, 2, 11))
	behind.Static = true
	require.NoError(t, scene.AddEntity(behind))

	moving := newTestEntity(box(1, 1, 9, 2, 2, 11))
	moving.SetVelocity(mgl32.Vec3{0, 0, -20})
	require.NoError(t, scene.AddEntity(moving))

	ids, err := scene.VisibleEntities(v.ID)
	require.NoError(t, err)
	require.Empty(t, ids)

	require.NoError(t, scene.Tick(0))
	ids, err = scene.VisibleEntities(v.ID)
	require.NoError(t, err)
	require.Equal(t, []uint32{front.ID}, ids)

	require.NoError(t, scene.Tick(time.Second))
	require.Equal(t, box(1, 1, -11, 2, 2, -9), moving.Bounds())

	ids, err = scene.VisibleEntities(v.ID)
	require.NoError(t, err)
	require.Equal(t, []uint32{front.ID, moving.ID}, ids)

	visible, err := scene.IsEntityVisible(behind.ID, v.ID)
	require.NoError(t, err)
	require.False(t, visible)

	_, err = scene.IsEntityVisible(42, v.ID)
	require.Equal(t, ErrTypeEntityNotFound, errors.Type(err))

	_, err = scene.VisibleEntities(42)
	require.Equal(t, ErrTypeViewerNotFound, errors.Type(err))
}

func TestSceneTickRejectedStep(t *testing.T) {
	scene := newTestScene(t)

	runaway := newTestEntity(box(1, 1, 1, 2, 2, 2))
	runaway.SetVelocity(mgl32.Vec3{3e38, 0, 0})
	require.NoError(t, scene.AddEntity(runaway))

	moving := newTestEntity(box(1, 1, 1, 2, 2, 2))
	moving.SetVelocity(mgl32.Vec3{1, 0, 0})
	require.NoError(t, scene.AddEntity(moving))

	err := scene.Tick(time.Second)
	require.Equal(t, octree.ErrTypeDegenerateBounds, errors.Type(err))
	require.Equal(t, box(1, 1, 1, 2, 2, 2), runaway.Bounds())
	require.Equal(t, box(2, 1, 1, 3, 2, 2), moving.Bounds())

	results, ok := scene.TestRay(spatial.Ray{
		From: mgl32.Vec3{1.5, 1.5, -10},
		To:   mgl32.Vec3{1.5, 1.5, 10},
	})
	require.True(t, ok)
	require.Len(t, results, 1)
	require.Same(t, runaway, results[0].Payload)
}

func TestSceneTestRay(t *testing.T) {
	scene := newTestScene(t)

	e := newTestEntity(box(1, 1, -11, 2, 2, -9))
	e.Shape = ShapeSphere
	require.NoError(t, scene.AddEntity(e))

	hidden := newTestEntity(box(1, 1, -21, 2, 2, -19))
	hidden.Bucket = 5
	require.NoError(t, scene.AddEntity(hidden))

	through := spatial.Ray{
		From: mgl32.Vec3{1.5, 1.5, 0},
		To:   mgl32.Vec3{1.5, 1.5, -50},
	}

	results, ok := scene.TestRay(through)
	require.True(t, ok)
	require.Len(t, results, 2)

	require.NoError(t, scene.SetBucketRayTest(5, false))
	results, ok = scene.TestRay(through)
	require.True(t, ok)
	require.Len(t, results, 1)
	require.Equal(t, octree.ID(e.ID), results[0].ID)
	require.Same(t, e, results[0].Payload)

	corner := spatial.Ray{
		From: mgl32.Vec3{1.05, 1.05, 0},
		To:   mgl32.Vec3{1.05, 1.05, -50},
	}
	results, ok = scene.TestRay(corner)
	require.True(t, ok)
	require.Empty(t, results)
}

func TestSceneSubscribe(t *testing.T) {
	scene := newTestScene(t)

	var kinds []octree.EventKind
	cancel := scene.Subscribe(func(e octree.Event) {
		if e.IsRootLevel() {
			kinds = append(kinds, e.Kind)
		}
	})

	e := newTestEntity(box(-1, -1, -1, 1, 1, 1))
	require.NoError(t, scene.AddEntity(e))
	require.Equal(t, []octree.EventKind{octree.EventInsertEntry}, kinds)

	cancel()
	require.NoError(t, scene.RemoveEntity(e.ID))
	require.Len(t, kinds, 1)
}

func TestSceneHandleFrame(t *testing.T) {
	scene := newTestScene(t)

	cancel := scene.HandleFrame(func() {})
	require.Len(t, scene.frameHandlers, 1)
	defer cancel()

	cancel()
	require.Empty(t, scene.frameHandlers)
}

func TestSceneStartDispatchFrame(t *testing.T) {
	scene := newTestScene(t)

	var wg sync.WaitGroup
	var once sync.Once
	wg.Add(1)

	go scene.StartDispatchFrames()

	scene.HandleFrame(func() {
		once.Do(wg.Done)
	})

	wg.Wait()
	scene.Close()
}
