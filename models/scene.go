package models

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/sjon/octree"
	"github.com/aukilabs/sjon/spatial"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	ErrTypeEntityNotFound = "scene-entity-not-found"
	ErrTypeViewerNotFound = "scene-viewer-not-found"
	ErrTypeViewerLimit    = "scene-viewer-limit"
)

// Scene represents a set of entities indexed in an octree and the viewers
// looking at them.
//
// Entity changes are serialized with a write lock. Visibility passes and ray
// tests share a read lock so they can run concurrently between changes.
type Scene struct {
	SceneUUID string

	mutex     sync.RWMutex
	tree      *octree.Tree
	entityIDs IDPool
	entities  map[uint32]*Entity
	viewerIDs IDPool
	viewers   map[uint32]*Viewer

	startFrameOnce  sync.Once
	closeFrameChan  chan struct{}
	frameTicker     *time.Ticker
	frameHandlerIDs IDPool
	frameHandlers   map[uint32]func()
	frameMutex      sync.RWMutex

	closeOnce sync.Once
}

func NewScene(tree *octree.Tree, frameDuration time.Duration) *Scene {
	return &Scene{
		SceneUUID:      uuid.New().String(),
		tree:           tree,
		entities:       make(map[uint32]*Entity),
		viewerIDs:      IDPool{Max: octree.MaxViewers},
		viewers:        make(map[uint32]*Viewer),
		closeFrameChan: make(chan struct{}, 1),
		frameTicker:    time.NewTicker(frameDuration),
		frameHandlers:  make(map[uint32]func()),
	}
}

func (s *Scene) Close() {
	s.closeOnce.Do(func() {
		s.frameTicker.Stop()
		s.closeFrameChan <- struct{}{}
	})
}

// AddEntity assigns an id to the entity and indexes it.
func (s *Scene) AddEntity(e *Entity) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	id, err := s.entityIDs.New()
	if err != nil {
		instrumentError(s.SceneUUID, err)
		return err
	}
	e.ID = id

	if err := s.tree.Insert(e.octreeID(), e.Bounds(), e.octreeOptions()...); err != nil {
		s.entityIDs.Release(id)
		e.ID = 0
		instrumentError(s.SceneUUID, err)
		return err
	}

	s.entities[id] = e
	instrumentEntityCount(s.SceneUUID, len(s.entities))

	logs.WithTag("scene_uuid", s.SceneUUID).
		WithTag("entity_id", id).
		WithTag("bounds", e.Bounds().String()).
		Debug("entity added")
	return nil
}

func (s *Scene) RemoveEntity(id uint32) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, ok := s.entities[id]
	if !ok {
		return s.entityNotFound(id)
	}

	if err := s.tree.Remove(e.octreeID()); err != nil {
		instrumentError(s.SceneUUID, err)
		return err
	}

	delete(s.entities, id)
	s.entityIDs.Release(id)
	instrumentEntityCount(s.SceneUUID, len(s.entities))

	logs.WithTag("scene_uuid", s.SceneUUID).
		WithTag("entity_id", id).
		Debug("entity removed")
	return nil
}

// MoveEntity sets the bounds of an entity and relocates it in the octree.
func (s *Scene) MoveEntity(id uint32, b spatial.BoundingBox) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, ok := s.entities[id]
	if !ok {
		return s.entityNotFound(id)
	}

	if err := s.tree.Update(e.octreeID(), b); err != nil {
		instrumentError(s.SceneUUID, err)
		return err
	}
	e.SetBounds(b)
	return nil
}

func (s *Scene) EntityByID(id uint32) (*Entity, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	e, ok := s.entities[id]
	return e, ok
}

// Entities returns the entities of the scene ordered by id.
func (s *Scene) Entities() []*Entity {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entities := make([]*Entity, 0, len(s.entities))
	for _, e := range s.entities {
		entities = append(entities, e)
	}

	slices.SortFunc(entities, func(a, b *Entity) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return entities
}

func (s *Scene) EntityCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.entities)
}

// AddViewer assigns an id to the viewer. A scene tracks at most
// octree.MaxViewers viewers.
func (s *Scene) AddViewer(v *Viewer) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	id, err := s.viewerIDs.New()
	if err != nil {
		err = errors.New("scene viewer limit reached").
			WithType(ErrTypeViewerLimit).
			WithTag("scene_uuid", s.SceneUUID).
			WithTag("max_viewers", octree.MaxViewers).
			Wrap(err)
		instrumentError(s.SceneUUID, err)
		return err
	}

	v.ID = id
	s.viewers[id] = v
	instrumentViewerCount(s.SceneUUID, len(s.viewers))

	logs.WithTag("scene_uuid", s.SceneUUID).
		WithTag("viewer_id", id).
		WithTag("viewer_name", v.Name).
		Debug("viewer added")
	return nil
}

func (s *Scene) RemoveViewer(id uint32) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.viewers[id]; !ok {
		return s.viewerNotFound(id)
	}

	delete(s.viewers, id)
	s.viewerIDs.Release(id)
	instrumentViewerCount(s.SceneUUID, len(s.viewers))

	logs.WithTag("scene_uuid", s.SceneUUID).
		WithTag("viewer_id", id).
		Debug("viewer removed")
	return nil
}

func (s *Scene) ViewerByID(id uint32) (*Viewer, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	v, ok := s.viewers[id]
	return v, ok
}

// Viewers returns the viewers of the scene ordered by id.
func (s *Scene) Viewers() []*Viewer {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	viewers := make([]*Viewer, 0, len(s.viewers))
	for _, v := range s.viewers {
		viewers = append(viewers, v)
	}

	slices.SortFunc(viewers, func(a, b *Viewer) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return viewers
}

// Tick moves every entity by its velocity over dt, then computes the
// visibility of every viewer.
func (s *Scene) Tick(dt time.Duration) error {
	start := time.Now()
	defer func() {
		instrumentFrame(s.SceneUUID, time.Since(start))
	}()

	if err := s.stepEntities(dt); err != nil {
		return err
	}
	return s.UpdateVisibility()
}

func (s *Scene) stepEntities(dt time.Duration) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var firstErr error
	for _, e := range s.entities {
		if e.Static {
			continue
		}

		b := e.NextBounds(dt)
		if err := s.tree.Update(e.octreeID(), b); err != nil {
			instrumentError(s.SceneUUID, err)
			logs.WithTag("scene_uuid", s.SceneUUID).
				WithTag("entity_id", e.ID).
				Error(err)

			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		e.SetBounds(b)
	}
	return firstErr
}

// UpdateVisibility computes the visibility of every viewer concurrently.
func (s *Scene) UpdateVisibility() error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var g errgroup.Group
	for _, v := range s.viewers {
		g.Go(func() error {
			return s.tree.CalculateVisibility(v.octreeID(), v.Frustum())
		})
	}

	if err := g.Wait(); err != nil {
		instrumentError(s.SceneUUID, err)
		return err
	}
	return nil
}

// TestRay returns the entities hit by the ray. The boolean is false when the
// ray misses the indexed space.
func (s *Scene) TestRay(r spatial.Ray) (octree.RayTestResults, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.tree.TestRay(r)
}

// SetBucketRayTest enables or disables ray testing for the entities of a
// bucket.
func (s *Scene) SetBucketRayTest(b octree.Bucket, enabled bool) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.tree.SetBucketRayTest(b, enabled)
}

// VisibleEntities returns the ids of the entities visible during the last
// visibility pass of the viewer, ordered by id.
func (s *Scene) VisibleEntities(viewerID uint32) ([]uint32, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	v, ok := s.viewers[viewerID]
	if !ok {
		return nil, s.viewerNotFound(viewerID)
	}

	visible := s.tree.VisibleEntries(v.octreeID())
	ids := make([]uint32, len(visible))
	for i, id := range visible {
		ids[i] = uint32(id)
	}

	slices.Sort(ids)
	return ids, nil
}

func (s *Scene) IsEntityVisible(entityID uint32, viewerID uint32) (bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	e, ok := s.entities[entityID]
	if !ok {
		return false, s.entityNotFound(entityID)
	}

	v, ok := s.viewers[viewerID]
	if !ok {
		return false, s.viewerNotFound(viewerID)
	}

	return s.tree.IsEntryVisible(e.octreeID(), v.octreeID())
}

// Subscribe registers a handler called on every octree change. Handlers run
// while the scene is locked: they must not block nor call the scene.
func (s *Scene) Subscribe(h octree.EventHandler) (cancel func()) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	unregister := s.tree.RegisterCallback(h)

	return func() {
		s.mutex.Lock()
		defer s.mutex.Unlock()

		unregister()
	}
}

func (s *Scene) Bounds() spatial.BoundingBox {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.tree.Bounds()
}

func (s *Scene) DebugInfo() octree.DebugInfo {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.tree.GetDebugInfo()
}

func (s *Scene) HandleFrame(h func()) (cancel func()) {
	s.frameMutex.Lock()
	defer s.frameMutex.Unlock()

	id, _ := s.frameHandlerIDs.New()
	s.frameHandlers[id] = h

	return func() {
		s.frameMutex.Lock()
		defer s.frameMutex.Unlock()

		delete(s.frameHandlers, id)
		s.frameHandlerIDs.Release(id)
	}
}

func (s *Scene) StartDispatchFrames() {
	s.startFrameOnce.Do(func() {
		for {
			select {
			case <-s.closeFrameChan:
				return

			case <-s.frameTicker.C:
				s.frameMutex.RLock()
				for _, h := range s.frameHandlers {
					h()
				}
				s.frameMutex.RUnlock()
			}
		}
	})
}

func (s *Scene) entityNotFound(id uint32) error {
	return errors.New("entity not found").
		WithType(ErrTypeEntityNotFound).
		WithTag("scene_uuid", s.SceneUUID).
		WithTag("entity_id", id)
}

func (s *Scene) viewerNotFound(id uint32) error {
	return errors.New("viewer not found").
		WithType(ErrTypeViewerNotFound).
		WithTag("scene_uuid", s.SceneUUID).
		WithTag("viewer_id", id)
}
