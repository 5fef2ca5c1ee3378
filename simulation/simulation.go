package simulation

import (
	"fmt"
	"math"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/sjon/models"
	"github.com/aukilabs/sjon/octree"
	"github.com/aukilabs/sjon/spatial"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/exp/rand"
)

const (
	DefaultWorldHalfExtent = 100
	DefaultMaxSpeed        = 10
	DefaultEntitySize      = 2
	DefaultBuckets         = 4
)

// Options configures how a scene is populated and animated.
type Options struct {
	// The seed of the random source. Runs with the same seed and options
	// produce the same scene.
	Seed uint64

	// The number of entities and viewers created by Populate.
	Entities int
	Viewers  int

	// The ratio of entities that never move, between 0 and 1.
	StaticRatio float32

	// Entities move inside a cube of this half extent centered on the
	// origin. A world larger than the scene bounds makes the octree extend.
	WorldHalfExtent float32

	// The maximum speed of moving entities, in units per second.
	MaxSpeed float32

	// The maximum edge length of an entity bounding box.
	EntitySize float32

	// Entities are spread across this many ray test buckets.
	Buckets int
}

type orbit struct {
	radius float32
	height float32
	angle  float64
	speed  float64
}

// Simulation moves entities inside a world box and makes viewers orbit around
// its center.
type Simulation struct {
	scene  *models.Scene
	opts   Options
	rand   *rand.Rand
	world  spatial.BoundingBox
	orbits map[uint32]*orbit
}

func New(scene *models.Scene, opts Options) *Simulation {
	if opts.WorldHalfExtent <= 0 {
		opts.WorldHalfExtent = DefaultWorldHalfExtent
	}
	if opts.MaxSpeed <= 0 {
		opts.MaxSpeed = DefaultMaxSpeed
	}
	if opts.EntitySize <= 0 {
		opts.EntitySize = DefaultEntitySize
	}
	if opts.Buckets <= 0 {
		opts.Buckets = DefaultBuckets
	}
	opts.Buckets = min(opts.Buckets, octree.MaxBuckets)
	opts.StaticRatio = mgl32.Clamp(opts.StaticRatio, 0, 1)

	h := opts.WorldHalfExtent
	return &Simulation{
		scene:  scene,
		opts:   opts,
		rand:   rand.New(rand.NewSource(opts.Seed)),
		world:  spatial.NewBoundingBox(mgl32.Vec3{-h, -h, -h}, mgl32.Vec3{h, h, h}),
		orbits: make(map[uint32]*orbit),
	}
}

// World returns the box entities bounce in.
func (s *Simulation) World() spatial.BoundingBox {
	return s.world
}

// Populate adds the configured entities and viewers to the scene.
func (s *Simulation) Populate() error {
	for i := 0; i < s.opts.Entities; i++ {
		if err := s.scene.AddEntity(s.newEntity()); err != nil {
			return err
		}
	}

	for i := 0; i < s.opts.Viewers; i++ {
		v, o := s.newViewer(i)
		if err := s.scene.AddViewer(v); err != nil {
			return err
		}
		s.orbits[v.ID] = o
	}

	logs.WithTag("scene_uuid", s.scene.SceneUUID).
		WithTag("entities", s.opts.Entities).
		WithTag("viewers", s.opts.Viewers).
		WithTag("seed", s.opts.Seed).
		Info("scene populated")
	return nil
}

// Step makes entities bounce off the world walls, moves viewers along their
// orbit and ticks the scene.
func (s *Simulation) Step(dt time.Duration) error {
	for _, e := range s.scene.Entities() {
		s.bounce(e)
	}

	for _, v := range s.scene.Viewers() {
		o, ok := s.orbits[v.ID]
		if !ok {
			continue
		}

		o.angle = math.Mod(o.angle+o.speed*dt.Seconds(), 2*math.Pi)
		v.SetCamera(o.camera(v.Camera()))
	}

	return s.scene.Tick(dt)
}

func (s *Simulation) newEntity() *models.Entity {
	size := mgl32.Vec3{
		s.between(s.opts.EntitySize/4, s.opts.EntitySize),
		s.between(s.opts.EntitySize/4, s.opts.EntitySize),
		s.between(s.opts.EntitySize/4, s.opts.EntitySize),
	}
	center := s.pointIn(s.world.Scale(0.9))

	e := &models.Entity{
		Bucket: octree.Bucket(s.rand.Intn(s.opts.Buckets)),
		Static: s.rand.Float32() < s.opts.StaticRatio,
	}
	if s.rand.Intn(2) == 0 {
		e.Shape = models.ShapeSphere
	}
	e.SetBounds(spatial.NewBoundingBoxFromCenter(center, size.Mul(0.5)))

	if !e.Static {
		direction := mgl32.Vec3{
			s.between(-1, 1),
			s.between(-1, 1),
			s.between(-1, 1),
		}
		if direction.Len() == 0 {
			direction = mgl32.Vec3{1, 0, 0}
		}
		e.SetVelocity(direction.Normalize().Mul(s.between(s.opts.MaxSpeed/10, s.opts.MaxSpeed)))
	}
	return e
}

func (s *Simulation) newViewer(i int) (*models.Viewer, *orbit) {
	o := &orbit{
		radius: s.between(s.opts.WorldHalfExtent/4, s.opts.WorldHalfExtent),
		height: s.between(-s.opts.WorldHalfExtent/2, s.opts.WorldHalfExtent/2),
		angle:  s.rand.Float64() * 2 * math.Pi,
		speed:  0.1 + s.rand.Float64()*0.4,
	}

	v := &models.Viewer{Name: fmt.Sprintf("viewer-%d", i)}
	v.SetCamera(o.camera(models.DefaultCamera()))
	return v, o
}

// bounce reverses the velocity of an entity on each axis where it touches a
// world wall while heading outwards.
func (s *Simulation) bounce(e *models.Entity) {
	if e.Static {
		return
	}

	b := e.Bounds()
	v := e.Velocity()
	changed := false

	for axis := 0; axis < 3; axis++ {
		if (b.Min[axis] <= s.world.Min[axis] && v[axis] < 0) ||
			(b.Max[axis] >= s.world.Max[axis] && v[axis] > 0) {
			v[axis] = -v[axis]
			changed = true
		}
	}

	if changed {
		e.SetVelocity(v)
	}
}

func (s *Simulation) between(min, max float32) float32 {
	return min + s.rand.Float32()*(max-min)
}

func (s *Simulation) pointIn(b spatial.BoundingBox) mgl32.Vec3 {
	return mgl32.Vec3{
		s.between(b.Min[0], b.Max[0]),
		s.between(b.Min[1], b.Max[1]),
		s.between(b.Min[2], b.Max[2]),
	}
}

func (o *orbit) camera(c models.Camera) models.Camera {
	c.Eye = mgl32.Vec3{
		o.radius * float32(math.Cos(o.angle)),
		o.height,
		o.radius * float32(math.Sin(o.angle)),
	}
	c.Target = mgl32.Vec3{}
	c.Up = mgl32.Vec3{0, 1, 0}
	return c
}
