package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"reflect"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/sjon/featureflag"
	sjonhttp "github.com/aukilabs/sjon/http"
	"github.com/aukilabs/sjon/models"
	"github.com/aukilabs/sjon/octree"
	"github.com/aukilabs/sjon/simulation"
	"github.com/aukilabs/sjon/smoketest"
	"github.com/aukilabs/sjon/spatial"
	sjonwebsocket "github.com/aukilabs/sjon/websocket"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
	"golang.org/x/sync/errgroup"
)

var (
	// The sjon version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "sjon_info",
		Help:        "Sjon information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr               string           `cli:""        env:"SJON_ADDR"                 help:"Listening address for client connections."`
	AdminAddr          string           `cli:""        env:"SJON_ADMIN_ADDR"           help:"Admin listening address."`
	PublicEndpoint     string           `cli:""        env:"SJON_PUBLIC_ENDPOINT"      help:"The public endpoint where this server is reachable."`
	StreamToken        string           `cli:""        env:"SJON_STREAM_TOKEN"         help:"The token clients must present to connect. Empty accepts everyone."`
	LogLevel           string           `cli:""        env:"SJON_LOG_LEVEL"            help:"Log level (debug|info|warning|error)."`
	LogIndent          bool             `cli:""        env:"SJON_LOG_INDENT"           help:"Indent logs."`
	FrameDuration      time.Duration    `cli:""        env:"SJON_FRAME_DURATION"       help:"The duration of a simulation frame."`
	ClientIdleTimeout  time.Duration    `cli:",hidden" env:"SJON_CLIENT_IDLE_TIMEOUT"  help:"Time until an idle client will be disconnected."`
	EventQueueSize     int              `cli:",hidden" env:"SJON_EVENT_QUEUE_SIZE"     help:"The number of octree changes buffered for each client."`
	LogSummaryInterval time.Duration    `cli:",hidden" env:"SJON_LOG_SUMMARY_INTERVAL" help:"The duration between each log summary by connection."`
	Octree             octreeConfig     `cli:""        env:"-"                         help:"Octree configuration."`
	Simulation         simulationConfig `cli:""        env:"-"                         help:"Simulation configuration."`
	Events             eventsConfig     `cli:",hidden" env:"-"                         help:"Event pusher configuration."`
	FeatureFlags       []string         `cli:",hidden" env:"SJON_FEATURE_FLAGS"        help:"Comma separated feature flags."`
	Version            bool             `cli:""        env:"-"                         help:"Show version."`
	Help               bool             `cli:""        env:"-"                         help:"Show help."`
}

type octreeConfig struct {
	HalfExtent   float64 `cli:"" env:"SJON_OCTREE_HALF_EXTENT"   help:"The half extent of the initial octree root."`
	MaxDepth     int     `cli:"" env:"SJON_OCTREE_MAX_DEPTH"     help:"The maximum depth of the octree."`
	GrowthFactor float64 `cli:"" env:"SJON_OCTREE_GROWTH_FACTOR" help:"How much the root grows when an entity escapes it."`
}

type simulationConfig struct {
	Seed            int     `cli:"" env:"SJON_SIMULATION_SEED"              help:"The seed of the simulation."`
	Entities        int     `cli:"" env:"SJON_SIMULATION_ENTITIES"          help:"The number of simulated entities."`
	Viewers         int     `cli:"" env:"SJON_SIMULATION_VIEWERS"           help:"The number of simulated viewers."`
	StaticRatio     float64 `cli:"" env:"SJON_SIMULATION_STATIC_RATIO"      help:"The ratio of entities that never move."`
	WorldHalfExtent float64 `cli:"" env:"SJON_SIMULATION_WORLD_HALF_EXTENT" help:"The half extent of the box entities bounce in."`
	MaxSpeed        float64 `cli:"" env:"SJON_SIMULATION_MAX_SPEED"         help:"The maximum entity speed, in units per second."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"SJON_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"SJON_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"SJON_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"SJON_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:               ":4000",
		AdminAddr:          ":18190",
		PublicEndpoint:     "http://localhost:4000",
		LogLevel:           logs.InfoLevel.String(),
		FrameDuration:      time.Millisecond * 50,
		ClientIdleTimeout:  sjonwebsocket.DefaultClientIdleTimeout,
		EventQueueSize:     sjonwebsocket.DefaultEventQueueSize,
		LogSummaryInterval: time.Minute,
		Octree: octreeConfig{
			HalfExtent:   128,
			MaxDepth:     octree.DefaultMaxDepth,
			GrowthFactor: octree.DefaultGrowthFactor,
		},
		Simulation: simulationConfig{
			Seed:            1,
			Entities:        1000,
			Viewers:         4,
			StaticRatio:     0.3,
			WorldHalfExtent: 160,
			MaxSpeed:        simulation.DefaultMaxSpeed,
		},
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts the sjon octree server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	transport := metrics.HTTPTransport(http.DefaultTransport)

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     transport,
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "sjon",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	flags := featureflag.New(conf.FeatureFlags)

	half := float32(conf.Octree.HalfExtent)
	tree, err := octree.New(spatial.NewBoundingBox(mgl32.Vec3{-half, -half, -half}, mgl32.Vec3{half, half, half}), octree.Options{
		Name:                     "scene",
		MaxDepth:                 conf.Octree.MaxDepth,
		GrowthFactor:             float32(conf.Octree.GrowthFactor),
		DisableFlickerPrevention: flags.IsSet(featureflag.FlagDisableFlickerPrevention),
		DisableCollapse:          flags.IsSet(featureflag.FlagDisableCollapse),
	})
	if err != nil {
		logs.Fatal(errors.New("creating octree failed").Wrap(err))
	}

	scene := models.NewScene(tree, conf.FrameDuration)
	defer scene.Close()

	sim := simulation.New(scene, simulation.Options{
		Seed:            uint64(conf.Simulation.Seed),
		Entities:        conf.Simulation.Entities,
		Viewers:         conf.Simulation.Viewers,
		StaticRatio:     float32(conf.Simulation.StaticRatio),
		WorldHalfExtent: float32(conf.Simulation.WorldHalfExtent),
		MaxSpeed:        float32(conf.Simulation.MaxSpeed),
	})

	var ready atomic.Bool
	readinessCheck := func() bool {
		return ready.Load()
	}

	var service http.ServeMux
	service.Handle(sjonhttp.RouteHealth, sjonhttp.HandleWithCORS(http.HandlerFunc(sjonhttp.HandleHealthCheck)))
	service.Handle(sjonhttp.RouteVersion, sjonhttp.HandleWithCORS(sjonhttp.HandleVersion(version)))
	service.Handle(sjonhttp.RouteReady, sjonhttp.HandleWithCORS(sjonhttp.HandleReadyCheck(readinessCheck)))
	service.Handle(sjonhttp.RouteDebugOctree, sjonhttp.HandleWithCORS(
		sjonhttp.VerifyTokenHandler(conf.StreamToken, sjonhttp.HandleDebugInfo(scene.DebugInfo)),
	))

	service.Handle("/", websocket.Server{
		Handshake: sjonhttp.VerifyToken(conf.StreamToken),
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			var rh sjonwebsocket.Handler = &sjonwebsocket.RealtimeHandler{
				ClientIdleTimeout: conf.ClientIdleTimeout,
				Scene:             scene,
				FeatureFlags:      flags,
				EventQueueSize:    conf.EventQueueSize,
			}
			h := sjonwebsocket.HandlerWithLogs(rh, scene.SceneUUID, conf.LogSummaryInterval)
			h = sjonwebsocket.HandlerWithMetrics(h, conf.PublicEndpoint)
			defer h.Close()

			sjonwebsocket.Handle(ctx, conn, h)
		},
	})

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", sjonhttp.HandleHealthCheck)
	admin.HandleFunc("/ready", sjonhttp.HandleReadyCheck(readinessCheck))
	admin.HandleFunc("/debug/octree", sjonhttp.HandleDebugInfo(scene.DebugInfo))
	admin.HandleFunc("/smoke-test", smoketest.HandleSmokeTest(ctx, smoketest.Options{
		Endpoint:  conf.PublicEndpoint,
		Token:     conf.StreamToken,
		UserAgent: fmt.Sprintf("sjon %s", version),
	}))
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("scene_uuid", scene.SceneUUID).
		WithTag("feature_flags", conf.FeatureFlags).
		Info("starting sjon server")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := sim.Populate(); err != nil {
			return errors.New("populating scene failed").Wrap(err)
		}

		scene.HandleFrame(func() {
			if err := sim.Step(conf.FrameDuration); err != nil {
				logs.WithTag("scene_uuid", scene.SceneUUID).Error(err)
			}
		})
		ready.Store(true)

		scene.StartDispatchFrames()
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		scene.Close()
		return nil
	})

	g.Go(func() error {
		sjonhttp.ListenAndServe(ctx,
			&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
				sjonhttp.MetricsPathFormatter)},
			&http.Server{Addr: conf.AdminAddr, Handler: &admin},
		)
		return nil
	})

	if err := g.Wait(); err != nil {
		logs.Fatal(err)
	}
}

func validateConfig(conf config) error {
	if _, err := url.ParseRequestURI(conf.PublicEndpoint); err != nil {
		return errors.New("invalid public endpoint").Wrap(err)
	}

	if conf.FrameDuration <= 0 {
		return errors.New("frame duration must be positive").
			WithTag("frame_duration", conf.FrameDuration)
	}

	if conf.Octree.HalfExtent <= 0 {
		return errors.New("octree half extent must be positive").
			WithTag("half_extent", conf.Octree.HalfExtent)
	}

	if conf.Simulation.Entities < 0 {
		return errors.New("simulated entities can't be negative").
			WithTag("entities", conf.Simulation.Entities)
	}

	if conf.Simulation.Viewers < 0 || conf.Simulation.Viewers > octree.MaxViewers {
		return errors.Newf("simulated viewers must be between 0 and %d", octree.MaxViewers).
			WithTag("viewers", conf.Simulation.Viewers)
	}

	return nil
}
