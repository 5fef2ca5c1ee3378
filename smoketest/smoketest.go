package smoketest

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	sjonwebsocket "github.com/aukilabs/sjon/websocket"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	DefaultTimeout = time.Second * 5

	ErrTypeSmokeTestFailed = "smoke-test-failed"
)

type Options struct {
	// The endpoint tested when a request does not specify one.
	Endpoint  string
	Token     string
	UserAgent string
}

// Request optionally overrides the tested endpoint.
type Request struct {
	Endpoint string        `json:"endpoint,omitempty"`
	Token    string        `json:"token,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty"`
}

type Result struct {
	Endpoint        string  `json:"endpoint"`
	SceneUUID       string  `json:"scene_uuid,omitempty"`
	LatencyMilliSec float64 `json:"latency_ms"`
	RayRootHit      bool    `json:"ray_root_hit"`
	RayHits         int     `json:"ray_hits"`
	Error           string  `json:"error,omitempty"`
}

// HandleSmokeTest connects to a scene endpoint, measures the ping latency and
// casts a ray through the scene. The result is written as JSON.
func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := Request{
			Endpoint: opts.Endpoint,
			Token:    opts.Token,
			Timeout:  DefaultTimeout,
		}

		b, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if len(b) != 0 {
			if err := json.Unmarshal(b, &req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}

		res, err := Run(ctx, opts.UserAgent, req)
		if err != nil {
			logs.WithTag("endpoint", req.Endpoint).Error(err)
		}

		body, err := json.Marshal(res)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if res.Error != "" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		w.Write(body)
	}
}

// Run performs a smoke test against the endpoint of req.
func Run(ctx context.Context, userAgent string, req Request) (Result, error) {
	res := Result{Endpoint: req.Endpoint}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := run(ctx, userAgent, req, &res)
	if err != nil {
		err = errors.New("smoke test failed").
			WithType(ErrTypeSmokeTestFailed).
			WithTag("endpoint", req.Endpoint).
			Wrap(err)
		res.Error = err.Error()
	}
	return res, err
}

func run(ctx context.Context, userAgent string, req Request, res *Result) error {
	config, err := websocket.NewConfig(toWebsocketURL(req.Endpoint), req.Endpoint)
	if err != nil {
		return err
	}
	if userAgent != "" {
		config.Header.Set("User-Agent", userAgent)
	}
	if req.Token != "" {
		config.Header.Set("Authorization", "Bearer "+req.Token)
	}

	conn, err := config.DialContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	var hello sjonwebsocket.Hello
	if err := receive(conn, sjonwebsocket.MsgTypeHello, &hello); err != nil {
		return err
	}
	res.SceneUUID = hello.SceneUUID

	start := time.Now()
	if err := send(conn, sjonwebsocket.MsgTypePing, 1, nil); err != nil {
		return err
	}
	if err := receive(conn, sjonwebsocket.MsgTypePong, nil); err != nil {
		return err
	}
	res.LatencyMilliSec = float64(time.Since(start).Microseconds()) / 1000

	center := hello.Bounds.Center()
	size := hello.Bounds.Size()
	if err := send(conn, sjonwebsocket.MsgTypeRayTest, 2, sjonwebsocket.RayTestRequest{
		From: center.Sub(mgl32.Vec3{0, 0, size[2]}),
		To:   center.Add(mgl32.Vec3{0, 0, size[2]}),
	}); err != nil {
		return err
	}

	var rayTest sjonwebsocket.RayTestResponse
	if err := receive(conn, sjonwebsocket.MsgTypeRayTestResult, &rayTest); err != nil {
		return err
	}
	res.RayRootHit = rayTest.RootHit
	res.RayHits = len(rayTest.Hits)

	if !rayTest.RootHit {
		return errors.New("ray through the scene center missed the scene")
	}
	return nil
}

func send(conn *websocket.Conn, msgType string, requestID uint32, data any) error {
	msg, err := sjonwebsocket.NewMsg(msgType, requestID, data)
	if err != nil {
		return err
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return websocket.Message.Send(conn, string(b))
}

// receive decodes the data of the next message of the given type into v,
// skipping octree events.
func receive(conn *websocket.Conn, msgType string, v any) error {
	for {
		var data []byte
		if err := websocket.Message.Receive(conn, &data); err != nil {
			return err
		}

		var msg sjonwebsocket.Msg
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}

		switch msg.Type {
		case msgType:
			if v == nil {
				return nil
			}
			return msg.DataTo(v)

		case sjonwebsocket.MsgTypeError:
			var e sjonwebsocket.ErrorResponse
			msg.DataTo(&e)
			return errors.New("server responded with an error").
				WithTag("code", e.Code).
				WithTag("message", e.Message)
		}
	}
}

func toWebsocketURL(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		return "ws://" + strings.TrimPrefix(endpoint, "http://")
	default:
		return endpoint
	}
}
