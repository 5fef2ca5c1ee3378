package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/sjon/featureflag"
	"github.com/aukilabs/sjon/models"
	"github.com/aukilabs/sjon/octree"
	"github.com/aukilabs/sjon/spatial"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	DefaultEventQueueSize    = 1024
	DefaultClientIdleTimeout = time.Minute * 5

	// The header a client can use to provide its own id.
	ClientIDHeader = "X-Client-ID"

	maxPayloadBytes = 1 << 16
	clientIDTag     = "client_id"
	sceneUUIDTag    = "scene_uuid"
)

// RealtimeHandler streams the changes of a scene octree to a client and
// answers its queries.
type RealtimeHandler struct {
	// The time a client is idle before being disconnected. Defaults to
	// DefaultClientIdleTimeout.
	ClientIdleTimeout time.Duration

	// The scene the client is connected to.
	Scene *models.Scene

	FeatureFlags featureflag.FeatureFlag

	// The number of octree changes buffered for the client. Changes that do
	// not fit are dropped.
	EventQueueSize int

	conn         *websocket.Conn
	clientID     string
	events       chan Msg
	cancelEvents func()
	closeOnce    sync.Once
}

func (h *RealtimeHandler) HandleConnect(conn *websocket.Conn) {
	h.conn = conn
	conn.MaxPayloadBytes = maxPayloadBytes

	h.clientID = conn.Request().Header.Get(ClientIDHeader)
	if h.clientID == "" {
		h.clientID = uuid.NewString()
	}

	h.FeatureFlags.IfNotSet(featureflag.FlagDisableEventStream, h.subscribe)
}

// subscribe queues a message for every change of the octree. Callbacks run
// while the scene is locked so they never block.
func (h *RealtimeHandler) subscribe() {
	size := h.EventQueueSize
	if size <= 0 {
		size = DefaultEventQueueSize
	}
	h.events = make(chan Msg, size)

	h.cancelEvents = h.Scene.Subscribe(func(e octree.Event) {
		if !e.IsRootLevel() {
			return
		}

		msg, err := NewMsg(MsgTypeOctreeEvent, 0, OctreeEvent{
			Kind:   e.Kind.String(),
			ID:     uint64(e.ID),
			Depth:  e.Node.Depth(),
			Bounds: e.Node.Bounds(),
		})
		if err != nil {
			logs.WithTag(clientIDTag, h.clientID).Error(err)
			return
		}

		select {
		case h.events <- msg:
		default:
			instrumentDroppedEvent(h.Scene.SceneUUID)
		}
	})
}

func (h *RealtimeHandler) HandleDisconnect(_ error) {
	h.unsubscribe()
}

func (h *RealtimeHandler) SendHello(ctx context.Context, respond ResponseSender) error {
	msg, err := NewMsg(MsgTypeHello, 0, Hello{
		SceneUUID: h.Scene.SceneUUID,
		ClientID:  h.clientID,
		Bounds:    h.Scene.Bounds(),
	})
	if err != nil {
		return err
	}

	respond.Send(msg)
	return nil
}

func (h *RealtimeHandler) HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error {
	res, err := NewMsg(MsgTypePong, msg.RequestID, nil)
	if err != nil {
		return err
	}

	respond.Send(res)
	return nil
}

func (h *RealtimeHandler) HandleRayTest(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req RayTestRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	results, rootHit := h.Scene.TestRay(spatial.Ray{
		From: req.From,
		To:   req.To,
	})
	results.Sort()

	res, err := NewMsg(MsgTypeRayTestResult, msg.RequestID, RayTestResponse{
		RootHit: rootHit,
		Hits:    results,
	})
	if err != nil {
		return err
	}

	respond.Send(res)
	return nil
}

func (h *RealtimeHandler) HandleVisibleEntities(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req VisibleEntitiesRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	ids, err := h.Scene.VisibleEntities(req.ViewerID)
	if errors.IsType(err, models.ErrTypeViewerNotFound) {
		return h.sendError(respond, msg, ErrorCodeViewerNotFound, err)
	} else if err != nil {
		return err
	}

	res, err := NewMsg(MsgTypeVisibleEntitiesResult, msg.RequestID, VisibleEntitiesResponse{
		ViewerID: req.ViewerID,
		IDs:      ids,
	})
	if err != nil {
		return err
	}

	respond.Send(res)
	return nil
}

func (h *RealtimeHandler) HandleUnknown(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.sendError(respond, msg, ErrorCodeUnknownMsgType, nil)
}

func (h *RealtimeHandler) sendError(respond ResponseSender, req Msg, code string, cause error) error {
	data := ErrorResponse{Code: code}
	if cause != nil {
		data.Message = cause.Error()
	}

	res, err := NewMsg(MsgTypeError, req.RequestID, data)
	if err != nil {
		return err
	}

	respond.Send(res)
	return nil
}

func (h *RealtimeHandler) Events() <-chan Msg {
	return h.events
}

func (h *RealtimeHandler) Receiver() Receiver {
	return func() (Msg, int, error) {
		var data []byte
		if err := websocket.Message.Receive(h.conn, &data); err != nil {
			return Msg{}, 0, err
		}

		var msg Msg
		if err := json.Unmarshal(data, &msg); err != nil {
			return Msg{}, len(data), errors.New("decoding message failed").
				WithType(ErrTypeMsgDecoding).
				Wrap(err)
		}
		return msg, len(data), nil
	}
}

func (h *RealtimeHandler) Sender() Sender {
	return func(msg Msg) (int, error) {
		data, err := json.Marshal(msg)
		if err != nil {
			return 0, errors.New("encoding message failed").
				WithType(ErrTypeMsgEncoding).
				WithTag(msgTypeTag, msg.Type).
				Wrap(err)
		}

		if err := websocket.Message.Send(h.conn, string(data)); err != nil {
			return 0, err
		}
		return len(data), nil
	}
}

func (h *RealtimeHandler) Close() {
	h.unsubscribe()
}

func (h *RealtimeHandler) unsubscribe() {
	h.closeOnce.Do(func() {
		if h.cancelEvents != nil {
			h.cancelEvents()
		}
	})
}

func (h *RealtimeHandler) IdleTimeout() time.Duration {
	if h.ClientIdleTimeout <= 0 {
		return DefaultClientIdleTimeout
	}
	return h.ClientIdleTimeout
}

func (h *RealtimeHandler) GetClientID() string {
	return h.clientID
}
