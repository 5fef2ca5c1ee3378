package websocket

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/sjon/octree"
	"github.com/aukilabs/sjon/spatial"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/segmentio/encoding/json"
)

const (
	MsgTypeHello                 = "hello"
	MsgTypePing                  = "ping"
	MsgTypePong                  = "pong"
	MsgTypeOctreeEvent           = "octree_event"
	MsgTypeRayTest               = "ray_test"
	MsgTypeRayTestResult         = "ray_test_result"
	MsgTypeVisibleEntities       = "visible_entities"
	MsgTypeVisibleEntitiesResult = "visible_entities_result"
	MsgTypeError                 = "error"
)

const (
	ErrTypeMsgEncoding = "ws-msg-encoding"
	ErrTypeMsgDecoding = "ws-msg-decoding"
)

// Codes sent in error responses.
const (
	ErrorCodeUnknownMsgType = "unknown_msg_type"
	ErrorCodeViewerNotFound = "viewer_not_found"
)

const (
	msgTypeTag       = "msg_type"
	maxMsgTypeLength = 64
	unknownMsgType   = "unknown"
)

// Msg is the JSON envelope of every message exchanged over a connection.
// Responses carry the request id of the message they answer.
type Msg struct {
	Type      string          `json:"type"`
	RequestID uint32          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMsg encodes data into a message of the given type.
func NewMsg(msgType string, requestID uint32, data any) (Msg, error) {
	msg := Msg{
		Type:      msgType,
		RequestID: requestID,
	}
	if data == nil {
		return msg, nil
	}

	b, err := json.Marshal(data)
	if err != nil {
		return Msg{}, errors.New("encoding message data failed").
			WithType(ErrTypeMsgEncoding).
			WithTag(msgTypeTag, msgType).
			Wrap(err)
	}
	msg.Data = b
	return msg, nil
}

// DataTo decodes the message data into v.
func (m Msg) DataTo(v any) error {
	if len(m.Data) == 0 {
		return errors.New("message has no data").
			WithType(ErrTypeMsgDecoding).
			WithTag(msgTypeTag, m.Type)
	}

	if err := json.Unmarshal(m.Data, v); err != nil {
		return errors.New("decoding message data failed").
			WithType(ErrTypeMsgDecoding).
			WithTag(msgTypeTag, m.Type).
			Wrap(err)
	}
	return nil
}

// TypeString returns the message type used in logs and metric labels.
func (m Msg) TypeString() string {
	if m.Type == "" || len(m.Type) > maxMsgTypeLength {
		return unknownMsgType
	}
	return m.Type
}

type Hello struct {
	SceneUUID string              `json:"scene_uuid"`
	ClientID  string              `json:"client_id"`
	Bounds    spatial.BoundingBox `json:"bounds"`
}

// OctreeEvent is a change of the scene octree. Bounds and Depth describe the
// node where the change happened.
type OctreeEvent struct {
	Kind   string              `json:"kind"`
	ID     uint64              `json:"id,omitempty"`
	Depth  int                 `json:"depth"`
	Bounds spatial.BoundingBox `json:"bounds"`
}

type RayTestRequest struct {
	From mgl32.Vec3 `json:"from"`
	To   mgl32.Vec3 `json:"to"`
}

// RayTestResponse lists the hits from the closest to the furthest. RootHit is
// false when the ray does not cross the scene bounds.
type RayTestResponse struct {
	RootHit bool                  `json:"root_hit"`
	Hits    octree.RayTestResults `json:"hits"`
}

type VisibleEntitiesRequest struct {
	ViewerID uint32 `json:"viewer_id"`
}

type VisibleEntitiesResponse struct {
	ViewerID uint32   `json:"viewer_id"`
	IDs      []uint32 `json:"ids"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}
