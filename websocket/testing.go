package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

// NewTestingEnv starts a server serving connections with the handlers
// returned by newHandler. Logs are redirected to t until the returned function
// is called.
func NewTestingEnv(t *testing.T, newHandler func() Handler) (dial func(clientID string) *websocket.Conn, close func()) {
	var mutex sync.Mutex
	logger := t.Log

	logs.Encoder = func(v any) ([]byte, error) {
		return json.MarshalIndent(v, "", "  ")
	}

	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()

		if logger != nil {
			logger(e)
		}
	})

	errors.Encoder = json.Marshal

	dial, closeServer := newTestingEnv(t, newHandler)
	return dial, func() {
		mutex.Lock()
		defer mutex.Unlock()
		logger = nil
		closeServer()
	}
}

func newTestingEnv(t *testing.T, newHandler func() Handler) (func(string) *websocket.Conn, func()) {
	server := httptest.NewServer(websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			handler := newHandler()
			defer handler.Close()

			Handle(context.Background(), conn, handler)
		},
	})

	var connsMutex sync.Mutex
	var conns []*websocket.Conn

	dial := func(clientID string) *websocket.Conn {
		config, err := websocket.NewConfig(
			strings.ReplaceAll(server.URL, "http://", "ws://"),
			"http://localhost",
		)
		if err != nil {
			t.Fatalf("error initializing web socket: %s", err)
		}

		config.Header.Set("User-Agent", "ted")
		config.Header.Set("X-Forwarded-For", "192.0.0.0")
		if clientID != "" {
			config.Header.Set(ClientIDHeader, clientID)
		}

		conn, err := websocket.DialConfig(config)
		if err != nil {
			t.Fatalf("error dialing web socket: %s", err)
		}

		connsMutex.Lock()
		conns = append(conns, conn)
		connsMutex.Unlock()
		return conn
	}

	return dial, func() {
		connsMutex.Lock()
		defer connsMutex.Unlock()

		for _, c := range conns {
			c.Close()
		}
		server.Close()
	}
}

// SendTestMsg encodes data and sends it to conn.
func SendTestMsg(t *testing.T, conn *websocket.Conn, msgType string, requestID uint32, data any) {
	msg, err := NewMsg(msgType, requestID, data)
	if err != nil {
		t.Fatalf("error encoding message: %s", err)
	}

	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("error encoding message: %s", err)
	}

	if err := websocket.Message.Send(conn, string(b)); err != nil {
		t.Fatalf("error sending message: %s", err)
	}
}

// ReceiveTestMsg returns the next message of the given type received from
// conn, skipping the others. It fails the test when no such message arrives
// within a second.
func ReceiveTestMsg(t *testing.T, conn *websocket.Conn, msgType string) Msg {
	deadline := time.Now().Add(time.Second)
	conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	for {
		var data []byte
		if err := websocket.Message.Receive(conn, &data); err != nil {
			t.Fatalf("error receiving %s message: %s", msgType, err)
		}

		var msg Msg
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("error decoding message: %s", err)
		}

		if msg.Type == msgType {
			return msg
		}
	}
}
