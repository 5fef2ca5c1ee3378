package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/net/websocket"
)

const (
	sendChanSize       = 512
	receiveChanSize    = 64
	disconnectChanSize = 8
)

// Receiver reads the next message of a connection and returns the number of
// bytes read.
type Receiver func() (Msg, int, error)

// Sender writes a message to a connection and returns the number of bytes
// written.
type Sender func(Msg) (int, error)

// ResponseSender queues messages to be sent to the client.
type ResponseSender interface {
	Send(Msg)
}

// Handler represents the server side of a scene connection.
type Handler interface {
	// Handles a client connection.
	HandleConnect(conn *websocket.Conn)

	// Handles a client's disconnection.
	HandleDisconnect(error)

	// Sends the hello message that starts a connection.
	SendHello(ctx context.Context, respond ResponseSender) error

	// Handles a ping request.
	HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to cast a ray into the scene.
	HandleRayTest(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to list the entities seen by a viewer.
	HandleVisibleEntities(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a message with an unsupported type.
	HandleUnknown(ctx context.Context, respond ResponseSender, msg Msg) error

	// The stream of octree changes to forward to the client. A nil channel
	// disables the stream.
	Events() <-chan Msg

	// Creates a message receiver used to receive incoming messages.
	Receiver() Receiver

	// Creates a message sender used to write outgoing messages.
	Sender() Sender

	// Closes the handler and releases its allocated resources.
	Close()

	// The time a client is idle before being disconnected.
	IdleTimeout() time.Duration

	GetClientID() string
}

// Handle serves the given connection with h until the client disconnects or
// ctx is canceled.
func Handle(ctx context.Context, conn *websocket.Conn, h Handler) {
	handler := handler{
		Conn:    conn,
		Handler: h,
	}

	handler.Handle(ctx)
}

type handler struct {
	// The WebSocket connection.
	Conn *websocket.Conn

	Handler Handler

	done           <-chan struct{}
	sendChan       chan Msg
	sender         Sender
	receiveChan    chan Msg
	receiver       Receiver
	disconnectChan chan error
}

func (h *handler) Handle(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	h.done = ctx.Done()

	h.Handler.HandleConnect(h.Conn)

	h.disconnectChan = make(chan error, disconnectChanSize)
	defer func() {
		for len(h.disconnectChan) != 0 {
			<-h.disconnectChan
		}
	}()

	var wg sync.WaitGroup

	h.sendChan = make(chan Msg, sendChanSize)
	h.sender = h.Handler.Sender()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startSending(ctx)
	}()

	h.receiveChan = make(chan Msg, receiveChanSize)
	h.receiver = h.Handler.Receiver()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startReceiving(ctx)
	}()

	idleTimeout := h.Handler.IdleTimeout()
	idleTimer := time.NewTimer(idleTimeout)
	defer idleTimer.Stop()

	responder := responseSender{send: h.send}

	if err := h.Handler.SendHello(ctx, responder); err != nil {
		h.disconnect(errors.New("sending hello failed").Wrap(err))
	}

	events := h.Handler.Events()

	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
			h.handleDisconnect(ctx.Err())

		case <-idleTimer.C:
			h.disconnect(errors.New("idle connection").WithTag("duration", idleTimeout))

		case msg := <-h.receiveChan:
			idleTimer.Stop()
			idleTimer.Reset(idleTimeout)

			if err := h.handleMessage(ctx, msg, responder); err != nil {
				h.disconnect(errors.New("handling message failed").
					WithTag(msgTypeTag, msg.TypeString()).
					Wrap(err))
			}

		case msg := <-events:
			h.send(msg)

		case err := <-h.disconnectChan:
			h.handleDisconnect(err)
			if ctx.Err() == nil {
				// cancel context so go routines can cleanly exit
				cancel()
			}
		}
	}

	wg.Wait()
}

func (h *handler) send(msg Msg) {
	select {
	case h.sendChan <- msg:
	case <-h.done:
	}
}

func (h *handler) startSending(ctx context.Context) {
	defer func() {
		for len(h.sendChan) != 0 {
			<-h.sendChan
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-h.sendChan:
			if _, err := h.sender(msg); err != nil {
				h.disconnect(errors.New("sending message failed").Wrap(err))
				return
			}
		}
	}
}

func (h *handler) startReceiving(ctx context.Context) {
	for {
		msg, _, err := h.receiver()
		if err != nil {
			h.disconnect(errors.New("receiving message failed").Wrap(err))
			return
		}

		select {
		case <-ctx.Done():
			return
		case h.receiveChan <- msg:
		}
	}
}

func (h *handler) handleMessage(ctx context.Context, msg Msg, responder ResponseSender) error {
	switch msg.Type {
	case MsgTypePing:
		return h.Handler.HandlePing(ctx, responder, msg)

	case MsgTypeRayTest:
		return h.Handler.HandleRayTest(ctx, responder, msg)

	case MsgTypeVisibleEntities:
		return h.Handler.HandleVisibleEntities(ctx, responder, msg)

	default:
		return h.Handler.HandleUnknown(ctx, responder, msg)
	}
}

func (h *handler) disconnect(err error) {
	select {
	case h.disconnectChan <- err:
	default:
		logs.WithTag(clientIDTag, h.Handler.GetClientID()).
			Debug(errors.New("disconnection already pending").Wrap(err))
	}
}

func (h *handler) handleDisconnect(err error) {
	h.Conn.Close()
	h.Handler.HandleDisconnect(err)
}

type responseSender struct {
	send func(Msg)
}

func (r responseSender) Send(msg Msg) {
	r.send(msg)
}
