package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"palaver/internal/models"
	"palaver/internal/registry"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const outboxSize = 64

type wsConnection interface {
	Close() error
	WriteJSON(v any) error
	ReadMessage() (messageType int, p []byte, err error)
}

type messageHub interface {
	Connect(userID string, conn registry.Handle)
	Disconnect(userID string, conn registry.Handle)
	Dispatch(userID string, conn registry.Handle, evt models.ClientEvent)
}

// Connection is one websocket session of an authenticated user. It
// satisfies registry.Handle.
type Connection struct {
	ws         wsConnection
	hub        messageHub
	userID     string
	log        *zap.Logger
	fromClient chan models.ClientEvent
	outbox     chan models.ServerEvent
	done       chan struct{}
	closeOnce  sync.Once
}

func NewConnection(
	hub messageHub,
	ws wsConnection,
	userID string,
	log *zap.Logger,
) *Connection {
	return &Connection{
		ws:         ws,
		hub:        hub,
		userID:     userID,
		log:        log.With(zap.String("user_id", userID)),
		fromClient: make(chan models.ClientEvent),
		outbox:     make(chan models.ServerEvent, outboxSize),
		done:       make(chan struct{}),
	}
}

// Send queues evt for the client. It never blocks: a closed connection or
// a full queue drops the event.
func (c *Connection) Send(evt models.ServerEvent) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.outbox <- evt:
		return true
	default:
		c.log.Warn("outbound queue full, dropping event", zap.String("type", string(evt.Type)))
		return false
	}
}

// Close ends the session. Safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

// Handle registers the connection with the hub and serves it until the
// client goes away, the connection is closed or ctx is done.
func (c *Connection) Handle(ctx context.Context) error {
	c.hub.Connect(c.userID, c)
	defer c.hub.Disconnect(c.userID, c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errorCh := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Go(func() {
		errorCh <- c.pumpMessages(ctx)
		cancel()
	})

	wg.Go(func() {
		errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-errorCh:
	case <-ctx.Done():
	case <-c.done:
	}

	select {
	case <-c.done:
		// Closed by the server, read errors that follow are expected.
		err = nil
	default:
	}
	_ = c.Close()
	wg.Wait()

	if err == nil ||
		errors.Is(err, context.Canceled) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return err
}

func (c *Connection) pumpMessages(ctx context.Context) error {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}

		evt, err := decode(data)
		if err != nil {
			c.log.Debug("rejected client event", zap.Error(err))
			c.Send(models.ServerEvent{
				Type: models.ServerError,
				Data: models.ErrorPayload{Message: err.Error()},
			})
			continue
		}

		select {
		case c.fromClient <- evt:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func decode(data []byte) (models.ClientEvent, error) {
	var env models.ClientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.New("invalid message format")
	}
	return env.Decode()
}

// mainLoop is the only writer to the socket. Events from the client are
// handled one at a time in arrival order.
func (c *Connection) mainLoop(ctx context.Context) error {
	for {
		select {
		case evt := <-c.fromClient:
			select {
			case <-c.done:
				return nil
			default:
			}
			c.hub.Dispatch(c.userID, c, evt)
		case evt := <-c.outbox:
			if err := c.ws.WriteJSON(evt); err != nil {
				return err
			}
		case <-c.done:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}
