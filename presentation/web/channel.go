package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"selfheal/application/healing"
	"selfheal/domain/entities"
	"selfheal/domain/interfaces"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Outbound events queued ahead of the writer before Send blocks.
	sendQueue = 64
)

var errChannelClosed = errors.New("channel closed")

// ControllerFactory builds the execution controller owned by one channel
type ControllerFactory func(sink interfaces.EventSink) *healing.Controller

// inbound is the envelope of client to server messages
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ChannelHandler upgrades requests to realtime channels
type ChannelHandler struct {
	newController  ControllerFactory
	logger         *logrus.Logger
	upgrader       websocket.Upgrader
	maxMessageSize int64
}

// NewChannelHandler - allowedOrigins empty means same origin only
func NewChannelHandler(factory ControllerFactory, logger *logrus.Logger, allowedOrigins []string, maxMessageSize int64) *ChannelHandler {
	h := &ChannelHandler{
		newController:  factory,
		logger:         logger,
		maxMessageSize: maxMessageSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	if len(allowedOrigins) > 0 {
		h.upgrader.CheckOrigin = originChecker(allowedOrigins)
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || set["*"] {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return set[strings.ToLower(u.Scheme+"://"+u.Host)]
	}
}

// ServeHTTP runs one channel until the client disconnects
func (h *ChannelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	c := &channel{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, sendQueue),
		done:   make(chan struct{}),
		logger: h.logger,
	}
	c.controller = h.newController(c)
	log := h.logger.WithField("channel_id", c.id)
	log.Info("Channel connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()

	c.readPump(h.maxMessageSize)

	// disconnect cancels the session, it emits nothing further
	c.shutdown()
	c.controller.Close()
	<-writerDone
	log.Info("Channel disconnected")
}

// channel is one websocket connection and its execution controller
type channel struct {
	id         string
	conn       *websocket.Conn
	controller *healing.Controller
	logger     *logrus.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// Send queues an event for the writer. It blocks while the queue is full
// and fails only once the channel is gone.
func (c *channel) Send(ctx context.Context, event entities.Event) error {
	msg, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Name, err)
	}

	select {
	case <-c.done:
		return errChannelClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return errChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *channel) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// readPump dispatches client messages until the connection fails
func (c *channel) readPump(maxMessageSize int64) {
	log := c.logger.WithField("channel_id", c.id)

	if maxMessageSize > 0 {
		c.conn.SetReadLimit(maxMessageSize)
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("Websocket read error")
			}
			return
		}
		c.dispatch(log, message)
	}
}

func (c *channel) dispatch(log *logrus.Entry, message []byte) {
	ctx := context.Background()

	var in inbound
	if err := json.Unmarshal(message, &in); err != nil {
		log.WithError(err).Debug("Malformed message")
		c.reject(ctx, fmt.Errorf("%w: malformed message", entities.ErrInvalidRequest))
		return
	}

	switch in.Event {
	case entities.EventExecuteScript:
		var req entities.ExecuteRequest
		if err := json.Unmarshal(in.Data, &req); err != nil {
			c.reject(ctx, fmt.Errorf("%w: malformed execute_script payload", entities.ErrInvalidRequest))
			return
		}
		if err := c.controller.Execute(ctx, req); err != nil {
			log.WithError(err).Debug("Execute rejected")
		}

	case entities.EventElementClicked:
		var correction entities.Correction
		if err := json.Unmarshal(in.Data, &correction); err != nil {
			log.WithError(err).Debug("Dropped malformed correction")
			return
		}
		c.controller.Correct(correction.Selector)

	default:
		log.WithField("event", in.Event).Debug("Ignoring unknown event")
	}
}

func (c *channel) reject(ctx context.Context, err error) {
	if sendErr := c.Send(ctx, entities.StatusEvent(entities.StatusError, "Error: "+err.Error())); sendErr != nil {
		c.logger.WithError(sendErr).Debug("Failed to report rejected message")
	}
}

// writePump writes queued events, one frame per event, and keeps the
// connection alive with pings
func (c *channel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case <-c.done:
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.WithError(err).WithField("channel_id", c.id).Debug("Websocket write failed")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
