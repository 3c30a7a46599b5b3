package transport

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// maxMessageSize bounds inbound frames; the largest legal message is an
// override with a reason string.
const maxMessageSize = 4096

const writeWait = 10 * time.Second

// frame is one queued outbound message. Droppable frames (values,
// snapshots) are discarded first under backpressure; lifecycle and error
// frames are preserved.
type frame struct {
	payload   []byte
	droppable bool
}

// sendQueue is the bounded per-connection outbound queue. A full queue
// evicts the oldest droppable frame; when every queued frame must be
// preserved the oldest is evicted anyway so the bound holds.
type sendQueue struct {
	mu      sync.Mutex
	frames  []*frame
	max     int
	notify  chan struct{}
	dropped uint64
}

func newSendQueue(max int) *sendQueue {
	return &sendQueue{max: max, notify: make(chan struct{}, 1)}
}

func (q *sendQueue) push(f *frame) {
	q.mu.Lock()
	if len(q.frames) >= q.max {
		evicted := false
		for i, queued := range q.frames {
			if queued.droppable {
				q.frames = append(q.frames[:i], q.frames[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			q.frames = q.frames[1:]
		}
		atomic.AddUint64(&q.dropped, 1)
	}
	q.frames = append(q.frames, f)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *sendQueue) drain() []*frame {
	q.mu.Lock()
	frames := q.frames
	q.frames = nil
	q.mu.Unlock()
	return frames
}

func (q *sendQueue) droppedCount() uint64 {
	return atomic.LoadUint64(&q.dropped)
}

// conn wraps one websocket connection with its writer pump. Reads happen on
// the handler goroutine; all writes go through the queue so the pump is the
// only writer.
type conn struct {
	id       string
	ws       *websocket.Conn
	queue    *sendQueue
	closed   chan struct{}
	once     sync.Once
	idleWait time.Duration
	// onDrop is invoked with the cumulative drop count whenever the send
	// queue evicts a frame.
	onDrop func(count uint64)
}

func newConn(id string, ws *websocket.Conn, queueSize int, idleWait time.Duration) *conn {
	c := &conn{
		id:       id,
		ws:       ws,
		queue:    newSendQueue(queueSize),
		closed:   make(chan struct{}),
		idleWait: idleWait,
	}
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(idleWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(idleWait))
	})
	return c
}

// send enqueues an encoded message. Safe from any goroutine.
func (c *conn) send(msgType string, data interface{}, droppable bool) {
	payload := encode(msgType, data)
	if payload == nil {
		return
	}
	before := c.queue.droppedCount()
	c.queue.push(&frame{payload: payload, droppable: droppable})
	if after := c.queue.droppedCount(); after != before && c.onDrop != nil {
		c.onDrop(after)
	}
}

// writePump services the send queue and the ping keep-alive. It owns the
// websocket writer and exits when the connection closes.
func (c *conn) writePump() {
	pingPeriod := c.idleWait * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.queue.notify:
			for _, f := range c.queue.drain() {
				_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.ws.WriteMessage(websocket.TextMessage, f.payload); err != nil {
					c.close()
					return
				}
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// close shuts the connection down exactly once.
func (c *conn) close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

// readMessage blocks for the next inbound message, refreshing the idle
// deadline on every frame.
func (c *conn) readMessage() (*Message, error) {
	_, raw, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(c.idleWait))
	msg := &Message{}
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, errMalformedMessage
	}
	return msg, nil
}
