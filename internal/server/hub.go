package server

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/handpos/internal/detector"
	"github.com/ayusman/handpos/internal/tracker"
)

// clientBuffer is how many messages a websocket client may fall behind
// before it is dropped.
const clientBuffer = 16

// ErrHubClosed is returned by Publish after Close.
var ErrHubClosed = errors.New("hub closed")

var (
	wsClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name:      "landmark_clients",
		Namespace: "handpos",
		Help:      "number of connected landmark websocket clients",
	})
	wsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name:      "landmark_clients_dropped_total",
		Namespace: "handpos",
		Help:      "number of websocket clients dropped for falling behind",
	})
	streamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name:      "stream_clients",
		Namespace: "handpos",
		Help:      "number of connected MJPEG clients",
	})
)

// landmarkClient is one websocket subscriber.
type landmarkClient struct {
	send      chan []byte
	normalize bool
}

// Hub fans the capture loop's output out to HTTP consumers. It is a
// tracker.Sink and a tracker.FrameSink; neither call ever blocks on a slow
// consumer.
type Hub struct {
	mu      sync.RWMutex
	closed  bool
	latest  *tracker.Observation
	clients map[*landmarkClient]struct{}
	streams map[chan []byte]struct{}

	// streamCount lets PublishFrame skip JPEG encoding with nobody watching.
	streamCount atomic.Int32
}

var (
	_ tracker.Sink      = (*Hub)(nil)
	_ tracker.FrameSink = (*Hub)(nil)
)

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*landmarkClient]struct{}),
		streams: make(map[chan []byte]struct{}),
	}
}

// Publish records obs as the latest observation and broadcasts it to every
// websocket client. Clients whose buffer is full are disconnected.
func (h *Hub) Publish(obs tracker.Observation) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	h.latest = &obs

	if len(h.clients) == 0 {
		return nil
	}

	var raw, norm []byte
	for c := range h.clients {
		var msg []byte
		var err error
		if c.normalize {
			if norm == nil {
				norm, err = json.Marshal(normalized(obs))
			}
			msg = norm
		} else {
			if raw == nil {
				raw, err = json.Marshal(obs)
			}
			msg = raw
		}
		if err != nil {
			return err
		}

		select {
		case c.send <- msg:
		default:
			delete(h.clients, c)
			close(c.send)
			wsClients.Dec()
			wsDropped.Inc()
			log.WithField("seq", obs.Seq).Warn("dropping slow landmark client")
		}
	}
	return nil
}

// PublishFrame JPEG-encodes the annotated frame for MJPEG clients. A client
// still busy with the previous frame gets this one instead.
func (h *Hub) PublishFrame(frame *gocv.Mat) {
	if h.streamCount.Load() == 0 || frame == nil || frame.Empty() {
		return
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		log.WithError(err).Debug("jpeg encode failed")
		return
	}
	jpeg := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.streams {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- jpeg:
		default:
		}
	}
}

// Latest returns the most recent observation, or false before the first one.
func (h *Hub) Latest() (tracker.Observation, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.latest == nil {
		return tracker.Observation{}, false
	}
	return *h.latest, true
}

// subscribe registers a websocket client. The returned channel is closed when
// the client is dropped or the hub is closed.
func (h *Hub) subscribe(normalize bool) (*landmarkClient, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, false
	}
	c := &landmarkClient{
		send:      make(chan []byte, clientBuffer),
		normalize: normalize,
	}
	h.clients[c] = struct{}{}
	wsClients.Inc()
	return c, true
}

func (h *Hub) unsubscribe(c *landmarkClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		wsClients.Dec()
	}
}

func (h *Hub) watch() (chan []byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, false
	}
	ch := make(chan []byte, 1)
	h.streams[ch] = struct{}{}
	h.streamCount.Add(1)
	streamClients.Inc()
	return ch, true
}

func (h *Hub) unwatch(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.streams[ch]; ok {
		delete(h.streams, ch)
		close(ch)
		h.streamCount.Add(-1)
		streamClients.Dec()
	}
}

// Close disconnects every client. Only the first call does anything.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		wsClients.Dec()
	}
	for ch := range h.streams {
		delete(h.streams, ch)
		close(ch)
		h.streamCount.Add(-1)
		streamClients.Dec()
	}
	return nil
}

func normalized(obs tracker.Observation) tracker.Observation {
	hands := make([]detector.Hand, len(obs.Hands))
	for i := range obs.Hands {
		hands[i] = *obs.Hands[i].Normalize()
	}
	obs.Hands = hands
	return obs
}
