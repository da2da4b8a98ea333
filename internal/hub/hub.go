// Package hub fans server events out to websocket subscribers. Subscriptions
// are keyed by (server id, channel): the default channel carries lifecycle
// events published by the services, while the log channels are fed by
// streamers the hub runs on demand.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/craftyard/craftyard/internal/model"
)

var (
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "craftyard_hub_events_total",
		Help: "Events published to hub subscribers, by channel.",
	}, []string{"channel"})
	subscriberCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "craftyard_hub_subscribers",
		Help: "Current hub subscribers, by channel.",
	}, []string{"channel"})
)

// Conn is one subscriber. The websocket binding lives at the handler layer;
// tests plug in fakes.
type Conn interface {
	Send(ctx context.Context, event model.Event) error
}

type key struct {
	serverID string
	channel  string
}

// Hub tracks subscribers and runs at most one log streamer per (server,
// channel) key. The first subscriber to a log channel starts the streamer;
// the last one to leave cancels it.
type Hub struct {
	source LogSource
	logger zerolog.Logger

	pollInterval time.Duration
	tailLines    int
	sendTimeout  time.Duration

	mu          sync.Mutex
	subscribers map[key]map[Conn]struct{}
	streamers   map[key]context.CancelFunc
}

func New(source LogSource, logger zerolog.Logger) *Hub {
	return &Hub{
		source:       source,
		logger:       logger.With().Str("component", "hub").Logger(),
		pollInterval: 2 * time.Second,
		tailLines:    50,
		sendTimeout:  5 * time.Second,
		subscribers:  make(map[key]map[Conn]struct{}),
		streamers:    make(map[key]context.CancelFunc),
	}
}

// Subscribe registers conn for a server's channel. containerID may be empty
// when the server has no container yet; log streamers then stay off and the
// subscriber only sees events published while it is attached.
func (h *Hub) Subscribe(serverID, channel, containerID string, conn Conn) {
	k := key{serverID: serverID, channel: channel}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subscribers[k] == nil {
		h.subscribers[k] = make(map[Conn]struct{})
	}
	h.subscribers[k][conn] = struct{}{}
	subscriberCount.WithLabelValues(channel).Inc()

	if containerID == "" || h.streamers[k] != nil {
		return
	}

	var run func(ctx context.Context, k key, containerID string)
	switch channel {
	case model.ChannelGameLog:
		run = h.streamGameLog
	case model.ChannelContainerLog:
		run = h.pollContainerLogs
	default:
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.streamers[k] = cancel
	go run(ctx, k, containerID)
}

// Unsubscribe removes conn. When the last subscriber of a key leaves, its
// streamer is cancelled.
func (h *Hub) Unsubscribe(serverID, channel string, conn Conn) {
	k := key{serverID: serverID, channel: channel}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(k, conn)
}

func (h *Hub) removeLocked(k key, conn Conn) {
	set := h.subscribers[k]
	if _, ok := set[conn]; !ok {
		return
	}
	delete(set, conn)
	subscriberCount.WithLabelValues(k.channel).Dec()

	if len(set) > 0 {
		return
	}
	delete(h.subscribers, k)
	if cancel := h.streamers[k]; cancel != nil {
		cancel()
		delete(h.streamers, k)
	}
}

// Publish sends event to every subscriber of the server's channel.
// Subscribers whose send fails are evicted; the rest are unaffected.
func (h *Hub) Publish(serverID, channel string, event model.Event) {
	k := key{serverID: serverID, channel: channel}

	h.mu.Lock()
	conns := make([]Conn, 0, len(h.subscribers[k]))
	for conn := range h.subscribers[k] {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	if len(conns) == 0 {
		return
	}
	eventsPublished.WithLabelValues(channel).Inc()

	var failed []Conn
	for _, conn := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), h.sendTimeout)
		err := conn.Send(ctx, event)
		cancel()
		if err != nil {
			failed = append(failed, conn)
		}
	}

	if len(failed) == 0 {
		return
	}
	h.mu.Lock()
	for _, conn := range failed {
		h.removeLocked(k, conn)
	}
	h.mu.Unlock()
	h.logger.Debug().
		Str("server_id", serverID).
		Str("channel", channel).
		Int("evicted", len(failed)).
		Msg("dropped unresponsive subscribers")
}

// SubscriberCount returns the number of subscribers on one key.
func (h *Hub) SubscriberCount(serverID, channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[key{serverID: serverID, channel: channel}])
}
