package hub

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftyard/craftyard/internal/model"
)

type fakeConn struct {
	mu     sync.Mutex
	events []model.Event
	fail   bool
}

func (c *fakeConn) Send(ctx context.Context, event model.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("send failed")
	}
	c.events = append(c.events, event)
	return nil
}

func (c *fakeConn) received() []model.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Event(nil), c.events...)
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

type fakeSource struct {
	mu          sync.Mutex
	streamCalls int
	streamLines []string
	streamDelay time.Duration
	closed      bool
	logs        string
	logsErr     error
}

func (s *fakeSource) StreamExec(ctx context.Context, containerID string, cmd []string) (io.ReadCloser, error) {
	s.mu.Lock()
	s.streamCalls++
	delay, lines := s.streamDelay, s.streamLines
	s.mu.Unlock()

	pr, pw := io.Pipe()
	go func() {
		time.Sleep(delay)
		for _, l := range lines {
			if _, err := io.WriteString(pw, l+"\n"); err != nil {
				return
			}
		}
	}()
	return &notifyCloser{ReadCloser: pr, onClose: func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		pw.Close()
	}}, nil
}

func (s *fakeSource) ContainerLogs(ctx context.Context, containerID string, tail int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logs, s.logsErr
}

func (s *fakeSource) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCalls
}

func (s *fakeSource) wasClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type notifyCloser struct {
	io.ReadCloser
	onClose func()
	once    sync.Once
}

func (n *notifyCloser) Close() error {
	n.once.Do(n.onClose)
	return n.ReadCloser.Close()
}

func newTestHub(source LogSource) *Hub {
	h := New(source, zerolog.Nop())
	h.pollInterval = 10 * time.Millisecond
	h.sendTimeout = time.Second
	return h
}

func TestPublish_DeliversToSubscribers(t *testing.T) {
	h := newTestHub(&fakeSource{})
	conn := &fakeConn{}
	h.Subscribe("srv-1", model.ChannelDefault, "", conn)

	h.Publish("srv-1", model.ChannelDefault, model.Event{
		Type:     model.EventStatusUpdate,
		ServerID: "srv-1",
		Status:   model.StatusRunning,
	})

	events := conn.received()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventStatusUpdate, events[0].Type)
	assert.Equal(t, model.StatusRunning, events[0].Status)
}

func TestPublish_OnlyMatchingKey(t *testing.T) {
	h := newTestHub(&fakeSource{})
	matching := &fakeConn{}
	otherServer := &fakeConn{}
	otherChannel := &fakeConn{}
	h.Subscribe("srv-1", model.ChannelDefault, "", matching)
	h.Subscribe("srv-2", model.ChannelDefault, "", otherServer)
	h.Subscribe("srv-1", model.ChannelContainerLog, "", otherChannel)

	h.Publish("srv-1", model.ChannelDefault, model.Event{Type: model.EventStatusUpdate, ServerID: "srv-1"})

	assert.Equal(t, 1, matching.count())
	assert.Zero(t, otherServer.count())
	assert.Zero(t, otherChannel.count())
}

func TestPublish_EvictsFailedConn(t *testing.T) {
	h := newTestHub(&fakeSource{})
	healthy := &fakeConn{}
	broken := &fakeConn{fail: true}
	h.Subscribe("srv-1", model.ChannelDefault, "", healthy)
	h.Subscribe("srv-1", model.ChannelDefault, "", broken)

	h.Publish("srv-1", model.ChannelDefault, model.Event{Type: model.EventStatusUpdate})
	assert.Equal(t, 1, h.SubscriberCount("srv-1", model.ChannelDefault))

	h.Publish("srv-1", model.ChannelDefault, model.Event{Type: model.EventStatusUpdate})
	assert.Equal(t, 2, healthy.count())
}

func TestSubscribe_StartsGameLogStreamerOnce(t *testing.T) {
	source := &fakeSource{
		streamLines: []string{"[12:00:01] [Server thread/INFO]: alice joined the game", "[12:00:02] [Server thread/INFO]: <alice> hi"},
		streamDelay: 20 * time.Millisecond,
	}
	h := newTestHub(source)
	first := &fakeConn{}
	second := &fakeConn{}

	h.Subscribe("srv-1", model.ChannelGameLog, "cid-1", first)
	h.Subscribe("srv-1", model.ChannelGameLog, "cid-1", second)
	assert.Equal(t, 1, source.calls())

	require.Eventually(t, func() bool {
		return first.count() == 2 && second.count() == 2
	}, time.Second, 10*time.Millisecond)

	events := first.received()
	assert.Equal(t, model.EventLogLine, events[0].Type)
	assert.Contains(t, events[0].Line, "alice joined the game")
}

func TestUnsubscribe_LastSubscriberStopsStreamer(t *testing.T) {
	source := &fakeSource{}
	h := newTestHub(source)
	first := &fakeConn{}
	second := &fakeConn{}

	h.Subscribe("srv-1", model.ChannelGameLog, "cid-1", first)
	h.Subscribe("srv-1", model.ChannelGameLog, "cid-1", second)

	h.Unsubscribe("srv-1", model.ChannelGameLog, first)
	assert.False(t, source.wasClosed())

	h.Unsubscribe("srv-1", model.ChannelGameLog, second)
	require.Eventually(t, source.wasClosed, time.Second, 10*time.Millisecond)

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Empty(t, h.streamers)
	assert.Empty(t, h.subscribers)
}

func TestContainerLogPoll_RepublishesTail(t *testing.T) {
	source := &fakeSource{logs: "starting server\nserver started\n"}
	h := newTestHub(source)
	conn := &fakeConn{}

	h.Subscribe("srv-1", model.ChannelContainerLog, "cid-1", conn)

	// Two lines per poll; seeing four or more proves the at-least-once
	// republish across polls.
	require.Eventually(t, func() bool {
		return conn.count() >= 4
	}, time.Second, 10*time.Millisecond)

	events := conn.received()
	assert.Equal(t, model.EventLogLine, events[0].Type)
	assert.Equal(t, "starting server", events[0].Line)
	assert.Equal(t, "server started", events[1].Line)

	h.Unsubscribe("srv-1", model.ChannelContainerLog, conn)
}

func TestSubscribe_NoContainerMeansNoStreamer(t *testing.T) {
	source := &fakeSource{}
	h := newTestHub(source)
	conn := &fakeConn{}

	h.Subscribe("srv-1", model.ChannelGameLog, "", conn)
	assert.Zero(t, source.calls())

	// Published events still reach the subscriber.
	h.Publish("srv-1", model.ChannelGameLog, model.Event{Type: model.EventLogLine, Line: "x"})
	assert.Equal(t, 1, conn.count())
}
