package hub

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/craftyard/craftyard/internal/model"
)

// gameLogPath is where the server image writes the live game log.
const gameLogPath = "/data/logs/latest.log"

// LogSource is the slice of the container runtime the streamers read from.
type LogSource interface {
	StreamExec(ctx context.Context, containerID string, cmd []string) (io.ReadCloser, error)
	ContainerLogs(ctx context.Context, containerID string, tail int) (string, error)
}

// streamGameLog follows the in-container game log with a tail -f exec and
// publishes each line as it arrives.
func (h *Hub) streamGameLog(ctx context.Context, k key, containerID string) {
	cmd := []string{"tail", "-f", "-n", "50", gameLogPath}
	rc, err := h.source.StreamExec(ctx, containerID, cmd)
	if err != nil {
		h.logger.Warn().Err(err).
			Str("server_id", k.serverID).
			Msg("game log stream unavailable")
		h.Publish(k.serverID, k.channel, model.Event{
			Type:     model.EventError,
			ServerID: k.serverID,
			Message:  "game log unavailable",
		})
		return
	}
	defer rc.Close()

	// The scanner blocks in Read; closing the stream is the only way to
	// unblock it when the subscription ends.
	go func() {
		<-ctx.Done()
		rc.Close()
	}()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		h.Publish(k.serverID, k.channel, model.Event{
			Type:     model.EventLogLine,
			ServerID: k.serverID,
			Line:     scanner.Text(),
		})
	}

	if ctx.Err() == nil {
		h.logger.Debug().
			Str("server_id", k.serverID).
			Msg("game log stream ended")
	}
}

// pollContainerLogs republishes a bounded runtime log tail on an interval.
// Delivery is at least once: each poll re-reads the tail, so subscribers see
// lines again and treat the feed as a rolling snapshot.
func (h *Hub) pollContainerLogs(ctx context.Context, k key, containerID string) {
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		out, err := h.source.ContainerLogs(ctx, containerID, h.tailLines)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.logger.Debug().Err(err).
				Str("server_id", k.serverID).
				Msg("container log poll failed")
		} else {
			for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
				if line == "" {
					continue
				}
				h.Publish(k.serverID, k.channel, model.Event{
					Type:     model.EventLogLine,
					ServerID: k.serverID,
					Line:     line,
				})
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
