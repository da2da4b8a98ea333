package rcon

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/craftyard/craftyard/internal/model"
)

var listPattern = regexp.MustCompile(`There are (\d+) of a max of (\d+) players online:?\s*(.*)`)

// Client is an authenticated RCON session. Commands are serialized; the
// protocol has no framing for interleaved requests.
type Client struct {
	conn    net.Conn
	timeout time.Duration

	mu     sync.Mutex
	nextID int32
}

// Dial connects to addr and authenticates with password. The timeout bounds
// every subsequent round-trip as well as the dial itself.
func Dial(ctx context.Context, addr, password string, timeout time.Duration) (*Client, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	c := &Client{conn: conn, timeout: timeout}
	if err := c.auth(ctx, password); err != nil {
		conn.Close()
		return nil, fmt.Errorf("authenticate with %s: %w", addr, err)
	}
	return c, nil
}

func (c *Client) auth(ctx context.Context, password string) error {
	sent, resp, err := c.roundTrip(ctx, typeAuth, password)
	if err != nil {
		return err
	}
	// The server answers with the request id on success and -1 on refusal.
	if resp.id == -1 {
		return ErrAuthFailed
	}
	if resp.id != sent {
		return fmt.Errorf("%w: sent %d, got %d", ErrIDMismatch, sent, resp.id)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, typ int32, payload string) (int32, packet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return 0, packet{}, fmt.Errorf("set deadline: %w", err)
	}

	c.nextID++
	id := c.nextID
	if _, err := c.conn.Write(encodePacket(packet{id: id, typ: typ, payload: payload})); err != nil {
		return 0, packet{}, fmt.Errorf("write packet: %w", err)
	}

	resp, err := readPacket(c.conn)
	if err != nil {
		return 0, packet{}, err
	}
	return id, resp, nil
}

// Execute runs a raw command and returns the server's response payload.
func (c *Client) Execute(ctx context.Context, command string) (string, error) {
	sent, resp, err := c.roundTrip(ctx, typeCommand, command)
	if err != nil {
		return "", fmt.Errorf("execute %q: %w", command, err)
	}
	if resp.id != sent {
		return "", fmt.Errorf("execute %q: %w: sent %d, got %d", command, ErrIDMismatch, sent, resp.id)
	}
	return resp.payload, nil
}

// OnlinePlayers runs "list" and parses the roster. Output that does not
// match the expected shape yields an empty list rather than an error; only
// transport failures are surfaced.
func (c *Client) OnlinePlayers(ctx context.Context) (model.PlayerList, error) {
	out, err := c.Execute(ctx, "list")
	if err != nil {
		return model.PlayerList{Names: []string{}}, err
	}

	m := listPattern.FindStringSubmatch(out)
	if m == nil {
		return model.PlayerList{Names: []string{}}, nil
	}

	online, _ := strconv.Atoi(m[1])
	max, _ := strconv.Atoi(m[2])
	names := []string{}
	for _, name := range strings.Split(m[3], ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return model.PlayerList{Online: online, Max: max, Names: names}, nil
}

// Say broadcasts a chat message to everyone on the server.
func (c *Client) Say(ctx context.Context, message string) error {
	_, err := c.Execute(ctx, "say "+message)
	return err
}

// StopServer asks the server to save and exit. The process usually closes
// the connection right after answering, so callers should not reuse the
// client afterwards.
func (c *Client) StopServer(ctx context.Context) error {
	_, err := c.Execute(ctx, "stop")
	return err
}

func (c *Client) Close() error {
	return c.conn.Close()
}
