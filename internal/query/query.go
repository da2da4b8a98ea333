// Package query implements the GameSpy4 status protocol Minecraft servers
// expose on their query port: a UDP challenge handshake followed by a basic
// or full stat request.
package query

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"strconv"
	"time"
)

const (
	packetTypeHandshake byte = 0x09
	packetTypeStat      byte = 0x00

	// Session ids must keep the high nibble of every byte clear.
	sessionMask = 0x0F0F0F0F

	maxDatagram = 8192
)

var magic = []byte{0xFE, 0xFD}

var ErrBadResponse = errors.New("query: malformed response")

// BasicStat is the short status block: enough for player counts and the
// world name.
type BasicStat struct {
	MOTD          string
	GameType      string
	Map           string
	OnlinePlayers int
	MaxPlayers    int
	HostPort      int
	HostIP        string
}

// FullStat adds the key/value section and the player roster.
type FullStat struct {
	MOTD          string
	GameType      string
	GameID        string
	Version       string
	Plugins       string
	Map           string
	OnlinePlayers int
	MaxPlayers    int
	HostPort      int
	HostIP        string
	Players       []string
}

// Client issues stat queries. Each call opens its own socket and performs a
// fresh challenge handshake; tokens expire server-side and are not worth
// caching.
type Client struct {
	timeout time.Duration
}

func NewClient(timeout time.Duration) *Client {
	return &Client{timeout: timeout}
}

// BasicStat queries addr for the short status block.
func (c *Client) BasicStat(ctx context.Context, addr string) (*BasicStat, error) {
	payload, err := c.exchange(ctx, addr, false)
	if err != nil {
		return nil, err
	}
	return parseBasicStat(payload)
}

// FullStat queries addr for the extended status block.
func (c *Client) FullStat(ctx context.Context, addr string) (*FullStat, error) {
	payload, err := c.exchange(ctx, addr, true)
	if err != nil {
		return nil, err
	}
	return parseFullStat(payload)
}

// exchange runs handshake plus stat request and returns the stat payload
// after the type/session header.
func (c *Client) exchange(ctx context.Context, addr string, full bool) ([]byte, error) {
	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if t, ok := ctx.Deadline(); ok && t.Before(deadline) {
		deadline = t
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	session := newSessionID()

	challenge, err := handshake(conn, session)
	if err != nil {
		return nil, fmt.Errorf("handshake with %s: %w", addr, err)
	}

	req := make([]byte, 0, 15)
	req = append(req, magic...)
	req = append(req, packetTypeStat)
	req = binary.BigEndian.AppendUint32(req, uint32(session))
	req = binary.BigEndian.AppendUint32(req, uint32(challenge))
	if full {
		// Four bytes of padding turn the request into a full-stat query.
		req = append(req, 0x00, 0x00, 0x00, 0x00)
	}
	if _, err := conn.Write(req); err != nil {
		return nil, fmt.Errorf("write stat request: %w", err)
	}

	payload, err := readResponse(conn, packetTypeStat, session)
	if err != nil {
		return nil, fmt.Errorf("read stat response from %s: %w", addr, err)
	}
	return payload, nil
}

func handshake(conn net.Conn, session int32) (int32, error) {
	req := make([]byte, 0, 7)
	req = append(req, magic...)
	req = append(req, packetTypeHandshake)
	req = binary.BigEndian.AppendUint32(req, uint32(session))
	if _, err := conn.Write(req); err != nil {
		return 0, fmt.Errorf("write: %w", err)
	}

	payload, err := readResponse(conn, packetTypeHandshake, session)
	if err != nil {
		return 0, err
	}

	// The challenge token arrives as a NUL-terminated decimal string.
	token, _, err := nextCString(payload, 0)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(token, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: challenge token %q", ErrBadResponse, token)
	}
	return int32(n), nil
}

func readResponse(conn net.Conn, wantType byte, session int32) ([]byte, error) {
	buf := make([]byte, maxDatagram)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if n < 5 {
		return nil, fmt.Errorf("%w: %d byte datagram", ErrBadResponse, n)
	}
	if buf[0] != wantType {
		return nil, fmt.Errorf("%w: type 0x%02x, want 0x%02x", ErrBadResponse, buf[0], wantType)
	}
	if got := int32(binary.BigEndian.Uint32(buf[1:5])); got != session {
		return nil, fmt.Errorf("%w: session %d, want %d", ErrBadResponse, got, session)
	}
	return buf[5:n], nil
}

func newSessionID() int32 {
	return int32(rand.Uint32() & sessionMask)
}

func parseBasicStat(payload []byte) (*BasicStat, error) {
	var (
		stat BasicStat
		off  int
		err  error
	)
	fields := []*string{&stat.MOTD, &stat.GameType, &stat.Map}
	for _, f := range fields {
		if *f, off, err = nextCString(payload, off); err != nil {
			return nil, err
		}
	}

	var online, max string
	if online, off, err = nextCString(payload, off); err != nil {
		return nil, err
	}
	if max, off, err = nextCString(payload, off); err != nil {
		return nil, err
	}
	if stat.OnlinePlayers, err = strconv.Atoi(online); err != nil {
		return nil, fmt.Errorf("%w: player count %q", ErrBadResponse, online)
	}
	if stat.MaxPlayers, err = strconv.Atoi(max); err != nil {
		return nil, fmt.Errorf("%w: max players %q", ErrBadResponse, max)
	}

	// The port is the one binary field, and it is little-endian unlike the
	// rest of the protocol.
	if off+2 > len(payload) {
		return nil, fmt.Errorf("%w: truncated before host port", ErrBadResponse)
	}
	stat.HostPort = int(binary.LittleEndian.Uint16(payload[off : off+2]))
	off += 2

	if stat.HostIP, _, err = nextCString(payload, off); err != nil {
		return nil, err
	}
	return &stat, nil
}

// fullStatPadding sits between the header and the key/value section;
// playerSectionMarker separates key/values from the roster.
var (
	fullStatPadding     = []byte("splitnum\x00\x80\x00")
	playerSectionMarker = []byte("\x01player_\x00\x00")
)

func parseFullStat(payload []byte) (*FullStat, error) {
	if len(payload) < len(fullStatPadding) || !bytes.Equal(payload[:len(fullStatPadding)], fullStatPadding) {
		return nil, fmt.Errorf("%w: missing full stat padding", ErrBadResponse)
	}
	off := len(fullStatPadding)

	kv := map[string]string{}
	for {
		key, next, err := nextCString(payload, off)
		if err != nil {
			return nil, err
		}
		off = next
		if key == "" {
			break
		}
		value, next, err := nextCString(payload, off)
		if err != nil {
			return nil, err
		}
		off = next
		kv[key] = value
	}

	if off+len(playerSectionMarker) > len(payload) ||
		!bytes.Equal(payload[off:off+len(playerSectionMarker)], playerSectionMarker) {
		return nil, fmt.Errorf("%w: missing player section", ErrBadResponse)
	}
	off += len(playerSectionMarker)

	players := []string{}
	for off < len(payload) {
		name, next, err := nextCString(payload, off)
		if err != nil {
			return nil, err
		}
		off = next
		if name == "" {
			break
		}
		players = append(players, name)
	}

	stat := &FullStat{
		MOTD:     kv["hostname"],
		GameType: kv["gametype"],
		GameID:   kv["game_id"],
		Version:  kv["version"],
		Plugins:  kv["plugins"],
		Map:      kv["map"],
		HostIP:   kv["hostip"],
		Players:  players,
	}
	stat.OnlinePlayers, _ = strconv.Atoi(kv["numplayers"])
	stat.MaxPlayers, _ = strconv.Atoi(kv["maxplayers"])
	stat.HostPort, _ = strconv.Atoi(kv["hostport"])
	return stat, nil
}

func nextCString(data []byte, off int) (string, int, error) {
	if off > len(data) {
		return "", 0, fmt.Errorf("%w: truncated", ErrBadResponse)
	}
	i := bytes.IndexByte(data[off:], 0x00)
	if i < 0 {
		return "", 0, fmt.Errorf("%w: unterminated string", ErrBadResponse)
	}
	return string(data[off : off+i]), off + i + 1, nil
}
