// Package rcon implements the Minecraft remote console protocol: length-
// prefixed little-endian frames over TCP with a password handshake.
package rcon

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Wire packet types. authResponse and command share the value 2: the server
// only ever sends 2 as an auth verdict and the client only ever sends 2 as a
// command, so the direction disambiguates. Responses are correlated to
// requests by id, with -1 meaning authentication was refused.
const (
	typeResponse     int32 = 0
	typeAuthResponse int32 = 2
	typeCommand      int32 = 2
	typeAuth         int32 = 3
)

// A frame is [length int32][id int32][type int32][payload...][0x00 0x00],
// all little-endian; length counts everything after itself.
const (
	packetOverhead  = 10 // id + type + two NUL terminators
	maxPayloadBytes = 4096
)

var (
	ErrAuthFailed = errors.New("rcon: authentication refused")
	ErrBadPacket  = errors.New("rcon: malformed packet")
	ErrIDMismatch = errors.New("rcon: response id does not match request")
)

type packet struct {
	id      int32
	typ     int32
	payload string
}

func encodePacket(p packet) []byte {
	length := packetOverhead + len(p.payload)
	buf := make([]byte, 4+length)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(length))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(p.id))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(p.typ))
	copy(buf[12:], p.payload)
	// Trailing terminator bytes are already zero.
	return buf
}

// readPacket reads exactly one frame. The declared length is honored in
// full, so a slow peer cannot leave us holding half a payload.
func readPacket(r io.Reader) (packet, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return packet{}, fmt.Errorf("read frame length: %w", err)
	}
	length := int(int32(binary.LittleEndian.Uint32(lenBuf[:])))
	if length < packetOverhead || length > packetOverhead+maxPayloadBytes {
		return packet{}, fmt.Errorf("%w: declared length %d", ErrBadPacket, length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return packet{}, fmt.Errorf("read frame body: %w", err)
	}

	return packet{
		id:      int32(binary.LittleEndian.Uint32(body[0:4])),
		typ:     int32(binary.LittleEndian.Uint32(body[4:8])),
		payload: string(body[8 : length-2]),
	}, nil
}
