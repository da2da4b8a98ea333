package query

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChallenge int32 = 9513307

// startQueryServer runs a canned GameSpy4 responder on a loopback UDP port.
// statType lets tests corrupt the stat response type byte.
func startQueryServer(t *testing.T, statType byte) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	go func() {
		buf := make([]byte, maxDatagram)
		for {
			n, raddr, err := pc.ReadFrom(buf)
			if err != nil {
				return
			}
			if n < 7 || buf[0] != 0xFE || buf[1] != 0xFD {
				continue
			}
			session := append([]byte(nil), buf[3:7]...)

			switch buf[2] {
			case packetTypeHandshake:
				resp := append([]byte{packetTypeHandshake}, session...)
				resp = append(resp, []byte("9513307\x00")...)
				pc.WriteTo(resp, raddr)

			case packetTypeStat:
				if n < 11 || int32(binary.BigEndian.Uint32(buf[7:11])) != testChallenge {
					continue
				}
				resp := append([]byte{statType}, session...)
				if n >= 15 {
					resp = append(resp, fullStatPayload()...)
				} else {
					resp = append(resp, basicStatPayload()...)
				}
				pc.WriteTo(resp, raddr)
			}
		}
	}()

	return pc.LocalAddr().String()
}

func basicStatPayload() []byte {
	var p []byte
	p = append(p, []byte("A Minecraft Server\x00SMP\x00world\x002\x0020\x00")...)
	p = binary.LittleEndian.AppendUint16(p, 25565)
	p = append(p, []byte("127.0.0.1\x00")...)
	return p
}

func fullStatPayload() []byte {
	var p []byte
	p = append(p, fullStatPadding...)
	kv := []string{
		"hostname", "A Minecraft Server",
		"gametype", "SMP",
		"game_id", "MINECRAFT",
		"version", "1.21.1",
		"plugins", "",
		"map", "world",
		"numplayers", "2",
		"maxplayers", "20",
		"hostport", "25565",
		"hostip", "127.0.0.1",
	}
	for _, s := range kv {
		p = append(p, []byte(s)...)
		p = append(p, 0x00)
	}
	p = append(p, 0x00) // empty key ends the section
	p = append(p, playerSectionMarker...)
	p = append(p, []byte("alice\x00bob\x00\x00")...)
	return p
}

func TestNewSessionID_HighNibblesClear(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := newSessionID()
		assert.Zero(t, uint32(id)&^uint32(sessionMask), "session id %08x not masked", id)
	}
}

func TestBasicStat(t *testing.T) {
	addr := startQueryServer(t, packetTypeStat)
	c := NewClient(time.Second)

	stat, err := c.BasicStat(context.Background(), addr)
	require.NoError(t, err)

	assert.Equal(t, "A Minecraft Server", stat.MOTD)
	assert.Equal(t, "SMP", stat.GameType)
	assert.Equal(t, "world", stat.Map)
	assert.Equal(t, 2, stat.OnlinePlayers)
	assert.Equal(t, 20, stat.MaxPlayers)
	assert.Equal(t, 25565, stat.HostPort)
	assert.Equal(t, "127.0.0.1", stat.HostIP)
}

func TestFullStat(t *testing.T) {
	addr := startQueryServer(t, packetTypeStat)
	c := NewClient(time.Second)

	stat, err := c.FullStat(context.Background(), addr)
	require.NoError(t, err)

	assert.Equal(t, "A Minecraft Server", stat.MOTD)
	assert.Equal(t, "MINECRAFT", stat.GameID)
	assert.Equal(t, "1.21.1", stat.Version)
	assert.Equal(t, "", stat.Plugins)
	assert.Equal(t, "world", stat.Map)
	assert.Equal(t, 2, stat.OnlinePlayers)
	assert.Equal(t, 20, stat.MaxPlayers)
	assert.Equal(t, 25565, stat.HostPort)
	assert.Equal(t, []string{"alice", "bob"}, stat.Players)
}

func TestBasicStat_SilentServerTimesOut(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	c := NewClient(300 * time.Millisecond)
	_, err = c.BasicStat(context.Background(), pc.LocalAddr().String())
	require.Error(t, err)
}

func TestBasicStat_WrongResponseType(t *testing.T) {
	addr := startQueryServer(t, 0x7F)
	c := NewClient(time.Second)

	_, err := c.BasicStat(context.Background(), addr)
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestParseBasicStat_Truncated(t *testing.T) {
	_, err := parseBasicStat([]byte("A Minecraft Server\x00SMP\x00"))
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestParseBasicStat_NonNumericCount(t *testing.T) {
	payload := []byte("motd\x00SMP\x00world\x00two\x0020\x00\x00\x00ip\x00")
	_, err := parseBasicStat(payload)
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestParseFullStat_MissingPadding(t *testing.T) {
	_, err := parseFullStat([]byte("hostname\x00motd\x00"))
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestParseFullStat_MissingPlayerSection(t *testing.T) {
	p := append([]byte(nil), fullStatPadding...)
	p = append(p, []byte("hostname\x00motd\x00\x00")...)
	_, err := parseFullStat(p)
	assert.ErrorIs(t, err, ErrBadResponse)
}
