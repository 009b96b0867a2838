// Package proto implements the inner handshake wire format shared by
// isocks and osocks: the 512-byte connection request and the 4-byte
// reply, both stream-ciphered with a key derived from a per-connection
// IV and the listener's pre-shared key.
package proto

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// Magic authenticates a successful handshake reply. Network byte order.
	Magic uint32 = 0x526f6e61

	hostFieldSize = 257
	portFieldSize = 15
	ivSize        = 236

	magicOffset = 0
	hostOffset  = magicOffset + 4
	portOffset  = hostOffset + hostFieldSize
	ivOffset    = portOffset + portFieldSize

	// PlainSize is the portion of the request encrypted with the derived key.
	PlainSize = ivOffset
	// RequestSize is the total size of the inner request frame.
	RequestSize = ivOffset + ivSize
	// ReplySize is the total size of the inner reply frame.
	ReplySize = 4

	// MaxHostLen is the longest host string (FQDN or presentation-form IP)
	// that fits in HOST including its terminating NUL.
	MaxHostLen = hostFieldSize - 1
	// MaxPortLen is the longest decimal port string that fits in PORT
	// including its terminating NUL.
	MaxPortLen = portFieldSize - 1
)

// Request is the decoded form of the 512-byte inner request frame.
type Request struct {
	Host string
	Port string
	IV   [ivSize]byte
}

// ErrBadFrame is returned when a buffer doesn't decode into a valid frame.
var ErrBadFrame = errors.New("proto: malformed frame")

// ErrHostTooLong is returned by EncodeRequest when Host won't fit.
var ErrHostTooLong = fmt.Errorf("proto: host exceeds %d bytes", MaxHostLen)

// ErrPortTooLong is returned by EncodeRequest when Port won't fit.
var ErrPortTooLong = fmt.Errorf("proto: port exceeds %d bytes", MaxPortLen)

// EncodeRequest writes the plaintext form of a 512-byte request frame
// into a fresh buffer. The IV occupies its offset but the caller is
// responsible for filling it with randomness. The
// first PlainSize bytes still need to be run through the connection's
// cipher before they go on the wire; the IV itself is sent unencrypted.
func EncodeRequest(host, port string) ([]byte, error) {
	if len(host) > MaxHostLen {
		return nil, ErrHostTooLong
	}
	if len(port) > MaxPortLen {
		return nil, ErrPortTooLong
	}

	buf := make([]byte, RequestSize)
	binary.BigEndian.PutUint32(buf[magicOffset:], Magic)
	copy(buf[hostOffset:hostOffset+hostFieldSize], host)
	copy(buf[portOffset:portOffset+portFieldSize], port)
	return buf, nil
}

// DecodeRequest parses a 512-byte buffer whose first PlainSize bytes
// have already been decrypted. It validates the magic and extracts the
// NUL-terminated host/port strings and the trailing IV.
func DecodeRequest(buf []byte) (Request, error) {
	var req Request
	if len(buf) != RequestSize {
		return req, ErrBadFrame
	}
	if binary.BigEndian.Uint32(buf[magicOffset:]) != Magic {
		return req, ErrBadFrame
	}

	host, err := cstring(buf[hostOffset : hostOffset+hostFieldSize])
	if err != nil {
		return req, err
	}
	port, err := cstring(buf[portOffset : portOffset+portFieldSize])
	if err != nil {
		return req, err
	}

	req.Host = host
	req.Port = port
	copy(req.IV[:], buf[ivOffset:ivOffset+ivSize])
	return req, nil
}

// IVOffset returns the byte offset of the IV field within a request frame.
func IVOffset() int { return ivOffset }

func cstring(field []byte) (string, error) {
	for i, b := range field {
		if b == 0 {
			return string(field[:i]), nil
		}
	}
	return "", ErrBadFrame
}

// EncodeReply builds the 4-byte plaintext reply: the magic on success,
// all zero bytes on failure. The caller encrypts it before sending.
func EncodeReply(ok bool) []byte {
	buf := make([]byte, ReplySize)
	if ok {
		binary.BigEndian.PutUint32(buf, Magic)
	}
	return buf
}

// DecodeReply reports whether a decrypted 4-byte reply carries the magic.
func DecodeReply(buf []byte) (bool, error) {
	if len(buf) != ReplySize {
		return false, ErrBadFrame
	}
	return binary.BigEndian.Uint32(buf) == Magic, nil
}
