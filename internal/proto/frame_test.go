package proto

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncodeDecodeRequestRoundTrip(t *testing.T) {
	buf, err := EncodeRequest("example.com", "443")
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	if len(buf) != RequestSize {
		t.Fatalf("len(buf) = %d, want %d", len(buf), RequestSize)
	}

	var iv [ivSize]byte
	for i := range iv {
		iv[i] = byte(i)
	}
	copy(buf[ivOffset:], iv[:])

	req, err := DecodeRequest(buf)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if req.Host != "example.com" {
		t.Errorf("Host = %q, want %q", req.Host, "example.com")
	}
	if req.Port != "443" {
		t.Errorf("Port = %q, want %q", req.Port, "443")
	}
	if req.IV != iv {
		t.Errorf("IV mismatch")
	}
}

func TestDecodeRequestRejectsWrongSize(t *testing.T) {
	if _, err := DecodeRequest(make([]byte, RequestSize-1)); err == nil {
		t.Errorf("511-byte frame should be rejected")
	}
	if _, err := DecodeRequest(make([]byte, RequestSize+1)); err == nil {
		t.Errorf("513-byte frame should be rejected")
	}
}

func TestDecodeRequestRejectsBadMagic(t *testing.T) {
	buf, err := EncodeRequest("host", "80")
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	buf[0] ^= 0xFF
	if _, err := DecodeRequest(buf); err == nil {
		t.Errorf("corrupted magic should be rejected")
	}
}

func TestEncodeRequestHostLengthBoundary(t *testing.T) {
	maxHost := strings.Repeat("a", MaxHostLen)
	if _, err := EncodeRequest(maxHost, "80"); err != nil {
		t.Errorf("host of exactly MaxHostLen bytes should be accepted: %v", err)
	}

	tooLong := strings.Repeat("a", MaxHostLen+1)
	if _, err := EncodeRequest(tooLong, "80"); err != ErrHostTooLong {
		t.Errorf("EncodeRequest(too-long host) err = %v, want ErrHostTooLong", err)
	}
}

func TestEncodeRequestPortLengthBoundary(t *testing.T) {
	maxPort := strings.Repeat("9", MaxPortLen)
	if _, err := EncodeRequest("host", maxPort); err != nil {
		t.Errorf("port of exactly MaxPortLen bytes should be accepted: %v", err)
	}

	tooLong := strings.Repeat("9", MaxPortLen+1)
	if _, err := EncodeRequest("host", tooLong); err != ErrPortTooLong {
		t.Errorf("EncodeRequest(too-long port) err = %v, want ErrPortTooLong", err)
	}
}

func TestEncodeDecodeReplyRoundTrip(t *testing.T) {
	ok := EncodeReply(true)
	if len(ok) != ReplySize {
		t.Fatalf("len(ok) = %d, want %d", len(ok), ReplySize)
	}
	gotOK, err := DecodeReply(ok)
	if err != nil || !gotOK {
		t.Errorf("DecodeReply(success) = %v, %v, want true, nil", gotOK, err)
	}

	fail := EncodeReply(false)
	if !bytes.Equal(fail, make([]byte, ReplySize)) {
		t.Errorf("failure reply should be all zero bytes, got %x", fail)
	}
	gotFail, err := DecodeReply(fail)
	if err != nil || gotFail {
		t.Errorf("DecodeReply(failure) = %v, %v, want false, nil", gotFail, err)
	}
}

func TestDecodeReplyRejectsWrongSize(t *testing.T) {
	if _, err := DecodeReply(make([]byte, ReplySize-1)); err == nil {
		t.Errorf("3-byte reply should be rejected")
	}
	if _, err := DecodeReply(make([]byte, ReplySize+1)); err == nil {
		t.Errorf("5-byte reply should be rejected")
	}
}
