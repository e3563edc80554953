// Package wire implements the length-prefixed frame codec shared by the
// server and the client: every payload is preceded by a fixed-width ASCII
// decimal header giving its length. The codec never interprets payload
// content; classifying control prefixes and command envelopes is left to
// the dispatch layer.
package wire

import (
	"io"
	"strconv"
	"strings"

	"github.com/nodegraph/wiresock/internal/wsockerr"
)

// DefaultHeaderLen is the header width used when a caller does not specify
// one. Both ends of a connection must agree on this value.
const DefaultHeaderLen = 16

// Frame is the atomic unit on the wire: a header plus exactly that many
// bytes of payload.
type Frame struct {
	Header  []byte
	Payload []byte
}

// MaxPayloadLen returns the largest payload length representable by a
// header of the given width.
func MaxPayloadLen(headerLen int) int {
	n := 1
	for i := 0; i < headerLen; i++ {
		n *= 10
	}
	return n - 1
}

// MakeHeader builds a headerLen-byte ASCII decimal header for a payload of
// the given length, left-justified and space-padded.
func MakeHeader(payloadLen, headerLen int) ([]byte, error) {
	if payloadLen < 0 {
		return nil, wsockerr.Newf(wsockerr.Protocol, "negative payload length %d", payloadLen)
	}
	if payloadLen > MaxPayloadLen(headerLen) {
		return nil, wsockerr.Newf(wsockerr.Protocol, "payload length %d exceeds header capacity for header_len=%d", payloadLen, headerLen)
	}

	digits := strconv.Itoa(payloadLen)
	if len(digits) > headerLen {
		return nil, wsockerr.Newf(wsockerr.Protocol, "payload length %d does not fit in header_len=%d", payloadLen, headerLen)
	}

	header := make([]byte, headerLen)
	copy(header, digits)
	for i := len(digits); i < headerLen; i++ {
		header[i] = ' '
	}
	return header, nil
}

// ParseHeader parses a headerLen-byte ASCII decimal header, tolerating
// trailing spaces. A non-numeric header is a fatal protocol error.
func ParseHeader(header []byte) (int, error) {
	n, err := strconv.Atoi(strings.TrimRight(string(header), " "))
	if err != nil {
		return 0, wsockerr.Wrap(wsockerr.Protocol, err, "malformed frame header")
	}
	if n < 0 {
		return 0, wsockerr.Newf(wsockerr.Protocol, "negative payload length in header: %d", n)
	}
	return n, nil
}

// ReceiveFrame reads exactly one frame from r: headerLen header bytes, then
// exactly that many payload bytes. A zero-byte read on the header is
// reported as wsockerr.PeerClosed, distinct from a malformed (non-numeric)
// header, which is wsockerr.Protocol.
func ReceiveFrame(r io.Reader, headerLen int) (Frame, error) {
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Frame{}, wsockerr.Wrap(wsockerr.PeerClosed, err, "reading frame header")
		}
		return Frame{}, wsockerr.Wrap(wsockerr.NoHeader, err, "reading frame header")
	}

	n, err := ParseHeader(header)
	if err != nil {
		return Frame{}, err
	}

	payload := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, wsockerr.Wrap(wsockerr.PeerClosed, err, "reading frame payload")
		}
	}

	return Frame{Header: header, Payload: payload}, nil
}

// SendFrame writes a complete frame (header followed by payload) to w in a
// single buffered write, so the two pieces reach the peer as one unit. It
// does not serialize concurrent writers; callers sharing a connection must
// hold their own send lock around SendFrame (see server/client send
// mutexes).
func SendFrame(w io.Writer, payload []byte, headerLen int) error {
	header, err := MakeHeader(len(payload), headerLen)
	if err != nil {
		return err
	}

	buf := make([]byte, 0, headerLen+len(payload))
	buf = append(buf, header...)
	buf = append(buf, payload...)

	if _, err := w.Write(buf); err != nil {
		return wsockerr.Wrap(wsockerr.Protocol, err, "writing frame")
	}
	return nil
}
