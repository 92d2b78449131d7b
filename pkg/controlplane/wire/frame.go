// Package wire implements the control-plane's frame codec (spec.md §4.7):
// "every request is a length-prefixed frame { version: u16, length: u32,
// body: bytes } carrying a compact binary-encoded tagged-union message
// (SSZ-style)."
//
// Grounded on the teacher's internal/protocol/xdr package for the
// big-endian, length-prefixed wire conventions (RFC 4506 XDR), with the
// tagged-union payload itself encoded via the third-party
// github.com/rasky/go-xdr reflection-based Marshal/Unmarshal instead of the
// teacher's hand-rolled per-field writers.
package wire

import (
	"encoding/binary"
	"io"

	"github.com/blocksense-network/agentfs/pkg/fserrors"
)

// Version is the current wire protocol version. Both request and response
// frames carry it; a mismatched version on either side is a BadRequest.
const Version uint16 = 1

const maxFrameLength = 64 << 20 // 64 MiB, generous headroom over any single control-plane payload

// Frame is one request or response envelope.
type Frame struct {
	Version uint16
	Body    []byte
}

// WriteFrame writes f as { version: u16, length: u32, body } to w.
func WriteFrame(w io.Writer, f Frame) error {
	var hdr [6]byte
	binary.BigEndian.PutUint16(hdr[0:2], f.Version)
	binary.BigEndian.PutUint32(hdr[2:6], uint32(len(f.Body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(f.Body)
	return err
}

// ReadFrame reads one frame from r. A truncated header/body or an
// over-length body is reported as fserrors.BadRequest, per spec.md
// "malformed frame -> BadRequest".
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [6]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return Frame{}, err
		}
		return Frame{}, fserrors.New(fserrors.BadRequest, "truncated frame header")
	}

	version := binary.BigEndian.Uint16(hdr[0:2])
	length := binary.BigEndian.Uint32(hdr[2:6])
	if length > maxFrameLength {
		return Frame{}, fserrors.New(fserrors.BadRequest, "frame length exceeds maximum")
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, fserrors.New(fserrors.BadRequest, "truncated frame body")
	}
	return Frame{Version: version, Body: body}, nil
}
