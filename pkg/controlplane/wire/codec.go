package wire

import (
	"bytes"
	"encoding/binary"

	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/blocksense-network/agentfs/pkg/fserrors"
)

// OpCode tags a control-plane operation's request/response payload type,
// spec.md §4.7 "Operations (tagged union)".
type OpCode uint16

// Envelope is what a Frame's Body holds: a 2-byte OpCode followed by the
// operation's XDR-encoded payload.
type Envelope struct {
	Op      OpCode
	Payload []byte
}

// EncodeEnvelope XDR-marshals payload and prefixes it with op, producing
// the bytes a Frame's Body carries.
func EncodeEnvelope(op OpCode, payload any) ([]byte, error) {
	var buf bytes.Buffer
	var opBytes [2]byte
	binary.BigEndian.PutUint16(opBytes[:], uint16(op))
	buf.Write(opBytes[:])

	if payload != nil {
		if _, err := xdr.Marshal(&buf, payload); err != nil {
			return nil, fserrors.New(fserrors.BadRequest, "encode payload: "+err.Error())
		}
	}
	return buf.Bytes(), nil
}

// DecodeEnvelope splits a Frame's Body into its OpCode and raw payload
// bytes. Use DecodePayload to unmarshal the payload once the op's concrete
// type is known.
func DecodeEnvelope(body []byte) (OpCode, []byte, error) {
	if len(body) < 2 {
		return 0, nil, fserrors.New(fserrors.BadRequest, "envelope shorter than op tag")
	}
	return OpCode(binary.BigEndian.Uint16(body[0:2])), body[2:], nil
}

// DecodePayload XDR-unmarshals raw into out, a pointer to the request or
// response struct the caller expects for the envelope's OpCode.
func DecodePayload(raw []byte, out any) error {
	if len(raw) == 0 {
		return nil
	}
	if _, err := xdr.Unmarshal(bytes.NewReader(raw), out); err != nil {
		return fserrors.New(fserrors.BadRequest, "decode payload: "+err.Error())
	}
	return nil
}
