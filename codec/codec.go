// Package codec converts OTLP protobuf export requests into the text payload
// carried downstream by the queue fabric and the driver.
package codec

import (
	"encoding/base64"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Format selects how a protobuf request is rendered to text. It is fixed for
// the lifetime of an ingress run; there is no per-message toggle.
type Format int

const (
	// JSON serialises using the standard protobuf-to-JSON mapping with
	// default-value fields included and original proto field names
	// preserved, matching the OTLP/HTTP JSON convention.
	JSON Format = iota
	// Protobuf returns the ASCII base64 encoding of the wire-format bytes.
	Protobuf
)

func (f Format) String() string {
	switch f {
	case JSON:
		return "json"
	case Protobuf:
		return "protobuf"
	default:
		return "unknown"
	}
}

// ParseFormat maps the configuration string ("json" or "protobuf") to a
// Format. Matching is exact and case-sensitive; no normalisation is applied.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "json":
		return JSON, nil
	case "protobuf":
		return Protobuf, nil
	default:
		return 0, fmt.Errorf("codec: unknown message format %q", s)
	}
}

// EncodingError is returned when protojson marshaling fails on a structurally
// invalid protobuf message. The caller must surface this as a protocol-level
// error to the OTLP client and must not enqueue the message.
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("codec: encoding failed: %v", e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

var marshalOpts = protojson.MarshalOptions{
	EmitUnpopulated: true,
	UseProtoNames:   true,
}

// Codec turns a decoded OTLP request message into the text payload stored in
// an otlptype.Message.
type Codec struct {
	format Format
}

// New returns a Codec fixed to the given format for the lifetime of the
// caller.
func New(format Format) Codec {
	return Codec{format: format}
}

// Format reports the format this Codec was constructed with.
func (c Codec) Format() Format {
	return c.format
}

// Encode renders msg as text per the codec's fixed format.
func (c Codec) Encode(msg proto.Message) (string, error) {
	switch c.format {
	case Protobuf:
		b, err := proto.Marshal(msg)
		if err != nil {
			return "", &EncodingError{Err: err}
		}
		return base64.StdEncoding.EncodeToString(b), nil
	default:
		b, err := marshalOpts.Marshal(msg)
		if err != nil {
			return "", &EncodingError{Err: err}
		}
		return string(b), nil
	}
}

var unmarshalOpts = protojson.UnmarshalOptions{
	DiscardUnknown: true,
}

// DecodeWire fills req from raw protobuf wire bytes, as used by the HTTP
// receiver when the body's Content-Type is not a JSON variant. The gRPC
// receiver does not call it: requests arrive there already decoded.
func DecodeWire(data []byte, req proto.Message) error {
	return proto.Unmarshal(data, req)
}

// DecodeJSON fills req from an OTLP JSON body, ignoring unknown fields per
// the OTLP/HTTP contract.
func DecodeJSON(data []byte, req proto.Message) error {
	return unmarshalOpts.Unmarshal(data, req)
}
