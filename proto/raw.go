// Package proto implements the tagged binary messages exchanged over the
// provisioning characteristics.
//
// Messages use the protobuf wire format. Two decode paths are offered:
// DecodeRaw returns the top-level fields of a message without descending into
// nested messages, and the typed Unmarshal methods build a struct. Nested
// messages can be decoded lazily by calling DecodeRaw or Unmarshal again on
// the bytes of a single field.
package proto

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message is implemented by every type in this package.
type Message interface {
	Marshal() []byte
	Unmarshal([]byte) error
}

// RawField is a single undecoded field of a message.
type RawField struct {
	Num    protowire.Number
	Type   protowire.Type
	Varint uint64 // varint, fixed32 and fixed64 values
	Bytes  []byte // length-delimited values and groups; aliases the input
}

// DecodeRaw splits b into its top-level fields in wire order.
func DecodeRaw(b []byte) ([]RawField, error) {
	var fields []RawField
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("proto: tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		f := RawField{Num: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			f.Varint, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.Varint = uint64(v)
		case protowire.Fixed64Type:
			f.Varint, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.Bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n >= 0 {
				f.Bytes = b[:n]
			}
		}
		if n < 0 {
			return nil, fmt.Errorf("proto: field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
		fields = append(fields, f)
	}
	return fields, nil
}

// Field returns the last occurrence of field num, as protobuf merge rules pick
// the last value for scalar fields.
func Field(fields []RawField, num protowire.Number) (RawField, bool) {
	for i := len(fields) - 1; i >= 0; i-- {
		if fields[i].Num == num {
			return fields[i], true
		}
	}
	return RawField{}, false
}

func (f RawField) asUint32(msg string) (uint32, error) {
	if f.Type != protowire.VarintType {
		return 0, wrongType(msg, f)
	}
	return uint32(f.Varint), nil
}

func (f RawField) asBool(msg string) (bool, error) {
	if f.Type != protowire.VarintType {
		return false, wrongType(msg, f)
	}
	return protowire.DecodeBool(f.Varint), nil
}

func (f RawField) asBytes(msg string) ([]byte, error) {
	if f.Type != protowire.BytesType {
		return nil, wrongType(msg, f)
	}
	return append([]byte(nil), f.Bytes...), nil
}

func (f RawField) asMessage(msg string, m Message) error {
	if f.Type != protowire.BytesType {
		return wrongType(msg, f)
	}
	if err := m.Unmarshal(f.Bytes); err != nil {
		return fmt.Errorf("%s.%d: %w", msg, f.Num, err)
	}
	return nil
}

func wrongType(msg string, f RawField) error {
	return fmt.Errorf("proto: %s field %d has wire type %d", msg, f.Num, f.Type)
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	return appendUint(b, num, protowire.EncodeBool(v))
}
