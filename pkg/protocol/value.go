package protocol

import (
	"errors"
	"io"
)

// ValueKind identifies the type of an event argument value.
type ValueKind uint8

const (
	KindNull   ValueKind = 0x00
	KindBool   ValueKind = 0x01
	KindInt    ValueKind = 0x02
	KindFloat  ValueKind = 0x03
	KindString ValueKind = 0x04
	KindBinary ValueKind = 0x05
	KindArray  ValueKind = 0x06
	KindObject ValueKind = 0x07

	// kindBlobRef is the wire representation of a binary value: an index
	// into the frame's attachment section. It never appears in a decoded
	// argument tree; the decoder resolves it back to KindBinary.
	kindBlobRef ValueKind = 0x08
)

// String returns the string representation of the value kind.
func (vk ValueKind) String() string {
	switch vk {
	case KindNull:
		return "Null"
	case KindBool:
		return "Bool"
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindString:
		return "String"
	case KindBinary:
		return "Binary"
	case KindArray:
		return "Array"
	case KindObject:
		return "Object"
	case kindBlobRef:
		return "BlobRef"
	default:
		return "Unknown"
	}
}

// Value is a tagged event argument. Exactly the field matching Kind is
// meaningful; the zero Value is null.
type Value struct {
	Kind  ValueKind
	Bool  bool
	Int   int64
	Float float64
	Str   string
	Bin   []byte
	Arr   []Value
	Obj   map[string]Value
}

// Value constructors.

// Null returns the null value.
func Null() Value { return Value{Kind: KindNull} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Int returns an integer value.
func Int(i int64) Value { return Value{Kind: KindInt, Int: i} }

// Float returns a floating-point value.
func Float(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// String returns a string value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Binary returns a binary value. The bytes travel in the frame's
// attachment section rather than inline.
func Binary(b []byte) Value { return Value{Kind: KindBinary, Bin: b} }

// Array returns an array value.
func Array(items ...Value) Value { return Value{Kind: KindArray, Arr: items} }

// Object returns an object value with string keys.
func Object(fields map[string]Value) Value { return Value{Kind: KindObject, Obj: fields} }

// MaxValueDepth is the maximum nesting depth for argument values.
// Prevents stack overflow from maliciously deeply nested payloads.
const MaxValueDepth = 64

// Value encoding errors.
var (
	ErrMaxDepthExceeded = errors.New("protocol: maximum nesting depth exceeded")
	ErrInvalidBlobRef   = errors.New("protocol: attachment reference out of range")
)

// encodeValue encodes a single argument value. Binary values are replaced
// by a reference into atts and their bytes appended there.
func encodeValue(enc *Encoder, v Value, atts *[][]byte) {
	switch v.Kind {
	case KindNull:
		enc.WriteByte(byte(KindNull))
	case KindBool:
		enc.WriteByte(byte(KindBool))
		enc.WriteBool(v.Bool)
	case KindInt:
		enc.WriteByte(byte(KindInt))
		enc.WriteSvarint(v.Int)
	case KindFloat:
		enc.WriteByte(byte(KindFloat))
		enc.WriteFloat64(v.Float)
	case KindString:
		enc.WriteByte(byte(KindString))
		enc.WriteString(v.Str)
	case KindBinary:
		enc.WriteByte(byte(kindBlobRef))
		enc.WriteUvarint(uint64(len(*atts)))
		*atts = append(*atts, v.Bin)
	case KindArray:
		enc.WriteByte(byte(KindArray))
		enc.WriteUvarint(uint64(len(v.Arr)))
		for _, item := range v.Arr {
			encodeValue(enc, item, atts)
		}
	case KindObject:
		enc.WriteByte(byte(KindObject))
		enc.WriteUvarint(uint64(len(v.Obj)))
		for k, item := range v.Obj {
			enc.WriteString(k)
			encodeValue(enc, item, atts)
		}
	default:
		// Encode as null for unknown kinds
		enc.WriteByte(byte(KindNull))
	}
}

// encodeValues encodes a count-prefixed argument list.
func encodeValues(enc *Encoder, args []Value, atts *[][]byte) {
	enc.WriteUvarint(uint64(len(args)))
	for _, v := range args {
		encodeValue(enc, v, atts)
	}
}

// decodeValue decodes a single argument value with depth tracking.
// Binary values come back as unresolved blob references; callers resolve
// them against the attachment section with resolveValue.
func decodeValue(d *Decoder, depth int) (Value, error) {
	if depth > MaxValueDepth {
		return Value{}, ErrMaxDepthExceeded
	}

	tag, err := d.ReadByte()
	if err != nil {
		return Value{}, err
	}

	switch ValueKind(tag) {
	case KindNull:
		return Value{Kind: KindNull}, nil

	case KindBool:
		b, err := d.ReadBool()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindBool, Bool: b}, nil

	case KindInt:
		i, err := d.ReadSvarint()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindInt, Int: i}, nil

	case KindFloat:
		f, err := d.ReadFloat64()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindFloat, Float: f}, nil

	case KindString:
		s, err := d.ReadString()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindString, Str: s}, nil

	case kindBlobRef:
		idx, err := d.ReadUvarint()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: kindBlobRef, Int: int64(idx)}, nil

	case KindArray:
		count, err := d.ReadCollectionCount()
		if err != nil {
			return Value{}, err
		}
		if count == 0 {
			return Value{Kind: KindArray}, nil
		}
		arr := make([]Value, count)
		for i := 0; i < count; i++ {
			item, err := decodeValue(d, depth+1)
			if err != nil {
				return Value{}, err
			}
			arr[i] = item
		}
		return Value{Kind: KindArray, Arr: arr}, nil

	case KindObject:
		count, err := d.ReadCollectionCount()
		if err != nil {
			return Value{}, err
		}
		if count == 0 {
			return Value{Kind: KindObject}, nil
		}
		obj := make(map[string]Value, count)
		for i := 0; i < count; i++ {
			key, err := d.ReadString()
			if err != nil {
				return Value{}, err
			}
			item, err := decodeValue(d, depth+1)
			if err != nil {
				return Value{}, err
			}
			obj[key] = item
		}
		return Value{Kind: KindObject, Obj: obj}, nil

	default:
		return Value{}, io.ErrUnexpectedEOF
	}
}

// decodeValues decodes a count-prefixed argument list.
func decodeValues(d *Decoder) ([]Value, error) {
	count, err := d.ReadCollectionCount()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	args := make([]Value, count)
	for i := 0; i < count; i++ {
		v, err := decodeValue(d, 0)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// resolveValue substitutes blob references with the bytes they point to,
// restoring the argument shape the sender encoded.
func resolveValue(v Value, atts [][]byte) (Value, error) {
	switch v.Kind {
	case kindBlobRef:
		idx := int(v.Int)
		if idx < 0 || idx >= len(atts) {
			return Value{}, ErrInvalidBlobRef
		}
		return Value{Kind: KindBinary, Bin: atts[idx]}, nil

	case KindArray:
		for i, item := range v.Arr {
			resolved, err := resolveValue(item, atts)
			if err != nil {
				return Value{}, err
			}
			v.Arr[i] = resolved
		}
		return v, nil

	case KindObject:
		for k, item := range v.Obj {
			resolved, err := resolveValue(item, atts)
			if err != nil {
				return Value{}, err
			}
			v.Obj[k] = resolved
		}
		return v, nil

	default:
		return v, nil
	}
}

// resolveValues resolves blob references in a decoded argument list.
func resolveValues(args []Value, atts [][]byte) ([]Value, error) {
	for i, v := range args {
		resolved, err := resolveValue(v, atts)
		if err != nil {
			return nil, err
		}
		args[i] = resolved
	}
	return args, nil
}

// encodeAttachments writes the count-prefixed attachment section.
func encodeAttachments(enc *Encoder, atts [][]byte) {
	enc.WriteUvarint(uint64(len(atts)))
	for _, b := range atts {
		enc.WriteLenBytes(b)
	}
}

// decodeAttachments reads the count-prefixed attachment section.
func decodeAttachments(d *Decoder) ([][]byte, error) {
	count, err := d.ReadCollectionCount()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	atts := make([][]byte, count)
	for i := 0; i < count; i++ {
		b, err := d.ReadLenBytes()
		if err != nil {
			return nil, err
		}
		atts[i] = b
	}
	return atts, nil
}
