package mvcc

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Single-value wire format: a one-byte tag (0x70 | type-code, no column
// number, since a segment's physical type is already known from context)
// followed by the type's fixed or length-prefixed payload.
//
//	tag byte: (buf[0] & 0xF0) == 0x70, (buf[0] & 0x0F): physical type code
//	null flag is carried out of band (Vector.nulls), not in this encoding
var valEndian = binary.LittleEndian

const (
	codeInt8 = iota
	codeInt16
	codeInt32
	codeInt64
	codeFloat32
	codeFloat64
	codeVarchar
)

func physicalTypeCode(t PhysicalType) (int, error) {
	switch t {
	case PhysicalInt8:
		return codeInt8, nil
	case PhysicalInt16:
		return codeInt16, nil
	case PhysicalInt32:
		return codeInt32, nil
	case PhysicalInt64:
		return codeInt64, nil
	case PhysicalFloat32:
		return codeFloat32, nil
	case PhysicalFloat64:
		return codeFloat64, nil
	case PhysicalVarchar:
		return codeVarchar, nil
	default:
		return 0, ErrInvalidType
	}
}

// encodedValueLength returns the wire length, tag byte included, of v's
// value at index idx.
func encodedValueLength(v *Vector, idx int) (int, error) {
	switch v.typ {
	case PhysicalInt8:
		return 2, nil
	case PhysicalInt16:
		return 3, nil
	case PhysicalInt32, PhysicalFloat32:
		return 5, nil
	case PhysicalInt64, PhysicalFloat64:
		return 9, nil
	case PhysicalVarchar:
		bl := len(v.strs[idx])
		if bl > math.MaxUint16 {
			return 0, fmt.Errorf("mvcc: string too long to encode: %d", bl)
		}
		return 3 + bl, nil
	default:
		return 0, ErrInvalidType
	}
}

// encodeValue writes v's value at idx into buf (which must be at least
// encodedValueLength(v, idx) bytes) and returns the remainder of buf past
// what was written.
func encodeValue(v *Vector, idx int, buf []byte) ([]byte, error) {
	code, err := physicalTypeCode(v.typ)
	if err != nil {
		return nil, err
	}
	buf[0] = 0x70 | byte(code)

	switch v.typ {
	case PhysicalInt8:
		buf[1] = byte(v.int8s[idx])
		return buf[2:], nil
	case PhysicalInt16:
		valEndian.PutUint16(buf[1:], uint16(v.int16s[idx]))
		return buf[3:], nil
	case PhysicalInt32:
		valEndian.PutUint32(buf[1:], uint32(v.int32s[idx]))
		return buf[5:], nil
	case PhysicalInt64:
		valEndian.PutUint64(buf[1:], uint64(v.int64s[idx]))
		return buf[9:], nil
	case PhysicalFloat32:
		valEndian.PutUint32(buf[1:], math.Float32bits(v.float32s[idx]))
		return buf[5:], nil
	case PhysicalFloat64:
		valEndian.PutUint64(buf[1:], math.Float64bits(v.float64s[idx]))
		return buf[9:], nil
	case PhysicalVarchar:
		s := v.strs[idx]
		valEndian.PutUint16(buf[1:], uint16(len(s)))
		copy(buf[3:], s)
		return buf[3+len(s):], nil
	default:
		return nil, ErrInvalidType
	}
}

// decodeValue reads one encoded value from buf into v at idx and returns
// the remainder of buf past what was consumed. typ must match the tag the
// value was written with.
func decodeValue(buf []byte, typ PhysicalType, v *Vector, idx int) ([]byte, error) {
	if buf[0]&0xF0 != 0x70 {
		return nil, fmt.Errorf("mvcc: value must start with 0x70; got 0x%X", buf[0]&0xF0)
	}
	wantCode, err := physicalTypeCode(typ)
	if err != nil {
		return nil, err
	}
	if int(buf[0]&0x0F) != wantCode {
		return nil, fmt.Errorf("mvcc: decoded type code %d does not match expected %d", buf[0]&0x0F, wantCode)
	}

	switch typ {
	case PhysicalInt8:
		v.int8s[idx] = int8(buf[1])
		return buf[2:], nil
	case PhysicalInt16:
		v.int16s[idx] = int16(valEndian.Uint16(buf[1:]))
		return buf[3:], nil
	case PhysicalInt32:
		v.int32s[idx] = int32(valEndian.Uint32(buf[1:]))
		return buf[5:], nil
	case PhysicalInt64:
		v.int64s[idx] = int64(valEndian.Uint64(buf[1:]))
		return buf[9:], nil
	case PhysicalFloat32:
		v.float32s[idx] = math.Float32frombits(valEndian.Uint32(buf[1:]))
		return buf[5:], nil
	case PhysicalFloat64:
		v.float64s[idx] = math.Float64frombits(valEndian.Uint64(buf[1:]))
		return buf[9:], nil
	case PhysicalVarchar:
		bl := valEndian.Uint16(buf[1:])
		v.strs[idx] = string(buf[3 : 3+bl])
		return buf[3+bl:], nil
	default:
		return nil, ErrInvalidType
	}
}

// EncodeBlock serializes every value of v, back to back with no header, in
// the wire format above. This is the byte layout a persisted block holds
// for one column; null positions are encoded with whatever value the vector
// holds there, and the null mask itself is not stored in the block.
func EncodeBlock(v *Vector) ([]byte, error) {
	buf := make([]byte, 0, v.Length()*8)
	for i := 0; i < v.Length(); i++ {
		n, err := encodedValueLength(v, i)
		if err != nil {
			return nil, err
		}
		pos := len(buf)
		buf = append(buf, make([]byte, n)...)
		if _, err := encodeValue(v, i, buf[pos:]); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// DecodeBlock is the inverse of EncodeBlock: it reads length back-to-back
// values of typ out of buf into a freshly allocated Vector.
func DecodeBlock(buf []byte, typ PhysicalType, length int) (*Vector, error) {
	v := NewVector(typ, length)
	off := 0
	for i := 0; i < length; i++ {
		rest, err := decodeValue(buf[off:], typ, v, i)
		if err != nil {
			return nil, err
		}
		off = len(buf) - len(rest)
	}
	return v, nil
}
