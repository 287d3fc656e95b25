package gguf

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"unicode/utf8"
)

// FormatError reports a corrupt or unsupported GGUF file. Offset is the byte
// position at which decoding failed.
type FormatError struct {
	Offset int
	Msg    string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("gguf: %s (offset %d)", e.Msg, e.Offset)
}

// IsFormat reports whether err indicates a malformed GGUF file.
func IsFormat(err error) bool {
	_, ok := err.(*FormatError)
	return ok
}

func formatErr(offset int, format string, args ...any) error {
	return &FormatError{Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

// Metadata is the parsed header, key/value metadata and tensor directory of a
// GGUF file. Tensor payloads are not read or validated.
type Metadata struct {
	Header     Header
	KV         map[string]any
	Tensors    []TensorInfo
	DataOffset uint64 // aligned start of the tensor data section
}

// decoder walks a byte slice with bounds-checked reads. All failures surface
// as *FormatError carrying the offset of the short read.
type decoder struct {
	data []byte
	off  int
}

func (d *decoder) u8() (byte, error) {
	if d.off+1 > len(d.data) {
		return 0, formatErr(d.off, "unexpected EOF reading u8")
	}
	v := d.data[d.off]
	d.off++
	return v, nil
}

func (d *decoder) u16() (uint16, error) {
	if d.off+2 > len(d.data) {
		return 0, formatErr(d.off, "unexpected EOF reading u16")
	}
	v := binary.LittleEndian.Uint16(d.data[d.off:])
	d.off += 2
	return v, nil
}

func (d *decoder) u32() (uint32, error) {
	if d.off+4 > len(d.data) {
		return 0, formatErr(d.off, "unexpected EOF reading u32")
	}
	v := binary.LittleEndian.Uint32(d.data[d.off:])
	d.off += 4
	return v, nil
}

func (d *decoder) u64() (uint64, error) {
	if d.off+8 > len(d.data) {
		return 0, formatErr(d.off, "unexpected EOF reading u64")
	}
	v := binary.LittleEndian.Uint64(d.data[d.off:])
	d.off += 8
	return v, nil
}

// str reads a u64-length-prefixed UTF-8 string.
func (d *decoder) str() (string, error) {
	n, err := d.u64()
	if err != nil {
		return "", err
	}
	if n > uint64(len(d.data)-d.off) {
		return "", formatErr(d.off, "unexpected EOF reading string of %d bytes", n)
	}
	b := d.data[d.off : d.off+int(n)]
	if !utf8.Valid(b) {
		return "", formatErr(d.off, "string is not valid UTF-8")
	}
	d.off += int(n)
	return string(b), nil
}

func (d *decoder) value(t ValueType) (any, error) {
	switch t {
	case TypeUint8:
		return d.u8()
	case TypeInt8:
		v, err := d.u8()
		return int8(v), err
	case TypeUint16:
		return d.u16()
	case TypeInt16:
		v, err := d.u16()
		return int16(v), err
	case TypeUint32:
		return d.u32()
	case TypeInt32:
		v, err := d.u32()
		return int32(v), err
	case TypeFloat32:
		v, err := d.u32()
		return math.Float32frombits(v), err
	case TypeBool:
		v, err := d.u8()
		return v != 0, err
	case TypeString:
		return d.str()
	case TypeUint64:
		return d.u64()
	case TypeInt64:
		v, err := d.u64()
		return int64(v), err
	case TypeFloat64:
		v, err := d.u64()
		return math.Float64frombits(v), err
	case TypeArray:
		et, err := d.u32()
		if err != nil {
			return nil, err
		}
		n, err := d.u64()
		if err != nil {
			return nil, err
		}
		if n > uint64(len(d.data)-d.off) {
			// each element needs at least one byte; reject early instead of
			// allocating an absurd slice from a corrupt length
			return nil, formatErr(d.off, "array length %d exceeds remaining file", n)
		}
		arr := make([]any, n)
		for i := uint64(0); i < n; i++ {
			arr[i], err = d.value(ValueType(et))
			if err != nil {
				return nil, err
			}
		}
		return arr, nil
	default:
		return nil, formatErr(d.off, "unknown metadata value type %d", t)
	}
}

// Decode parses GGUF metadata and the tensor directory from raw bytes,
// typically a memory-mapped model file.
func Decode(data []byte) (*Metadata, error) {
	d := &decoder{data: data}
	var md Metadata

	magic, err := d.u32()
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, formatErr(0, "invalid magic number: expected 0x%X, got 0x%X", Magic, magic)
	}
	md.Header.Magic = magic
	if md.Header.Version, err = d.u32(); err != nil {
		return nil, err
	}
	if md.Header.TensorCount, err = d.u64(); err != nil {
		return nil, err
	}
	if md.Header.MetadataKVCount, err = d.u64(); err != nil {
		return nil, err
	}

	md.KV = make(map[string]any, md.Header.MetadataKVCount)
	for i := uint64(0); i < md.Header.MetadataKVCount; i++ {
		key, err := d.str()
		if err != nil {
			return nil, err
		}
		vt, err := d.u32()
		if err != nil {
			return nil, err
		}
		val, err := d.value(ValueType(vt))
		if err != nil {
			return nil, err
		}
		md.KV[key] = val
	}

	if md.Header.TensorCount > uint64(len(data)-d.off) {
		return nil, formatErr(d.off, "tensor count %d exceeds remaining file", md.Header.TensorCount)
	}
	md.Tensors = make([]TensorInfo, 0, md.Header.TensorCount)
	var prevOffset uint64
	for i := uint64(0); i < md.Header.TensorCount; i++ {
		var ti TensorInfo
		if ti.Name, err = d.str(); err != nil {
			return nil, err
		}
		if ti.NDims, err = d.u32(); err != nil {
			return nil, err
		}
		if uint64(ti.NDims) > uint64(len(data)-d.off)/8 {
			return nil, formatErr(d.off, "tensor %q dimension count %d exceeds remaining file", ti.Name, ti.NDims)
		}
		ti.Dimensions = make([]uint64, ti.NDims)
		for j := uint32(0); j < ti.NDims; j++ {
			if ti.Dimensions[j], err = d.u64(); err != nil {
				return nil, err
			}
		}
		tt, err := d.u32()
		if err != nil {
			return nil, err
		}
		ti.Type = TensorType(tt)
		if ti.Offset, err = d.u64(); err != nil {
			return nil, err
		}
		if i > 0 && ti.Offset < prevOffset {
			return nil, formatErr(d.off, "tensor %q offset %d precedes previous offset %d", ti.Name, ti.Offset, prevOffset)
		}
		prevOffset = ti.Offset
		md.Tensors = append(md.Tensors, ti)
	}

	alignment := uint64(DefaultAlignment)
	if v, ok := md.Uint32(KeyGeneralAlignment); ok && v > 0 {
		alignment = uint64(v)
	}
	md.DataOffset = uint64(d.off)
	if md.DataOffset%alignment != 0 {
		md.DataOffset += alignment - (md.DataOffset % alignment)
	}
	return &md, nil
}

// ParseFile memory-maps path, decodes its metadata, and releases the mapping
// before returning. The model loader keeps its own long-lived mapping.
func ParseFile(path string) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := MapFile(f)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	defer func() { _ = Unmap(data) }()
	if len(data) < 24 {
		return nil, formatErr(len(data), "file too small to be valid GGUF")
	}
	return Decode(data)
}

// String returns a string metadata value.
func (m *Metadata) String(key string) (string, bool) {
	s, ok := m.KV[key].(string)
	return s, ok
}

// Uint32 returns a uint32 metadata value.
func (m *Metadata) Uint32(key string) (uint32, bool) {
	v, ok := m.KV[key].(uint32)
	return v, ok
}

// Uint64 returns a uint64 metadata value.
func (m *Metadata) Uint64(key string) (uint64, bool) {
	v, ok := m.KV[key].(uint64)
	return v, ok
}

// Float32 returns a float32 metadata value.
func (m *Metadata) Float32(key string) (float32, bool) {
	v, ok := m.KV[key].(float32)
	return v, ok
}

// StringArray returns a string array metadata value.
func (m *Metadata) StringArray(key string) ([]string, bool) {
	arr, ok := m.KV[key].([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, len(arr))
	for i, e := range arr {
		s, ok := e.(string)
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}

// Architecture returns the model architecture name, or "" if absent.
func (m *Metadata) Architecture() string {
	s, _ := m.String(KeyGeneralArchitecture)
	return s
}
