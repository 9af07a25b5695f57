// Package nbt decodes (and, for round-trip tests, re-encodes) the tagged
// binary format used by region file chunk blobs. It implements only the
// subset of the format needed to extract block-state palettes, packed
// block indices, light arrays and biome arrays: compound, list, the
// integer and floating-point scalar tags, byte/int/long arrays and
// strings.
package nbt

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// ErrMalformedNBT is wrapped by every decode failure: truncated input, an
// unknown tag byte, or a declared length that exceeds the remaining bytes.
var ErrMalformedNBT = errors.New("nbt: malformed data")

// TagType identifies the payload shape of a tag.
type TagType uint8

const (
	TagEnd TagType = iota
	TagByte
	TagShort
	TagInt
	TagLong
	TagFloat
	TagDouble
	TagByteArray
	TagString
	TagList
	TagCompound
	TagIntArray
	TagLongArray
)

// Compression names the outer container the NBT bytes are wrapped in; the
// caller states which.
type Compression uint8

const (
	Uncompressed Compression = iota
	Gzip
	Zlib
)

// Compound is a decoded NBT compound tag. Values are one of: uint8 (byte),
// int16, int32, int64, float32, float64, []byte, string, *List, Compound,
// []int32, or []int64.
type Compound map[string]any

// List is a decoded NBT list tag. All Items share ElemType; an empty list
// still carries the element type it was declared with so it can be
// re-encoded faithfully.
type List struct {
	ElemType TagType
	Items    []any
}

// Decode parses data (wrapped per compression) into its root compound.
func Decode(data []byte, compression Compression) (Compound, error) {
	r, err := unwrap(data, compression)
	if err != nil {
		return nil, fmt.Errorf("nbt: decompress: %w", err)
	}
	d := &decoder{r: r}

	tag, err := d.readByteRaw()
	if err != nil {
		return nil, fmt.Errorf("%w: read root tag: %v", ErrMalformedNBT, err)
	}
	if TagType(tag) == TagEnd {
		return Compound{}, nil
	}
	if TagType(tag) != TagCompound {
		return nil, fmt.Errorf("%w: root tag is not a compound (got %d)", ErrMalformedNBT, tag)
	}
	if _, err := d.readName(); err != nil {
		return nil, fmt.Errorf("%w: read root name: %v", ErrMalformedNBT, err)
	}
	root, err := d.readCompound()
	if err != nil {
		return nil, err
	}
	return root, nil
}

func unwrap(data []byte, compression Compression) ([]byte, error) {
	switch compression {
	case Uncompressed:
		return data, nil
	case Gzip:
		gr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		return io.ReadAll(gr)
	case Zlib:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	default:
		return nil, fmt.Errorf("nbt: unknown compression %d", compression)
	}
}

type decoder struct {
	r   []byte
	pos int
}

func (d *decoder) need(n int) error {
	if n < 0 || d.pos+n > len(d.r) {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrMalformedNBT, n, len(d.r)-d.pos)
	}
	return nil
}

func (d *decoder) readByteRaw() (byte, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	b := d.r[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) readU16() (uint16, error) {
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := uint16(d.r[d.pos])<<8 | uint16(d.r[d.pos+1])
	d.pos += 2
	return v, nil
}

func (d *decoder) readU32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := uint32(d.r[d.pos])<<24 | uint32(d.r[d.pos+1])<<16 | uint32(d.r[d.pos+2])<<8 | uint32(d.r[d.pos+3])
	d.pos += 4
	return v, nil
}

func (d *decoder) readI16() (int16, error) {
	v, err := d.readU16()
	return int16(v), err
}

func (d *decoder) readI32() (int32, error) {
	v, err := d.readU32()
	return int32(v), err
}

func (d *decoder) readI64() (int64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(d.r[d.pos+i])
	}
	d.pos += 8
	return int64(v), nil
}

func (d *decoder) readF32() (float32, error) {
	v, err := d.readU32()
	return math.Float32frombits(v), err
}

func (d *decoder) readF64() (float64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(d.r[d.pos+i])
	}
	d.pos += 8
	return math.Float64frombits(v), nil
}

func (d *decoder) readBytes(n int) ([]byte, error) {
	if err := d.need(n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, d.r[d.pos:d.pos+n])
	d.pos += n
	return b, nil
}

func (d *decoder) readName() (string, error) {
	n, err := d.readU16()
	if err != nil {
		return "", err
	}
	b, err := d.readBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) readPayload(tag TagType) (any, error) {
	switch tag {
	case TagByte:
		b, err := d.readByteRaw()
		return b, err
	case TagShort:
		return d.readI16()
	case TagInt:
		return d.readI32()
	case TagLong:
		return d.readI64()
	case TagFloat:
		return d.readF32()
	case TagDouble:
		return d.readF64()
	case TagByteArray:
		n, err := d.readI32()
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: negative byte array length %d", ErrMalformedNBT, n)
		}
		return d.readBytes(int(n))
	case TagString:
		return d.readName()
	case TagList:
		return d.readList()
	case TagCompound:
		return d.readCompound()
	case TagIntArray:
		n, err := d.readI32()
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: negative int array length %d", ErrMalformedNBT, n)
		}
		out := make([]int32, n)
		for i := range out {
			v, err := d.readI32()
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case TagLongArray:
		n, err := d.readI32()
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: negative long array length %d", ErrMalformedNBT, n)
		}
		out := make([]int64, n)
		for i := range out {
			v, err := d.readI64()
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown tag %d", ErrMalformedNBT, tag)
	}
}

func (d *decoder) readList() (*List, error) {
	elemTagRaw, err := d.readByteRaw()
	if err != nil {
		return nil, err
	}
	elemTag := TagType(elemTagRaw)
	n, err := d.readI32()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: negative list length %d", ErrMalformedNBT, n)
	}
	items := make([]any, 0, n)
	for i := int32(0); i < n; i++ {
		if elemTag == TagEnd {
			break
		}
		v, err := d.readPayload(elemTag)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return &List{ElemType: elemTag, Items: items}, nil
}

func (d *decoder) readCompound() (Compound, error) {
	c := Compound{}
	for {
		tagRaw, err := d.readByteRaw()
		if err != nil {
			return nil, err
		}
		tag := TagType(tagRaw)
		if tag == TagEnd {
			return c, nil
		}
		name, err := d.readName()
		if err != nil {
			return nil, err
		}
		v, err := d.readPayload(tag)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrMalformedNBT, name, err)
		}
		c[name] = v
	}
}

// Encode writes root as an unnamed-root NBT compound in a deterministic
// (alphabetically key-sorted) order. Go map iteration order is undefined,
// so byte-identical round trips require either sorted input or a fixture
// built with Encode itself; see DESIGN.md.
func Encode(w io.Writer, root Compound) error {
	e := &encoder{w: w}
	if err := e.writeByte(byte(TagCompound)); err != nil {
		return err
	}
	if err := e.writeName(""); err != nil {
		return err
	}
	return e.writeCompound(root)
}

type encoder struct {
	w io.Writer
}

func (e *encoder) writeByte(b byte) error {
	_, err := e.w.Write([]byte{b})
	return err
}

func (e *encoder) writeU16(v uint16) error {
	_, err := e.w.Write([]byte{byte(v >> 8), byte(v)})
	return err
}

func (e *encoder) writeU32(v uint32) error {
	_, err := e.w.Write([]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
	return err
}

func (e *encoder) writeU64(v uint64) error {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (56 - 8*i))
	}
	_, err := e.w.Write(b)
	return err
}

func (e *encoder) writeName(s string) error {
	if err := e.writeU16(uint16(len(s))); err != nil {
		return err
	}
	_, err := e.w.Write([]byte(s))
	return err
}

func (e *encoder) writeCompound(c Compound) error {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := c[k]
		tag, err := tagTypeOf(v)
		if err != nil {
			return fmt.Errorf("nbt: field %q: %w", k, err)
		}
		if err := e.writeByte(byte(tag)); err != nil {
			return err
		}
		if err := e.writeName(k); err != nil {
			return err
		}
		if err := e.writePayload(tag, v); err != nil {
			return err
		}
	}
	return e.writeByte(byte(TagEnd))
}

func tagTypeOf(v any) (TagType, error) {
	switch v.(type) {
	case uint8:
		return TagByte, nil
	case int16:
		return TagShort, nil
	case int32:
		return TagInt, nil
	case int64:
		return TagLong, nil
	case float32:
		return TagFloat, nil
	case float64:
		return TagDouble, nil
	case []byte:
		return TagByteArray, nil
	case string:
		return TagString, nil
	case *List:
		return TagList, nil
	case Compound:
		return TagCompound, nil
	case []int32:
		return TagIntArray, nil
	case []int64:
		return TagLongArray, nil
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
}

func (e *encoder) writePayload(tag TagType, v any) error {
	switch tag {
	case TagByte:
		return e.writeByte(v.(uint8))
	case TagShort:
		return e.writeU16(uint16(v.(int16)))
	case TagInt:
		return e.writeU32(uint32(v.(int32)))
	case TagLong:
		return e.writeU64(uint64(v.(int64)))
	case TagFloat:
		return e.writeU32(math.Float32bits(v.(float32)))
	case TagDouble:
		return e.writeU64(math.Float64bits(v.(float64)))
	case TagByteArray:
		b := v.([]byte)
		if err := e.writeU32(uint32(len(b))); err != nil {
			return err
		}
		_, err := e.w.Write(b)
		return err
	case TagString:
		return e.writeName(v.(string))
	case TagList:
		return e.writeList(v.(*List))
	case TagCompound:
		return e.writeCompound(v.(Compound))
	case TagIntArray:
		arr := v.([]int32)
		if err := e.writeU32(uint32(len(arr))); err != nil {
			return err
		}
		for _, n := range arr {
			if err := e.writeU32(uint32(n)); err != nil {
				return err
			}
		}
		return nil
	case TagLongArray:
		arr := v.([]int64)
		if err := e.writeU32(uint32(len(arr))); err != nil {
			return err
		}
		for _, n := range arr {
			if err := e.writeU64(uint64(n)); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("nbt: cannot encode tag %d", tag)
	}
}

func (e *encoder) writeList(l *List) error {
	if err := e.writeByte(byte(l.ElemType)); err != nil {
		return err
	}
	if err := e.writeU32(uint32(len(l.Items))); err != nil {
		return err
	}
	for _, item := range l.Items {
		if err := e.writePayload(l.ElemType, item); err != nil {
			return err
		}
	}
	return nil
}
