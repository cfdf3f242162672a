package logjoin

import (
	"encoding/binary"
	"fmt"
)

// Param is a single decoded pixel parameter: a registered name and its
// string value.
type Param struct {
	Name  string
	Value string
}

// pixelParamDictionary lists the static, injective name<->id mapping spec.md
// §3 requires: ids 1-25 for common pixel fields, 100-106 for the localized
// query-string variants. Registered once at construction time; callers may
// extend it via ParamCodec.Register before the codec is ever used to
// encode or decode.
var pixelParamDictionary = map[string]byte{
	"qstr~en":   1,
	"ref":       2,
	"url":       3,
	"item":      4,
	"cat":       5,
	"anon":      6,
	"sess":      7,
	"uagent":    8,
	"ab":        9,
	"cur":       10,
	"price":     11,
	"qty":       12,
	"cartval":   13,
	"custom1":   14,
	"custom2":   15,
	"custom3":   16,
	"lat":       17,
	"lng":       18,
	"geoc":      19,
	"geor":      20,
	"geoz":      21,
	"is_mobile": 22,
	"is_app":    23,
	"dvid":      24,
	"rsid":      25,
	"qstr~de":   100,
	"qstr~fr":   101,
	"qstr~es":   102,
	"qstr~it":   103,
	"qstr~pt":   104,
	"qstr~nl":   105,
	"qstr~ja":   106,
}

// ParamCodec is the bidirectional mapping between short pixel parameter
// names and small integer ids, plus the binary encode/decode of one event
// record (spec.md §3, §4.2).
//
// Registration is construction-time only: Register must not be called once
// EncodeEvent/DecodeEvent are in use from multiple goroutines, since the
// maps are unsynchronized (the LogJoin core owns a ParamCodec exclusively,
// per spec.md §5).
type ParamCodec struct {
	ids   map[string]byte
	names map[byte]string
}

// NewParamCodec builds a ParamCodec pre-seeded with the static pixel
// parameter dictionary (spec.md §3). Callers may Register additional names
// before first use.
func NewParamCodec() *ParamCodec {
	c := &ParamCodec{
		ids:   make(map[string]byte, len(pixelParamDictionary)),
		names: make(map[byte]string, len(pixelParamDictionary)),
	}

	for name, id := range pixelParamDictionary {
		c.ids[name] = id
		c.names[id] = name
	}

	return c
}

// Register adds a name<->id mapping at construction time. Registering a
// name or id a second time is a programmer error and returns
// ErrDuplicateParam wrapped with the offending name/id.
func (c *ParamCodec) Register(name string, id byte) error {
	if _, exists := c.ids[name]; exists {
		return fmt.Errorf("%w: name %q", ErrDuplicateParam, name)
	}

	if _, exists := c.names[id]; exists {
		return fmt.Errorf("%w: id %d", ErrDuplicateParam, id)
	}

	c.ids[name] = id
	c.names[id] = name

	return nil
}

// IDOf resolves a registered parameter name to its integer id. Lookup
// failure is a programmer error at encode time: the caller is trying to
// store a parameter the dictionary does not know.
func (c *ParamCodec) IDOf(name string) (byte, error) {
	id, ok := c.ids[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownParam, name)
	}

	return id, nil
}

// NameOf resolves an integer id back to its registered parameter name.
// Decode-time lookup failures are recoverable: the caller skips the single
// malformed param and increments loglines_invalid, per spec.md §7.
func (c *ParamCodec) NameOf(id byte) (string, error) {
	name, ok := c.names[id]
	if !ok {
		return "", fmt.Errorf("%w: id %d", ErrUnknownParam, id)
	}

	return name, nil
}

// EncodeEvent packs one event record per spec.md §3:
//
//	1. event timestamp in whole seconds (varint)
//	2. event-id length (varint), event-id bytes
//	3. zero or more (param-id varint, value-length varint, value bytes) triples
//
// Every param name must already be registered; an unknown name is a
// programmer error and aborts the whole encode.
func (c *ParamCodec) EncodeEvent(timeSeconds int64, eid string, params []Param) ([]byte, error) {
	buf := make([]byte, 0, 16+len(eid)+len(params)*8)

	var scratch [binary.MaxVarintLen64]byte

	n := binary.PutUvarint(scratch[:], uint64(timeSeconds))
	buf = append(buf, scratch[:n]...)

	n = binary.PutUvarint(scratch[:], uint64(len(eid)))
	buf = append(buf, scratch[:n]...)
	buf = append(buf, eid...)

	for _, p := range params {
		id, err := c.IDOf(p.Name)
		if err != nil {
			return nil, err
		}

		n = binary.PutUvarint(scratch[:], uint64(id))
		buf = append(buf, scratch[:n]...)

		n = binary.PutUvarint(scratch[:], uint64(len(p.Value)))
		buf = append(buf, scratch[:n]...)
		buf = append(buf, p.Value...)
	}

	return buf, nil
}

// DecodeEvent is the inverse of EncodeEvent. It returns the decoded fields,
// or ErrTruncatedRecord if the buffer ends mid-field. A param whose id was
// never registered is skipped rather than aborting the whole decode, and is
// reported back via skipped so the caller can increment loglines_invalid
// exactly once per occurrence (spec.md §4.5 step 5).
func (c *ParamCodec) DecodeEvent(buf []byte) (timeSeconds int64, eid string, params []Param, skipped int, err error) {
	r := varintReader{buf: buf}

	ts, err := r.uvarint()
	if err != nil {
		return 0, "", nil, 0, fmt.Errorf("%w: timestamp: %w", ErrTruncatedRecord, err)
	}

	eidLen, err := r.uvarint()
	if err != nil {
		return 0, "", nil, 0, fmt.Errorf("%w: eid length: %w", ErrTruncatedRecord, err)
	}

	eidBytes, err := r.bytes(int(eidLen))
	if err != nil {
		return 0, "", nil, 0, fmt.Errorf("%w: eid: %w", ErrTruncatedRecord, err)
	}

	decoded := make([]Param, 0, 4)

	for !r.done() {
		paramID, err := r.uvarint()
		if err != nil {
			return 0, "", nil, 0, fmt.Errorf("%w: param id: %w", ErrTruncatedRecord, err)
		}

		valLen, err := r.uvarint()
		if err != nil {
			return 0, "", nil, 0, fmt.Errorf("%w: param length: %w", ErrTruncatedRecord, err)
		}

		valBytes, err := r.bytes(int(valLen))
		if err != nil {
			return 0, "", nil, 0, fmt.Errorf("%w: param value: %w", ErrTruncatedRecord, err)
		}

		name, nameErr := c.NameOf(byte(paramID))
		if nameErr != nil {
			skipped++

			continue
		}

		decoded = append(decoded, Param{Name: name, Value: string(valBytes)})
	}

	return int64(ts), string(eidBytes), decoded, skipped, nil
}

// varintReader walks a byte buffer one varint or fixed-length field at a
// time, tracking an offset instead of reslicing on every read.
type varintReader struct {
	buf []byte
	off int
}

func (r *varintReader) done() bool { return r.off >= len(r.buf) }

func (r *varintReader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.off:])
	if n <= 0 {
		return 0, fmt.Errorf("invalid varint at offset %d", r.off)
	}

	r.off += n

	return v, nil
}

func (r *varintReader) bytes(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.buf) {
		return nil, fmt.Errorf("short read at offset %d, want %d bytes", r.off, n)
	}

	b := r.buf[r.off : r.off+n]
	r.off += n

	return b, nil
}
