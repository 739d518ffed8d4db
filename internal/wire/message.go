// Package wire implements the O2 binary message format: a length-prefixed,
// big-endian, 4-byte-aligned header (flags, timestamp, address, typespec)
// followed by a typed payload. Encoder builds one message at a time into a
// reusable buffer; Decoder parses a received message in place with a
// monotonically advancing cursor. Neither allocates on the hot path beyond
// what Go's string/slice conversions require.
package wire

import (
	"encoding/binary"
	"math"
)

// MaxMsgLen is the capacity of a single O2lite message, header and payload
// combined, including the 4-byte length prefix. spec.md §9 calls out the
// source's disagreement between 256 and 4096 byte buffers and settles on
// 4096 as canonical.
const MaxMsgLen = 4096

// Transport selects which socket a message travels over. The bit value
// matches the wire encoding of the flags field's low bit (spec.md §4.1).
type Transport uint32

const (
	UDP Transport = 0
	TCP Transport = 1
)

// headerFixedLen is flags(4) + timestamp(8): the fixed-size prefix before
// the variable-length address and typespec fields.
const headerFixedLen = 12

// Encoder builds one O2 message into an internal 4096-byte buffer. Start
// resets it; the add_* family appends typed fields in typespec order; Finish
// fills in the length prefix and returns the framed bytes. A new Start call
// invalidates any slice previously returned by Finish.
type Encoder struct {
	buf [MaxMsgLen]byte
	pos int
	err bool
}

// NewEncoder returns a ready-to-use Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Start resets the buffer and writes flags, timestamp, address and typespec.
// transport is recorded in the flags field's low bit and can be read back
// later with Transport, which is how the endpoint decides whether a given
// encoded message is destined for the TCP or UDP socket.
func (e *Encoder) Start(address string, timestamp float64, typespec string, transport Transport) {
	e.pos = 4 // reserve the length field, filled in by Finish
	e.err = false

	e.putUint32(uint32(transport))
	e.putFloat64(timestamp)
	e.putString(address)

	if e.pos+1 > MaxMsgLen {
		e.err = true
		return
	}
	e.buf[e.pos] = ','
	e.pos++
	e.putString(typespec)
}

// Transport reports the transport recorded by the most recent Start call,
// read back from the flags field exactly as the endpoint will read it off
// the wire for an inbound message.
func (e *Encoder) Transport() Transport {
	return Transport(binary.BigEndian.Uint32(e.buf[4:8]) & 1)
}

// Err reports whether any add_* call has overflowed the buffer. Once set it
// stays set until the next Start; Finish refuses to produce output while it
// is set.
func (e *Encoder) Err() bool { return e.err }

// AddInt32 appends a big-endian int32 payload field.
func (e *Encoder) AddInt32(v int32) {
	if e.err {
		return
	}
	e.putUint32(uint32(v))
}

// AddInt64 appends a big-endian int64 payload field.
func (e *Encoder) AddInt64(v int64) {
	if e.err {
		return
	}
	if e.pos+8 > MaxMsgLen {
		e.err = true
		return
	}
	binary.BigEndian.PutUint64(e.buf[e.pos:], uint64(v))
	e.pos += 8
}

// AddFloat32 appends a big-endian float32 payload field.
func (e *Encoder) AddFloat32(v float32) {
	if e.err {
		return
	}
	e.putUint32(math.Float32bits(v))
}

// AddDouble appends a big-endian float64 payload field, used for both the
// 'd' (double) and 't' (timestamp) type codes, which share an on-wire
// representation (spec.md §4.1).
func (e *Encoder) AddDouble(v float64) {
	if e.err {
		return
	}
	e.putFloat64(v)
}

// AddTime is an alias for AddDouble: on the wire a timestamp is a double.
func (e *Encoder) AddTime(v float64) { e.AddDouble(v) }

// AddBool appends a bool encoded as a 4-byte big-endian int, 0 for false,
// nonzero for true (spec.md §4.1's 'B' code).
func (e *Encoder) AddBool(v bool) {
	if e.err {
		return
	}
	if v {
		e.putUint32(1)
	} else {
		e.putUint32(0)
	}
}

// AddString appends a NUL-terminated, NUL-padded string field.
func (e *Encoder) AddString(s string) {
	if e.err {
		return
	}
	e.putString(s)
}

// AddBlob appends a 4-byte big-endian size, the raw bytes, and padding to the
// next 4-byte boundary (spec.md §4.1's 'b' code).
func (e *Encoder) AddBlob(b []byte) {
	if e.err {
		return
	}
	end := AlignUp(e.pos + 4 + len(b))
	if end > MaxMsgLen {
		e.err = true
		return
	}
	binary.BigEndian.PutUint32(e.buf[e.pos:], uint32(len(b)))
	e.pos += 4
	n := copy(e.buf[e.pos:], b)
	for i := e.pos + n; i < end; i++ {
		e.buf[i] = 0
	}
	e.pos = end
}

// Finish fills in the length field (which excludes itself, per spec.md §4.1)
// and returns the framed message: e.Transport() tells the caller whether to
// send it whole over TCP or to strip the first 4 bytes and send the rest
// over UDP. It returns nil if any add_* call overflowed the buffer.
func (e *Encoder) Finish() []byte {
	if e.err {
		return nil
	}
	binary.BigEndian.PutUint32(e.buf[0:4], uint32(e.pos-4))
	return e.buf[:e.pos]
}

func (e *Encoder) putUint32(v uint32) {
	if e.pos+4 > MaxMsgLen {
		e.err = true
		return
	}
	binary.BigEndian.PutUint32(e.buf[e.pos:], v)
	e.pos += 4
}

func (e *Encoder) putFloat64(v float64) {
	if e.pos+8 > MaxMsgLen {
		e.err = true
		return
	}
	binary.BigEndian.PutUint64(e.buf[e.pos:], math.Float64bits(v))
	e.pos += 8
}

func (e *Encoder) putString(s string) {
	end := AlignUp(e.pos + len(s) + 1)
	if end > MaxMsgLen {
		e.err = true
		return
	}
	n := copy(e.buf[e.pos:], s)
	for i := e.pos + n; i < end; i++ {
		e.buf[i] = 0
	}
	e.pos = end
}

// Decoder parses one inbound O2 message in place. StartParse locates the
// address and typespec; each Get* call advances the payload cursor and
// checks the corresponding typespec byte, so a type mismatch or truncated
// message is caught at the first offending field rather than producing a
// garbage value. Strings and blobs returned by Get* alias the input slice
// and are only valid for the lifetime of that slice.
type Decoder struct {
	msg        []byte
	address    string
	typespec   []byte
	typeCursor int
	payloadPos int
	err        bool
}

// NewDecoder returns a ready-to-use Decoder. Call StartParse before the
// first Get* call.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// StartParse locates the address (first NUL after offset 12, i.e. after the
// flags and timestamp fields) and typespec (first ',' after the address,
// then bytes up to NUL), and sets the payload cursor to the next 4-byte
// boundary after the typespec's NUL terminator. msg must not include the
// TCP length prefix: only flags, timestamp, address, typespec and payload.
func (d *Decoder) StartParse(msg []byte) bool {
	d.msg = msg
	d.typeCursor = 0
	d.err = false

	if len(msg) < headerFixedLen+1 {
		d.err = true
		return false
	}

	addrEnd := indexByte(msg, headerFixedLen, 0)
	if addrEnd < 0 {
		d.err = true
		return false
	}
	d.address = string(msg[headerFixedLen:addrEnd])

	commaAt := addrEnd
	for commaAt < len(msg) && msg[commaAt] != ',' {
		commaAt++
	}
	if commaAt >= len(msg) {
		d.err = true
		return false
	}
	typespecStart := commaAt + 1
	typespecEnd := indexByte(msg, typespecStart, 0)
	if typespecEnd < 0 {
		d.err = true
		return false
	}
	d.typespec = msg[typespecStart:typespecEnd]

	d.payloadPos = AlignUp(typespecEnd + 1)
	if d.payloadPos > len(msg) {
		d.err = true
		return false
	}
	return true
}

// Address returns the inbound message's address, stripped of neither the
// leading '/' nor '!'; dispatch strips that, not the decoder.
func (d *Decoder) Address() string { return d.address }

// Typespec returns the inbound message's raw typespec bytes (without the
// leading comma).
func (d *Decoder) Typespec() []byte { return d.typespec }

// Timestamp returns the message timestamp from the fixed header (offset 4).
func (d *Decoder) Timestamp() float64 {
	if len(d.msg) < 12 {
		return 0
	}
	return math.Float64frombits(binary.BigEndian.Uint64(d.msg[4:12]))
}

// Err reports whether any Get* call has failed: a type-code mismatch or a
// read past the end of the message. Once set it stays set; further Get*
// calls return zero values.
func (d *Decoder) Err() bool { return d.err }

func (d *Decoder) checkType(code byte) bool {
	if d.err {
		return false
	}
	if d.typeCursor >= len(d.typespec) || d.typespec[d.typeCursor] != code {
		d.err = true
		return false
	}
	d.typeCursor++
	return true
}

// GetInt32 reads the next 'i' field.
func (d *Decoder) GetInt32() int32 {
	if !d.checkType('i') {
		return 0
	}
	if d.payloadPos+4 > len(d.msg) {
		d.err = true
		return 0
	}
	v := binary.BigEndian.Uint32(d.msg[d.payloadPos:])
	d.payloadPos += 4
	return int32(v)
}

// GetInt64 reads the next 'h' field.
func (d *Decoder) GetInt64() int64 {
	if !d.checkType('h') {
		return 0
	}
	if d.payloadPos+8 > len(d.msg) {
		d.err = true
		return 0
	}
	v := binary.BigEndian.Uint64(d.msg[d.payloadPos:])
	d.payloadPos += 8
	return int64(v)
}

// GetFloat32 reads the next 'f' field.
func (d *Decoder) GetFloat32() float32 {
	if !d.checkType('f') {
		return 0
	}
	if d.payloadPos+4 > len(d.msg) {
		d.err = true
		return 0
	}
	v := binary.BigEndian.Uint32(d.msg[d.payloadPos:])
	d.payloadPos += 4
	return math.Float32frombits(v)
}

// GetDouble reads the next 'd' field.
func (d *Decoder) GetDouble() float64 {
	if !d.checkType('d') {
		return 0
	}
	return d.readFloat64()
}

// GetTime reads the next 't' field. On the wire it is identical to a double;
// the distinct type code exists so a handler can require a timestamp
// specifically.
func (d *Decoder) GetTime() float64 {
	if !d.checkType('t') {
		return 0
	}
	return d.readFloat64()
}

func (d *Decoder) readFloat64() float64 {
	if d.payloadPos+8 > len(d.msg) {
		d.err = true
		return 0
	}
	v := binary.BigEndian.Uint64(d.msg[d.payloadPos:])
	d.payloadPos += 8
	return math.Float64frombits(v)
}

// GetBool reads the next 'B' field.
func (d *Decoder) GetBool() bool {
	if !d.checkType('B') {
		return false
	}
	if d.payloadPos+4 > len(d.msg) {
		d.err = true
		return false
	}
	v := binary.BigEndian.Uint32(d.msg[d.payloadPos:])
	d.payloadPos += 4
	return v != 0
}

// GetString reads the next 's' field. The returned string aliases msg.
func (d *Decoder) GetString() string {
	if !d.checkType('s') {
		return ""
	}
	nul := indexByte(d.msg, d.payloadPos, 0)
	if nul < 0 {
		d.err = true
		return ""
	}
	s := string(d.msg[d.payloadPos:nul])
	next := AlignUp(nul + 1)
	if next > len(d.msg) {
		d.err = true
		return ""
	}
	d.payloadPos = next
	return s
}

// GetBlob reads the next 'b' field: a 4-byte size followed by that many
// bytes, padded to a 4-byte boundary. The returned slice aliases msg.
func (d *Decoder) GetBlob() []byte {
	if !d.checkType('b') {
		return nil
	}
	if d.payloadPos+4 > len(d.msg) {
		d.err = true
		return nil
	}
	size := int(binary.BigEndian.Uint32(d.msg[d.payloadPos:]))
	d.payloadPos += 4
	if size < 0 || d.payloadPos+size > len(d.msg) {
		d.err = true
		return nil
	}
	data := d.msg[d.payloadPos : d.payloadPos+size]
	next := AlignUp(d.payloadPos + size)
	if next > len(d.msg) {
		d.err = true
		return nil
	}
	d.payloadPos = next
	return data
}

func indexByte(b []byte, from int, c byte) int {
	for i := from; i < len(b); i++ {
		if b[i] == c {
			return i
		}
	}
	return -1
}
