package swapspace

import (
	"encoding/binary"

	"github.com/sohambagchi/betree/internal/fatal"
)

// Encoder accumulates a payload's wire form. A Payload writes its own
// scalar fields with WriteUint64/WriteUint16/WriteBytes, in whatever order
// it also reads them back in UnmarshalNode, and records each child
// reference with WriteChild instead of a bare WriteUint64 pair, so the
// space can recover the is-leaf signal (len(Children()) == 0) without the
// payload exposing its field layout.
type Encoder struct {
	buf      []byte
	children []ChildRef
	space    *Space
}

// ChildRef is one child reference recorded during MarshalNode: the child's
// object id and its version as of this marshal, in the order the parent
// wrote them.
type ChildRef struct {
	ID      uint64
	Version uint64
}

// newEncoder is always called from inside the space's own critical
// section (writeBackLocked, release), so WriteChild can read a child's
// live version straight out of the record table without a second lock
// acquisition.
func newEncoder(space *Space) *Encoder {
	return &Encoder{space: space}
}

func (e *Encoder) WriteUint64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *Encoder) WriteUint16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *Encoder) WriteByte(v byte) {
	e.buf = append(e.buf, v)
}

// WriteBytes writes a length-prefixed byte slice.
func (e *Encoder) WriteBytes(b []byte) {
	e.WriteUint64(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

// WriteChild records a reference to a child object, identified only by
// its id: the child's current version is looked up directly from the
// enclosing space's record table (see newEncoder) rather than trusted
// from the caller, which is what keeps this correct even though the
// child may have been written back, bumping its version, at any point
// after the parent last touched it.
func (e *Encoder) WriteChild(id uint64) {
	r, ok := e.space.records[id]
	if !ok {
		fatal.Abortf(e.space.log, "write child: id %d not tracked", id)
	}

	e.WriteUint64(id)
	e.WriteUint64(r.version)
	e.children = append(e.children, ChildRef{ID: id, Version: r.version})
}

// Children reports every child reference recorded so far, in write order.
func (e *Encoder) Children() []ChildRef {
	return e.children
}

// Bytes returns the accumulated wire form.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Decoder reads back a wire form produced by Encoder, in the same order
// fields were written.
type Decoder struct {
	buf   []byte
	pos   int
	space *Space
}

func newDecoder(buf []byte, space *Space) *Decoder {
	return &Decoder{buf: buf, space: space}
}

func (d *Decoder) ReadUint64() uint64 {
	v := binary.LittleEndian.Uint64(d.buf[d.pos : d.pos+8])
	d.pos += 8
	return v
}

func (d *Decoder) ReadUint16() uint16 {
	v := binary.LittleEndian.Uint16(d.buf[d.pos : d.pos+2])
	d.pos += 2
	return v
}

func (d *Decoder) ReadByte() byte {
	v := d.buf[d.pos]
	d.pos++
	return v
}

func (d *Decoder) ReadBytes() []byte {
	n := d.ReadUint64()
	b := make([]byte, n)
	copy(b, d.buf[d.pos:d.pos+int(n)])
	d.pos += int(n)
	return b
}

// ReadChild is the mirror of WriteChild. Most callers want ReadChildPointer
// instead; this is exposed for payloads that only need the raw ids (e.g.
// a debug dump).
func (d *Decoder) ReadChild() (id, version uint64) {
	return d.ReadUint64(), d.ReadUint64()
}

// Remaining reports how many bytes are left unread, so a payload can loop
// "while decoder has more entries" the way it looped while encoding.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}
