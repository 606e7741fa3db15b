// Package protocol implements the byte framing shared by every serial link on the robot.
//
// A frame is laid out as
//
//	0x5A 0xA5 | id<<4 | type | length (uint16 LE) | payload | checksum
//
// where checksum is the low byte of the sum of every byte between the header and the checksum.
package protocol

import (
	"bufio"
	"encoding/binary"
	"io"
	"sync"

	"github.com/pkg/errors"
)

// Frame header bytes.
const (
	Header0 = 0x5A
	Header1 = 0xA5
)

// MaxPayload bounds the payload length a Decoder accepts.
const MaxPayload = 512

// ID identifies the logical link a frame belongs to.
type ID uint8

// The logical links.
const (
	IDRemote ID = iota + 1
	IDNUC
	IDToSlave
	IDReport
)

// Type describes the payload encoding.
type Type uint8

// The payload types.
const (
	TypeCustom Type = iota
	TypeFloat
	TypeText
	TypeUint8
)

// Frame is one decoded message.
type Frame struct {
	ID      ID
	Type    Type
	Payload []byte
}

// ErrCorrupt is wrapped by every Decoder.Next error caused by a malformed frame, as opposed to
// an I/O failure. The decoder stays usable after a corrupt frame.
var ErrCorrupt = errors.New("corrupt frame")

// Encode appends the wire form of f to dst.
func Encode(dst []byte, f Frame) ([]byte, error) {
	if len(f.Payload) > MaxPayload {
		return dst, errors.Errorf("payload of %d bytes exceeds %d", len(f.Payload), MaxPayload)
	}
	if f.ID > 0x0F || f.Type > 0x0F {
		return dst, errors.Errorf("id %d / type %d do not fit in a nibble", f.ID, f.Type)
	}
	start := len(dst)
	dst = append(dst, Header0, Header1, byte(f.ID)<<4|byte(f.Type))
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(f.Payload)))
	dst = append(dst, f.Payload...)
	dst = append(dst, checksum(dst[start+2:]))
	return dst, nil
}

func checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}

// Decoder reads frames from a byte stream, resynchronising on the header after garbage or a
// corrupt frame.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

func (d *Decoder) seekHeader() error {
	prev := byte(0)
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return err
		}
		if prev == Header0 && b == Header1 {
			return nil
		}
		prev = b
	}
}

// Next returns the next frame. I/O errors are returned as is.
func (d *Decoder) Next() (Frame, error) {
	if err := d.seekHeader(); err != nil {
		return Frame{}, err
	}
	var head [3]byte
	if _, err := io.ReadFull(d.r, head[:]); err != nil {
		return Frame{}, err
	}
	length := int(binary.LittleEndian.Uint16(head[1:3]))
	if length > MaxPayload {
		return Frame{}, errors.Wrapf(ErrCorrupt, "frame length %d exceeds %d", length, MaxPayload)
	}
	body := make([]byte, length+1)
	if _, err := io.ReadFull(d.r, body); err != nil {
		return Frame{}, err
	}
	sum := checksum(head[:]) + checksum(body[:length])
	if sum != body[length] {
		return Frame{}, errors.Wrapf(ErrCorrupt, "checksum want 0x%02x got 0x%02x", sum, body[length])
	}
	return Frame{
		ID:      ID(head[0] >> 4),
		Type:    Type(head[0] & 0x0F),
		Payload: body[:length],
	}, nil
}

// Writer encodes frames onto a byte stream. It is safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	w   io.Writer
	buf []byte
}

// NewWriter returns a Writer writing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteFrame encodes and writes one frame.
func (fw *Writer) WriteFrame(f Frame) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	var err error
	fw.buf, err = Encode(fw.buf[:0], f)
	if err != nil {
		return err
	}
	_, err = fw.w.Write(fw.buf)
	return err
}
