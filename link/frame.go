package link

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/juju/errors"
	"github.com/temoto/lightd/auth"
)

// Frame structure:
// - length uint32 big endian, counts signature and payload
// - signature, fixed SignatureLen
// - payload, at least 1 byte
const (
	HeaderLen        = 4
	SignatureLen     = auth.SignatureLen
	DefaultReadLimit = 64 << 10
)

type Frame struct {
	Signature []byte
	Payload   []byte
}

func (f *Frame) Length() int { return len(f.Signature) + len(f.Payload) }
func (f *Frame) Size() int   { return HeaderLen + f.Length() }

func (f *Frame) String() string {
	return fmt.Sprintf("len=%d sig=%x payload=%q", f.Length(), f.Signature, f.Payload)
}

func (f *Frame) Marshal() ([]byte, error) {
	if len(f.Signature) != SignatureLen {
		return nil, errors.Wrapf(nil, ErrSerialization, "frame signature length=%d expected=%d", len(f.Signature), SignatureLen)
	}
	if len(f.Payload) == 0 {
		return nil, errors.Wrapf(nil, ErrSerialization, "frame payload empty")
	}
	b := make([]byte, f.Size())
	binary.BigEndian.PutUint32(b, uint32(f.Length()))
	copy(b[HeaderLen:], f.Signature)
	copy(b[HeaderLen+SignatureLen:], f.Payload)
	return b, nil
}

// Decoder reads whole frames, never returns partial one.
// Read blocks until full frame arrives or stream fails.
type Decoder struct {
	r   *bufio.Reader
	max uint32
}

func (d *Decoder) Attach(r *bufio.Reader, max uint32) {
	if max == 0 {
		max = DefaultReadLimit
	}
	d.max = max
	d.r = r
}

func (d *Decoder) Read() (*Frame, error) {
	var header [HeaderLen]byte
	n, err := io.ReadFull(d.r, header[:])
	switch err {
	case nil:
	case io.EOF:
		return nil, errors.Wrapf(err, ErrProtocol, "closed")
	case io.ErrUnexpectedEOF:
		return nil, errors.Wrapf(err, ErrProtocol, "frame length short read=%d", n)
	default:
		return nil, errors.Wrapf(err, ErrIO, "frame length")
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > d.max {
		return nil, errors.Wrapf(nil, ErrProtocol, "frame length=%d exceeds max=%d", length, d.max)
	}
	if length <= SignatureLen {
		return nil, errors.Wrapf(nil, ErrSerialization, "frame length=%d must exceed signature=%d", length, SignatureLen)
	}

	buf := make([]byte, length)
	n, err = io.ReadFull(d.r, buf)
	switch err {
	case nil:
	case io.EOF, io.ErrUnexpectedEOF:
		return nil, errors.Wrapf(err, ErrProtocol, "frame body read=%d expected=%d", n, length)
	default:
		return nil, errors.Wrapf(err, ErrIO, "frame body")
	}
	return &Frame{
		Signature: buf[:SignatureLen:SignatureLen],
		Payload:   buf[SignatureLen:],
	}, nil
}
