// Package link is signed frame channel over a byte stream.
// Every payload is signed by own key and every received payload must verify
// against peer key before it is decoded. Any failure is fatal for the stream,
// there is no resync.
package link

import (
	"bufio"
	"io"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/lightd/helpers"
	"github.com/temoto/lightd/log2"
	"github.com/temoto/lightd/proto"
)

// Signer is satisfied by *auth.Context.
type Signer interface {
	Sign(payload []byte) ([]byte, error)
	Verify(payload []byte, sig []byte) (bool, error)
}

type Options struct {
	Codec     proto.Codec
	ReadLimit uint32
	Log       *log2.Log
	Stat      *Stat
}

type Channel struct {
	dec    Decoder
	w      io.Writer
	wmu    sync.Mutex
	signer Signer
	opt    Options
}

func NewChannel(rw io.ReadWriter, signer Signer, opt Options) (*Channel, error) {
	if signer == nil {
		return nil, errors.NotValidf("code error NewChannel signer=nil")
	}
	if opt.Codec == nil {
		opt.Codec = proto.JSON
	}
	if opt.Stat == nil {
		opt.Stat = new(Stat)
	}
	c := &Channel{
		signer: signer,
		opt:    opt,
		w:      helpers.NewStatWriter(rw, &opt.Stat.Send.Bytes, 0),
	}
	r := helpers.NewStatReader(rw, &opt.Stat.Recv.Bytes, 0)
	c.dec.Attach(bufio.NewReader(r), opt.ReadLimit)
	return c, nil
}

func (c *Channel) Stat() *Stat { return c.opt.Stat }

// SendPayload signs payload and writes whole frame at once.
func (c *Channel) SendPayload(payload []byte) error {
	sig, err := c.signer.Sign(payload)
	if err != nil {
		return errors.Wrapf(err, ErrAuth, "sign")
	}
	f := &Frame{Signature: sig, Payload: payload}
	b, err := f.Marshal()
	if err != nil {
		return err
	}
	c.opt.Log.Debugf("link send %s", f.String())
	c.wmu.Lock()
	err = helpers.WriteAll(c.w, b)
	c.wmu.Unlock()
	if err != nil {
		return errors.Wrapf(err, ErrIO, "send")
	}
	c.opt.Stat.Send.Frames.Add(1)
	return nil
}

// Encode sends any message, device or server side.
func (c *Channel) Encode(v interface{}) error {
	payload, err := c.opt.Codec.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, ErrSerialization, "encode %v", v)
	}
	return c.SendPayload(payload)
}

func (c *Channel) Send(m proto.ServerBound) error {
	return errors.Annotatef(c.Encode(m), "send %s", m.String())
}

// ReceivePayload returns verified payload of next frame.
// Signature mismatch is ErrAuth, the frame is discarded.
func (c *Channel) ReceivePayload() ([]byte, error) {
	f, err := c.dec.Read()
	if err != nil {
		return nil, errors.Annotate(err, "receive")
	}
	c.opt.Stat.Recv.Frames.Add(1)
	c.opt.Log.Debugf("link recv %s", f.String())
	ok, err := c.signer.Verify(f.Payload, f.Signature)
	if err != nil {
		return nil, errors.Wrapf(err, ErrAuth, "verify")
	}
	if !ok {
		return nil, errors.Wrapf(nil, ErrAuth, "signature mismatch payload length=%d", len(f.Payload))
	}
	return f.Payload, nil
}

// Decode reads next verified frame into v.
func (c *Channel) Decode(v interface{}) error {
	payload, err := c.ReceivePayload()
	if err != nil {
		return err
	}
	if err = c.opt.Codec.Unmarshal(payload, v); err != nil {
		return errors.Wrapf(err, ErrSerialization, "decode payload=%q", payload)
	}
	return nil
}

// Receive returns next server message. Unknown message tags are not errors.
func (c *Channel) Receive() (proto.DeviceBound, error) {
	var m proto.DeviceBound
	err := c.Decode(&m)
	return m, err
}
