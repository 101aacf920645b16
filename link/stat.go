package link

// Values are read and modified atomically, but not consistently,
// i.e. it is possible to read Frames=1 Bytes=0 because Bytes has not updated yet.

import (
	"expvar"
	"fmt"
)

type Stat struct {
	Recv Counters
	Send Counters
}

func (s *Stat) Add(other *Stat) {
	s.Recv.Add(&other.Recv)
	s.Send.Add(&other.Send)
}

func (s *Stat) String() string {
	return fmt.Sprintf(`{"recv":%s,"send":%s}`, s.Recv.String(), s.Send.String())
}

type Counters struct {
	Frames expvar.Int
	Bytes  expvar.Int // raw stream, includes partial and rejected frames
}

func (c *Counters) Add(other *Counters) {
	c.Frames.Add(other.Frames.Value())
	c.Bytes.Add(other.Bytes.Value())
}

func (c *Counters) String() string {
	return fmt.Sprintf(`{"frames":%d,"bytes":%d}`, c.Frames.Value(), c.Bytes.Value())
}
