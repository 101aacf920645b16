package tele

import (
	"net"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/temoto/lightd/helpers"
	"github.com/temoto/lightd/link"
	"github.com/temoto/lightd/proto"
)

type session struct {
	m    *Manager
	id   string
	conn net.Conn
	ch   *link.Channel
	err  helpers.AtomicError
	stat link.Stat
}

func newSession(m *Manager, conn net.Conn) (*session, error) {
	s := &session{
		m:    m,
		id:   uuid.New().String(),
		conn: conn,
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetLinger(0)
	}
	var err error
	s.ch, err = link.NewChannel(conn, m.opt.Signer, link.Options{
		Codec:     m.opt.Codec,
		ReadLimit: m.opt.ReadLimit,
		Log:       m.opt.Log,
		Stat:      &s.stat,
	})
	return s, err
}

// die closes connection once and returns first error.
func (s *session) die(e error) error {
	if err, found := s.err.StoreOnce(e); found {
		return err
	}
	_ = s.conn.Close()
	s.m.opt.Log.Debugf("tele: session=%s close remote=%s e=%v", s.id, s.conn.RemoteAddr(), e)
	return e
}

func (s *session) run() error {
	m := s.m
	if err := s.ch.Send(proto.NewIdentify(m.opt.DeviceID)); err != nil {
		return s.die(errors.Annotate(err, "identify"))
	}
	m.stat.Sessions.Add(1)
	m.started.SetNow()
	m.lastRecv.SetNow()
	m.setState(StateActive)
	m.opt.Log.Infof("tele: session=%s active remote=%s", s.id, s.conn.RemoteAddr())

	if m.opt.Handler == nil {
		stopWriter := make(chan struct{})
		writerDone := make(chan struct{})
		go s.writer(stopWriter, writerDone)
		defer func() {
			close(stopWriter)
			<-writerDone
		}()
	}

	err := m.deliver(s, Event{Kind: EventConnected, Session: s.id})
	for err == nil {
		var msg proto.DeviceBound
		if msg, err = s.ch.Receive(); err != nil {
			break
		}
		m.lastRecv.SetNow()
		err = m.deliver(s, Event{Kind: EventMessage, Session: s.id, Message: msg})
	}
	err = s.die(err)
	m.started.Reset()
	_ = m.deliver(s, Event{Kind: EventDisconnected, Session: s.id, Err: err})
	m.opt.Log.Debugf("tele: session=%s end stat=%s", s.id, s.stat.String())
	return err
}

// writer drains Outgoing while session lives.
// Replies to previous sessions are stale and dropped.
// After send error it keeps draining so device loop never blocks on dead session.
func (s *session) writer(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	failed := false
	for {
		select {
		case r := <-s.m.outgoing:
			if r.Session != "" && r.Session != s.id {
				s.m.opt.Log.Debugf("tele: session=%s drop stale %s", s.id, r.String())
				continue
			}
			if failed {
				s.m.opt.Log.Debugf("tele: session=%s dead, drop %s", s.id, r.String())
				continue
			}
			if err := s.ch.Send(r.Message); err != nil {
				_ = s.die(err)
				failed = true
			}
		case <-stop:
			return
		}
	}
}
