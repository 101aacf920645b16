// Package tele keeps one authenticated session with control server alive forever.
//
// State machine:
//   DISCONNECTED -(RetryDelay)-> CONNECTING -(dial, Identify)-> ACTIVE
//   CONNECTING -(dial or Identify failed)-> FAULTED
//   ACTIVE -(any channel error)-> FAULTED -(log, RetryDelay)-> CONNECTING
// Delay is fixed, attempts are unlimited.
//
// Events go either to Options.Handler inline (monolithic)
// or into bounded Incoming() queue for independent device loop (decoupled).
package tele

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/lightd/helpers/atomic_clock"
	"github.com/temoto/lightd/helpers"
	"github.com/temoto/lightd/link"
	"github.com/temoto/lightd/log2"
	"github.com/temoto/lightd/proto"
)

const (
	DefaultRetryDelay = 5 * time.Second
	DefaultQueueSize  = 4
	DefaultKeepalive  = 60 * time.Second
)

var ErrClosing = errors.New("closing")

type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

type Options struct {
	ServerAddr string
	LocalAddr  string // optional dialer source address
	DeviceID   proto.DeviceID
	Signer     link.Signer
	Codec      proto.Codec
	RetryDelay time.Duration
	QueueSize  int
	ReadLimit  uint32
	Keepalive  time.Duration // TCP keepalive, negative disables
	Dial       DialFunc      // default net.Dialer

	// Handler set selects monolithic mode, Incoming/Outgoing are unused.
	Handler       Handler
	OnStateChange func(State)
	Log           *log2.Log
}

type Manager struct {
	alive    *alive.Alive
	opt      Options
	state    int32
	incoming chan Event
	outgoing chan Reply
	stat     Stat
	lastRecv atomic_clock.Clock
	started  atomic_clock.Clock

	mu      sync.Mutex
	current *session
}

func NewManager(opt Options) (*Manager, error) {
	if opt.DeviceID.IsZero() {
		return nil, errors.NotValidf("tele DeviceID empty")
	}
	if opt.Signer == nil {
		return nil, errors.NotValidf("code error tele Signer=nil")
	}
	if opt.ServerAddr == "" {
		return nil, errors.NotValidf("tele ServerAddr empty")
	}
	if opt.Codec == nil {
		opt.Codec = proto.JSON
	}
	if opt.RetryDelay <= 0 {
		opt.RetryDelay = DefaultRetryDelay
	}
	if opt.QueueSize < 1 {
		opt.QueueSize = DefaultQueueSize
	}
	if opt.ReadLimit == 0 {
		opt.ReadLimit = link.DefaultReadLimit
	}
	if opt.Keepalive == 0 {
		opt.Keepalive = DefaultKeepalive
	}
	if opt.Dial == nil {
		d := &net.Dialer{KeepAlive: opt.Keepalive}
		if opt.LocalAddr != "" {
			laddr, err := net.ResolveTCPAddr("tcp", opt.LocalAddr)
			if err != nil {
				return nil, errors.Annotatef(err, "config error tele LocalAddr=%s", opt.LocalAddr)
			}
			d.LocalAddr = laddr
		}
		opt.Dial = d.DialContext
	}

	m := &Manager{
		alive:    alive.NewAlive(),
		opt:      opt,
		incoming: make(chan Event, opt.QueueSize),
		outgoing: make(chan Reply, opt.QueueSize),
	}
	return m, nil
}

// Incoming is closed when Run returns.
// Replies tagged with ended session are dropped, never replayed to next one.
func (m *Manager) Incoming() <-chan Event       { return m.incoming }
func (m *Manager) Outgoing() chan<- Reply       { return m.outgoing }
func (m *Manager) State() State                 { return State(atomic.LoadInt32(&m.state)) }
func (m *Manager) Stat() *Stat                  { return &m.stat }
func (m *Manager) SinceLastRecv() time.Duration { return atomic_clock.Since(&m.lastRecv) }

// SessionAge is zero when not connected, SinceLastRecv before first session.
func (m *Manager) SessionAge() time.Duration { return atomic_clock.Since(&m.started) }

// Run blocks until Close. Call once.
func (m *Manager) Run() error {
	if !m.alive.Add(1) {
		return ErrClosing
	}
	defer m.alive.Done()
	defer close(m.incoming)

	m.setState(StateDisconnected)
	for {
		if err := m.sleep(m.opt.RetryDelay); err != nil {
			break
		}
		m.setState(StateConnecting)
		err := m.session()
		if !m.alive.IsRunning() {
			break
		}
		m.setState(StateFaulted)
		m.stat.Faults.Add(1)
		m.opt.Log.ErrorStack(errors.Annotatef(err, "tele kind=%s retry in %s", link.Kind(err), m.opt.RetryDelay))
	}
	m.setState(StateDisconnected)
	return nil
}

func (m *Manager) Close() error {
	m.alive.Stop()
	helpers.WithLock(&m.mu, func() {
		if m.current != nil {
			_ = m.current.die(ErrClosing)
		}
	})
	m.alive.Wait()
	return nil
}

func (m *Manager) session() error {
	m.stat.Attempts.Add(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-m.alive.StopChan():
			cancel()
		case <-ctx.Done():
		}
	}()

	m.opt.Log.Debugf("tele: connecting addr=%s", m.opt.ServerAddr)
	conn, err := m.opt.Dial(ctx, "tcp", m.opt.ServerAddr)
	if err != nil {
		return errors.Wrapf(err, link.ErrIO, "connect addr=%s", m.opt.ServerAddr)
	}
	s, err := newSession(m, conn)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer m.stat.Link.Add(&s.stat)
	if !m.setCurrent(s) {
		return s.die(ErrClosing)
	}
	defer m.setCurrent(nil)
	return s.run()
}

func (m *Manager) setCurrent(s *session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s != nil && !m.alive.IsRunning() {
		return false
	}
	m.current = s
	return true
}

func (m *Manager) setState(s State) {
	old := State(atomic.SwapInt32(&m.state, int32(s)))
	if old == s {
		return
	}
	m.opt.Log.Debugf("tele: state %s -> %s", old, s)
	if f := m.opt.OnStateChange; f != nil {
		f(s)
	}
}

// deliver hands event to device control. Queue full suspends transport loop.
func (m *Manager) deliver(s *session, e Event) error {
	if h := m.opt.Handler; h != nil {
		if reply := h.HandleEvent(e); reply != nil && e.Kind != EventDisconnected {
			if err := s.ch.Send(*reply); err != nil {
				return s.die(err)
			}
		}
		return nil
	}
	select {
	case m.incoming <- e:
		return nil
	case <-m.alive.StopChan():
		return ErrClosing
	}
}

func (m *Manager) sleep(d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-m.alive.StopChan():
		return ErrClosing
	}
}
