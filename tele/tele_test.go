package tele_test

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/lightd/auth"
	"github.com/temoto/lightd/hardware/pwm"
	"github.com/temoto/lightd/light"
	"github.com/temoto/lightd/link"
	"github.com/temoto/lightd/log2"
	"github.com/temoto/lightd/proto"
	"github.com/temoto/lightd/tele"
)

const testRetryDelay = 20 * time.Millisecond

var localID = proto.MustDeviceID("light-1")

type serverConn struct {
	ch   *link.Channel
	conn net.Conn
}

// fakeServer accepts sessions over net.Pipe, first `fail` dials are refused.
type fakeServer struct {
	t      testing.TB
	keys   *auth.Context
	device *auth.Context
	rogue  *auth.Context
	conns  chan serverConn
	fail   int32

	mu       sync.Mutex
	attempts []time.Time
}

func newFakeServer(t testing.TB, fail int32) *fakeServer {
	dk, err := auth.GenerateKey()
	require.NoError(t, err)
	sk, err := auth.GenerateKey()
	require.NoError(t, err)
	rk, err := auth.GenerateKey()
	require.NoError(t, err)
	f := &fakeServer{t: t, conns: make(chan serverConn, 16), fail: fail}
	f.device, err = auth.NewContext(dk, &sk.PublicKey)
	require.NoError(t, err)
	f.keys, err = auth.NewContext(sk, &dk.PublicKey)
	require.NoError(t, err)
	f.rogue, err = auth.NewContext(rk, &dk.PublicKey)
	require.NoError(t, err)
	return f
}

func (f *fakeServer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	f.mu.Lock()
	f.attempts = append(f.attempts, time.Now())
	f.mu.Unlock()
	if atomic.AddInt32(&f.fail, -1) >= 0 {
		return nil, errors.New("connection refused")
	}
	dconn, sconn := net.Pipe()
	_ = sconn.SetDeadline(time.Now().Add(5 * time.Second))
	ch, err := link.NewChannel(sconn, f.keys, link.Options{})
	if err != nil {
		return nil, err
	}
	f.conns <- serverConn{ch: ch, conn: sconn}
	return dconn, nil
}

func (f *fakeServer) Attempts() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.attempts...)
}

func (f *fakeServer) accept(t testing.TB) serverConn {
	select {
	case sc := <-f.conns:
		return sc
	case <-time.After(5 * time.Second):
		t.Fatal("no session")
	}
	return serverConn{}
}

func (sc serverConn) recv(t testing.TB) proto.ServerBound {
	var m proto.ServerBound
	require.NoError(t, sc.ch.Decode(&m))
	return m
}

func (sc serverConn) send(t testing.TB, m proto.DeviceBound) {
	require.NoError(t, sc.ch.Encode(m))
}

func notification(brightness uint8) proto.ServerBound {
	return proto.NewUpdateNotification(localID, proto.NewDimmableLightState(brightness))
}

func newManager(t testing.TB, f *fakeServer, h tele.Handler, states chan<- tele.State) *tele.Manager {
	return newManagerQueue(t, f, h, states, 1)
}

func newManagerQueue(t testing.TB, f *fakeServer, h tele.Handler, states chan<- tele.State, queue int) *tele.Manager {
	m, err := tele.NewManager(tele.Options{
		ServerAddr: "server:7878",
		DeviceID:   localID,
		Signer:     f.device,
		RetryDelay: testRetryDelay,
		QueueSize:  queue,
		Dial:       f.Dial,
		Handler:    h,
		OnStateChange: func(s tele.State) {
			if states != nil {
				select {
				case states <- s:
				default:
				}
			}
		},
		Log: log2.NewTest(t, log2.LDebug),
	})
	require.NoError(t, err)
	return m
}

func newController(t testing.TB) *light.Controller {
	c, err := light.NewController(localID, light.DefaultProps, pwm.NewLog(nil), log2.NewTest(t, log2.LDebug))
	require.NoError(t, err)
	return c
}

func TestRetryLiveness(t *testing.T) {
	t.Parallel()
	const failures = 5
	f := newFakeServer(t, failures)
	m := newManager(t, f, tele.HandlerFunc(func(tele.Event) *proto.ServerBound { return nil }), nil)
	started := time.Now()
	go m.Run()
	defer m.Close()

	sc := f.accept(t)
	assert.Equal(t, proto.NewIdentify(localID), sc.recv(t))

	attempts := f.Attempts()
	require.Len(t, attempts, failures+1)
	assert.True(t, attempts[0].Sub(started) >= testRetryDelay, "first attempt without delay")
	for i := 1; i < len(attempts); i++ {
		gap := attempts[i].Sub(attempts[i-1])
		assert.True(t, gap >= testRetryDelay, "attempt=%d gap=%s", i, gap)
	}
	assert.Equal(t, int64(failures), m.Stat().Faults.Value())
	assert.Equal(t, int64(failures+1), m.Stat().Attempts.Value())
	assert.Eventually(t, func() bool { return m.Stat().Sessions.Value() == 1 }, time.Second, time.Millisecond)
}

func TestRetryForever(t *testing.T) {
	t.Parallel()
	f := newFakeServer(t, 1<<30)
	m := newManager(t, f, tele.HandlerFunc(func(tele.Event) *proto.ServerBound { return nil }), nil)
	go m.Run()
	deadline := time.Now().Add(5 * time.Second)
	for len(f.Attempts()) < 8 && time.Now().Before(deadline) {
		time.Sleep(testRetryDelay)
	}
	require.NoError(t, m.Close())
	assert.True(t, len(f.Attempts()) >= 8)
	assert.Equal(t, tele.StateDisconnected, m.State())
	_, ok := <-m.Incoming()
	assert.False(t, ok, "Incoming must be closed after Run")
}

func TestMonolithic(t *testing.T) {
	t.Parallel()
	f := newFakeServer(t, 0)
	states := make(chan tele.State, 32)
	c := newController(t)
	m := newManager(t, f, c, states)
	go m.Run()
	defer m.Close()

	sc := f.accept(t)
	assert.Equal(t, proto.NewIdentify(localID), sc.recv(t))
	assert.Equal(t, notification(0), sc.recv(t))

	sc.send(t, proto.NewUpdateCommand(localID, proto.NewBrightnessUpdate(70)))
	assert.Equal(t, notification(70), sc.recv(t))

	// no reply for other device, next reply belongs to our query
	sc.send(t, proto.NewStateQuery(proto.MustDeviceID("light-2")))
	sc.send(t, proto.NewUpdateCommand(proto.MustDeviceID("light-2"), proto.NewPowerUpdate(false)))
	sc.send(t, proto.DeviceBound{Unknown: "Reboot"})
	sc.send(t, proto.NewStateQuery(localID))
	assert.Equal(t, notification(70), sc.recv(t))
	assert.Equal(t, uint8(70), c.Brightness())
	assert.Equal(t, tele.StateActive, m.State())
	assert.True(t, m.SessionAge() > 0)

	assert.Equal(t, tele.StateConnecting, <-states)
	assert.Equal(t, tele.StateActive, <-states)
}

func TestDecoupled(t *testing.T) {
	t.Parallel()
	f := newFakeServer(t, 0)
	c := newController(t)
	m := newManager(t, f, nil, nil)
	stop := make(chan struct{})
	defer close(stop)
	go c.Run(m.Incoming(), m.Outgoing(), stop)
	go m.Run()
	defer m.Close()

	sc := f.accept(t)
	assert.Equal(t, proto.NewIdentify(localID), sc.recv(t))
	assert.Equal(t, notification(0), sc.recv(t))
	for _, b := range []uint8{10, 20, 30} {
		sc.send(t, proto.NewUpdateCommand(localID, proto.NewBrightnessUpdate(b)))
	}
	for _, b := range []uint8{10, 20, 30} {
		assert.Equal(t, notification(b), sc.recv(t))
	}
	sc.send(t, proto.NewUpdateCommand(localID, proto.NewPowerUpdate(true)))
	assert.Equal(t, notification(100), sc.recv(t))
}

// Replies produced for ended session must not leak into the next one.
func TestDecoupledReconnect(t *testing.T) {
	t.Parallel()
	f := newFakeServer(t, 0)
	c := newController(t)
	m := newManagerQueue(t, f, nil, nil, 8)
	stop := make(chan struct{})
	defer close(stop)

	// slow device loop: after first event relay waits for release
	release := make(chan struct{})
	in := make(chan tele.Event)
	go func() {
		defer close(in)
		first := true
		for e := range m.Incoming() {
			if !first {
				select {
				case <-release:
				case <-stop:
					return
				}
			}
			first = false
			select {
			case in <- e:
			case <-stop:
				return
			}
		}
	}()
	go c.Run(in, m.Outgoing(), stop)
	go m.Run()
	defer m.Close()

	sc := f.accept(t)
	assert.Equal(t, proto.NewIdentify(localID), sc.recv(t))
	assert.Equal(t, notification(0), sc.recv(t))

	sc.send(t, proto.NewUpdateCommand(localID, proto.NewBrightnessUpdate(10)))
	sc.send(t, proto.NewStateQuery(localID))
	require.NoError(t, sc.conn.Close())

	sc2 := f.accept(t)
	assert.Equal(t, proto.NewIdentify(localID), sc2.recv(t))
	close(release)
	// Connected report of new session comes right after Identify
	assert.Equal(t, notification(10), sc2.recv(t))
	sc2.send(t, proto.NewUpdateCommand(localID, proto.NewBrightnessUpdate(20)))
	assert.Equal(t, notification(20), sc2.recv(t))
	assert.Equal(t, uint8(20), c.Brightness())
	assert.Equal(t, int64(2), m.Stat().Sessions.Value())
}

func TestAuthFailureTearsDown(t *testing.T) {
	t.Parallel()
	f := newFakeServer(t, 0)
	c := newController(t)
	events := make(chan tele.Event, 32)
	h := tele.HandlerFunc(func(e tele.Event) *proto.ServerBound {
		events <- e
		return c.HandleEvent(e)
	})
	states := make(chan tele.State, 32)
	m := newManager(t, f, h, states)
	go m.Run()
	defer m.Close()

	sc := f.accept(t)
	assert.Equal(t, proto.NewIdentify(localID), sc.recv(t))
	assert.Equal(t, notification(0), sc.recv(t))
	sc.send(t, proto.NewUpdateCommand(localID, proto.NewBrightnessUpdate(40)))
	assert.Equal(t, notification(40), sc.recv(t))

	// command signed by unknown key
	rogue, err := link.NewChannel(sc.conn, f.rogue, link.Options{})
	require.NoError(t, err)
	require.NoError(t, rogue.Encode(proto.NewUpdateCommand(localID, proto.NewBrightnessUpdate(99))))
	var dead proto.ServerBound
	assert.Error(t, sc.ch.Decode(&dead), "session must be closed by device")

	// new session, state survived
	sc2 := f.accept(t)
	assert.Equal(t, proto.NewIdentify(localID), sc2.recv(t))
	assert.Equal(t, notification(40), sc2.recv(t))
	assert.Equal(t, uint8(40), c.Brightness())

	var disconnected *tele.Event
	for len(events) > 0 {
		e := <-events
		if e.Kind == tele.EventDisconnected {
			disconnected = &e
		}
	}
	require.NotNil(t, disconnected)
	assert.Equal(t, link.ErrAuth, errors.Cause(disconnected.Err))
	assert.Equal(t, int64(1), m.Stat().Faults.Value())

	var seen []tele.State
	for len(states) > 0 {
		seen = append(seen, <-states)
	}
	assert.Contains(t, seen, tele.StateFaulted)
}

func TestNewManagerInvalid(t *testing.T) {
	t.Parallel()
	f := newFakeServer(t, 0)
	_, err := tele.NewManager(tele.Options{ServerAddr: "x:1", Signer: f.device})
	assert.Error(t, err)
	_, err = tele.NewManager(tele.Options{ServerAddr: "x:1", DeviceID: localID})
	assert.Error(t, err)
	_, err = tele.NewManager(tele.Options{DeviceID: localID, Signer: f.device})
	assert.Error(t, err)
	_, err = tele.NewManager(tele.Options{ServerAddr: "x:1", DeviceID: localID, Signer: f.device, LocalAddr: "not an address"})
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "DISCONNECTED", tele.StateDisconnected.String())
	assert.Equal(t, "FAULTED", tele.StateFaulted.String())
	assert.Equal(t, "State(9)", tele.State(9).String())
	assert.Equal(t, "message", tele.EventMessage.String())
}
