// Package light is device control loop of dimmable light.
// Controller exclusively owns PWM channel and current brightness.
// Brightness changes only after successful hardware write and is never persisted.
//
// Power(true) policy: fixed maximum, Props.Max.
package light

import (
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/temoto/lightd/hardware/pwm"
	"github.com/temoto/lightd/log2"
	"github.com/temoto/lightd/proto"
	"github.com/temoto/lightd/tele"
)

type Controller struct {
	id    proto.DeviceID
	props Props
	pwm   pwm.Channel
	log   *log2.Log

	// written only by control loop, atomic for State() observers
	current uint32
}

var _ tele.Handler = &Controller{}

func NewController(id proto.DeviceID, props Props, ch pwm.Channel, log *log2.Log) (*Controller, error) {
	if id.IsZero() {
		return nil, errors.NotValidf("light device id empty")
	}
	if ch == nil {
		return nil, errors.NotValidf("code error light pwm=nil")
	}
	if err := props.Validate(); err != nil {
		return nil, err
	}
	return &Controller{id: id, props: props, pwm: ch, log: log}, nil
}

func (self *Controller) Props() Props { return self.props }

func (self *Controller) Brightness() uint8 { return uint8(atomic.LoadUint32(&self.current)) }

func (self *Controller) State() proto.DeviceState {
	return proto.NewDimmableLightState(self.Brightness())
}

// Run is decoupled device loop. Returns when in is closed or stop is closed.
// Full out suspends the loop. Replies carry session of the event.
func (self *Controller) Run(in <-chan tele.Event, out chan<- tele.Reply, stop <-chan struct{}) {
	for {
		select {
		case e, ok := <-in:
			if !ok {
				return
			}
			reply := self.HandleEvent(e)
			if reply == nil {
				continue
			}
			select {
			case out <- tele.Reply{Session: e.Session, Message: *reply}:
			case <-stop:
				return
			}

		case <-stop:
			return
		}
	}
}

func (self *Controller) HandleEvent(e tele.Event) *proto.ServerBound {
	switch e.Kind {
	case tele.EventConnected:
		self.log.Debugf("light: session=%s connected, report state=%s", e.Session, self.State().String())
		return self.report()

	case tele.EventDisconnected:
		self.log.Debugf("light: session=%s disconnected, keep brightness=%d", e.Session, self.Brightness())
		return nil

	case tele.EventMessage:
		return self.handleMessage(e.Message)
	}
	self.log.Errorf("code error light unexpected event=%s", e.String())
	return nil
}

func (self *Controller) handleMessage(m proto.DeviceBound) *proto.ServerBound {
	switch {
	case m.UpdateCommand != nil:
		cmd := m.UpdateCommand
		if !cmd.DeviceID.Equal(self.id) {
			self.log.Infof("light: ignore update for device=%s", cmd.DeviceID.String())
			return nil
		}
		target, ok := self.target(cmd.Update)
		if !ok {
			self.log.Infof("light: ignore unsupported update=%s", cmd.Update.String())
			return nil
		}
		if err := self.Set(target); err != nil {
			self.log.ErrorStack(err)
		}
		return self.report()

	case m.StateQuery != nil:
		if !m.StateQuery.DeviceID.Equal(self.id) {
			self.log.Infof("light: ignore query for device=%s", m.StateQuery.DeviceID.String())
			return nil
		}
		return self.report()
	}
	self.log.Infof("light: ignore unsupported message=%s", m.String())
	return nil
}

// target returns new brightness for update, false for unsupported kinds.
func (self *Controller) target(u proto.AttributeUpdate) (uint8, bool) {
	switch u.Kind() {
	case proto.UpdatePower:
		if u.Power.Power {
			return self.props.Top(), true
		}
		return 0, true
	case proto.UpdateBrightness:
		return self.props.Clamp(int(u.Brightness.Brightness)), true
	}
	return 0, false
}

// Set drives hardware. Current brightness is updated only on success.
// Must be called from control loop only.
func (self *Controller) Set(brightness uint8) error {
	if err := self.pwm.SetDuty(brightness); err != nil {
		return errors.Annotatef(err, "light set brightness=%d keep=%d", brightness, self.Brightness())
	}
	atomic.StoreUint32(&self.current, uint32(brightness))
	self.log.Debugf("light: brightness=%d", brightness)
	return nil
}

// Apply is local control entry, same rules as remote update command.
func (self *Controller) Apply(u proto.AttributeUpdate) (proto.DeviceState, error) {
	target, ok := self.target(u)
	if !ok {
		return self.State(), errors.NotSupportedf("update=%s", u.String())
	}
	err := self.Set(target)
	return self.State(), err
}

func (self *Controller) report() *proto.ServerBound {
	m := proto.NewUpdateNotification(self.id, self.State())
	return &m
}
