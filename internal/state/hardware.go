package state

import (
	"sync"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/temoto/lightd/auth"
	"github.com/temoto/lightd/hardware/pwm"
	"github.com/temoto/lightd/helpers"
)

type hardware struct {
	PWM struct {
		once
		Channel pwm.Channel
	}
	keys struct {
		once
		ctx *auth.Context
	}
}

// PWM opens configured channel once. Preset Channel is kept (testing mode).
func (g *Global) PWM() (pwm.Channel, error) {
	x := &g.Hardware.PWM // short alias
	_ = x.do(func() error {
		if x.Channel != nil {
			return nil
		}
		cfg := &g.Config.Hardware.PWM
		if cfg.FrequencyHz == 0 {
			cfg.FrequencyHz = pwm.DefaultFrequencyHz
		}
		ch, err := pwm.Open(cfg, g.Log)
		if err != nil {
			return errors.Annotatef(err, "config: hardware.pwm=%#v", *cfg)
		}
		x.Channel = ch
		return nil
	})
	return x.Channel, x.err
}

// Keys loads device private key and server public key once.
func (g *Global) Keys() (*auth.Context, error) {
	x := &g.Hardware.keys
	_ = x.do(func() error {
		cfg := &g.Config.Tele
		pb, err := g.Config.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return errors.Annotate(err, "config: tele.private_key_path")
		}
		own, err := auth.ParsePrivateKey(pb)
		if err != nil {
			return errors.Annotatef(err, "config: tele.private_key_path=%s", cfg.PrivateKeyPath)
		}
		sb, err := g.Config.ReadFile(cfg.ServerPublicKeyPath)
		if err != nil {
			return errors.Annotate(err, "config: tele.server_public_key_path")
		}
		peer, err := auth.ParsePublicKey(sb)
		if err != nil {
			return errors.Annotatef(err, "config: tele.server_public_key_path=%s", cfg.ServerPublicKeyPath)
		}
		x.ctx, err = auth.NewContext(own, peer)
		return err
	})
	return x.ctx, x.err
}

func (g *Global) closeHardware() error {
	x := &g.Hardware.PWM
	var err error
	helpers.WithLock(x, func() {
		if x.Channel != nil {
			err = x.Channel.Close()
			x.Channel = nil
		}
	})
	return errors.Annotate(err, "pwm close")
}

type once struct {
	sync.Mutex
	called uint32 // atomic bool
	err    error
}

func (o *once) done() bool {
	return atomic.LoadUint32(&o.called) == 1
}

func (o *once) do(f func() error) error {
	if o.done() { // fast path
		return o.err
	}
	o.Lock()
	defer o.Unlock()
	if o.done() {
		return o.err
	}
	o.err = f()
	atomic.StoreUint32(&o.called, 1)
	return o.err
}
