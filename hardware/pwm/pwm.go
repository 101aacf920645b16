// Package pwm drives single light channel. Duty is integer percent 0..100,
// frequency and resolution are fixed once at open.
package pwm

import (
	"github.com/juju/errors"
	"github.com/temoto/lightd/log2"
)

const (
	MaxPercent         = 100
	DefaultFrequencyHz = 24000
)

var ErrHardware = errors.New("hardware")

type Channel interface {
	SetDuty(percent uint8) error
	Close() error
}

type Config struct {
	Driver      string `hcl:"driver"` // periph | gpio | log
	Pin         string `hcl:"pin"`    // periph pin name, e.g. GPIO18
	FrequencyHz int    `hcl:"frequency_hz"`
	Chip        string `hcl:"chip"` // gpio chardev, e.g. /dev/gpiochip0
	Line        int    `hcl:"line"`
	ActiveLow   bool   `hcl:"active_low"`
}

// Open returns channel already driven to 0.
func Open(c *Config, log *log2.Log) (Channel, error) {
	var ch Channel
	var err error
	switch c.Driver {
	case "periph":
		ch, err = openPeriph(c)
	case "gpio":
		ch, err = OpenGPIO(c)
	case "", "log":
		ch = NewLog(log)
	default:
		return nil, errors.NotValidf("config: hardware.pwm.driver=%q (valid: periph, gpio, log)", c.Driver)
	}
	if err != nil {
		return nil, errors.Annotatef(err, "pwm open driver=%s", c.Driver)
	}
	g := Guard(ch)
	if err = g.SetDuty(0); err != nil {
		_ = ch.Close()
		return nil, errors.Annotate(err, "pwm initial duty")
	}
	log.Debugf("pwm: driver=%s open", c.Driver)
	return g, nil
}

type guard struct{ Channel }

// Guard rejects duty over MaxPercent before it reaches hardware.
func Guard(c Channel) Channel { return guard{c} }

func (g guard) SetDuty(percent uint8) error {
	if percent > MaxPercent {
		return errors.Wrapf(nil, ErrHardware, "duty=%d exceeds %d", percent, MaxPercent)
	}
	return g.Channel.SetDuty(percent)
}

func IsHardware(err error) bool { return errors.Cause(err) == ErrHardware }
