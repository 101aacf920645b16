package pwm

import (
	"github.com/juju/errors"
	"github.com/temoto/gpio-cdev-go"
	"github.com/temoto/lightd/helpers"
)

const consumerLabel = "lightd"

// On/off fallback for boards without PWM. Only 0 and MaxPercent are accepted,
// partial duty is ErrHardware so reported brightness matches the line.
// Pair with `light { step = 100 }`.
type lineChannel struct {
	chip  gpio.Chiper
	lines gpio.Lineser
	set   gpio.LineSetFunc
}

func OpenGPIO(c *Config) (Channel, error) {
	if c.Chip == "" {
		return nil, errors.NotValidf("config: hardware.pwm.chip empty")
	}
	chip, err := gpio.Open(c.Chip, consumerLabel)
	if err != nil {
		return nil, errors.Wrapf(err, ErrHardware, "gpio open chip=%s", c.Chip)
	}
	ch, err := NewLineChannel(chip, c)
	if err != nil {
		_ = chip.Close()
		return nil, err
	}
	return ch, nil
}

func NewLineChannel(chip gpio.Chiper, c *Config) (Channel, error) {
	if c.Line < 0 {
		return nil, errors.NotValidf("config: hardware.pwm.line=%d", c.Line)
	}
	line := uint32(c.Line)
	flag := gpio.GPIOHANDLE_REQUEST_OUTPUT
	if c.ActiveLow {
		flag |= gpio.GPIOHANDLE_REQUEST_ACTIVE_LOW
	}
	lines, err := chip.OpenLines(flag, consumerLabel, line)
	if err != nil {
		return nil, errors.Wrapf(err, ErrHardware, "gpio chip=%s line=%d", c.Chip, line)
	}
	return &lineChannel{
		chip:  chip,
		lines: lines,
		set:   lines.SetFunc(line),
	}, nil
}

func (self *lineChannel) SetDuty(percent uint8) error {
	var v byte
	switch percent {
	case 0:
	case MaxPercent:
		v = 1
	default:
		return errors.Wrapf(nil, ErrHardware, "gpio on/off line duty=%d (valid 0 or %d)", percent, MaxPercent)
	}
	self.set(v)
	if err := self.lines.Flush(); err != nil {
		return errors.Wrapf(err, ErrHardware, "gpio flush value=%d", v)
	}
	return nil
}

func (self *lineChannel) Close() error {
	return helpers.FoldErrors([]error{
		self.lines.Close(),
		self.chip.Close(),
	})
}
