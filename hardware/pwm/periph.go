package pwm

import (
	"github.com/juju/errors"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/host"
)

type periphChannel struct {
	pin  gpio.PinIO
	freq physic.Frequency
}

func openPeriph(c *Config) (*periphChannel, error) {
	if c.Pin == "" {
		return nil, errors.NotValidf("config: hardware.pwm.pin empty")
	}
	freq := c.FrequencyHz
	if freq <= 0 {
		freq = DefaultFrequencyHz
	}
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrapf(err, ErrHardware, "periph/init")
	}
	pin := gpioreg.ByName(c.Pin)
	if pin == nil {
		return nil, errors.Wrapf(nil, ErrHardware, "periph pin=%s not found", c.Pin)
	}
	return &periphChannel{
		pin:  pin,
		freq: physic.Frequency(freq) * physic.Hertz,
	}, nil
}

func (self *periphChannel) SetDuty(percent uint8) error {
	var err error
	if percent == 0 {
		err = self.pin.Out(gpio.Low)
	} else {
		duty := gpio.Duty(int64(gpio.DutyMax) * int64(percent) / MaxPercent)
		err = self.pin.PWM(duty, self.freq)
	}
	if err != nil {
		return errors.Wrapf(err, ErrHardware, "periph pin=%s duty=%d%%", self.pin.Name(), percent)
	}
	return nil
}

func (self *periphChannel) Close() error {
	return errors.Annotate(self.pin.Halt(), "periph halt")
}
