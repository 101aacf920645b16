package pwm_test

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/temoto/gpio-cdev-go"
	gpio_mock "github.com/temoto/gpio-cdev-go/mock"
	"github.com/temoto/lightd/hardware/pwm"
	"github.com/temoto/lightd/hardware/pwm/pwm_mock"
	"github.com/temoto/lightd/log2"
)

func TestOpenLog(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LDebug)
	ch, err := pwm.Open(&pwm.Config{Driver: "log"}, log)
	require.NoError(t, err)
	defer ch.Close()

	for _, p := range []uint8{0, 1, 50, 100} {
		assert.NoError(t, ch.SetDuty(p))
	}
	err = ch.SetDuty(101)
	require.Error(t, err)
	assert.True(t, pwm.IsHardware(err))
}

func TestOpenInvalid(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LDebug)
	_, err := pwm.Open(&pwm.Config{Driver: "laser"}, log)
	assert.True(t, errors.IsNotValid(err), err)
	_, err = pwm.Open(&pwm.Config{Driver: "periph"}, log)
	assert.Error(t, err)
	_, err = pwm.Open(&pwm.Config{Driver: "gpio"}, log)
	assert.Error(t, err)
}

func TestGuard(t *testing.T) {
	t.Parallel()
	m := &pwm_mock.MockChannel{}
	m.On("SetDuty", uint8(100)).Return(nil).Once()
	g := pwm.Guard(m)
	assert.NoError(t, g.SetDuty(100))
	err := g.SetDuty(200)
	assert.True(t, pwm.IsHardware(err))
	m.AssertExpectations(t)
	m.AssertNotCalled(t, "SetDuty", uint8(200))
}

func TestLineChannel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		activeLow bool
		flag      gpio.RequestFlag
	}{
		{"active-high", false, gpio.GPIOHANDLE_REQUEST_OUTPUT},
		{"active-low", true, gpio.GPIOHANDLE_REQUEST_OUTPUT | gpio.GPIOHANDLE_REQUEST_ACTIVE_LOW},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			var values []byte
			chip := &gpio_mock.MockChip{}
			lines := &gpio_mock.MockLines{}
			chip.On("OpenLines", c.flag, "lightd", uint32(17)).Return(lines, nil)
			chip.On("Close").Return(nil)
			lines.On("SetFunc", uint32(17)).Return(gpio.LineSetFunc(func(v byte) { values = append(values, v) }))
			lines.On("Flush").Return(nil)
			lines.On("Close").Return(nil)

			ch, err := pwm.NewLineChannel(chip, &pwm.Config{Chip: "gpiochip0", Line: 17, ActiveLow: c.activeLow})
			require.NoError(t, err)
			for _, p := range []uint8{0, 100, 0} {
				require.NoError(t, ch.SetDuty(p))
			}
			for _, p := range []uint8{1, 70, 99} {
				err := ch.SetDuty(p)
				require.Error(t, err, "duty=%d", p)
				assert.True(t, pwm.IsHardware(err))
			}
			require.NoError(t, ch.Close())
			assert.Equal(t, []byte{0, 1, 0}, values)
			chip.AssertExpectations(t)
			lines.AssertExpectations(t)
		})
	}
}

func TestLineChannelErrors(t *testing.T) {
	t.Parallel()
	chip := &gpio_mock.MockChip{}
	chip.On("OpenLines", gpio.GPIOHANDLE_REQUEST_OUTPUT, "lightd", uint32(3)).Return((*gpio_mock.MockLines)(nil), errors.New("device busy"))
	_, err := pwm.NewLineChannel(chip, &pwm.Config{Chip: "gpiochip0", Line: 3})
	require.Error(t, err)
	assert.True(t, pwm.IsHardware(err))

	_, err = pwm.NewLineChannel(chip, &pwm.Config{Line: -1})
	assert.True(t, errors.IsNotValid(err))

	chip = &gpio_mock.MockChip{}
	lines := &gpio_mock.MockLines{}
	chip.On("OpenLines", mock.Anything, "lightd", uint32(3)).Return(lines, nil)
	lines.On("SetFunc", uint32(3)).Return(gpio.LineSetFunc(func(byte) {}))
	lines.On("Flush").Return(errors.New("EIO"))
	ch, err := pwm.NewLineChannel(chip, &pwm.Config{Chip: "gpiochip0", Line: 3})
	require.NoError(t, err)
	err = ch.SetDuty(100)
	require.Error(t, err)
	assert.True(t, pwm.IsHardware(err))
}
