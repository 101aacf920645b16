package console

import (
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/lightd/hardware/pwm"
	"github.com/temoto/lightd/helpers/cli"
	"github.com/temoto/lightd/light"
	"github.com/temoto/lightd/log2"
	"github.com/temoto/lightd/proto"
)

func TestParseUpdate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input  string
		expect proto.AttributeUpdate
		check  func(error) bool
	}{
		{"on", proto.NewPowerUpdate(true), nil},
		{"off", proto.NewPowerUpdate(false), nil},
		{"b 40", proto.NewBrightnessUpdate(40), nil},
		{"brightness 100", proto.NewBrightnessUpdate(100), nil},
		{"brightness", proto.AttributeUpdate{}, errors.IsNotValid},
		{"b 256", proto.AttributeUpdate{}, errors.IsNotValid},
		{"b -1", proto.AttributeUpdate{}, errors.IsNotValid},
		{"color red", proto.AttributeUpdate{}, errors.IsNotSupported},
	}
	for _, c := range cases {
		u, err := parseUpdate(c.input)
		if c.check == nil {
			require.NoError(t, err, c.input)
			assert.Equal(t, c.expect, u, c.input)
		} else {
			assert.True(t, c.check(err), "input=%s err=%v", c.input, err)
		}
	}
}

func TestExecutor(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LDebug)
	ch := pwm.NewLog(log)
	ctl, err := light.NewController(proto.MustDeviceID("light-1"), light.Props{Min: 0, Max: 90, Step: 10}, ch, log)
	require.NoError(t, err)

	exec := newExecutor(ctl, log)
	cli.ReadLines(strings.NewReader("help\nb 47\nstate\nbogus\n"), exec)
	assert.Equal(t, uint8(40), ctl.Brightness())
	exec("on")
	assert.Equal(t, uint8(90), ch.Duty())
	exec("off")
	assert.Equal(t, uint8(0), ch.Duty())
}
