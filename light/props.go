package light

import (
	"fmt"

	"github.com/juju/errors"
	"github.com/temoto/lightd/hardware/pwm"
)

// Props are numeric properties of brightness.
// With Min > 0 the only way to zero is Power(false).
type Props struct {
	Min  uint8
	Max  uint8
	Step uint8
}

var DefaultProps = Props{Min: 0, Max: pwm.MaxPercent, Step: 1}

func (p Props) Validate() error {
	if p.Max == 0 || p.Max > pwm.MaxPercent {
		return errors.NotValidf("light max=%d (valid 1..%d)", p.Max, pwm.MaxPercent)
	}
	if p.Min > p.Max {
		return errors.NotValidf("light min=%d > max=%d", p.Min, p.Max)
	}
	return nil
}

// Clamp maps requested value into [Min,Max] and snaps down to Step grid from Min.
func (p Props) Clamp(v int) uint8 {
	if v < int(p.Min) {
		v = int(p.Min)
	}
	if v > int(p.Max) {
		v = int(p.Max)
	}
	if p.Step > 1 {
		v = int(p.Min) + (v-int(p.Min))/int(p.Step)*int(p.Step)
	}
	return uint8(v)
}

// Top is brightness of Power(true): Max snapped down to Step grid.
func (p Props) Top() uint8 { return p.Clamp(int(p.Max)) }

func (p Props) String() string {
	return fmt.Sprintf("min=%d max=%d step=%d", p.Min, p.Max, p.Step)
}
