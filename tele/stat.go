package tele

import (
	"expvar"
	"fmt"

	"github.com/temoto/lightd/link"
)

type Stat struct {
	Attempts expvar.Int
	Sessions expvar.Int
	Faults   expvar.Int
	Link     link.Stat // finished sessions only
}

func (s *Stat) String() string {
	return fmt.Sprintf(`{"attempts":%d,"sessions":%d,"faults":%d,"link":%s}`,
		s.Attempts.Value(), s.Sessions.Value(), s.Faults.Value(), s.Link.String())
}
