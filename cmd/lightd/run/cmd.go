// Main mode of operation: keep server session and drive the light.
package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/lightd/cmd/lightd/subcmd"
	"github.com/temoto/lightd/internal/state"
	"github.com/temoto/lightd/tele"
)

const stopTimeout = 5 * time.Second

var Mod = subcmd.Mod{Name: "run", Usage: "connect to server and serve commands (default)", Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	g.MustInit(ctx, config)

	ctl, err := g.Controller()
	if err != nil {
		return errors.Annotate(err, "light init")
	}
	m, err := g.Tele(nil, func(s tele.State) {
		subcmd.SdNotify("STATUS=tele " + s.String())
	})
	if err != nil {
		return errors.Annotate(err, "tele init")
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigs
		g.Log.Infof("signal=%s stopping", s.String())
		g.Stop()
	}()

	if !g.Alive.Add(2) {
		return errors.Errorf("code error run after stop")
	}
	go func() {
		defer g.Alive.Done()
		ctl.Run(m.Incoming(), m.Outgoing(), g.Alive.StopChan())
	}()
	go func() {
		defer g.Alive.Done()
		if err := m.Run(); err != nil {
			g.Error(err, "tele run")
		}
	}()
	go func() {
		<-g.Alive.StopChan()
		_ = m.Close()
	}()
	go watchdog(g, m)

	subcmd.SdNotify(daemon.SdNotifyReady)
	g.Log.Infof("lightd device=%s server=%s light %s running",
		g.DeviceID.String(), g.Config.Tele.ServerAddr, ctl.Props().String())

	g.Alive.Wait()
	if !g.StopWait(stopTimeout) {
		g.Log.Errorf("stop timeout=%s", stopTimeout)
	}
	g.Log.Infof("stopped brightness=%d tele %s", ctl.Brightness(), m.Stat().String())
	return nil
}

// watchdog pings systemd while transport loop is alive.
func watchdog(g *state.Global, m *tele.Manager) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		g.Error(err, "sd watchdog")
		return
	}
	if interval == 0 {
		return
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	stopch := g.Alive.StopChan()
	for {
		select {
		case <-t.C:
			g.Log.Debugf("watchdog state=%s last_recv=%s", m.State().String(), m.SinceLastRecv())
			subcmd.SdNotify(daemon.SdNotifyWatchdog)
		case <-stopch:
			return
		}
	}
}
