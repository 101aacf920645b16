package state

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/lightd/light"
	"github.com/temoto/lightd/log2"
	"github.com/temoto/lightd/proto"
	"github.com/temoto/lightd/tele"
)

type Global struct {
	Alive        *alive.Alive
	BuildVersion string
	Config       *Config
	DeviceID     proto.DeviceID
	Hardware     hardware // hardware.go
	Log          *log2.Log
	Props        light.Props

	_copy_guard sync.Mutex //nolint:unused
}

const ContextKey = "run/state-global"

func NewContext(log *log2.Log) (context.Context, *Global) {
	if log == nil {
		panic("code error NewContext() log=nil")
	}

	g := &Global{
		Alive: alive.NewAlive(),
		Log:   log,
	}
	ctx := context.Background()
	ctx = context.WithValue(ctx, log2.ContextKey, log)
	ctx = context.WithValue(ctx, ContextKey, g)
	return ctx, g
}

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// Init validates config. Hardware and keys are opened lazily.
// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	g.Config = cfg
	g.Log.Infof("build version=%s", g.BuildVersion)
	if g.BuildVersion == "unknown" {
		g.Log.Errorf("build version is not set, please use script/build")
	} else if strings.HasSuffix(g.BuildVersion, "-dirty") {
		g.Log.Errorf("running development build with uncommited changes, bad idea for production")
	}

	var err error
	if g.DeviceID, err = cfg.DeviceID(); err != nil {
		return err
	}
	if g.Props, err = cfg.LightProps(); err != nil {
		return err
	}
	if _, err = cfg.Codec(); err != nil {
		return err
	}
	g.Log.Debugf("config: device=%s light %s", g.DeviceID.String(), g.Props.String())
	return nil
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Fatal(err)
	}
}

// Controller owns PWM channel from now on.
func (g *Global) Controller() (*light.Controller, error) {
	ch, err := g.PWM()
	if err != nil {
		return nil, err
	}
	return light.NewController(g.DeviceID, g.Props, ch, g.Log)
}

// Tele builds connection manager from config. Nil handler selects decoupled mode.
func (g *Global) Tele(handler tele.Handler, onState func(tele.State)) (*tele.Manager, error) {
	opt, err := g.Config.TeleOptions()
	if err != nil {
		return nil, err
	}
	keys, err := g.Keys()
	if err != nil {
		return nil, err
	}
	opt.DeviceID = g.DeviceID
	opt.Signer = keys
	opt.Handler = handler
	opt.OnStateChange = onState
	opt.Log = g.Log.Clone(log2.LInfo)
	if g.Config.Tele.LogDebug {
		opt.Log.SetLevel(log2.LDebug)
	}
	return tele.NewManager(opt)
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.ErrorStack(err)
	}
}

func (g *Global) Fatal(err error, args ...interface{}) {
	if err != nil {
		g.Error(err, args...)
		g.StopWait(5 * time.Second)
		g.Log.Fatal(errors.ErrorStack(err))
		os.Exit(1)
	}
}

func (g *Global) Stop() {
	g.Alive.Stop()
}

// StopWait drives light to safe state after all workers are done.
func (g *Global) StopWait(timeout time.Duration) bool {
	g.Alive.Stop()
	ok := true
	select {
	case <-g.Alive.WaitChan():
	case <-time.After(timeout):
		ok = false
	}
	if err := g.closeHardware(); err != nil {
		g.Log.ErrorStack(err)
	}
	return ok
}
