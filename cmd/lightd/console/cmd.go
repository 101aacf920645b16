// Package console is a maintenance and development tool: drive the light locally
// without server, same rules as remote commands. Not an operator interface.
package console

import (
	"context"
	"strconv"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/lightd/cmd/lightd/subcmd"
	"github.com/temoto/lightd/helpers/cli"
	"github.com/temoto/lightd/internal/state"
	"github.com/temoto/lightd/light"
	"github.com/temoto/lightd/log2"
	"github.com/temoto/lightd/proto"
)

const modName = "console"

const usage = `commands:
- on | off         power
- b N | brightness N   set brightness percent
- state            print current state
- help`

var Mod = subcmd.Mod{Name: modName, Usage: "maintenance prompt, local light control", Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	g.MustInit(ctx, config)

	ctl, err := g.Controller()
	if err != nil {
		return errors.Annotate(err, "light init")
	}
	g.Log.Infof("light %s, type help", ctl.Props().String())
	cli.MainLoop(modName, newExecutor(ctl, g.Log), newCompleter(), func() { g.StopWait(0) })
	return nil
}

func newCompleter() func(d prompt.Document) []prompt.Suggest {
	suggests := []prompt.Suggest{
		{Text: "on", Description: "power on, maximum brightness"},
		{Text: "off", Description: "power off"},
		{Text: "brightness", Description: "brightness N, percent"},
		{Text: "state"},
		{Text: "help"},
	}
	return func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterHasPrefix(suggests, d.GetWordBeforeCursor(), true)
	}
}

func newExecutor(ctl *light.Controller, log *log2.Log) func(string) {
	return func(line string) {
		line = strings.TrimSpace(line)
		switch line {
		case "":
			return
		case "help", "?":
			log.Info(usage)
			return
		case "state":
			log.Infof("state=%s", ctl.State().String())
			return
		}
		u, err := parseUpdate(line)
		if err != nil {
			log.Errorf("%v\n%s", err, usage)
			return
		}
		s, err := ctl.Apply(u)
		if err != nil {
			log.ErrorStack(err)
		}
		log.Infof("state=%s", s.String())
	}
}

func parseUpdate(line string) (proto.AttributeUpdate, error) {
	parts := strings.Fields(line)
	switch parts[0] {
	case "on":
		return proto.NewPowerUpdate(true), nil
	case "off":
		return proto.NewPowerUpdate(false), nil
	case "b", "brightness":
		if len(parts) != 2 {
			return proto.AttributeUpdate{}, errors.NotValidf("brightness argument")
		}
		n, err := strconv.ParseUint(parts[1], 10, 8)
		if err != nil {
			return proto.AttributeUpdate{}, errors.NotValidf("brightness=%s", parts[1])
		}
		return proto.NewBrightnessUpdate(uint8(n)), nil
	}
	return proto.AttributeUpdate{}, errors.NotSupportedf("command=%s", parts[0])
}
