package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/juju/errors"
	"github.com/temoto/lightd/cmd/lightd/console"
	"github.com/temoto/lightd/cmd/lightd/keygen"
	"github.com/temoto/lightd/cmd/lightd/run"
	"github.com/temoto/lightd/cmd/lightd/subcmd"
	"github.com/temoto/lightd/internal/state"
	"github.com/temoto/lightd/log2"
)

var BuildVersion string = "unknown" // set by ldflags -X

var log = log2.NewStderr(log2.LDebug)

var modules = []subcmd.Mod{
	run.Mod,
	console.Mod,
	keygen.Mod,
	{Name: "config", Usage: "print parsed config", Main: configMain},
	{Name: "version", Usage: "print build version", Main: versionMain, SkipConfig: true},
}

func main() {
	flagConfig := flag.String("config", "lightd.hcl", "")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config FILE] [COMMAND]\ncommands:\n", os.Args[0])
		for _, m := range modules {
			fmt.Fprintf(flag.CommandLine.Output(), "  %-8s %s\n", m.Name, m.Usage)
		}
		flag.PrintDefaults()
	}
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = run.Mod.Name
	}
	mod, err := subcmd.Parse(command, modules)
	if err != nil {
		flag.Usage()
		log.Fatal(err)
	}

	if subcmd.SdNotify("start") {
		// we're under systemd, assume systemd journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}

	ctx, g := state.NewContext(log)
	g.BuildVersion = BuildVersion
	var config *state.Config
	if !mod.SkipConfig {
		config = state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)
	}
	if err := mod.Main(ctx, config); err != nil {
		g.Fatal(errors.Annotatef(err, "command=%s", mod.Name))
	}
}

func configMain(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	if err := g.Init(ctx, config); err != nil {
		return err
	}
	opt, err := config.TeleOptions()
	if err != nil {
		return err
	}
	fmt.Printf("device id=%s\nlight %s\ntele server=%s local=%s codec=%s retry=%s queue=%d read_limit=%d keepalive=%s\nhardware.pwm %+v\n",
		g.DeviceID.String(), g.Props.String(),
		opt.ServerAddr, opt.LocalAddr, opt.Codec.Name(), opt.RetryDelay, opt.QueueSize, opt.ReadLimit, opt.Keepalive,
		config.Hardware.PWM)
	if _, err = g.Keys(); err != nil {
		return errors.Annotate(err, "keys")
	}
	fmt.Println("keys ok")
	return nil
}

func versionMain(context.Context, *state.Config) error {
	fmt.Println(BuildVersion)
	return nil
}
