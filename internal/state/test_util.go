package state

import (
	"context"
	"os"
	"testing"

	"github.com/temoto/lightd/hardware/pwm"
	"github.com/temoto/lightd/log2"
)

const testConfigName = "test-inline"

// NewTestContext reads inline config, extra files are visible to includes and key loading.
// PWM is preset to log driver.
func NewTestContext(t testing.TB, confString string, files map[string]string) (context.Context, *Global) {
	sources := map[string]string{testConfigName: confString}
	for k, v := range files {
		sources[k] = v
	}
	fs := NewMockFullReader(sources)

	var log *log2.Log
	if os.Getenv("lightd_test_log_stderr") == "1" {
		log = log2.NewStderr(log2.LDebug) // useful with panics
	} else {
		log = log2.NewTest(t, log2.LDebug)
	}
	log.SetFlags(log2.LTestFlags)
	ctx, g := NewContext(log)
	g.BuildVersion = "test"
	g.Hardware.PWM.Channel = pwm.NewLog(log)
	g.MustInit(ctx, MustReadConfig(log, fs, testConfigName))
	return ctx, g
}
