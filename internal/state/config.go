package state

import (
	"path/filepath"
	"sync"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/lightd/hardware/pwm"
	"github.com/temoto/lightd/helpers"
	"github.com/temoto/lightd/light"
	"github.com/temoto/lightd/log2"
	"github.com/temoto/lightd/proto"
	"github.com/temoto/lightd/tele"
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// key files are read from same source as config
	fs FullReader
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	Device struct {
		ID string `hcl:"id"`
	} `hcl:"device"`

	Tele struct {
		ServerAddr          string `hcl:"server_addr"`
		LocalAddr           string `hcl:"local_addr"`
		PrivateKeyPath      string `hcl:"private_key_path"`
		ServerPublicKeyPath string `hcl:"server_public_key_path"`
		RetryDelaySec       int    `hcl:"retry_delay_sec"`
		QueueSize           int    `hcl:"queue_size"`
		ReadLimit           int    `hcl:"read_limit"`
		KeepaliveSec        int    `hcl:"keepalive_sec"`
		Codec               string `hcl:"codec"`
		LogDebug            bool   `hcl:"log_debug"`
	} `hcl:"tele"`

	// hcl decodes only int kinds, ranges are checked in LightProps
	Light struct {
		Min  int `hcl:"min"`
		Max  int `hcl:"max"`
		Step int `hcl:"step"`
	} `hcl:"light"`

	Hardware struct {
		PWM pwm.Config `hcl:"pwm"`
	} `hcl:"hardware"`

	_copy_guard sync.Mutex //nolint:unused
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

func (c *Config) DeviceID() (proto.DeviceID, error) {
	id, err := proto.ParseDeviceID(c.Device.ID)
	return id, errors.Annotate(err, "config: device.id")
}

// LightProps with empty light section is light.DefaultProps.
func (c *Config) LightProps() (light.Props, error) {
	l := c.Light
	if l.Min == 0 && l.Max == 0 && l.Step == 0 {
		return light.DefaultProps, nil
	}
	if l.Max == 0 {
		l.Max = pwm.MaxPercent
	}
	for _, v := range []int{l.Min, l.Max, l.Step} {
		if v < 0 || v > pwm.MaxPercent {
			return light.Props{}, errors.NotValidf("config: light min=%d max=%d step=%d", l.Min, l.Max, l.Step)
		}
	}
	p := light.Props{Min: uint8(l.Min), Max: uint8(l.Max), Step: uint8(l.Step)}
	return p, errors.Annotate(p.Validate(), "config")
}

func (c *Config) Codec() (proto.Codec, error) {
	codec, err := proto.CodecByName(c.Tele.Codec)
	return codec, errors.Annotate(err, "config: tele.codec")
}

// TeleOptions fills everything except DeviceID, Signer and callbacks.
func (c *Config) TeleOptions() (tele.Options, error) {
	t := &c.Tele
	if t.ServerAddr == "" {
		return tele.Options{}, errors.NotValidf("config: tele.server_addr empty")
	}
	if t.RetryDelaySec < 0 || t.QueueSize < 0 || t.ReadLimit < 0 {
		return tele.Options{}, errors.NotValidf("config: tele negative retry_delay_sec=%d queue_size=%d read_limit=%d",
			t.RetryDelaySec, t.QueueSize, t.ReadLimit)
	}
	codec, err := c.Codec()
	if err != nil {
		return tele.Options{}, err
	}
	opt := tele.Options{
		ServerAddr: t.ServerAddr,
		LocalAddr:  t.LocalAddr,
		Codec:      codec,
		RetryDelay: helpers.IntSecondDefault(t.RetryDelaySec, tele.DefaultRetryDelay),
		QueueSize:  t.QueueSize,
		ReadLimit:  uint32(t.ReadLimit),
		Keepalive:  helpers.IntSecondDefault(t.KeepaliveSec, tele.DefaultKeepalive),
	}
	return opt, nil
}

// ReadFile resolves name like config includes. Missing file is NotFound.
func (c *Config) ReadFile(name string) ([]byte, error) {
	if c.fs == nil {
		return nil, errors.Errorf("code error config without source")
	}
	norm := c.fs.Normalize(name)
	b, err := c.fs.ReadAll(norm)
	if err != nil {
		return nil, errors.Annotatef(err, "read name=%s path=%s", name, norm)
	}
	if b == nil {
		return nil, errors.NotFoundf("name=%s path=%s", name, norm)
	}
	return b, nil
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s content='%s'", source.Name, string(bs))
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// ReadConfig merges names in order, later values win.
// With OsFullReader relative names are resolved against dir of first name.
func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.Errorf("code error ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		names = append([]string(nil), names...)
		dir, name := filepath.Split(names[0])
		if err := osfs.SetBase(dir); err != nil {
			return nil, err
		}
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
		fs:          fs,
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
