package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/gogpu/gputypes"
)

// Config is the demo configuration. Values from a TOML file are applied
// first, command-line flags override them.
type Config struct {
	Backend  string     `toml:"backend"`
	Width    int        `toml:"width"`
	Height   int        `toml:"height"`
	Output   string     `toml:"output"`
	Clear    [4]float64 `toml:"clear"`
	Tile     int        `toml:"tile"`
	Mipmaps  bool       `toml:"mipmaps"`
	Verbose  bool       `toml:"verbose"`
	Triangle bool       `toml:"triangle"`
}

func defaultConfig() Config {
	return Config{
		Width:    256,
		Height:   256,
		Output:   "gfxdemo.png",
		Clear:    [4]float64{0.1, 0.2, 0.4, 1},
		Tile:     32,
		Mipmaps:  true,
		Triangle: true,
	}
}

// loadConfig decodes path over the defaults. A missing file is an error;
// keys the demo does not know are reported as one.
func loadConfig(path string) (Config, error) {
	conf := defaultConfig()
	if path == "" {
		return conf, nil
	}
	md, err := toml.DecodeFile(path, &conf)
	if err != nil {
		return conf, fmt.Errorf("read config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return conf, fmt.Errorf("config %s: unknown keys %v", path, undecoded)
	}
	return conf, conf.validate()
}

func (c *Config) validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid size %dx%d", c.Width, c.Height)
	}
	if c.Tile <= 0 {
		return fmt.Errorf("invalid tile size %d", c.Tile)
	}
	for _, v := range c.Clear {
		if v < 0 || v > 1 {
			return fmt.Errorf("clear color %v outside [0,1]", c.Clear)
		}
	}
	return nil
}

func (c *Config) clearColor() gputypes.Color {
	return gputypes.Color{R: c.Clear[0], G: c.Clear[1], B: c.Clear[2], A: c.Clear[3]}
}

// writeConfig stores c as TOML, for -dump-config.
func writeConfig(path string, c Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
