package main

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "demo.toml")
	data := "backend = \"soft\"\nwidth = 64\nheight = 48\nclear = [1.0, 0.0, 0.0, 1.0]\nmipmaps = false\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	conf, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if conf.Backend != "soft" || conf.Width != 64 || conf.Height != 48 || conf.Mipmaps {
		t.Errorf("conf = %+v", conf)
	}
	if conf.Tile != 32 || conf.Output != "gfxdemo.png" {
		t.Errorf("defaults not kept: tile %d output %q", conf.Tile, conf.Output)
	}

	// The written configuration reads back unchanged.
	out := filepath.Join(dir, "dump.toml")
	if err := writeConfig(out, conf); err != nil {
		t.Fatalf("writeConfig: %v", err)
	}
	again, err := loadConfig(out)
	if err != nil {
		t.Fatalf("loadConfig(dump): %v", err)
	}
	if again != conf {
		t.Errorf("reloaded %+v, want %+v", again, conf)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown key", "colour = 1\n"},
		{"bad size", "width = 0\n"},
		{"bad clear", "clear = [2.0, 0.0, 0.0, 1.0]\n"},
		{"bad tile", "tile = -1\n"},
		{"syntax", "width = \n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.toml")
			if err := os.WriteFile(path, []byte(tt.data), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := loadConfig(path); err == nil {
				t.Error("loadConfig succeeded")
			}
		})
	}
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("loadConfig of a missing file succeeded")
	}
}

func TestRenderSoft(t *testing.T) {
	conf := defaultConfig()
	conf.Backend = "soft"
	conf.Width, conf.Height = 64, 32
	conf.Clear = [4]float64{0, 0, 1, 1}

	img, err := render(conf)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if img.Bounds() != image.Rect(0, 0, 64, 32) {
		t.Fatalf("bounds = %v", img.Bounds())
	}
	// The corners keep the clear color; the checker level covers the middle.
	if got := color.NRGBAModel.Convert(img.At(0, 0)).(color.NRGBA); got != (color.NRGBA{B: 255, A: 255}) {
		t.Errorf("corner = %v, want blue", got)
	}
	if got := color.NRGBAModel.Convert(img.At(32, 16)).(color.NRGBA); got.B == 255 && got.R == 0 {
		t.Errorf("center = %v, want checker", got)
	}
}
