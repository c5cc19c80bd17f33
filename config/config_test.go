package config

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Size() != image.Pt(1920, 1080) {
		t.Fatalf("default size = %v", cfg.Size())
	}
	if cfg.FailureThreshold != 0.5 || cfg.Pacing.Floor != 1.5 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadOverlaysYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recap.yaml")
	data := `
title: Chapter 12
resolution: 720P
segmentation:
  band_height: 150
motion:
  pans: [down, up]
tts:
  engine: Piper
  piper_model: /voices/en.onnx
tools:
  timeout: 90s
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Title != "Chapter 12" || cfg.Resolution != "720p" || cfg.TTS.Engine != "piper" {
		t.Fatalf("yaml not applied: %+v", cfg)
	}
	if cfg.Segmentation.BandHeight != 150 || cfg.Segmentation.MinArea != 10000 {
		t.Fatalf("segmentation = %+v", cfg.Segmentation)
	}
	if !reflect.DeepEqual(cfg.Motion.Pans, []string{"down", "up"}) {
		t.Fatalf("pans = %v", cfg.Motion.Pans)
	}
	if cfg.Tools.Timeout != 90*time.Second {
		t.Fatalf("timeout = %v", cfg.Tools.Timeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("dpi: [oops"), 0o644)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "recap.env")
	content := "MANGARECAP_FFMPEG=/opt/ffmpeg/bin/ffmpeg\nMANGARECAP_OCR_LANG=eng+jpn\n"
	if err := os.WriteFile(envFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	// already-set variables win over the file
	t.Setenv("MANGARECAP_FFMPEG", "/usr/bin/ffmpeg")
	t.Setenv("MANGARECAP_OCR_LANG", "")
	os.Unsetenv("MANGARECAP_OCR_LANG")
	t.Setenv("MANGARECAP_WORKERS", "3")
	t.Setenv("MANGARECAP_KEEP_TEMP", "yes")
	t.Setenv("MANGARECAP_TTS", "SILENT")

	cfg := Default()
	if err := cfg.LoadEnv(envFile); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if cfg.Tools.FFmpeg != "/usr/bin/ffmpeg" {
		t.Fatalf("ffmpeg = %q", cfg.Tools.FFmpeg)
	}
	if !reflect.DeepEqual(cfg.OCR.Languages, []string{"eng", "jpn"}) {
		t.Fatalf("languages = %v", cfg.OCR.Languages)
	}
	if cfg.Workers != 3 || !cfg.KeepTemp || cfg.TTS.Engine != "silent" {
		t.Fatalf("env not applied: workers=%d keep=%v tts=%q", cfg.Workers, cfg.KeepTemp, cfg.TTS.Engine)
	}
}

func TestLoadEnvBadWorkers(t *testing.T) {
	t.Setenv("MANGARECAP_WORKERS", "many")
	if err := Default().LoadEnv(""); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"resolution", func(c *Config) { c.Resolution = "8k" }},
		{"fps", func(c *Config) { c.FPS = 0 }},
		{"threshold", func(c *Config) { c.FailureThreshold = 1.5 }},
		{"zoom", func(c *Config) { c.Motion.ZoomEnd = 0.9 }},
		{"band", func(c *Config) { c.Segmentation.BandHeight = 0 }},
		{"tts", func(c *Config) { c.TTS.Engine = "sapi" }},
		{"ocr", func(c *Config) { c.OCR.Engine = "cloud" }},
		{"log", func(c *Config) { c.Log.Level = "loud" }},
		{"scene duration", func(c *Config) { c.Pacing.SceneDuration = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestParseResolution(t *testing.T) {
	cases := map[string]image.Point{
		"720p":     {X: 1280, Y: 720},
		"4K":       {X: 3840, Y: 2160},
		"1024x576": {X: 1024, Y: 576},
	}
	for in, want := range cases {
		got, err := ParseResolution(in)
		if err != nil || got != want {
			t.Errorf("ParseResolution(%q) = %v, %v", in, got, err)
		}
	}
	for _, bad := range []string{"", "1080", "101x100", "-2x4", "axb"} {
		if _, err := ParseResolution(bad); err == nil {
			t.Errorf("ParseResolution(%q) should fail", bad)
		}
	}
}
