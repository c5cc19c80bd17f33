// Package config loads run settings: built-in defaults, then an optional YAML
// file, then environment variables (optionally seeded from a .env file).
package config

import (
	"errors"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MANGARECAP_"

type Segmentation struct {
	Threshold   int `yaml:"threshold"`
	MinArea     int `yaml:"min_area"`
	BandHeight  int `yaml:"band_height"`
	MorphKernel int `yaml:"morph_kernel"`
}

type Narration struct {
	Placeholder     string  `yaml:"placeholder"`
	Separator       string  `yaml:"separator"`
	WordsPerSecond  float64 `yaml:"words_per_second"`
	PageTransitions bool    `yaml:"page_transitions"`
	// FilterScript is a JavaScript file defining transform(text, page, rank).
	FilterScript string `yaml:"filter_script"`
}

type Pacing struct {
	Floor float64 `yaml:"floor"`
	// SceneDuration is the per-scene length used when there is no audio.
	SceneDuration float64 `yaml:"scene_duration"`
	TitleDuration float64 `yaml:"title_duration"`
}

type Motion struct {
	ZoomStart  float64  `yaml:"zoom_start"`
	ZoomEnd    float64  `yaml:"zoom_end"`
	CoverScale float64  `yaml:"cover_scale"`
	Pans       []string `yaml:"pans"`
}

type OCR struct {
	// Engine is "tesseract" or "none".
	Engine     string   `yaml:"engine"`
	Languages  []string `yaml:"languages"`
	PSM        int      `yaml:"psm"`
	Whitelist  string   `yaml:"whitelist"`
	Preprocess bool     `yaml:"preprocess"`
	Cache      bool     `yaml:"cache"`
}

type TTS struct {
	Engine     string `yaml:"engine"`
	Voice      string `yaml:"voice"`
	Rate       int    `yaml:"rate"`
	PiperModel string `yaml:"piper_model"`
	Fallback   bool   `yaml:"fallback"`
}

type Encode struct {
	VideoCodec string `yaml:"video_codec"`
	AudioCodec string `yaml:"audio_codec"`
	Preset     string `yaml:"preset"`
	CRF        int    `yaml:"crf"`
}

// Tools holds executable paths; empty means look the name up in PATH.
type Tools struct {
	FFmpeg   string        `yaml:"ffmpeg"`
	FFprobe  string        `yaml:"ffprobe"`
	Pdftoppm string        `yaml:"pdftoppm"`
	Espeak   string        `yaml:"espeak"`
	Piper    string        `yaml:"piper"`
	Timeout  time.Duration `yaml:"timeout"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the complete run configuration. It is passed explicitly to the
// pipeline; nothing reads it from globals.
type Config struct {
	Title            string  `yaml:"title"`
	MaxPages         int     `yaml:"max_pages"`
	DPI              int     `yaml:"dpi"`
	Resolution       string  `yaml:"resolution"`
	FPS              float64 `yaml:"fps"`
	Workers          int     `yaml:"workers"`
	FailureThreshold float64 `yaml:"failure_threshold"`
	WorkDir          string  `yaml:"work_dir"`
	KeepTemp         bool    `yaml:"keep_temp"`
	Report           string  `yaml:"report"`

	Segmentation Segmentation `yaml:"segmentation"`
	Narration    Narration    `yaml:"narration"`
	Pacing       Pacing       `yaml:"pacing"`
	Motion       Motion       `yaml:"motion"`
	OCR          OCR          `yaml:"ocr"`
	TTS          TTS          `yaml:"tts"`
	Encode       Encode       `yaml:"encode"`
	Tools        Tools        `yaml:"tools"`
	Log          Log          `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		MaxPages:         50,
		DPI:              150,
		Resolution:       "1080p",
		FPS:              30,
		FailureThreshold: 0.5,
		Segmentation: Segmentation{
			Threshold:   240,
			MinArea:     10000,
			BandHeight:  100,
			MorphKernel: 5,
		},
		Narration: Narration{
			Placeholder:     "[scene]",
			Separator:       " ... ",
			WordsPerSecond:  2.5,
			PageTransitions: true,
		},
		Pacing: Pacing{
			Floor:         1.5,
			SceneDuration: 5,
			TitleDuration: 3,
		},
		Motion: Motion{
			ZoomStart:  1.0,
			ZoomEnd:    1.1,
			CoverScale: 1.3,
			Pans:       []string{"right", "left"},
		},
		OCR: OCR{
			Engine:     "tesseract",
			Languages:  []string{"eng"},
			PSM:        6,
			Preprocess: true,
			Cache:      true,
		},
		TTS: TTS{
			Engine:   "espeak",
			Voice:    "en",
			Rate:     150,
			Fallback: true,
		},
		Encode: Encode{
			VideoCodec: "libx264",
			AudioCodec: "aac",
			Preset:     "medium",
		},
		Tools: Tools{Timeout: 30 * time.Minute},
		Log:   Log{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

// LoadEnv loads envFile into the process environment without overriding
// variables already set, then applies MANGARECAP_* overrides. An empty
// envFile tries ./.env and ignores its absence.
func (c *Config) LoadEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return c.applyEnv()
}

func (c *Config) applyEnv() error {
	c.Tools.FFmpeg = getEnv("FFMPEG", c.Tools.FFmpeg)
	c.Tools.FFprobe = getEnv("FFPROBE", c.Tools.FFprobe)
	c.Tools.Pdftoppm = getEnv("PDFTOPPM", c.Tools.Pdftoppm)
	c.Tools.Espeak = getEnv("ESPEAK", c.Tools.Espeak)
	c.Tools.Piper = getEnv("PIPER", c.Tools.Piper)
	c.TTS.Engine = getEnv("TTS", c.TTS.Engine)
	c.TTS.PiperModel = getEnv("PIPER_MODEL", c.TTS.PiperModel)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.WorkDir = getEnv("WORK_DIR", c.WorkDir)
	c.KeepTemp = getEnvBool("KEEP_TEMP", c.KeepTemp)
	if v := getEnv("OCR_LANG", ""); v != "" {
		c.OCR.Languages = SplitList(v)
	}
	if v := getEnv("WORKERS", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %sWORKERS=%q", ErrInvalid, EnvPrefix, v)
		}
		c.Workers = n
	}
	c.normalize()
	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(EnvPrefix + key))
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// SplitList splits "eng+jpn" or "eng,jpn" into language names.
func SplitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '+' || r == ' ' })
	return fields
}

func (c *Config) normalize() {
	c.Resolution = strings.ToLower(strings.TrimSpace(c.Resolution))
	c.TTS.Engine = strings.ToLower(strings.TrimSpace(c.TTS.Engine))
	c.OCR.Engine = strings.ToLower(strings.TrimSpace(c.OCR.Engine))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if len(c.Motion.Pans) == 0 {
		c.Motion.Pans = []string{"none"}
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := ParseResolution(c.Resolution); err != nil {
		return err
	}
	switch {
	case c.MaxPages < 0:
		return fmt.Errorf("%w: max_pages must be >= 0", ErrInvalid)
	case c.DPI <= 0:
		return fmt.Errorf("%w: dpi must be positive", ErrInvalid)
	case c.FPS <= 0:
		return fmt.Errorf("%w: fps must be positive", ErrInvalid)
	case c.FailureThreshold < 0 || c.FailureThreshold > 1:
		return fmt.Errorf("%w: failure_threshold must be within [0, 1]", ErrInvalid)
	case c.Pacing.Floor < 0:
		return fmt.Errorf("%w: pacing.floor must be >= 0", ErrInvalid)
	case c.Pacing.SceneDuration <= 0:
		return fmt.Errorf("%w: pacing.scene_duration must be positive", ErrInvalid)
	case c.Motion.ZoomStart < 1 || c.Motion.ZoomEnd < 1:
		return fmt.Errorf("%w: zoom factors must be >= 1", ErrInvalid)
	case c.Segmentation.Threshold < 1 || c.Segmentation.Threshold > 255:
		return fmt.Errorf("%w: segmentation.threshold must be within [1, 255]", ErrInvalid)
	case c.Segmentation.BandHeight <= 0:
		return fmt.Errorf("%w: segmentation.band_height must be positive", ErrInvalid)
	case c.OCR.Engine != "tesseract" && c.OCR.Engine != "none":
		return fmt.Errorf("%w: unknown ocr engine %q", ErrInvalid, c.OCR.Engine)
	}
	switch c.TTS.Engine {
	case "espeak", "piper", "silent":
	default:
		return fmt.Errorf("%w: unknown tts engine %q", ErrInvalid, c.TTS.Engine)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalid, c.Log.Level)
	}
	return nil
}

// Size returns the output frame size.
func (c *Config) Size() image.Point {
	p, _ := ParseResolution(c.Resolution)
	return p
}

var presets = map[string]image.Point{
	"720p":  {X: 1280, Y: 720},
	"1080p": {X: 1920, Y: 1080},
	"4k":    {X: 3840, Y: 2160},
}

// ParseResolution accepts a preset (720p, 1080p, 4k) or WIDTHxHEIGHT.
func ParseResolution(s string) (image.Point, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if p, ok := presets[s]; ok {
		return p, nil
	}
	w, h, ok := strings.Cut(s, "x")
	if ok {
		wi, err1 := strconv.Atoi(w)
		hi, err2 := strconv.Atoi(h)
		// libx264 with yuv420p needs even dimensions
		if err1 == nil && err2 == nil && wi > 0 && hi > 0 && wi%2 == 0 && hi%2 == 0 {
			return image.Pt(wi, hi), nil
		}
	}
	return image.Point{}, fmt.Errorf("%w: resolution %q", ErrInvalid, s)
}
