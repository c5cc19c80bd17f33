// Package tts synthesizes the narration script into a single audio file.
// Each engine is one variant of the Engine capability; callers pick one at
// construction and never branch on which it is.
package tts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/wudi/mangarecap/observability"
	"github.com/wudi/mangarecap/tools"
)

const (
	EngineEspeak = "espeak"
	EnginePiper  = "piper"
	EngineSilent = "silent"
)

// ErrUnknownEngine is returned by New for an unrecognized engine name.
var ErrUnknownEngine = errors.New("unknown tts engine")

// AudioTrack is a synthesized narration file.
type AudioTrack struct {
	Path string
	// Duration in seconds, as probed from the written file.
	Duration float64
}

// Engine turns text into speech written to out.
type Engine interface {
	Name() string
	Synthesize(ctx context.Context, text, out string) (AudioTrack, error)
}

// Options configures New.
type Options struct {
	Runner tools.Runner
	Prober *Prober
	// Voice is the espeak voice name (e.g. "en").
	Voice string
	// Rate is the espeak speaking rate in words per minute.
	Rate       int
	EspeakPath string
	PiperPath  string
	PiperModel string
	FFmpegPath string
	// Fallback, when set, degrades to silent audio if the engine fails.
	Fallback bool
	Logger   observability.Logger
}

// New builds the named engine.
func New(name string, opts Options) (Engine, error) {
	silent := &Silent{Runner: opts.Runner, Prober: opts.Prober, FFmpegPath: opts.FFmpegPath}
	var eng Engine
	switch name {
	case EngineEspeak, "":
		eng = &Espeak{Runner: opts.Runner, Prober: opts.Prober, Path: opts.EspeakPath, Voice: opts.Voice, Rate: opts.Rate}
	case EnginePiper:
		eng = &Piper{Runner: opts.Runner, Prober: opts.Prober, Path: opts.PiperPath, Model: opts.PiperModel}
	case EngineSilent:
		return silent, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
	if opts.Fallback {
		return &Fallback{Primary: eng, Secondary: silent, Logger: opts.Logger}, nil
	}
	return eng, nil
}

// Espeak synthesizes with espeak / espeak-ng.
type Espeak struct {
	Runner tools.Runner
	Prober *Prober
	Path   string
	Voice  string
	Rate   int
}

func (e *Espeak) Name() string { return EngineEspeak }

func (e *Espeak) Synthesize(ctx context.Context, text, out string) (AudioTrack, error) {
	voice := e.Voice
	if voice == "" {
		voice = "en"
	}
	rate := e.Rate
	if rate <= 0 {
		rate = 150
	}
	_, err := e.Runner.Run(ctx, tools.Request{
		Tool:  EngineEspeak,
		Path:  e.Path,
		Args:  []string{"-v", voice, "-s", strconv.Itoa(rate), "-w", out, "--stdin"},
		Stdin: strings.NewReader(text),
	})
	if err != nil {
		return AudioTrack{}, fmt.Errorf("espeak: %w", err)
	}
	return e.Prober.Track(ctx, out)
}

// Piper synthesizes with the piper neural TTS binary.
type Piper struct {
	Runner tools.Runner
	Prober *Prober
	Path   string
	// Model is the .onnx voice model.
	Model string
}

func (p *Piper) Name() string { return EnginePiper }

func (p *Piper) Synthesize(ctx context.Context, text, out string) (AudioTrack, error) {
	if p.Model == "" {
		return AudioTrack{}, fmt.Errorf("piper: no voice model configured")
	}
	_, err := p.Runner.Run(ctx, tools.Request{
		Tool:  EnginePiper,
		Path:  p.Path,
		Args:  []string{"--model", p.Model, "--output_file", out},
		Stdin: strings.NewReader(text),
	})
	if err != nil {
		return AudioTrack{}, fmt.Errorf("piper: %w", err)
	}
	return p.Prober.Track(ctx, out)
}

// SecondsPerChar sizes silent narration when no voice is available.
const SecondsPerChar = 0.05

// Silent writes a silent track whose length approximates the spoken script,
// so the video keeps its pacing without a voice.
type Silent struct {
	Runner     tools.Runner
	Prober     *Prober
	FFmpegPath string
}

func (s *Silent) Name() string { return EngineSilent }

// Length is the silent-track duration used for text.
func (s *Silent) Length(text string) float64 {
	return max(float64(len(text))*SecondsPerChar, 1)
}

func (s *Silent) Synthesize(ctx context.Context, text, out string) (AudioTrack, error) {
	d := s.Length(text)
	_, err := s.Runner.Run(ctx, tools.Request{
		Tool: "ffmpeg",
		Path: s.FFmpegPath,
		Args: []string{
			"-y", "-hide_banner", "-loglevel", "error",
			"-f", "lavfi", "-i", "anullsrc=r=22050:cl=mono",
			"-t", strconv.FormatFloat(d, 'f', 3, 64),
			out,
		},
	})
	if err != nil {
		return AudioTrack{}, fmt.Errorf("silent track: %w", err)
	}
	return AudioTrack{Path: out, Duration: d}, nil
}

// Fallback runs Primary and, if it fails for any reason other than
// cancellation, Secondary.
type Fallback struct {
	Primary   Engine
	Secondary Engine
	Logger    observability.Logger
}

func (f *Fallback) Name() string { return f.Primary.Name() }

func (f *Fallback) Synthesize(ctx context.Context, text, out string) (AudioTrack, error) {
	track, err := f.Primary.Synthesize(ctx, text, out)
	if err == nil || ctx.Err() != nil {
		return track, err
	}
	if f.Logger != nil {
		f.Logger.Warn("tts engine failed, using fallback",
			observability.String("engine", f.Primary.Name()),
			observability.String("fallback", f.Secondary.Name()),
			observability.Error("error", err))
	}
	track, err2 := f.Secondary.Synthesize(ctx, text, out)
	if err2 != nil {
		return AudioTrack{}, errors.Join(err, err2)
	}
	return track, nil
}
