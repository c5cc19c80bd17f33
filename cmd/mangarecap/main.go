package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/wudi/mangarecap/config"
	"github.com/wudi/mangarecap/encode"
	"github.com/wudi/mangarecap/observability"
	"github.com/wudi/mangarecap/ocr"
	"github.com/wudi/mangarecap/ocr/tesseract"
	"github.com/wudi/mangarecap/pipeline"
	"github.com/wudi/mangarecap/raster"
	"github.com/wudi/mangarecap/report"
	"github.com/wudi/mangarecap/scripting"
	"github.com/wudi/mangarecap/tools"
	"github.com/wudi/mangarecap/tts"
)

type options struct {
	input      string
	output     string
	configPath string
	envFile    string
	title      string
	maxPages   int
	duration   float64
	resolution string
	tts        string
	ocrLang    string
	ocrOff     bool
	filter     string
	report     string
	workers    int
	keepTemp   bool
	verbose    bool
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mangarecap: %v\n", err)
		os.Exit(pipeline.ExitInvalidInput)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, opts)
	stop()
	os.Exit(code)
}

func parseFlags() (options, error) {
	var opts options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: mangarecap -input <pdf|image|dir> -output <video.mp4> [flags]\n")
		flag.PrintDefaults()
	}
	flag.StringVar(&opts.input, "input", "", "PDF, image file or directory of page images")
	flag.StringVar(&opts.output, "output", "", "Output video path")
	flag.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	flag.StringVar(&opts.envFile, "env", "", "Environment file (defaults to ./.env when present)")
	flag.StringVar(&opts.title, "title", "", "Recap title; enables intro and outro cards")
	flag.IntVar(&opts.maxPages, "max-pages", -1, "Maximum pages to process (0 = all)")
	flag.Float64Var(&opts.duration, "duration", 0, "Seconds per scene when no narration audio is available")
	flag.StringVar(&opts.resolution, "resolution", "", "Output resolution: 720p, 1080p, 4k or WxH")
	flag.StringVar(&opts.tts, "tts", "", "Speech engine: espeak, piper or silent")
	flag.StringVar(&opts.ocrLang, "ocr-lang", "", "Comma separated tesseract languages")
	flag.BoolVar(&opts.ocrOff, "no-ocr", false, "Skip OCR and narrate scene placeholders")
	flag.StringVar(&opts.filter, "filter", "", "JavaScript file defining transform(text, page, rank)")
	flag.StringVar(&opts.report, "report", "", "Write a run report (.md or .html)")
	flag.IntVar(&opts.workers, "workers", 0, "Worker pool size (0 = number of CPUs)")
	flag.BoolVar(&opts.keepTemp, "keep-temp", false, "Keep the work directory")
	flag.BoolVar(&opts.verbose, "v", false, "Debug logging")
	flag.Parse()

	if opts.input == "" && flag.NArg() > 0 {
		opts.input = flag.Arg(0)
	}
	if opts.input == "" {
		flag.Usage()
		return options{}, errors.New("missing -input")
	}
	if opts.output == "" {
		base := strings.TrimSuffix(filepath.Base(opts.input), filepath.Ext(opts.input))
		opts.output = base + "_recap.mp4"
	}
	return opts, nil
}

func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.LoadEnv(opts.envFile); err != nil {
		return nil, err
	}
	if opts.title != "" {
		cfg.Title = opts.title
	}
	if opts.maxPages >= 0 {
		cfg.MaxPages = opts.maxPages
	}
	if opts.duration > 0 {
		cfg.Pacing.SceneDuration = opts.duration
	}
	if opts.resolution != "" {
		cfg.Resolution = opts.resolution
	}
	if opts.tts != "" {
		cfg.TTS.Engine = opts.tts
	}
	if opts.ocrLang != "" {
		cfg.OCR.Languages = config.SplitList(opts.ocrLang)
	}
	if opts.ocrOff {
		cfg.OCR.Engine = "none"
	}
	if opts.filter != "" {
		cfg.Narration.FilterScript = opts.filter
	}
	if opts.report != "" {
		cfg.Report = opts.report
	}
	if opts.workers > 0 {
		cfg.Workers = opts.workers
	}
	if opts.keepTemp {
		cfg.KeepTemp = true
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Log) observability.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(os.Stderr, handlerOpts)
	}
	return observability.NewSlogLogger(slog.New(h))
}

// preflight verifies every external program the run will need.
func preflight(cfg *config.Config, input string) error {
	needed := map[string]string{
		"ffmpeg":  cfg.Tools.FFmpeg,
		"ffprobe": cfg.Tools.FFprobe,
	}
	if strings.EqualFold(filepath.Ext(input), ".pdf") {
		needed["pdftoppm"] = cfg.Tools.Pdftoppm
	}
	switch cfg.TTS.Engine {
	case tts.EngineEspeak:
		if !cfg.TTS.Fallback {
			needed["espeak"] = cfg.Tools.Espeak
		}
	case tts.EnginePiper:
		if !cfg.TTS.Fallback {
			needed["piper"] = cfg.Tools.Piper
		}
	}
	if err := tools.Check(needed); err != nil {
		return err
	}
	if cfg.OCR.Engine == "tesseract" {
		if err := tesseract.Check(cfg.OCR.Languages...); err != nil {
			return fmt.Errorf("%w: tesseract: %w", tools.ErrToolUnavailable, err)
		}
	}
	return nil
}

type host struct {
	title string
	log   observability.Logger
}

func (h host) Title() string { return h.title }

func (h host) Log(msg string) { h.log.Info("filter script", observability.String("message", msg)) }

func run(ctx context.Context, opts options) int {
	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mangarecap: %v\n", err)
		return pipeline.ExitInvalidInput
	}
	logger := newLogger(cfg.Log)

	if err := preflight(cfg, opts.input); err != nil {
		logger.Error("pre-flight check failed", observability.String("tool", pipeline.ToolOf(err)), observability.Error("error", err))
		return pipeline.ExitCode(err)
	}
	if cfg.OCR.Engine == "tesseract" {
		logger.Debug("tesseract ready", observability.String("version", tesseract.Version()))
	}

	runner := tools.NewRunner(cfg.Tools.Timeout)
	prober := &tts.Prober{Runner: runner, Path: cfg.Tools.FFprobe}
	speech, err := tts.New(cfg.TTS.Engine, tts.Options{
		Runner:     runner,
		Prober:     prober,
		Voice:      cfg.TTS.Voice,
		Rate:       cfg.TTS.Rate,
		EspeakPath: cfg.Tools.Espeak,
		PiperPath:  cfg.Tools.Piper,
		PiperModel: cfg.TTS.PiperModel,
		FFmpegPath: cfg.Tools.FFmpeg,
		Fallback:   cfg.TTS.Fallback,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("speech engine", observability.Error("error", err))
		return pipeline.ExitInvalidInput
	}

	var engine ocr.Engine = ocr.Nop{}
	if cfg.OCR.Engine == "tesseract" {
		engine = tesseract.NewEngine()
	}
	var cache *ocr.Cache
	if cfg.OCR.Cache {
		cache = ocr.NewCache(engine)
		engine = cache
	}

	deps := pipeline.Deps{
		Rasterizer: raster.NewAuto(runner, cfg.Tools.Pdftoppm),
		OCR:        engine,
		TTS:        speech,
		Encoder: &encode.FFmpeg{
			Runner:     runner,
			Path:       cfg.Tools.FFmpeg,
			Size:       cfg.Size(),
			FPS:        cfg.FPS,
			Workers:    cfg.Workers,
			VideoCodec: cfg.Encode.VideoCodec,
			AudioCodec: cfg.Encode.AudioCodec,
			Preset:     cfg.Encode.Preset,
			CRF:        cfg.Encode.CRF,
		},
		Logger: logger,
		Tracer: observability.LogTracer(logger),
		Progress: func(stage pipeline.Stage, fraction float64) {
			if fraction == 1 {
				logger.Info("stage done", observability.String("stage", stage.String()))
			}
		},
	}
	if cfg.Narration.FilterScript != "" {
		filter, err := scripting.LoadFilter(ctx, cfg.Narration.FilterScript, host{title: cfg.Title, log: logger})
		if err != nil {
			logger.Error("filter script", observability.Error("error", err))
			return pipeline.ExitInvalidInput
		}
		deps.Filter = filter.Func(ctx)
	}

	orch, err := pipeline.New(cfg, deps)
	if err != nil {
		logger.Error("setup failed", observability.Error("error", err))
		return pipeline.ExitCode(err)
	}
	sum, runErr := orch.Run(ctx, opts.input, opts.output)

	if cache != nil {
		hits, misses := cache.Stats()
		logger.Debug("ocr cache", observability.Int("hits", hits), observability.Int("misses", misses))
	}
	if cfg.Report != "" {
		if err := report.Write(cfg.Report, sum.Report()); err != nil {
			logger.Warn("write report", observability.Error("error", err))
		}
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "mangarecap: failed at stage %s", sum.FailedStage)
		if sum.Tool != "" {
			fmt.Fprintf(os.Stderr, " (tool %s)", sum.Tool)
		}
		fmt.Fprintf(os.Stderr, ": %v\n", runErr)
		return pipeline.ExitCode(runErr)
	}
	fmt.Fprintf(os.Stdout, "%s (%.1fs, %d scenes)\n", sum.Output, sum.VideoSeconds, len(sum.Scenes))
	return pipeline.ExitOK
}
