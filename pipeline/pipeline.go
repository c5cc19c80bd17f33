// Package pipeline drives a recap run from source document to encoded video.
// Stages run strictly in order; per-page and per-scene work inside a stage runs
// on a bounded worker pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wudi/mangarecap/config"
	"github.com/wudi/mangarecap/encode"
	"github.com/wudi/mangarecap/narration"
	"github.com/wudi/mangarecap/observability"
	"github.com/wudi/mangarecap/ocr"
	"github.com/wudi/mangarecap/pacing"
	"github.com/wudi/mangarecap/panel"
	"github.com/wudi/mangarecap/raster"
	"github.com/wudi/mangarecap/render"
	"github.com/wudi/mangarecap/timeline"
	"github.com/wudi/mangarecap/tts"
)

// Deps are the collaborators of a run. The orchestrator is their only caller.
type Deps struct {
	Rasterizer raster.Rasterizer
	// OCR defaults to ocr.Nop, which leaves every panel as a placeholder.
	OCR     ocr.Engine
	TTS     tts.Engine
	Encoder encode.Encoder
	// Filter optionally rewrites panel text before narration.
	Filter   narration.TextFilter
	Logger   observability.Logger
	Tracer   observability.Tracer
	Progress ProgressFunc
}

// Orchestrator runs recaps with a fixed configuration and set of
// collaborators. It is safe to call Run concurrently.
type Orchestrator struct {
	cfg  *config.Config
	deps Deps
	size image.Point
	pans []render.Direction
	seg  *panel.Segmenter
}

// New validates cfg and wires the collaborators.
func New(cfg *config.Config, deps Deps) (*Orchestrator, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if deps.Rasterizer == nil || deps.TTS == nil || deps.Encoder == nil {
		return nil, errors.New("pipeline: rasterizer, tts and encoder are required")
	}
	if deps.OCR == nil {
		deps.OCR = ocr.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger{}
	}
	if deps.Tracer == nil {
		deps.Tracer = observability.NopTracer()
	}

	pans := make([]render.Direction, 0, len(cfg.Motion.Pans))
	for _, name := range cfg.Motion.Pans {
		d, err := render.ParseDirection(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		pans = append(pans, d)
	}
	if len(pans) == 0 {
		pans = append(pans, render.PanNone)
	}

	seg := panel.New(panel.Options{
		Threshold:   uint8(cfg.Segmentation.Threshold),
		MinArea:     cfg.Segmentation.MinArea,
		BandHeight:  cfg.Segmentation.BandHeight,
		MorphKernel: cfg.Segmentation.MorphKernel,
	})
	return &Orchestrator{cfg: cfg, deps: deps, size: cfg.Size(), pans: pans, seg: seg}, nil
}

// run holds the artifacts of one Run. Stage functions write its fields only
// between barriers; workers write their own slots of pre-sized slices.
type run struct {
	o       *Orchestrator
	id      string
	workDir string
	state   *runState
	log     observability.Logger

	progressMu sync.Mutex
	lastFrac   map[Stage]float64

	pages     []panel.Page
	panels    []panel.Panel
	script    narration.Script
	audio     tts.AudioTrack
	durations []float64
	scenes    []timeline.Scene
	tl        *timeline.Timeline
	rec       timeline.Reconciliation
	frames    int
}

// Run produces output from input. The returned summary is never nil, even on
// failure. Temporary files are removed when Run returns unless the
// configuration keeps them.
func (o *Orchestrator) Run(ctx context.Context, input, output string) (*Summary, error) {
	id := uuid.NewString()
	r := &run{
		o:        o,
		id:       id,
		state:    newRunState(),
		log:      o.deps.Logger.With(observability.String("run", id)),
		lastFrac: make(map[Stage]float64),
	}
	started := time.Now()
	err := r.execute(ctx, input, output)
	sum := r.summary(input, output, started, err)

	fields := []observability.Field{
		observability.String("stage", sum.Stage.String()),
		observability.Duration("elapsed", sum.Elapsed),
		observability.Int(observability.MetricPageCount, sum.Pages),
		observability.Int(observability.MetricExcludedPages, len(sum.Excluded)),
		observability.Int(observability.MetricPanelCount, sum.Panels),
		observability.Float64(observability.MetricAudioSeconds, sum.Audio.Duration),
		observability.Float64(observability.MetricVideoSeconds, sum.VideoSeconds),
		observability.Int(observability.MetricFrameCount, sum.Frames),
	}
	if err != nil {
		fields = append(fields,
			observability.String("failed_stage", sum.FailedStage.String()),
			observability.Error("error", err))
		if sum.Tool != "" {
			fields = append(fields, observability.String("tool", sum.Tool))
		}
		r.log.Error("recap failed", fields...)
	} else {
		r.log.Info("recap complete", fields...)
	}
	return sum, err
}

func (r *run) execute(ctx context.Context, input, output string) error {
	cfg := r.o.cfg
	if _, err := os.Stat(input); err != nil {
		return &StageError{Stage: StageRasterized, Cause: fmt.Errorf("%w: %w", ErrInvalidInput, err)}
	}
	if info, err := os.Stat(filepath.Dir(output)); err != nil || !info.IsDir() {
		return &StageError{Stage: StageRasterized, Cause: fmt.Errorf("%w: output directory %s does not exist", ErrInvalidInput, filepath.Dir(output))}
	}

	workDir, err := os.MkdirTemp(cfg.WorkDir, "mangarecap-"+r.id[:8]+"-")
	if err != nil {
		return &StageError{Stage: StageRasterized, Cause: fmt.Errorf("create work dir: %w", err)}
	}
	r.workDir = workDir
	if cfg.KeepTemp {
		r.log.Info("keeping work directory", observability.String("path", workDir))
	} else {
		defer os.RemoveAll(workDir)
	}

	steps := []struct {
		stage Stage
		fn    func(context.Context) error
	}{
		{StageRasterized, func(ctx context.Context) error { return r.rasterize(ctx, input) }},
		{StageSegmented, r.segment},
		{StageTranscribed, r.transcribe},
		{StageScripted, r.compose},
		{StageSynthesized, r.synthesize},
		{StageAllocated, r.allocate},
		{StageRendered, r.render},
		{StageAssembled, r.assemble},
		{StageEmitted, func(ctx context.Context) error { return r.emit(ctx, output) }},
	}
	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			return &StageError{Stage: st.stage, Cause: err}
		}
		if err := r.runStage(ctx, st.stage, st.fn); err != nil {
			if st.stage == StageEmitted {
				os.Remove(output)
			}
			return err
		}
	}
	return nil
}

func (r *run) runStage(ctx context.Context, stage Stage, fn func(context.Context) error) (err error) {
	ctx, span := r.o.deps.Tracer.StartSpan(ctx, "recap."+stage.String())
	start := time.Now()
	defer func() {
		span.SetTag(observability.MetricStageTime, time.Since(start))
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
	}()

	r.progress(stage, 0)
	if err := fn(ctx); err != nil {
		var se *StageError
		if errors.As(err, &se) {
			return err
		}
		return &StageError{Stage: stage, Cause: err}
	}
	r.state.setStage(stage)
	r.progress(stage, 1)
	r.log.Debug("stage complete",
		observability.String("stage", stage.String()),
		observability.Duration("elapsed", time.Since(start)))
	return nil
}

func (r *run) progress(stage Stage, fraction float64) {
	if r.o.deps.Progress == nil {
		return
	}
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	if last, ok := r.lastFrac[stage]; ok && fraction <= last {
		return
	}
	r.lastFrac[stage] = fraction
	r.o.deps.Progress(stage, fraction)
}

// forEach runs fn for 0..n-1 on the worker pool. fn returns only errors that
// must abort the stage; per-item failures are recorded on the run state.
func (r *run) forEach(ctx context.Context, stage Stage, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.o.workers())
	var done atomic.Int64
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := fn(gctx, i); err != nil {
				return err
			}
			if d := done.Add(1); d < int64(n) {
				r.progress(stage, float64(d)/float64(n))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (o *Orchestrator) workers() int {
	if o.cfg.Workers > 0 {
		return o.cfg.Workers
	}
	return runtime.NumCPU()
}

func (r *run) exclude(page int, stage Stage, cause error) {
	pe := &PageError{Page: page, Stage: stage, Cause: cause}
	if r.state.exclude(pe) {
		r.log.Warn("page excluded",
			observability.Int("page", page+1),
			observability.String("stage", stage.String()),
			observability.Error("error", cause))
	}
}

// checkFailures aborts the run when too large a share of pages was excluded.
func (r *run) checkFailures() error {
	total := len(r.pages)
	failed := r.state.excludedCount()
	if total > 0 && float64(failed)/float64(total) > r.o.cfg.FailureThreshold {
		return fmt.Errorf("%w: %d of %d pages excluded", ErrTooManyFailures, failed, total)
	}
	return nil
}

func (r *run) rasterize(ctx context.Context, input string) error {
	cfg := r.o.cfg
	pages, err := r.o.deps.Rasterizer.Rasterize(ctx, raster.Request{
		Input:    input,
		WorkDir:  r.workDir,
		DPI:      cfg.DPI,
		MaxPages: cfg.MaxPages,
	})
	if err != nil {
		if canceled(err) || errors.Is(err, ErrToolUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if len(pages) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidInput, raster.ErrNoPages)
	}
	r.pages = pages
	r.log.Info("pages rasterized", observability.Int(observability.MetricPageCount, len(pages)))
	return nil
}

func (r *run) segment(ctx context.Context) error {
	perPage := make([][]panel.Panel, len(r.pages))
	err := r.forEach(ctx, StageSegmented, len(r.pages), func(ctx context.Context, i int) error {
		page := r.pages[i]
		panels, err := r.o.seg.SegmentPage(page)
		if err != nil {
			r.exclude(page.Index, StageSegmented, err)
			return nil
		}
		perPage[i] = panels
		return nil
	})
	if err != nil {
		return err
	}
	if err := r.checkFailures(); err != nil {
		return err
	}

	r.panels = r.panels[:0]
	for _, panels := range perPage {
		r.panels = append(r.panels, panels...)
	}
	r.log.Info("pages segmented", observability.Int(observability.MetricPanelCount, len(r.panels)))
	return nil
}

func (r *run) transcribe(ctx context.Context) error {
	cfg := r.o.cfg
	opts := []ocr.InputOption{ocr.WithDPI(cfg.DPI)}
	if len(cfg.OCR.Languages) > 0 {
		opts = append(opts, ocr.WithLanguages(cfg.OCR.Languages...))
	}
	if cfg.OCR.PSM > 0 {
		opts = append(opts, ocr.WithTesseractPSM(cfg.OCR.PSM))
	}
	if cfg.OCR.Whitelist != "" {
		opts = append(opts, ocr.WithTesseractWhitelist(cfg.OCR.Whitelist))
	}

	err := r.forEach(ctx, StageTranscribed, len(r.panels), func(ctx context.Context, i int) error {
		p := &r.panels[i]
		if r.state.excluded(p.Page) {
			return nil
		}
		in, err := ocr.InputFromPanel(*p, cfg.OCR.Preprocess, opts...)
		if err != nil {
			r.exclude(p.Page, StageTranscribed, err)
			return nil
		}
		res, err := r.o.deps.OCR.Recognize(ctx, in)
		if err != nil {
			if canceled(err) || errors.Is(err, ErrToolUnavailable) {
				return err
			}
			r.exclude(p.Page, StageTranscribed, fmt.Errorf("panel %d: %w", p.Rank+1, err))
			return nil
		}
		p.Text = res.PlainText
		r.log.Debug("panel transcribed",
			observability.Int("page", p.Page+1),
			observability.Int("panel", p.Rank+1),
			observability.Int("chars", len(res.PlainText)),
			observability.Float64("confidence", res.Confidence),
			observability.Float64("text_area", res.Extent.Width*res.Extent.Height))
		return nil
	})
	if err != nil {
		return err
	}
	if err := r.checkFailures(); err != nil {
		return err
	}

	kept := r.panels[:0]
	for _, p := range r.panels {
		if !r.state.excluded(p.Page) {
			kept = append(kept, p)
		}
	}
	r.panels = kept
	if len(r.panels) == 0 {
		return errors.New("no panels left to narrate")
	}
	return nil
}

func (r *run) compose(ctx context.Context) error {
	n := r.o.cfg.Narration
	script, err := narration.Compose(r.panels, narration.Options{
		Placeholder:     n.Placeholder,
		Separator:       n.Separator,
		WordsPerSecond:  n.WordsPerSecond,
		Title:           r.o.cfg.Title,
		PageTransitions: n.PageTransitions,
		Filter:          r.o.deps.Filter,
	})
	if err != nil {
		return err
	}
	r.script = script
	return nil
}

func (r *run) synthesize(ctx context.Context) error {
	out := filepath.Join(r.workDir, "narration.wav")
	track, err := r.o.deps.TTS.Synthesize(ctx, r.script.Text, out)
	if err != nil {
		return err
	}
	r.audio = track
	r.log.Info("narration synthesized",
		observability.String("engine", r.o.deps.TTS.Name()),
		observability.Float64(observability.MetricAudioSeconds, track.Duration))
	return nil
}

func (r *run) allocate(ctx context.Context) error {
	cfg := r.o.cfg
	weights := r.script.Weights()
	for i, u := range r.script.Units {
		if u.Kind != narration.KindPanel {
			weights[i] = math.Max(weights[i], cfg.Pacing.TitleDuration)
		}
	}
	target := r.audio.Duration
	if target <= 0 {
		target = float64(len(weights)) * cfg.Pacing.SceneDuration
	}

	d, err := pacing.Allocate(target, weights, cfg.Pacing.Floor)
	if errors.Is(err, pacing.ErrFloorUnsatisfiable) {
		msg := fmt.Sprintf("%d scenes at a %.2fs floor exceed the %.2fs narration", len(d), cfg.Pacing.Floor, target)
		r.state.warn(msg)
		r.log.Warn("duration floor unsatisfiable", observability.String("detail", msg))
		err = nil
	}
	if err != nil {
		return err
	}
	r.durations = d
	return nil
}

func (r *run) render(ctx context.Context) error {
	cfg := r.o.cfg
	units := r.script.Units

	// panel units follow the panel order; map each to its crop and pan
	panelOf := make([]int, len(units))
	next := 0
	for i, u := range units {
		panelOf[i] = -1
		if u.Kind == narration.KindPanel {
			panelOf[i] = next
			next++
		}
	}

	zmin := math.Min(cfg.Motion.ZoomStart, cfg.Motion.ZoomEnd)
	scenes := make([]timeline.Scene, len(units))
	err := r.forEach(ctx, StageRendered, len(units), func(ctx context.Context, i int) error {
		sc := timeline.Scene{
			Index:     i,
			Duration:  r.durations[i],
			ZoomStart: 1,
			ZoomEnd:   1,
			Pan:       render.PanNone,
		}
		switch units[i].Kind {
		case narration.KindIntro:
			card, err := render.TitleCard(cfg.Title, r.o.size, render.IntroStyle)
			if err != nil {
				return err
			}
			sc.Source = card
		case narration.KindOutro:
			card, err := render.TitleCard(render.OutroText, r.o.size, render.OutroStyle)
			if err != nil {
				return err
			}
			sc.Source = card
		default:
			k := panelOf[i]
			sc.Source = render.Fit(r.panels[k].Image, r.o.size, zmin, cfg.Motion.CoverScale)
			sc.ZoomStart = cfg.Motion.ZoomStart
			sc.ZoomEnd = cfg.Motion.ZoomEnd
			sc.Pan = r.o.pans[k%len(r.o.pans)]
		}
		scenes[i] = sc
		return nil
	})
	if err != nil {
		return err
	}
	r.scenes = scenes
	return nil
}

func (r *run) assemble(ctx context.Context) error {
	cfg := r.o.cfg
	tl, rec := timeline.Assemble(r.scenes, r.audio.Duration, cfg.Pacing.Floor)
	tl.Size = r.o.size
	if rec.Unsatisfied > timeline.Epsilon {
		msg := fmt.Sprintf("video runs %.2fs past the narration; every scene is at the floor", rec.Unsatisfied)
		r.state.warn(msg)
		r.log.Warn("timeline longer than audio", observability.Float64("excess", rec.Unsatisfied))
	}
	if err := tl.Prepare(ctx, r.o.workers()); err != nil {
		return err
	}
	r.tl = tl
	r.rec = rec
	r.frames = tl.FrameCount(cfg.FPS)
	r.log.Info("timeline assembled",
		observability.Float64(observability.MetricVideoSeconds, tl.Total()),
		observability.Int(observability.MetricFrameCount, r.frames),
		observability.Float64("extended", rec.Extended),
		observability.Float64("trimmed", rec.Trimmed))
	return nil
}

func (r *run) emit(ctx context.Context, output string) error {
	src := &progressSource{Timeline: r.tl, total: r.frames, fps: r.o.cfg.FPS, report: func(f float64) {
		r.progress(StageEmitted, f)
	}}
	return r.o.deps.Encoder.Encode(ctx, src, r.audio, output)
}

// progressSource reports encoding progress as frames are handed over.
type progressSource struct {
	*timeline.Timeline
	total  int
	fps    float64
	report func(float64)
}

func (p *progressSource) Render(ctx context.Context, fps float64, workers int, emit func(int, *image.RGBA) error) error {
	step := max(int(p.fps), 1)
	return p.Timeline.Render(ctx, fps, workers, func(i int, frame *image.RGBA) error {
		if err := emit(i, frame); err != nil {
			return err
		}
		if (i+1)%step == 0 && i+1 < p.total {
			p.report(float64(i+1) / float64(p.total))
		}
		return nil
	})
}
