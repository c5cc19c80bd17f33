// Package timeline concatenates scenes into one ordered frame source and
// reconciles its length against the narration audio.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/wudi/mangarecap/render"
)

// Epsilon is the tolerance below which audio and video lengths are equal.
const Epsilon = 1e-6

// Scene is one still image shown for Duration seconds.
type Scene struct {
	Index    int
	Source   image.Image
	Duration float64
	// Motion is how long the pan/zoom runs. Frames after Motion show the
	// terminal framing.
	Motion    float64
	Pan       render.Direction
	ZoomStart float64
	ZoomEnd   float64
}

// Reconciliation records how the timeline was aligned to the audio.
type Reconciliation struct {
	Audio float64
	// Video is the scene total before reconciliation.
	Video    float64
	Extended float64
	Trimmed  float64
	// Unsatisfied is excess video that could not be trimmed without pushing a
	// scene below the floor.
	Unsatisfied float64
}

// Timeline is an ordered, reconciled scene list.
type Timeline struct {
	Scenes []Scene
	// Size is the output frame resolution.
	Size image.Point

	starts    []float64
	renderers []*render.KenBurns
}

// Assemble orders scenes into a timeline and reconciles the total with the
// audio length. Non-positive audio leaves the durations untouched.
func Assemble(scenes []Scene, audio, floor float64) (*Timeline, Reconciliation) {
	tl := &Timeline{Scenes: make([]Scene, len(scenes))}
	copy(tl.Scenes, scenes)
	for i := range tl.Scenes {
		s := &tl.Scenes[i]
		if s.Motion <= 0 || s.Motion > s.Duration {
			s.Motion = s.Duration
		}
		if s.ZoomStart < 1 {
			s.ZoomStart = 1
		}
		if s.ZoomEnd < 1 {
			s.ZoomEnd = 1
		}
	}
	rec := tl.Reconcile(audio, floor)
	return tl, rec
}

// Reconcile aligns the total duration with audio. A shortfall extends only the
// final scene, holding its last frame. Excess is trimmed from scene slack
// above floor, proportionally, starting from the end.
func (tl *Timeline) Reconcile(audio, floor float64) Reconciliation {
	defer tl.index()
	rec := Reconciliation{Audio: audio, Video: tl.Total()}
	if audio <= 0 || len(tl.Scenes) == 0 {
		return rec
	}

	diff := audio - rec.Video
	switch {
	case diff > Epsilon:
		tl.Scenes[len(tl.Scenes)-1].Duration += diff
		rec.Extended = diff
	case diff < -Epsilon:
		rec.Trimmed, rec.Unsatisfied = tl.trim(-diff, floor)
	}
	return rec
}

func (tl *Timeline) trim(excess, floor float64) (trimmed, unsatisfied float64) {
	slack := make([]float64, len(tl.Scenes))
	var total float64
	for i, s := range tl.Scenes {
		slack[i] = math.Max(s.Duration-floor, 0)
		total += slack[i]
	}
	if total <= 0 {
		return 0, excess
	}

	target := math.Min(excess, total)
	remaining := target
	for i := len(tl.Scenes) - 1; i >= 0 && remaining > 0; i-- {
		cut := math.Min(target*slack[i]/total, math.Min(slack[i], remaining))
		tl.cut(i, cut)
		slack[i] -= cut
		remaining -= cut
	}
	// rounding leftovers come off the latest scenes that still have room
	for i := len(tl.Scenes) - 1; i >= 0 && remaining > Epsilon*Epsilon; i-- {
		cut := math.Min(slack[i], remaining)
		tl.cut(i, cut)
		remaining -= cut
	}
	return target, excess - target
}

func (tl *Timeline) cut(i int, amount float64) {
	if amount <= 0 {
		return
	}
	s := &tl.Scenes[i]
	s.Duration -= amount
	s.Motion = s.Duration
}

// Total is the sum of scene durations.
func (tl *Timeline) Total() float64 {
	var sum float64
	for _, s := range tl.Scenes {
		sum += s.Duration
	}
	return sum
}

// FrameCount returns the number of frames at fps.
func (tl *Timeline) FrameCount(fps float64) int {
	if fps <= 0 {
		return 0
	}
	return int(math.Round(tl.Total() * fps))
}

// index records each scene's start time.
func (tl *Timeline) index() {
	tl.starts = sceneStarts(tl.Scenes)
}

func sceneStarts(scenes []Scene) []float64 {
	starts := make([]float64, len(scenes))
	var acc float64
	for i, s := range scenes {
		starts[i] = acc
		acc += s.Duration
	}
	return starts
}

// Locate maps a global time to a scene index and scene-local time. It never
// mutates the timeline, so concurrent callers are safe once the scene list is
// settled.
func (tl *Timeline) Locate(t float64) (int, float64) {
	if len(tl.Scenes) == 0 {
		return -1, 0
	}
	starts := tl.starts
	if len(starts) != len(tl.Scenes) {
		starts = sceneStarts(tl.Scenes)
	}
	idx := len(tl.Scenes) - 1
	for i := range tl.Scenes {
		if t < starts[i]+tl.Scenes[i].Duration {
			idx = i
			break
		}
	}
	return idx, t - starts[idx]
}

// Prepare builds a renderer per scene. It must run before FrameAt or Render.
func (tl *Timeline) Prepare(ctx context.Context, workers int) error {
	if tl.Size.X <= 0 || tl.Size.Y <= 0 {
		return render.ErrInvalidSize
	}
	tl.index()
	out := make([]*render.KenBurns, len(tl.Scenes))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(poolSize(workers))
	for i := range tl.Scenes {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s := tl.Scenes[i]
			kb, err := render.NewKenBurns(s.Source, render.Spec{
				Duration:  s.Motion,
				ZoomStart: s.ZoomStart,
				ZoomEnd:   s.ZoomEnd,
				Pan:       s.Pan,
				Size:      tl.Size,
			})
			if err != nil {
				return fmt.Errorf("scene %d: %w", s.Index, err)
			}
			out[i] = kb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	tl.renderers = out
	return nil
}

var errNotPrepared = errors.New("timeline not prepared")

// FrameAt renders global frame i.
func (tl *Timeline) FrameAt(i int, fps float64) (*image.RGBA, error) {
	if tl.renderers == nil {
		return nil, errNotPrepared
	}
	idx, local := tl.Locate(float64(i) / fps)
	if idx < 0 {
		return nil, fmt.Errorf("frame %d: empty timeline", i)
	}
	return tl.renderers[idx].Frame(local), nil
}

// Render synthesizes every frame on a bounded pool and passes them to emit in
// strict order. Frames are produced in windows so memory stays bounded.
func (tl *Timeline) Render(ctx context.Context, fps float64, workers int, emit func(i int, frame *image.RGBA) error) error {
	if tl.renderers == nil {
		return errNotPrepared
	}
	n := tl.FrameCount(fps)
	workers = poolSize(workers)
	window := workers * 2

	buf := make([]*image.RGBA, window)
	for base := 0; base < n; base += window {
		end := min(base+window, n)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i := base; i < end; i++ {
			i := i
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				f, err := tl.FrameAt(i, fps)
				if err != nil {
					return err
				}
				buf[i-base] = f
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		for i := base; i < end; i++ {
			if err := emit(i, buf[i-base]); err != nil {
				return err
			}
			buf[i-base] = nil
		}
	}
	return ctx.Err()
}

func poolSize(workers int) int {
	if workers <= 0 {
		return runtime.NumCPU()
	}
	return workers
}
