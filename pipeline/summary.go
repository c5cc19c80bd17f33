package pipeline

import (
	"time"

	"github.com/wudi/mangarecap/report"
	"github.com/wudi/mangarecap/timeline"
	"github.com/wudi/mangarecap/tts"
)

// SceneInfo describes one scene of the produced video.
type SceneInfo struct {
	Index    int
	Kind     string
	Page     int
	Rank     int
	Duration float64
	Text     string
}

// Summary describes a finished or failed run.
type Summary struct {
	RunID   string
	Title   string
	Input   string
	Output  string
	Started time.Time
	Elapsed time.Duration
	// Stage is the last stage that completed.
	Stage Stage
	// FailedStage is the stage a failed run died in, StageNone otherwise.
	FailedStage Stage
	// Tool names the external program implicated in the failure, if any.
	Tool string

	Pages    int
	Panels   int
	Excluded []*PageError
	Warnings []string

	Audio          tts.AudioTrack
	VideoSeconds   float64
	Frames         int
	Reconciliation timeline.Reconciliation
	Scenes         []SceneInfo

	Err error
}

func (r *run) summary(input, output string, started time.Time, err error) *Summary {
	s := &Summary{
		RunID:          r.id,
		Title:          r.o.cfg.Title,
		Input:          input,
		Output:         output,
		Started:        started,
		Elapsed:        time.Since(started),
		Stage:          r.state.currentStage(),
		Pages:          len(r.pages),
		Panels:         len(r.panels),
		Excluded:       r.state.pageErrors(),
		Warnings:       r.state.warningList(),
		Audio:          r.audio,
		Frames:         r.frames,
		Reconciliation: r.rec,
		FailedStage:    FailedStage(err),
		Tool:           ToolOf(err),
		Err:            err,
	}
	if r.tl != nil {
		s.VideoSeconds = r.tl.Total()
		for i, sc := range r.tl.Scenes {
			info := SceneInfo{Index: i, Duration: sc.Duration, Page: -1, Rank: -1}
			if i < len(r.script.Units) {
				u := r.script.Units[i]
				info.Kind = u.Kind.String()
				info.Page = u.Page
				info.Rank = u.Rank
				info.Text = u.Text
			}
			s.Scenes = append(s.Scenes, info)
		}
	}
	return s
}

// Report converts the summary for rendering.
func (s *Summary) Report() report.Report {
	rep := report.Report{
		RunID:        s.RunID,
		Title:        s.Title,
		Input:        s.Input,
		Output:       s.Output,
		Started:      s.Started,
		Elapsed:      s.Elapsed,
		Stage:        s.Stage.String(),
		Failed:       s.Err != nil,
		Pages:        s.Pages,
		Panels:       s.Panels,
		Warnings:     s.Warnings,
		AudioSeconds: s.Audio.Duration,
		VideoSeconds: s.VideoSeconds,
		Frames:       s.Frames,
	}
	if s.Err != nil {
		rep.Error = s.Err.Error()
		rep.Tool = s.Tool
		if s.FailedStage != StageNone {
			rep.FailedStage = s.FailedStage.String()
		}
	}
	for _, e := range s.Excluded {
		rep.Excluded = append(rep.Excluded, report.Excluded{Page: e.Page, Stage: e.Stage.String(), Cause: e.Cause.Error()})
	}
	for _, sc := range s.Scenes {
		rep.Scenes = append(rep.Scenes, report.Scene{
			Index:    sc.Index,
			Kind:     sc.Kind,
			Page:     sc.Page,
			Rank:     sc.Rank,
			Duration: sc.Duration,
			Text:     sc.Text,
		})
	}
	return rep
}
