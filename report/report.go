// Package report renders a run summary as Markdown or HTML.
package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Excluded is a page dropped from the recap.
type Excluded struct {
	Page  int
	Stage string
	Cause string
}

// Scene is one narrated beat of the final video.
type Scene struct {
	Index    int
	Kind     string
	Page     int
	Rank     int
	Duration float64
	Text     string
}

// Report is everything worth telling the user about a run.
type Report struct {
	RunID   string
	Title   string
	Input   string
	Output  string
	Started time.Time
	Elapsed time.Duration
	// Stage is the last stage completed.
	Stage  string
	Failed bool
	// FailedStage is the stage the run died in.
	FailedStage string
	Error       string
	// Tool names the external program implicated in a failure, if any.
	Tool string

	Pages    int
	Panels   int
	Excluded []Excluded
	Warnings []string

	AudioSeconds float64
	VideoSeconds float64
	Frames       int
	Scenes       []Scene
}

// Markdown renders the report.
func Markdown(r Report) string {
	var b strings.Builder
	title := r.Title
	if title == "" {
		title = filepath.Base(r.Input)
	}
	fmt.Fprintf(&b, "# Recap report: %s\n\n", escape(title))

	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Run | `%s` |\n", r.RunID)
	switch {
	case r.Failed && r.FailedStage != "":
		fmt.Fprintf(&b, "| Status | failed at stage **%s** (last completed: %s) |\n", r.FailedStage, r.Stage)
	case r.Failed:
		fmt.Fprintf(&b, "| Status | failed at stage **%s** |\n", r.Stage)
	default:
		fmt.Fprintf(&b, "| Status | completed at stage **%s** |\n", r.Stage)
	}
	fmt.Fprintf(&b, "| Input | `%s` |\n", r.Input)
	if r.Output != "" && !r.Failed {
		fmt.Fprintf(&b, "| Output | `%s` |\n", r.Output)
	}
	if !r.Started.IsZero() {
		fmt.Fprintf(&b, "| Started | %s |\n", r.Started.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "| Elapsed | %s |\n", r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&b, "| Pages | %d (%d excluded) |\n", r.Pages, len(r.Excluded))
	fmt.Fprintf(&b, "| Panels | %d |\n", r.Panels)
	fmt.Fprintf(&b, "| Audio | %.2fs |\n", r.AudioSeconds)
	fmt.Fprintf(&b, "| Video | %.2fs (%d frames) |\n", r.VideoSeconds, r.Frames)

	if r.Failed {
		b.WriteString("\n## Failure\n\n")
		fmt.Fprintf(&b, "%s\n", escape(r.Error))
		if r.Tool != "" {
			fmt.Fprintf(&b, "\nImplicated tool: `%s`\n", r.Tool)
		}
	}

	if len(r.Excluded) > 0 {
		b.WriteString("\n## Excluded pages\n\n| Page | Stage | Cause |\n|---|---|---|\n")
		for _, e := range r.Excluded {
			fmt.Fprintf(&b, "| %d | %s | %s |\n", e.Page+1, e.Stage, cell(e.Cause))
		}
	}

	if len(r.Warnings) > 0 {
		b.WriteString("\n## Warnings\n\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "- %s\n", escape(w))
		}
	}

	if len(r.Scenes) > 0 {
		b.WriteString("\n## Scenes\n\n| # | Kind | Page | Panel | Seconds | Narration |\n|---|---|---|---|---|---|\n")
		for _, s := range r.Scenes {
			page, rank := "-", "-"
			if s.Page >= 0 {
				page = fmt.Sprint(s.Page + 1)
				rank = fmt.Sprint(s.Rank + 1)
			}
			fmt.Fprintf(&b, "| %d | %s | %s | %s | %.2f | %s |\n", s.Index+1, s.Kind, page, rank, s.Duration, cell(s.Text))
		}
	}
	return b.String()
}

// HTML renders the Markdown report to a standalone HTML page.
func HTML(r Report) ([]byte, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.Table),
		goldmark.WithRendererOptions(html.WithXHTML()),
	)
	var body bytes.Buffer
	if err := md.Convert([]byte(Markdown(r)), &body); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	var out bytes.Buffer
	out.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"/><title>Recap report</title>")
	out.WriteString("<style>body{font-family:sans-serif;max-width:60em;margin:2em auto}table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:.2em .5em}</style>")
	out.WriteString("</head><body>\n")
	out.Write(body.Bytes())
	out.WriteString("</body></html>\n")
	return out.Bytes(), nil
}

// Write saves the report, as HTML when path ends in .html or .htm and as
// Markdown otherwise.
func Write(path string, r Report) error {
	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		var err error
		if data, err = HTML(r); err != nil {
			return err
		}
	default:
		data = []byte(Markdown(r))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

var mdEscaper = strings.NewReplacer("\\", "\\\\", "*", "\\*", "_", "\\_", "`", "\\`", "<", "&lt;", ">", "&gt;", "[", "\\[", "]", "\\]")

func escape(s string) string {
	return mdEscaper.Replace(s)
}

func cell(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 120 {
		s = s[:117] + "..."
	}
	return strings.ReplaceAll(escape(s), "|", "\\|")
}
