package tts

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/wudi/mangarecap/tools"
)

// Prober reads media durations with ffprobe.
type Prober struct {
	Runner tools.Runner
	Path   string
}

// Duration returns the container duration of path in seconds.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	resp, err := p.Runner.Run(ctx, tools.Request{
		Tool: "ffprobe",
		Path: p.Path,
		Args: []string{
			"-v", "error",
			"-show_entries", "format=duration",
			"-of", "default=noprint_wrappers=1:nokey=1",
			path,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", path, err)
	}
	raw := strings.TrimSpace(string(resp.Stdout))
	d, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("probe %s: unexpected duration %q", path, raw)
	}
	return d, nil
}

// Track probes path and wraps it as an AudioTrack.
func (p *Prober) Track(ctx context.Context, path string) (AudioTrack, error) {
	d, err := p.Duration(ctx, path)
	if err != nil {
		return AudioTrack{}, err
	}
	return AudioTrack{Path: path, Duration: d}, nil
}
