// Package encode muxes rendered frames and narration audio into a video file
// with ffmpeg.
package encode

import (
	"context"
	"fmt"
	"image"
	"io"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/wudi/mangarecap/tools"
	"github.com/wudi/mangarecap/tts"
)

// FrameSource yields frames in order. *timeline.Timeline implements it.
type FrameSource interface {
	FrameCount(fps float64) int
	Render(ctx context.Context, fps float64, workers int, emit func(i int, frame *image.RGBA) error) error
}

// Encoder writes the final video.
type Encoder interface {
	Encode(ctx context.Context, src FrameSource, audio tts.AudioTrack, output string) error
}

// FFmpeg streams raw RGBA frames into ffmpeg's stdin.
type FFmpeg struct {
	Runner tools.Runner
	Path   string
	Size   image.Point
	FPS    float64
	// Workers bounds parallel frame synthesis.
	Workers    int
	VideoCodec string
	AudioCodec string
	Preset     string
	CRF        int
}

// Args builds the ffmpeg command line.
func (f *FFmpeg) Args(audio tts.AudioTrack, output string) []string {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", f.Size.X, f.Size.Y),
		"-r", strconv.FormatFloat(f.fps(), 'f', -1, 64),
		"-i", "-",
	}
	if audio.Path != "" {
		args = append(args, "-i", audio.Path)
	}
	args = append(args,
		"-c:v", orDefault(f.VideoCodec, "libx264"),
		"-preset", orDefault(f.Preset, "medium"),
		"-pix_fmt", "yuv420p",
	)
	if f.CRF > 0 {
		args = append(args, "-crf", strconv.Itoa(f.CRF))
	}
	if audio.Path != "" {
		args = append(args, "-c:a", orDefault(f.AudioCodec, "aac"), "-b:a", "192k")
	}
	return append(args, "-movflags", "+faststart", output)
}

// Encode renders src and feeds it to ffmpeg. A failure on either side stops
// the other.
func (f *FFmpeg) Encode(ctx context.Context, src FrameSource, audio tts.AudioTrack, output string) error {
	if f.Size.X <= 0 || f.Size.Y <= 0 {
		return fmt.Errorf("encode: invalid frame size %v", f.Size)
	}
	if src.FrameCount(f.fps()) == 0 {
		return fmt.Errorf("encode: timeline has no frames")
	}

	pr, pw := io.Pipe()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := src.Render(ctx, f.fps(), f.Workers, func(i int, frame *image.RGBA) error {
			if frame.Rect.Dx() != f.Size.X || frame.Rect.Dy() != f.Size.Y {
				return fmt.Errorf("frame %d: size %v, want %v", i, frame.Rect.Size(), f.Size)
			}
			_, err := pw.Write(frame.Pix[:4*f.Size.X*f.Size.Y])
			return err
		})
		pw.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		_, err := f.Runner.Run(ctx, tools.Request{
			Tool:  "ffmpeg",
			Path:  f.Path,
			Args:  f.Args(audio, output),
			Stdin: pr,
			// encoding time grows with the recap; only ctx stops it
			Timeout: tools.NoTimeout,
		})
		if err != nil {
			pr.CloseWithError(err)
			return fmt.Errorf("ffmpeg: %w", err)
		}
		// ffmpeg may exit before reading everything; unblock the writer.
		pr.Close()
		return nil
	})
	return g.Wait()
}

func (f *FFmpeg) fps() float64 {
	if f.FPS <= 0 {
		return 30
	}
	return f.FPS
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
