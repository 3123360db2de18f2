package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/failure"
)

// Probe is the media decode/encode boundary. Every call opens the source for
// the span of that call only.
type Probe interface {
	// Duration returns the total duration of the media in seconds.
	Duration(ctx context.Context, path string) (float64, error)
	// ExtractAudio writes the full audio track of src to dst.
	ExtractAudio(ctx context.Context, src, dst string) error
	// Clip writes the [start, end) range of src to dst.
	Clip(ctx context.Context, src, dst string, start, end float64) error
}

// Runner executes an external command and returns its stdout and stderr.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Config describes the encoder settings used for extracted and clipped audio
type Config struct {
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`
	Codec       string `yaml:"audio_codec" validate:"required"`
	Bitrate     string `yaml:"audio_bitrate"`
	SampleRate  int    `yaml:"sample_rate" validate:"gte=0"`
	Channels    int    `yaml:"channels" validate:"gte=0,lte=2"`
	Extension   string `yaml:"extension" validate:"required"`
}

// DefaultConfig returns 16kHz mono MP3 at 64 kbit/s; 900 s of speech stays near 7 MB.
func DefaultConfig() Config {
	return Config{
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		Codec:       "libmp3lame",
		Bitrate:     "64k",
		SampleRate:  16000,
		Channels:    1,
		Extension:   ".mp3",
	}
}

// FFmpeg implements Probe with the ffmpeg and ffprobe binaries
type FFmpeg struct {
	cfg    Config
	runner Runner
}

// Option configures an FFmpeg probe
type Option func(*FFmpeg)

// WithRunner replaces the command runner (tests)
func WithRunner(r Runner) Option {
	return func(f *FFmpeg) {
		f.runner = r
	}
}

// NewFFmpeg creates a probe backed by ffmpeg/ffprobe
func NewFFmpeg(cfg Config, opts ...Option) *FFmpeg {
	def := DefaultConfig()
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = def.FFmpegPath
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = def.FFprobePath
	}
	if cfg.Codec == "" {
		cfg.Codec = def.Codec
	}
	if cfg.Extension == "" {
		cfg.Extension = def.Extension
	}
	if !strings.HasPrefix(cfg.Extension, ".") {
		cfg.Extension = "." + cfg.Extension
	}

	f := &FFmpeg{cfg: cfg, runner: execRunner{}}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Extension returns the file extension of produced audio, including the dot
func (f *FFmpeg) Extension() string {
	return f.cfg.Extension
}

// ffprobeOutput matches the format section of `ffprobe -print_format json -show_format`
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

var durationLine = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+(?:\.\d+)?)`)

// Duration uses ffprobe to read the container duration. When ffprobe is not
// available it falls back to parsing the banner ffmpeg prints for the input.
func (f *FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, failure.IO("probe "+path, err)
	}

	stdout, stderr, err := f.runner.Run(ctx, f.cfg.FFprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)
	if err == nil {
		return parseProbeDuration(stdout)
	}
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	// ffmpeg exits non-zero without an output file but still prints the input banner
	_, banner, _ := f.runner.Run(ctx, f.cfg.FFmpegPath, "-hide_banner", "-i", path)
	if d, perr := parseBannerDuration(string(banner)); perr == nil {
		return d, nil
	}
	return 0, failure.IO("ffprobe "+path, fmt.Errorf("%v\nStderr: %s", err, strings.TrimSpace(string(stderr))))
}

func parseProbeDuration(out []byte) (float64, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0, failure.IO("parse ffprobe output", err)
	}
	if probe.Format.Duration == "" {
		return 0, failure.IO("parse ffprobe output", fmt.Errorf("no duration in output: %s", string(out)))
	}
	d, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, failure.IO("parse ffprobe duration", err)
	}
	if d < 0 {
		return 0, failure.IO("parse ffprobe duration", fmt.Errorf("negative duration %v", d))
	}
	return d, nil
}

func parseBannerDuration(out string) (float64, error) {
	m := durationLine.FindStringSubmatch(out)
	if m == nil {
		return 0, fmt.Errorf("could not parse duration from ffmpeg output")
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	s, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, err
	}
	return float64(h*3600+min*60) + s, nil
}

// ExtractAudio converts src (video or audio) into the configured audio format
func (f *FFmpeg) ExtractAudio(ctx context.Context, src, dst string) error {
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", src, "-vn"}
	args = append(args, f.encodingArgs()...)
	args = append(args, dst)

	if _, stderr, err := f.runner.Run(ctx, f.cfg.FFmpegPath, args...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return failure.IO("extract audio from "+filepath.Base(src), fmt.Errorf("%v\nStderr: %s", err, strings.TrimSpace(string(stderr))))
	}
	return nil
}

// Clip re-encodes [start, end) of src into dst. Seeking happens on the input
// side and the length is passed with -t so the range is exact after re-encoding.
func (f *FFmpeg) Clip(ctx context.Context, src, dst string, start, end float64) error {
	if end < start {
		return failure.Invalid("clip end %.3f before start %.3f", end, start)
	}
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-ss", FormatTime(start),
		"-i", src,
		"-t", fmt.Sprintf("%.3f", end-start),
		"-vn",
	}
	args = append(args, f.encodingArgs()...)
	args = append(args, dst)

	if _, stderr, err := f.runner.Run(ctx, f.cfg.FFmpegPath, args...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return failure.IO("clip "+filepath.Base(dst), fmt.Errorf("%v\nStderr: %s", err, strings.TrimSpace(string(stderr))))
	}
	return nil
}

func (f *FFmpeg) encodingArgs() []string {
	args := []string{"-c:a", f.cfg.Codec}
	if f.cfg.Bitrate != "" {
		args = append(args, "-b:a", f.cfg.Bitrate)
	}
	if f.cfg.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(f.cfg.SampleRate))
	}
	if f.cfg.Channels > 0 {
		args = append(args, "-ac", strconv.Itoa(f.cfg.Channels))
	}
	return args
}

// FormatTime formats seconds as HH:MM:SS.mmm for ffmpeg time arguments. The
// value is rounded to whole milliseconds first so the seconds field never
// reaches 60.
func FormatTime(seconds float64) string {
	ms := int64(math.Round(seconds * 1000))
	if ms < 0 {
		ms = 0
	}
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms % 60_000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s/1000, s%1000)
}
