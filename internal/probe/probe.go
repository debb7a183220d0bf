// Package probe runs ffprobe and ffmpeg against stream addresses: the unicast redirect
// probe, the short pull test used for playback reachability, and stream inspection.
package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/snapetech/iptvportal/internal/metrics"
)

var (
	// ErrTimeout means the tool did not finish within its timeout (ProbeTimeout).
	ErrTimeout = errors.New("probe: timed out")
	// ErrNoRedirect means the tool finished but printed no matching redirect (ProbeNoRedirect).
	ErrNoRedirect = errors.New("probe: no redirect")
)

var redirectRe = regexp.MustCompile(`Redirecting to (rtsp://\S+)`)

// FindRedirect returns the first "Redirecting to rtsp://..." target in output whose
// address ends with suffix. An empty suffix accepts any target.
func FindRedirect(output, suffix string) (string, bool) {
	for _, m := range redirectRe.FindAllStringSubmatch(output, -1) {
		if strings.HasSuffix(m[1], suffix) {
			return m[1], true
		}
	}
	return "", false
}

// Runner launches the external tools. Zero value runs "ffprobe"/"ffmpeg" from PATH with
// default timeouts and no launch throttle.
type Runner struct {
	FFprobePath string
	FFmpegPath  string

	ProbeTimeout time.Duration // redirect probe and Info; default 5s
	PullTimeout  time.Duration // default 3s
	PullDuration time.Duration // seconds of media pulled by Pull; default 1s
	// RedirectSuffix filters redirect targets, e.g. "Uni.sdp".
	RedirectSuffix string

	// Limiter, if set, is waited on before every launch. Shared by all workers.
	Limiter *rate.Limiter
	Metrics *metrics.Metrics
}

// NewLimiter returns a launch limiter allowing perSecond launches, or nil for unlimited.
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func (r *Runner) ffprobe() string {
	if r.FFprobePath != "" {
		return r.FFprobePath
	}
	return "ffprobe"
}

func (r *Runner) ffmpeg() string {
	if r.FFmpegPath != "" {
		return r.FFmpegPath
	}
	return "ffmpeg"
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// Redirect runs one ffprobe against rtspURL and scans its diagnostic stream for the
// redirect target. The output is scanned even when ffprobe exits non-zero or is killed.
func (r *Runner) Redirect(ctx context.Context, rtspURL string) (string, error) {
	args := []string{"-print_format", "json", "-i", rtspURL}
	_, stderr, err := r.run(ctx, "ffprobe", r.ffprobe(), args, orDefault(r.ProbeTimeout, 5*time.Second))
	if target, ok := FindRedirect(string(stderr), r.RedirectSuffix); ok {
		return target, nil
	}
	if errors.Is(err, ErrTimeout) {
		return "", err
	}
	return "", ErrNoRedirect
}

// Pull tries to pull a short clip of streamURL over RTSP/UDP. nil means ffmpeg exited cleanly.
func (r *Runner) Pull(ctx context.Context, streamURL string) error {
	dur := orDefault(r.PullDuration, time.Second)
	args := []string{
		"-rtsp_transport", "udp",
		"-i", streamURL,
		"-t", fmt.Sprintf("%g", dur.Seconds()),
		"-f", "null", "-",
	}
	_, _, err := r.run(ctx, "ffmpeg", r.ffmpeg(), args, orDefault(r.PullTimeout, 3*time.Second))
	return err
}

// run executes name with args under timeout and returns stdout and stderr.
func (r *Runner) run(ctx context.Context, tool, path string, args []string, timeout time.Duration) ([]byte, []byte, error) {
	if r.Limiter != nil {
		if err := r.Limiter.Wait(ctx); err != nil {
			r.Metrics.ToolRun(tool, "canceled")
			return nil, nil, err
		}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	err := cmd.Run()
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		r.Metrics.ToolRun(tool, "timeout")
		return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("%s %w after %v", tool, ErrTimeout, timeout)
	case err != nil:
		r.Metrics.ToolRun(tool, "error")
		return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("%s: %w", tool, err)
	}
	r.Metrics.ToolRun(tool, "ok")
	return stdout.Bytes(), stderr.Bytes(), nil
}
