// Package health holds the preflight checks behind the check subcommand.
package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"time"

	"github.com/snapetech/iptvportal/internal/httpclient"
)

// CheckTool verifies that an external tool (ffprobe, ffmpeg) resolves on PATH or as a path.
func CheckTool(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("no tool configured")
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found: %w", name, err)
	}
	return p, nil
}

// CheckPortal fetches the EAS base URL. Any response below 500 counts as reachable; the
// portal root often answers 404.
func CheckPortal(ctx context.Context, baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("no EAS host configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := httpclient.WithTimeout(15 * time.Second).Do(req)
	if err != nil {
		return fmt.Errorf("portal unreachable: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("portal returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// CheckEndpoints hits the playlist server's documents at baseURL and returns the first error or nil.
func CheckEndpoints(ctx context.Context, baseURL string) error {
	client := httpclient.WithTimeout(5 * time.Second)
	for _, path := range []string{"/unicast.m3u", "/multicast.m3u", "/channels.md"} {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: HTTP %d", path, resp.StatusCode)
		}
	}
	return nil
}
