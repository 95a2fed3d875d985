package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// YTDLPResolver resolves hosted video pages with the yt-dlp binary.
type YTDLPResolver struct {
	Binary  string
	Timeout time.Duration
}

// NewYTDLPResolver creates a resolver using binary (default "yt-dlp").
func NewYTDLPResolver(binary string, timeout time.Duration) *YTDLPResolver {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &YTDLPResolver{Binary: binary, Timeout: timeout}
}

// Resolve returns the direct media URL of the best combined format.
// The URL is time-limited, so it is resolved on every acquisition.
func (r *YTDLPResolver) Resolve(ctx context.Context, pageURL string) (string, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Binary, "--quiet", "--no-warnings", "-f", "best", "-g", pageURL)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("yt-dlp failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return firstURL(stdout.Bytes())
}

// firstURL returns the first non-empty line of the yt-dlp output.
func firstURL(out []byte) (string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line, nil
		}
	}
	return "", fmt.Errorf("yt-dlp returned no media url")
}
