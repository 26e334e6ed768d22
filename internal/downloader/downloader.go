// Package downloader fetches image assets to local storage.
package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/himawari-lab/pixrank/internal/httpclient"
)

// The upstream image CDN rejects requests without an app referer.
const imageReferer = "https://app-api.pixiv.net/"

// Downloader saves a remote asset to a local path.
type Downloader interface {
	Download(ctx context.Context, url, dest string) error
}

// HTTPDownloader downloads over HTTP through the shared paced client.
type HTTPDownloader struct {
	client *httpclient.Client
	log    zerolog.Logger
}

func NewHTTPDownloader(log zerolog.Logger) *HTTPDownloader {
	return &HTTPDownloader{
		client: httpclient.NewClient(nil, 200*time.Millisecond),
		log:    log,
	}
}

// Download fetches url into dest. The write goes through a temp file in the
// same directory so a failed transfer never leaves a truncated asset behind.
func (d *HTTPDownloader) Download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Referer", imageReferer)

	resp, err := d.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download returned status %d for %s", resp.StatusCode, url)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()          //nolint:errcheck
		os.Remove(tmp.Name()) //nolint:errcheck
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return err
	}

	d.log.Debug().Str("url", url).Str("dest", dest).Msg("downloaded asset")
	return nil
}
