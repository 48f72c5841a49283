package planet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/airbusgeo/reserve-monitor/service"
	"github.com/airbusgeo/reserve-monitor/service/log"
	"github.com/cavaliercoder/grab"
)

func fmtBytes(bytes int64) string {
	v := float64(bytes)
	switch {
	case v > 1<<30:
		return fmt.Sprintf("%.2fGo", v/(1<<30))
	case v > 1<<20:
		return fmt.Sprintf("%.2fMo", v/(1<<20))
	case v > 1<<10:
		return fmt.Sprintf("%.2fko", v/(1<<10))
	default:
		return fmt.Sprintf("%.2fo", v)
	}
}

func displayProgress(ctx context.Context, prefix string, resp *grab.Response, progressPeriod float64) {
	t := time.NewTicker(time.Second)
	defer t.Stop()

	progress, lastBytes, seconds := 0.0, int64(0), int64(0)
	for {
		select {
		case <-t.C:
			seconds++
			if resp.Progress() > progress {
				log.Logger(ctx).Sugar().Debugf("%s: %.2f%% %s/%s (%s/s)", prefix, 100*resp.Progress(), fmtBytes(resp.BytesComplete()), fmtBytes(resp.Size), fmtBytes((resp.BytesComplete()-lastBytes)/seconds))
				seconds = 0
				progress += progressPeriod
				lastBytes = resp.BytesComplete()
			}

		case <-resp.Done:
			return
		}
	}
}

// Download downloads the url into dst, displaying the progress every 5%.
// The file is written under a temporary name and renamed once complete.
func (c *Client) Download(ctx context.Context, url, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("Download.MkdirAll: %w", err)
	}
	tmp := service.AtomicPath(dst)
	req, err := grab.NewRequest(tmp, url)
	if err != nil {
		return fmt.Errorf("Download.NewRequest: %w", err)
	}
	req = req.WithContext(ctx)

	client := grab.NewClient()
	if c.HTTP != nil {
		client.HTTPClient = c.HTTP
	}
	resp := client.Do(req)

	displayProgress(ctx, filepath.Base(dst), resp, 0.05)

	if err := resp.Err(); err != nil {
		err = fmt.Errorf("Download[%s]: %w", url, err)
		if resp.HTTPResponse == nil {
			return service.MakeTemporary(err)
		}
		if service.TemporaryStatus(resp.HTTPResponse.StatusCode) {
			return service.MakeTemporary(err)
		}
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("Download.Rename: %w", err)
	}
	return nil
}

// DownloadIfMissing downloads the url into dst, unless dst already exists.
// Returns true if the file has been downloaded.
func (c *Client) DownloadIfMissing(ctx context.Context, url, dst string) (bool, error) {
	if service.FileExists(dst) {
		log.Logger(ctx).Sugar().Debugf("%s already exists: skipped", filepath.Base(dst))
		return false, nil
	}
	if err := service.Retriable(ctx, func() error { return c.Download(ctx, url, dst) }, time.Second, 3); err != nil {
		return false, err
	}
	return true, nil
}
