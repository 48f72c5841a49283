package delivery

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/airbusgeo/osio"
	osioGcs "github.com/airbusgeo/osio/gcs"
	"github.com/airbusgeo/reserve-monitor/service"
	"github.com/airbusgeo/reserve-monitor/service/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
)

// GCSFetcher fetches the objects delivered in a Google Cloud Storage bucket
type GCSFetcher struct {
	client      *storage.Client
	adapter     *osio.Adapter
	Concurrency int
}

// NewGCSFetcher creates a fetcher using the default credentials
func NewGCSFetcher(ctx context.Context) (*GCSFetcher, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSFetcher.NewClient: %w", err)
	}
	gcsr, err := osioGcs.Handle(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSFetcher.Handle: %w", err)
	}
	adapter, err := osio.NewAdapter(gcsr)
	if err != nil {
		return nil, fmt.Errorf("NewGCSFetcher.NewAdapter: %w", err)
	}
	return &GCSFetcher{client: client, adapter: adapter, Concurrency: 5}, nil
}

// Fetch implements Fetcher
func (f *GCSFetcher) Fetch(ctx context.Context, loc Location, dstDir string) ([]string, error) {
	q := &storage.Query{Prefix: loc.Prefix, Versions: false}
	q.SetAttrSelection([]string{"Name", "Size"})
	it := f.client.Bucket(loc.Bucket).Objects(ctx, q)

	var files []string
	var mu sync.Mutex
	wg, gctx := errgroup.WithContext(ctx)
	wg.SetLimit(f.Concurrency)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			wg.Wait()
			return nil, service.MakeTemporary(fmt.Errorf("GCSFetcher.Iterate[%s]: %w", loc, err))
		}
		dst := localPath(loc.Prefix, attrs.Name, dstDir)
		if dst == "" {
			continue
		}
		object := loc.Bucket + "/" + attrs.Name
		wg.Go(func() error {
			if err := f.download(gctx, object, dst); err != nil {
				return err
			}
			mu.Lock()
			files = append(files, dst)
			mu.Unlock()
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		return nil, fmt.Errorf("GCSFetcher.%w", err)
	}
	log.Logger(ctx).Sugar().Debugf("%d files fetched from %s", len(files), loc)
	return files, nil
}

func (f *GCSFetcher) download(ctx context.Context, object, dst string) error {
	if service.FileExists(dst) {
		return nil
	}
	obj, err := f.adapter.Reader(object)
	if err != nil {
		return service.MakeTemporary(fmt.Errorf("download.Reader[%s]: %w", object, err))
	}
	if err := writeAtomic(io.NewSectionReader(obj, 0, obj.Size()), dst); err != nil {
		return fmt.Errorf("download[%s].%w", object, err)
	}
	return nil
}

// writeAtomic copies r into a temporary file, renamed dst once complete
func writeAtomic(r io.Reader, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("writeAtomic.MkdirAll: %w", err)
	}
	tmp := service.AtomicPath(dst)
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("writeAtomic.Create: %w", err)
	}
	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		os.Remove(tmp)
		return service.MakeTemporary(fmt.Errorf("writeAtomic.Copy: %w", err))
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writeAtomic.Close: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("writeAtomic.Rename: %w", err)
	}
	return nil
}
