package delivery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/airbusgeo/reserve-monitor/service"
	"github.com/airbusgeo/reserve-monitor/service/log"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures the access to the delivery bucket.
// If the keys are empty, the default credential chain is used.
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Fetcher fetches the objects delivered in an Amazon S3 bucket
type S3Fetcher struct {
	client     *s3.Client
	downloader *manager.Downloader
}

// NewS3Fetcher creates a fetcher
func NewS3Fetcher(ctx context.Context, cfg S3Config) (*S3Fetcher, error) {
	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewS3Fetcher.LoadDefaultConfig: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return &S3Fetcher{
		client: client,
		downloader: manager.NewDownloader(client, func(d *manager.Downloader) {
			d.PartSize = 10 * 1024 * 1024 // 10MB per part
		}),
	}, nil
}

// Fetch implements Fetcher
func (f *S3Fetcher) Fetch(ctx context.Context, loc Location, dstDir string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(f.client,
		&s3.ListObjectsV2Input{
			Bucket: aws.String(loc.Bucket),
			Prefix: aws.String(loc.Prefix),
		},
	)

	var files []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, service.MakeTemporary(fmt.Errorf("S3Fetcher.NextPage[%s]: %w", loc, err))
		}
		for _, object := range page.Contents {
			key := aws.ToString(object.Key)
			dst := localPath(loc.Prefix, key, dstDir)
			if dst == "" {
				continue
			}
			if !service.FileExists(dst) {
				if err := f.download(ctx, loc.Bucket, key, dst); err != nil {
					return nil, fmt.Errorf("S3Fetcher.%w", err)
				}
			}
			files = append(files, dst)
		}
	}
	log.Logger(ctx).Sugar().Debugf("%d files fetched from %s", len(files), loc)
	return files, nil
}

func (f *S3Fetcher) download(ctx context.Context, bucket, key, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("download.MkdirAll: %w", err)
	}
	tmp := service.AtomicPath(dst)
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("download: failed to create file %s: %w", tmp, err)
	}
	_, err = f.downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	file.Close()
	if err != nil {
		os.Remove(tmp)
		return service.MakeTemporary(fmt.Errorf("download: failed to download object %s:%s: %w", bucket, key, err))
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("download.Rename: %w", err)
	}
	return nil
}
