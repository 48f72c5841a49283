package main

import (
	"encoding/base64"
	"flag"
	"fmt"
	"os"

	"github.com/airbusgeo/reserve-monitor/interface/delivery"
	"github.com/airbusgeo/reserve-monitor/interface/planet"
)

type deliveryConfig struct {
	URI            string
	Archive        bool
	GCSCredentials string
	S3             delivery.S3Config
}

func (c *deliveryConfig) SetFlags() {
	flag.StringVar(&c.URI, "delivery-uri", "", "deliver the orders to a bucket (gs://bucket/prefix or s3://bucket/prefix) instead of downloading them from the order links (optional)")
	flag.BoolVar(&c.Archive, "delivery-zip", false, "deliver the results of each order as a zip archive")
	flag.StringVar(&c.GCSCredentials, "gcs-credentials", "", "service account key file granting write access to the gs bucket")
	flag.StringVar(&c.S3.Region, "aws-region", os.Getenv("AWS_REGION"), "region of the s3 bucket")
	flag.StringVar(&c.S3.AccessKeyID, "aws-access-key-id", os.Getenv("AWS_ACCESS_KEY_ID"), "access key of the s3 bucket")
	flag.StringVar(&c.S3.SecretAccessKey, "aws-secret-access-key", os.Getenv("AWS_SECRET_ACCESS_KEY"), "secret key of the s3 bucket")
}

// newDelivery returns the delivery to add to the orders and the bucket location to fetch the results from.
// Returns nil if no bucket is configured.
func (c deliveryConfig) newDelivery() (*planet.Delivery, delivery.Location, error) {
	if c.URI == "" {
		return nil, delivery.Location{}, nil
	}
	loc, err := delivery.ParseLocation(c.URI)
	if err != nil {
		return nil, loc, err
	}
	d := &planet.Delivery{}
	if c.Archive {
		d.ArchiveType = "zip"
	}
	switch loc.Scheme {
	case "s3":
		if c.S3.Region == "" || c.S3.AccessKeyID == "" || c.S3.SecretAccessKey == "" {
			return nil, loc, fmt.Errorf("missing aws-region, aws-access-key-id or aws-secret-access-key to deliver to %s", loc)
		}
		d.AmazonS3 = &planet.AmazonS3Delivery{
			Bucket:             loc.Bucket,
			AWSRegion:          c.S3.Region,
			AWSAccessKeyID:     c.S3.AccessKeyID,
			AWSSecretAccessKey: c.S3.SecretAccessKey,
			PathPrefix:         loc.Prefix,
		}
	case "gs":
		if c.GCSCredentials == "" {
			return nil, loc, fmt.Errorf("missing gcs-credentials to deliver to %s", loc)
		}
		key, err := os.ReadFile(c.GCSCredentials)
		if err != nil {
			return nil, loc, fmt.Errorf("newDelivery.ReadFile: %w", err)
		}
		d.GoogleCloudStorage = &planet.GoogleCloudStorage{
			Bucket:      loc.Bucket,
			Credentials: base64.StdEncoding.EncodeToString(key),
			PathPrefix:  loc.Prefix,
		}
	}
	return d, loc, nil
}
