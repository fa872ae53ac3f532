package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3Store reads the directory snapshot and library bundles from the configured
// bucket and signs short-lived download URLs for export archives.
type S3Store struct {
	s3         *s3.S3
	downloader *s3manager.Downloader
	bucket     string
}

// NewS3Store builds an S3Store on a fresh AWS session. Credentials come from
// the default chain (env, shared config, instance role).
func NewS3Store(region, bucket string) (*S3Store, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("directory: creating AWS session: %w", err)
	}
	return &S3Store{
		s3:         s3.New(sess),
		downloader: s3manager.NewDownloader(sess),
		bucket:     bucket,
	}, nil
}

// LoadDirectory downloads the users.json object at key and publishes it into
// dir as the new snapshot.
func (s *S3Store) LoadDirectory(ctx context.Context, key string, dir *Directory) error {
	buf := aws.NewWriteAtBuffer([]byte{})
	_, err := s.downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("directory: downloading %s: %w", key, err)
	}

	users := make(map[string]string)
	if err := json.Unmarshal(buf.Bytes(), &users); err != nil {
		return fmt.Errorf("directory: decoding %s: %w", key, err)
	}

	dir.Replace(users)
	return nil
}

// FetchBundle returns the raw JSON content of the library bundle at key.
func (s *S3Store) FetchBundle(ctx context.Context, key string) (json.RawMessage, error) {
	buf := aws.NewWriteAtBuffer([]byte{})
	_, err := s.downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("directory: downloading bundle %s: %w", key, err)
	}
	return json.RawMessage(buf.Bytes()), nil
}

// PresignBundle signs a time-bounded GET URL for the export archive derived
// from bundleKey: the ".json" suffix is replaced with ".<export>.zip".
func (s *S3Store) PresignBundle(bundleKey, export string, ttl time.Duration) (string, error) {
	key := ExportKey(bundleKey, export)
	req, _ := s.s3.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("directory: presigning %s: %w", key, err)
	}
	return url, nil
}

// ExportKey derives the archive object key for an export format from the
// bundle's JSON key.
func ExportKey(bundleKey, export string) string {
	return strings.Replace(bundleKey, ".json", fmt.Sprintf(".%s.zip", export), 1)
}
