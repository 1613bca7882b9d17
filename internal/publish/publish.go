// Package publish uploads built package archives to an S3-compatible
// mirror.
package publish

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"buzzy/internal/env"
	"buzzy/internal/logging"
	"buzzy/internal/usererr"
)

// API is the part of the S3 client the mirror uses.
type API interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Credentials override the default AWS credential chain when both keys are
// set.
type Credentials struct {
	AccessKey string
	SecretKey string
}

// Mirror is a bucket holding package archives under a per-backend prefix.
type Mirror struct {
	Client API
	Bucket string
	Prefix string
	Log    *zap.Logger
}

// New connects to the mirror configured in rec. The endpoint may be empty
// for AWS itself.
func New(ctx context.Context, rec *env.Record, creds Credentials, prefix string, log *zap.Logger) (*Mirror, error) {
	if !rec.MirrorEnabled() {
		return nil, usererr.New(`no mirror bucket configured; run "buzzy configure"`)
	}
	var options []func(*config.LoadOptions) error
	if rec.MirrorEndpoint != "" {
		options = append(options, config.WithRegion("auto"))
	}
	if creds.AccessKey != "" && creds.SecretKey != "" {
		options = append(options, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKey, creds.SecretKey, "")))
	}
	if log != nil && log.Core().Enabled(zap.DebugLevel) {
		options = append(options, config.WithClientLogMode(aws.LogRetries|aws.LogRequest))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load mirror config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if rec.MirrorEndpoint != "" {
			o.BaseEndpoint = aws.String(rec.MirrorEndpoint)
			o.UsePathStyle = true
		}
	})
	if log == nil {
		log = zap.NewNop()
	}
	return &Mirror{Client: client, Bucket: rec.MirrorBucket, Prefix: prefix, Log: log}, nil
}

// Key is the object key of a local archive.
func (m *Mirror) Key(file string) string {
	return path.Join(m.Prefix, filepath.Base(file))
}

func contentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".zst"):
		return "application/zstd"
	case strings.HasSuffix(key, ".xz"):
		return "application/x-xz"
	}
	return "application/octet-stream"
}

// Existing returns the sizes of the objects under the mirror prefix.
func (m *Mirror) Existing(ctx context.Context) (map[string]int64, error) {
	objects := make(map[string]int64)
	prefix := m.Prefix
	if prefix != "" {
		prefix += "/"
	}
	paginator := s3.NewListObjectsV2Paginator(m.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(m.Bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, usererr.Wrap(err, "listing mirror bucket "+m.Bucket)
		}
		for _, obj := range page.Contents {
			objects[aws.ToString(obj.Key)] = aws.ToInt64(obj.Size)
		}
	}
	return objects, nil
}

// Upload puts file on the mirror unless an object of the same size is
// already there. It reports whether anything was sent.
func (m *Mirror) Upload(ctx context.Context, file string, existing map[string]int64) (bool, error) {
	f, err := os.Open(file)
	if err != nil {
		return false, usererr.Wrap(err, "package file missing; build it first")
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return false, err
	}

	key := m.Key(file)
	if size, ok := existing[key]; ok && size == stat.Size() {
		m.Log.Debug("already on mirror", zap.String("key", key))
		return false, nil
	}

	logging.Step("Uploading %s", key)
	_, err = m.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String(contentType(key)),
	})
	if err != nil {
		return false, usererr.Wrap(err, "uploading "+key)
	}
	return true, nil
}
