// Package s3 is a remote.Client over an S3-compatible bucket. Objects
// directly under the configured prefix form the flat document listing;
// common prefixes ("folders") are not listed.
package s3

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/drivefs/drivefs/internal/remote"
	"github.com/drivefs/drivefs/pkg/errors"
)

const (
	component = "s3"
	scheme    = "s3://"

	// S3 pages hold at most this many keys.
	maxKeysPerPage = 1000
)

// API is the subset of the S3 client used here.
type API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Config configures a Client.
type Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	Prefix       string
	UsePathStyle bool

	// Static credentials; when empty the default AWS chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

// Client lists and fetches objects from one bucket.
type Client struct {
	api    API
	cfg    Config
	logger *zap.Logger
}

// New wraps an existing API implementation.
func New(api API, cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "bucket name cannot be empty").
			WithComponent(component)
	}
	if cfg.Prefix != "" && !strings.HasSuffix(cfg.Prefix, "/") {
		cfg.Prefix += "/"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		api:    api,
		cfg:    cfg,
		logger: logger.With(zap.String("backend", component), zap.String("bucket", cfg.Bucket)),
	}, nil
}

// NewFromConfig builds an SDK client from cfg. Requests are attempted once.
func NewFromConfig(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryMaxAttempts(1),
	}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "failed to load AWS config").
			WithComponent(component).
			WithCause(err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return New(api, cfg, logger)
}

// Name implements remote.Client.
func (c *Client) Name() string { return component }

// ObjectURI returns the content URI of key.
func (c *Client) ObjectURI(key string) string {
	return scheme + c.cfg.Bucket + "/" + key
}

// rawObject is the serialized form handed to the size heuristic.
type rawObject struct {
	Key            string `json:"key"`
	ETag           string `json:"etag,omitempty"`
	StorageClass   string `json:"storageClass,omitempty"`
	QuotaBytesUsed int64  `json:"quotaBytesUsed"`
}

// ListDocuments lists the objects directly under the prefix.
func (c *Client) ListDocuments(ctx context.Context, q remote.Query) ([]remote.Entry, error) {
	in := &s3.ListObjectsV2Input{
		Bucket:    aws.String(c.cfg.Bucket),
		Delimiter: aws.String("/"),
	}
	if c.cfg.Prefix != "" {
		in.Prefix = aws.String(c.cfg.Prefix)
	}
	if q.MaxResults > maxKeysPerPage {
		c.logger.Debug("clamping page size",
			zap.Int("max_results", q.MaxResults),
			zap.Int("max_keys", maxKeysPerPage))
		in.MaxKeys = aws.Int32(maxKeysPerPage)
	} else if q.MaxResults > 0 {
		in.MaxKeys = aws.Int32(int32(q.MaxResults))
	}

	var entries []remote.Entry
	p := s3.NewListObjectsV2Paginator(c.api, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, c.translateError(err, "list", c.cfg.Prefix)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			name := strings.TrimPrefix(key, c.cfg.Prefix)
			if name == "" || strings.HasSuffix(name, "/") {
				continue
			}
			raw, err := json.Marshal(rawObject{
				Key:            key,
				ETag:           strings.Trim(aws.ToString(obj.ETag), `"`),
				StorageClass:   string(obj.StorageClass),
				QuotaBytesUsed: aws.ToInt64(obj.Size),
			})
			if err != nil {
				return nil, errors.NewError(errors.ErrCodeInternalError, "failed to serialize object").
					WithComponent(component).
					WithCause(err)
			}
			ts := formatTime(obj.LastModified)
			entries = append(entries, remote.Entry{
				Name:       name,
				ID:         key,
				Published:  ts,
				Updated:    ts,
				Modified:   aws.ToTime(obj.LastModified),
				Raw:        string(raw),
				ContentURI: c.ObjectURI(key),
			})
		}
	}

	c.logger.Debug("listed objects", zap.Int("entries", len(entries)))
	return entries, nil
}

// FetchRange fetches rng of the object at an s3:// URI.
func (c *Client) FetchRange(ctx context.Context, uri string, rng remote.ByteRange) (remote.FetchResult, error) {
	bucket, key, err := parseURI(uri)
	if err != nil {
		return remote.FetchResult{}, err
	}

	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Range:  aws.String(rng.Header()),
	})
	if err != nil {
		if status := statusOf(err); status != 0 {
			c.logger.Warn("content fetch failed", zap.String("uri", uri), zap.Int("status", status), zap.Error(err))
			return remote.HardFailure(status), nil
		}
		return remote.FetchResult{}, c.translateError(err, "fetch_range", key)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return remote.FetchResult{}, errors.NewError(errors.ErrCodeRemoteFailure, "failed to read object body").
			WithComponent(component).
			WithOperation("fetch_range").
			WithContext("uri", uri).
			WithCause(err)
	}
	return remote.PartialContent(data), nil
}

func parseURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, scheme)
	if ok {
		bucket, key, ok = strings.Cut(rest, "/")
	}
	if !ok || bucket == "" || key == "" {
		return "", "", errors.NewError(errors.ErrCodeInvalidArgument, "invalid object URI").
			WithComponent(component).
			WithContext("uri", uri)
	}
	return bucket, key, nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// statusOf extracts the HTTP status of an SDK response error, or 0.
func statusOf(err error) int {
	var re interface{ HTTPStatusCode() int }
	if stderrors.As(err, &re) {
		return re.HTTPStatusCode()
	}
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return http.StatusNotFound
		case "AccessDenied":
			return http.StatusForbidden
		case "InvalidRange":
			return http.StatusRequestedRangeNotSatisfiable
		}
	}
	return 0
}

func (c *Client) translateError(err error, op, key string) error {
	msg := fmt.Sprintf("%s failed", op)
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		msg = fmt.Sprintf("%s failed: %s", op, apiErr.ErrorCode())
	}
	return errors.NewError(errors.ErrCodeRemoteFailure, msg).
		WithComponent(component).
		WithOperation(op).
		WithStatus(statusOf(err)).
		WithContext("bucket", c.cfg.Bucket).
		WithContext("key", key).
		WithCause(err)
}
