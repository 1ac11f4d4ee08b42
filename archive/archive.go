// Package archive exports a finished broadcast's bookmarks to S3 as JSON lines.
package archive

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/onnwee/vod-stamp/db"
	"github.com/onnwee/vod-stamp/telemetry"
)

// Putter is the S3 call the archiver needs.
type Putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Source reads a broadcast and its bookmarks from the journal.
type Source interface {
	GetBroadcast(ctx context.Context, startedAt time.Time) (*db.Broadcast, error)
	BookmarksFor(ctx context.Context, startedAt time.Time) ([]db.Bookmark, error)
}

// Options configures the S3 client.
type Options struct {
	Region          string
	Endpoint        string // for S3-compatible services
	AccessKeyID     string // static credentials; default chain when empty
	SecretAccessKey string
	MaxRetries      int
}

// Archiver uploads bookmark exports.
type Archiver struct {
	client      Putter
	bucket      string
	channel     string
	source      Source
	maxRetries  int
	baseBackoff time.Duration
	logger      *slog.Logger
}

// New builds an archiver with an S3 client from the default AWS config chain.
func New(ctx context.Context, bucket, channel string, src Source, opts Options) (*Archiver, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	a := NewWithClient(client, bucket, channel, src)
	if opts.MaxRetries > 0 {
		a.maxRetries = opts.MaxRetries
	}
	return a, nil
}

// NewWithClient builds an archiver over an existing client.
func NewWithClient(client Putter, bucket, channel string, src Source) *Archiver {
	return &Archiver{
		client:      client,
		bucket:      bucket,
		channel:     channel,
		source:      src,
		maxRetries:  3,
		baseBackoff: time.Second,
		logger:      slog.Default().With(slog.String("component", "archive")),
	}
}

// Key returns the object key for a broadcast: YYYY/MM/DD/<channel>/<startUnix>.jsonl.
func Key(channel string, startedAt time.Time) string {
	t := startedAt.UTC()
	return fmt.Sprintf("%04d/%02d/%02d/%s/%d.jsonl", t.Year(), t.Month(), t.Day(), channel, t.Unix())
}

// Encode renders bookmarks one JSON object per line.
func Encode(bms []db.Bookmark) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, bm := range bms {
		if err := enc.Encode(bm); err != nil {
			return nil, fmt.Errorf("encode bookmark %d: %w", bm.ID, err)
		}
	}
	return buf.Bytes(), nil
}

// Archive uploads the bookmarks of the broadcast that started at startedAt, retrying
// with exponential backoff. A broadcast without bookmarks is skipped. The journaled
// broadcast row, when there is one, is attached as object metadata.
func (a *Archiver) Archive(ctx context.Context, startedAt time.Time) error {
	bms, err := a.source.BookmarksFor(ctx, startedAt)
	if err != nil {
		return fmt.Errorf("load bookmarks: %w", err)
	}
	if len(bms) == 0 {
		a.logger.Info("no bookmarks to archive", slog.Time("started_at", startedAt))
		return nil
	}
	body, err := Encode(bms)
	if err != nil {
		return err
	}
	key := Key(a.channel, startedAt)
	meta, err := a.metadata(ctx, startedAt)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		lastErr = a.put(ctx, key, body, meta)
		if lastErr == nil {
			telemetry.IncVec(telemetry.ArchiveUploads, "ok")
			a.logger.Info("archived bookmarks", slog.String("key", key), slog.Int("count", len(bms)))
			return nil
		}
		if attempt < a.maxRetries {
			backoff := a.baseBackoff * time.Duration(1<<uint(attempt))
			a.logger.Warn("archive upload failed, retrying",
				slog.Int("attempt", attempt+1), slog.Any("err", lastErr), slog.Duration("retry_in", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				telemetry.IncVec(telemetry.ArchiveUploads, "error")
				return ctx.Err()
			}
		}
	}
	telemetry.IncVec(telemetry.ArchiveUploads, "error")
	return fmt.Errorf("upload %s after %d attempts: %w", key, a.maxRetries+1, lastErr)
}

func (a *Archiver) metadata(ctx context.Context, startedAt time.Time) (map[string]string, error) {
	b, err := a.source.GetBroadcast(ctx, startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		a.logger.Warn("broadcast not journaled, archiving without metadata", slog.Time("started_at", startedAt))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load broadcast: %w", err)
	}
	meta := map[string]string{"channel": b.Channel}
	if b.RecordingURL != "" {
		meta["recording-url"] = b.RecordingURL
	}
	if b.ThreadID != "" {
		meta["thread-id"] = b.ThreadID
	}
	if b.EndedAt != nil {
		meta["ended-at"] = b.EndedAt.UTC().Format(time.RFC3339)
	}
	return meta, nil
}

func (a *Archiver) put(ctx context.Context, key string, body []byte, meta map[string]string) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-ndjson"),
		Metadata:    meta,
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}
