package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// objectStore is the subset of the S3 client used here.
type objectStore interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// transcriptArchive keeps a copy of rendered transcripts.
type transcriptArchive interface {
	Store(ctx context.Context, conversationID string, format Format, body string) (string, error)
}

// s3Archive writes transcripts to <prefix><conversation id>/<timestamp>.<ext>.
type s3Archive struct {
	client objectStore
	bucket string
	prefix string
	now    func() time.Time
}

func newS3Archive(client objectStore, bucket, prefix string) *s3Archive {
	return &s3Archive{client: client, bucket: bucket, prefix: prefix, now: time.Now}
}

func (a *s3Archive) Store(ctx context.Context, conversationID string, format Format, body string) (string, error) {
	if conversationID == "" {
		conversationID = "unknown"
	}
	key := fmt.Sprintf("%s%s/%s.%s", a.prefix, conversationID, a.now().UTC().Format("20060102T150405Z"), format.Extension())
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(body),
		ContentType: aws.String(format.ContentType()),
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", a.bucket, key, err)
	}
	return key, nil
}

// snapshotHandler renders saved conversation pages dropped into a bucket. The
// Markdown transcript is written to the same bucket under outputPrefix.
type snapshotHandler struct {
	fetcher      *Fetcher
	client       objectStore
	outputPrefix string
}

func (h *snapshotHandler) Handle(ctx context.Context, s3Event events.S3Event) error {
	log := invocationLogger(ctx, h.fetcher.logger)
	var errs []error

	for _, rec := range s3Event.Records {
		bucket := rec.S3.Bucket.Name
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			key = rec.S3.Object.Key
		}
		recLog := log.With().Str("bucket", bucket).Str("key", key).Logger()

		if strings.HasPrefix(key, h.outputPrefix) {
			recLog.Debug().Msg("skipping rendered output")
			continue
		}
		recLog.Info().Msg("processing snapshot")

		out, err := h.renderSnapshot(recLog.WithContext(ctx), bucket, key)
		if err != nil {
			recLog.Error().Err(err).Msg("snapshot failed")
			errs = append(errs, fmt.Errorf("s3://%s/%s: %w", bucket, key, err))
			continue
		}
		recLog.Info().Str("output", out).Msg("snapshot rendered")
	}
	return errors.Join(errs...)
}

func (h *snapshotHandler) renderSnapshot(ctx context.Context, bucket, key string) (string, error) {
	obj, err := h.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("get object: %w", err)
	}
	raw, err := io.ReadAll(io.LimitReader(obj.Body, maxPageSize))
	obj.Body.Close()
	if err != nil {
		return "", fmt.Errorf("read object body: %w", err)
	}

	conv, err := h.fetcher.ConversationFromHTML(ctx, decodePage(raw, aws.ToString(obj.ContentType)))
	if err != nil {
		return "", err
	}
	body, err := render(conv, FormatMarkdown, true, WindowSpec{})
	if err != nil {
		return "", err
	}

	base := strings.TrimSuffix(path.Base(key), path.Ext(key))
	outKey := h.outputPrefix + base + "." + FormatMarkdown.Extension()
	_, err = h.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(outKey),
		Body:        strings.NewReader(body),
		ContentType: aws.String(FormatMarkdown.ContentType()),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return outKey, nil
}
