package nrepl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3Putter is the slice of the S3 API the store needs; *s3.Client
// satisfies it and tests can substitute a fake.
type s3Putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Transcripts buffers session transcripts in memory and uploads one
// JSON object per session when the session's connection closes.
//
// Example:
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	store := nrepl.NewS3Transcripts(s3.NewFromConfig(cfg), "my-bucket", "transcripts/")
//	server.SetTranscripts(store)
type S3Transcripts struct {
	client s3Putter
	bucket string
	prefix string

	mu      sync.Mutex
	pending map[string][]TranscriptEntry
}

// NewS3Transcripts creates a store uploading to bucket under the given
// key prefix.
func NewS3Transcripts(client *s3.Client, bucket, prefix string) *S3Transcripts {
	return newS3Transcripts(client, bucket, prefix)
}

func newS3Transcripts(client s3Putter, bucket, prefix string) *S3Transcripts {
	return &S3Transcripts{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		pending: map[string][]TranscriptEntry{},
	}
}

// Append implements TranscriptStore. Entries are buffered until Flush.
func (s *S3Transcripts) Append(_ context.Context, sessionID string, entry TranscriptEntry) error {
	s.mu.Lock()
	s.pending[sessionID] = append(s.pending[sessionID], entry)
	s.mu.Unlock()
	return nil
}

// Flush implements TranscriptStore: it uploads the session's buffered
// entries as one JSON object and drops the buffer. A session with no
// entries uploads nothing.
func (s *S3Transcripts) Flush(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	entries := s.pending[sessionID]
	delete(s.pending, sessionID)
	s.mu.Unlock()
	if len(entries) == 0 {
		return nil
	}

	body, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("nrepl: marshal transcript: %w", err)
	}
	key := fmt.Sprintf("%s%s-%s.json", s.prefix, sessionID, time.Now().UTC().Format("20060102T150405Z"))
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("nrepl: upload transcript: %w", err)
	}
	return nil
}

// Close implements TranscriptStore.
func (s *S3Transcripts) Close() error { return nil }
