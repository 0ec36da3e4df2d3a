package nrepl

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func TestMemoryTranscripts(t *testing.T) {
	store := NewMemoryTranscripts()
	ctx := context.Background()

	entry := TranscriptEntry{Op: "eval", NS: "user", Code: "(+ 1 1)", Value: "2", Time: time.Now()}
	if err := store.Append(ctx, "s1", entry); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append(ctx, "s2", TranscriptEntry{Op: "eval", Code: "x"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if got := store.Entries("s1"); len(got) != 1 || got[0].Value != "2" {
		t.Errorf("Entries(s1) = %v", got)
	}
	if err := store.Flush(ctx, "s1"); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	// Flush keeps entries readable.
	if got := store.Entries("s1"); len(got) != 1 {
		t.Errorf("entries lost on flush: %v", got)
	}
	if got := store.Entries("missing"); len(got) != 0 {
		t.Errorf("Entries(missing) = %v", got)
	}
}

// fakePutter records PutObject calls in place of a real S3 client.
type fakePutter struct {
	calls []capturedPut
	err   error
}

type capturedPut struct {
	bucket string
	key    string
	body   []byte
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.calls = append(f.calls, capturedPut{bucket: *in.Bucket, key: *in.Key, body: body})
	return &s3.PutObjectOutput{}, nil
}

func TestS3TranscriptsFlushUploadsSession(t *testing.T) {
	putter := &fakePutter{}
	store := newS3Transcripts(putter, "slate-transcripts", "sessions/")
	ctx := context.Background()

	store.Append(ctx, "s1", TranscriptEntry{Op: "eval", NS: "user", Code: "(+ 1 1)", Value: "2"})
	store.Append(ctx, "s1", TranscriptEntry{Op: "eval", NS: "user", Code: "(/ 1 0)", Err: "ArithmeticError: divide by zero"})
	store.Append(ctx, "s2", TranscriptEntry{Op: "eval", Code: "other"})

	if len(putter.calls) != 0 {
		t.Fatal("Append must not upload")
	}
	if err := store.Flush(ctx, "s1"); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(putter.calls) != 1 {
		t.Fatalf("got %d uploads, want 1", len(putter.calls))
	}

	put := putter.calls[0]
	if put.bucket != "slate-transcripts" {
		t.Errorf("bucket = %q", put.bucket)
	}
	if !strings.HasPrefix(put.key, "sessions/s1-") || !strings.HasSuffix(put.key, ".json") {
		t.Errorf("key = %q", put.key)
	}

	var entries []TranscriptEntry
	if err := json.Unmarshal(put.body, &entries); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if len(entries) != 2 || entries[0].Value != "2" || entries[1].Err == "" {
		t.Errorf("uploaded entries = %v", entries)
	}

	// The buffer is dropped: a second flush uploads nothing.
	if err := store.Flush(ctx, "s1"); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	if len(putter.calls) != 1 {
		t.Errorf("second flush re-uploaded: %d calls", len(putter.calls))
	}

	// Other sessions still pending.
	store.Flush(ctx, "s2")
	if len(putter.calls) != 2 {
		t.Errorf("s2 not uploaded: %d calls", len(putter.calls))
	}
}

func TestS3TranscriptsEmptySessionSkipsUpload(t *testing.T) {
	putter := &fakePutter{}
	store := newS3Transcripts(putter, "b", "p/")
	if err := store.Flush(context.Background(), "never-seen"); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(putter.calls) != 0 {
		t.Error("empty session uploaded")
	}
}

func TestS3TranscriptsUploadError(t *testing.T) {
	putter := &fakePutter{err: io.ErrClosedPipe}
	store := newS3Transcripts(putter, "b", "p/")
	ctx := context.Background()
	store.Append(ctx, "s1", TranscriptEntry{Op: "eval", Code: "1"})
	if err := store.Flush(ctx, "s1"); err == nil {
		t.Error("upload failure not surfaced")
	}
}
