package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/analystchat/analystchat/internal/storage"
)

func TestGetUsesPrefixAndNormalizedKey(t *testing.T) {
	fake := &fakeClient{}
	store, err := NewWithClient("bucket-a", "analyst/datasets", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	reader, err := store.Get(context.Background(), "/sales/2024.parquet")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	_ = reader.Close()
	if fake.lastBucket != "bucket-a" {
		t.Fatalf("bucket = %q", fake.lastBucket)
	}
	if fake.lastKey != "analyst/datasets/sales/2024.parquet" {
		t.Fatalf("key = %q", fake.lastKey)
	}
}

func TestPutWritesUnderPrefix(t *testing.T) {
	fake := &fakeClient{}
	store, err := NewWithClient("bucket-a", "archive", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	info, err := store.Put(context.Background(), "transcripts/s1.parquet", strings.NewReader("PAR1"), 4, "application/vnd.apache.parquet")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if fake.lastKey != "archive/transcripts/s1.parquet" || info.Size != 4 {
		t.Fatalf("key=%q info=%#v", fake.lastKey, info)
	}
	if string(fake.putBody) != "PAR1" || fake.putType != "application/vnd.apache.parquet" {
		t.Fatalf("body=%q type=%q", fake.putBody, fake.putType)
	}
	if _, err := store.Put(context.Background(), "../escape", strings.NewReader(""), 0, ""); err == nil {
		t.Fatal("expected path traversal validation error")
	}
}

func TestGetRejectsPathTraversal(t *testing.T) {
	store, err := NewWithClient("bucket-a", "", &fakeClient{})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if _, err := store.Get(context.Background(), "../secrets.parquet"); err == nil {
		t.Fatal("expected path traversal validation error")
	}
}

func TestGetMapsMissingObject(t *testing.T) {
	store, err := NewWithClient("bucket-a", "", &fakeClient{getErr: storage.ErrObjectNotFound})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if _, err := store.Get(context.Background(), "missing.parquet"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() error = %v", err)
	}
}

func TestHealthCheckRequiresBucket(t *testing.T) {
	store, err := NewWithClient("bucket-a", "", &fakeClient{bucketExists: false})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if err := store.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected error for missing bucket")
	}

	store, err = NewWithClient("bucket-a", "", &fakeClient{bucketExists: true})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
}

func TestParseEndpoint(t *testing.T) {
	endpoint, secure, err := parseEndpoint("https://minio.example.com", false)
	if err != nil {
		t.Fatalf("parseEndpoint() error = %v", err)
	}
	if endpoint != "minio.example.com" || !secure {
		t.Fatalf("endpoint/secure = %q/%v", endpoint, secure)
	}
}

func TestCleanPrefix(t *testing.T) {
	if got := cleanPrefix("/datasets/prod/"); got != "datasets/prod" {
		t.Fatalf("cleanPrefix() = %q", got)
	}
	if got := cleanPrefix("/"); got != "" {
		t.Fatalf("cleanPrefix() = %q", got)
	}
}

type fakeClient struct {
	lastBucket   string
	lastKey      string
	bucketExists bool
	getErr       error
	putBody      []byte
	putType      string
}

func (f *fakeClient) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	f.lastBucket = bucket
	f.lastKey = key
	if f.getErr != nil {
		return nil, f.getErr
	}
	return io.NopCloser(strings.NewReader(key)), nil
}

func (f *fakeClient) Stat(_ context.Context, _, key string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{Key: key, Size: 10, LastModified: time.Now().UTC()}, nil
}

func (f *fakeClient) Put(_ context.Context, bucket, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	f.lastBucket = bucket
	f.lastKey = key
	f.putBody = data
	f.putType = contentType
	return storage.ObjectInfo{Key: key, Size: size}, nil
}

func (f *fakeClient) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, nil
}
