package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalResolvesExistingFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.png"), []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := NewLocal(dir)

	path, cleanup, err := l.Resolve(context.Background(), "a.png")
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()
	if path != filepath.Join(dir, "a.png") {
		t.Fatalf("unexpected resolved path: %q", path)
	}
}

func TestLocalRejectsURILocator(t *testing.T) {
	l := NewLocal(t.TempDir())
	if _, _, err := l.Resolve(context.Background(), "s3://bucket/key"); err == nil {
		t.Fatal("expected Local to reject a URI locator")
	}
}

func TestLocalRejectsMissingFile(t *testing.T) {
	l := NewLocal(t.TempDir())
	if _, _, err := l.Resolve(context.Background(), "missing.png"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

type stubObjectClient struct{ body string }

func (s *stubObjectClient) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(s.body)), nil
}

func TestS3DownloadsToTempFile(t *testing.T) {
	s3, err := NewS3(&stubObjectClient{body: "hello"}, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	path, cleanup, err := s3.Resolve(context.Background(), "s3://my-bucket/images/a.png")
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("expected downloaded contents, got %q", got)
	}
}

func TestS3RejectsNonS3Locator(t *testing.T) {
	s3, _ := NewS3(&stubObjectClient{}, t.TempDir())
	if _, _, err := s3.Resolve(context.Background(), "/local/path.png"); err == nil {
		t.Fatal("expected error for non-s3 locator")
	}
}

func TestNewS3RejectsNilClient(t *testing.T) {
	if _, err := NewS3(nil, t.TempDir()); err == nil {
		t.Fatal("expected error for nil client")
	}
}
