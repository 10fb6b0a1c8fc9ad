// Package source resolves a job's input locator — a local path or an
// s3://bucket/key URI — to a local filesystem path the codec collaborator
// can decode. This is a Go-native enrichment beyond the original
// single-machine, local-disk-only implementation (see DESIGN.md); it is
// adapted from the teacher's adapters/storage Local/S3 pair, repurposed
// from a generic key-value object store into a "fetch job input
// locally" resolver.
package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Skryldev/oipipe/imgerr"
)

// Resolver turns a locator into a local filesystem path usable by a
// codec.Decoder. Cleanup, if non-nil, must be called once the caller is
// done with the path (it removes any temporary file the resolver
// created).
type Resolver interface {
	Resolve(ctx context.Context, locator string) (path string, cleanup func(), err error)
}

// Local resolves a locator by joining it onto rootDir, refusing any
// locator that contains a URI scheme separator ("://"). The locator may
// name a subdirectory; ".." elements are not rejected, so such a locator
// can resolve outside rootDir.
type Local struct {
	rootDir string
}

// NewLocal returns a Local resolver rooted at dir.
func NewLocal(dir string) *Local { return &Local{rootDir: dir} }

func (l *Local) Resolve(ctx context.Context, locator string) (string, func(), error) {
	if err := ctx.Err(); err != nil {
		return "", nil, imgerr.Wrap(imgerr.CategoryResourceFailure, "source.local.resolve", err)
	}
	if strings.Contains(locator, "://") {
		return "", nil, imgerr.New(imgerr.CategoryInvalidInput, "source.local.resolve", imgerr.ErrInvalidLocator)
	}
	path := filepath.Join(l.rootDir, filepath.Clean(locator))
	if _, err := os.Stat(path); err != nil {
		return "", nil, imgerr.Wrap(imgerr.CategoryResourceFailure, "source.local.resolve.stat", err)
	}
	return path, func() {}, nil
}

// Object is the minimal read interface an S3-compatible client exposes;
// production callers inject a real aws-sdk-go-v2 s3.Client adapted to
// this shape.
type Object interface {
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// S3 resolves "s3://bucket/key" locators by downloading the object into
// a temporary file under tmpDir.
type S3 struct {
	client Object
	tmpDir string
}

// NewS3 returns an S3 resolver backed by client, writing downloaded
// objects under tmpDir.
func NewS3(client Object, tmpDir string) (*S3, error) {
	if client == nil {
		return nil, imgerr.New(imgerr.CategoryInvalidInput, "source.s3.new", fmt.Errorf("s3 client must not be nil"))
	}
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, imgerr.Wrap(imgerr.CategoryResourceFailure, "source.s3.new.mkdir", err)
	}
	return &S3{client: client, tmpDir: tmpDir}, nil
}

func (s *S3) Resolve(ctx context.Context, locator string) (string, func(), error) {
	bucket, key, ok := splitLocator(locator)
	if !ok {
		return "", nil, imgerr.New(imgerr.CategoryInvalidInput, "source.s3.resolve", imgerr.ErrInvalidLocator)
	}

	rc, err := s.client.GetObject(ctx, bucket, key)
	if err != nil {
		return "", nil, imgerr.Wrap(imgerr.CategoryResourceFailure, "source.s3.resolve.get", err)
	}
	defer rc.Close()

	f, err := os.CreateTemp(s.tmpDir, "oipipe-src-*"+filepath.Ext(key))
	if err != nil {
		return "", nil, imgerr.Wrap(imgerr.CategoryResourceFailure, "source.s3.resolve.tmp", err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, imgerr.Wrap(imgerr.CategoryResourceFailure, "source.s3.resolve.copy", err)
	}
	f.Close()

	path := f.Name()
	return path, func() { os.Remove(path) }, nil
}

// splitLocator parses "s3://bucket/key" into (bucket, key, true), or
// returns ok=false for anything else.
func splitLocator(locator string) (bucket, key string, ok bool) {
	const prefix = "s3://"
	if !strings.HasPrefix(locator, prefix) {
		return "", "", false
	}
	rest := locator[len(prefix):]
	idx := strings.IndexByte(rest, '/')
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}
