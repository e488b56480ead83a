package gcp

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/gregorymulla/grepctl/internal/pkg/ctxutil"
	"github.com/gregorymulla/grepctl/internal/platform/logger"
)

// BlobSource reads document blobs from the object store. It is read-only to
// the pipeline; deletion and provisioning are administrative operations.
type BlobSource interface {
	ReadBytes(ctx context.Context, uri string) ([]byte, error)
	ReadText(ctx context.Context, uri string) (string, error)
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	Close() error
}

type blobService struct {
	log     *logger.Logger
	storage *storage.Client
}

func NewBlobSource(log *logger.Logger) (BlobSource, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "gcp.BlobSource")

	ctx := context.Background()
	opts := ClientOptionsFromEnv()

	st, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}

	return &blobService{log: slog, storage: st}, nil
}

func (s *blobService) Close() error {
	if s == nil || s.storage == nil {
		return nil
	}
	return s.storage.Close()
}

func (s *blobService) ReadBytes(ctx context.Context, uri string) ([]byte, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	bucket, key, err := ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}
	rc, err := s.storage.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", uri, err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", uri, err)
	}
	return raw, nil
}

func (s *blobService) ReadText(ctx context.Context, uri string) (string, error) {
	raw, err := s.ReadBytes(ctx, uri)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// List returns gs:// URIs under the prefix, sorted for deterministic batch
// partitioning.
func (s *blobService) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	it := s.storage.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	uris := []string{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s/%s: %w", bucket, prefix, err)
		}
		if attrs.Name == "" || attrs.Name[len(attrs.Name)-1] == '/' {
			continue
		}
		uris = append(uris, fmt.Sprintf("gs://%s/%s", bucket, attrs.Name))
	}
	sort.Strings(uris)
	return uris, nil
}
