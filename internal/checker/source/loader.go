// Package source turns stored or local source trees into a SourceFileSet.
package source

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"solcheck/internal/checker/model"
	"solcheck/internal/common/storage"
	appErr "solcheck/pkg/errors"
	"solcheck/pkg/utils/logger"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

// DefaultMaxArchiveBytes bounds the expanded size of one source set.
const DefaultMaxArchiveBytes = 8 << 20

// Format is an archive container format.
type Format int

const (
	FormatTar Format = iota
	FormatTarGzip
	FormatTarZstd
)

// FormatFromKey picks the archive format from the object key suffix.
func FormatFromKey(key string) (Format, bool) {
	lower := strings.ToLower(key)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGzip, true
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return FormatTarZstd, true
	case strings.HasSuffix(lower, ".tar"):
		return FormatTar, true
	default:
		return 0, false
	}
}

// ArchiveLoader loads source archives from object storage.
type ArchiveLoader struct {
	storage       storage.ObjectStorage
	defaultBucket string
	maxBytes      int64
}

// Config configures ArchiveLoader.
type Config struct {
	Storage storage.ObjectStorage
	// DefaultBucket is used when a reference names no bucket.
	DefaultBucket   string
	MaxArchiveBytes int64
}

// NewArchiveLoader creates a loader.
func NewArchiveLoader(cfg Config) (*ArchiveLoader, error) {
	if cfg.Storage == nil {
		return nil, fmt.Errorf("object storage is required")
	}
	if cfg.MaxArchiveBytes <= 0 {
		cfg.MaxArchiveBytes = DefaultMaxArchiveBytes
	}
	return &ArchiveLoader{
		storage:       cfg.Storage,
		defaultBucket: cfg.DefaultBucket,
		maxBytes:      cfg.MaxArchiveBytes,
	}, nil
}

// Load fetches ref and expands it.
func (l *ArchiveLoader) Load(ctx context.Context, ref model.SourceRef) (model.SourceFileSet, error) {
	bucket := ref.Bucket
	if bucket == "" {
		bucket = l.defaultBucket
	}
	if bucket == "" || ref.Key == "" {
		return nil, appErr.ValidationError("sourceRef", "bucket and key are required")
	}
	format, ok := FormatFromKey(ref.Key)
	if !ok {
		return nil, appErr.New(appErr.SourceArchiveInvalid).
			WithMessagef("unsupported archive type for %q, expected .tar, .tar.gz, .tgz or .tar.zst", ref.Key)
	}

	stat, err := l.storage.StatObject(ctx, bucket, ref.Key)
	if err != nil {
		return nil, storageError(err, bucket, ref.Key)
	}
	if stat.SizeBytes > l.maxBytes {
		return nil, appErr.New(appErr.SourceTooLarge).
			WithMessagef("source archive is %d bytes, limit is %d", stat.SizeBytes, l.maxBytes)
	}

	obj, err := l.storage.GetObject(ctx, bucket, ref.Key)
	if err != nil {
		return nil, storageError(err, bucket, ref.Key)
	}
	defer obj.Close()

	files, err := Expand(obj, format, l.maxBytes)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "source archive loaded",
		zap.String("bucket", bucket),
		zap.String("key", ref.Key),
		zap.Int("files", len(files)),
	)
	return files, nil
}

func storageError(err error, bucket, key string) error {
	if errors.Is(err, storage.ErrObjectNotFound) {
		return appErr.Wrapf(err, appErr.ObjectNotFound, "source archive %s/%s not found", bucket, key)
	}
	return appErr.Wrapf(err, appErr.StorageError, "read source archive %s/%s", bucket, key)
}

// Expand reads an archive stream into a SourceFileSet. Directory entries are
// skipped. Any other non-regular entry, an unsafe path, or more than maxBytes
// of file content makes the archive invalid.
func Expand(r io.Reader, format Format, maxBytes int64) (model.SourceFileSet, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxArchiveBytes
	}
	stream, closeFn, err := decompress(r, format)
	if err != nil {
		return nil, invalidArchive(err)
	}
	defer closeFn()

	files := make(model.SourceFileSet)
	var total int64
	tr := tar.NewReader(stream)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, invalidArchive(err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir, tar.TypeXGlobalHeader:
			continue
		case tar.TypeReg:
		default:
			return nil, appErr.New(appErr.SourceArchiveInvalid).
				WithMessagef("archive entry %q is not a regular file", hdr.Name)
		}

		name := strings.TrimPrefix(hdr.Name, "./")
		if err := model.ValidatePath(name); err != nil {
			return nil, appErr.Wrapf(err, appErr.SourceArchiveInvalid, "archive entry %q has an unsafe path", hdr.Name)
		}

		total += hdr.Size
		if total > maxBytes {
			return nil, appErr.New(appErr.SourceTooLarge).
				WithMessagef("source archive expands beyond %d bytes", maxBytes)
		}
		data, err := io.ReadAll(io.LimitReader(tr, hdr.Size))
		if err != nil {
			return nil, invalidArchive(err)
		}
		files[name] = string(data)
	}

	if len(files) == 0 {
		return nil, appErr.New(appErr.SourceArchiveInvalid).WithMessage("source archive contains no files")
	}
	return files, nil
}

func decompress(r io.Reader, format Format) (io.Reader, func(), error) {
	switch format {
	case FormatTarGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, func() { _ = zr.Close() }, nil
	case FormatTarZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	default:
		return r, func() {}, nil
	}
}

func invalidArchive(err error) error {
	return appErr.Wrapf(err, appErr.SourceArchiveInvalid, "Unable to parse source code!")
}
