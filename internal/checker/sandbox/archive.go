package sandbox

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"time"

	"github.com/klauspost/compress/gzip"
)

// packFiles writes files into a gzip-compressed tar stream, every entry name
// prefixed with prefix. Entries are written in lexical order.
func packFiles(files map[string]string, prefix string) (*bytes.Buffer, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	buf := new(bytes.Buffer)
	zw := gzip.NewWriter(buf)
	tw := tar.NewWriter(zw)
	now := time.Now()

	for _, name := range names {
		content := []byte(files[name])
		hdr := &tar.Header{
			Name:     path.Join(prefix, name),
			Mode:     0644,
			Size:     int64(len(content)),
			ModTime:  now,
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("write tar header %s: %w", hdr.Name, err)
		}
		if _, err := tw.Write(content); err != nil {
			return nil, fmt.Errorf("write tar entry %s: %w", hdr.Name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close gzip: %w", err)
	}
	return buf, nil
}

// unpackSingleFile reads the first entry of an uncompressed tar stream.
// ok is false when that entry is not a regular file. Entries longer than
// maxBytes fail with ErrFileTooLarge without being buffered.
func unpackSingleFile(r io.Reader, maxBytes int64) (content string, ok bool, err error) {
	tr := tar.NewReader(r)
	hdr, err := tr.Next()
	if err == io.EOF {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read tar: %w", err)
	}
	if hdr.Typeflag != tar.TypeReg {
		return "", false, nil
	}
	if hdr.Size > maxBytes {
		return "", false, fmt.Errorf("tar entry %s has %d bytes: %w", hdr.Name, hdr.Size, ErrFileTooLarge)
	}
	data, err := io.ReadAll(io.LimitReader(tr, maxBytes+1))
	if err != nil {
		return "", false, fmt.Errorf("read tar entry %s: %w", hdr.Name, err)
	}
	if int64(len(data)) > maxBytes {
		return "", false, fmt.Errorf("tar entry %s: %w", hdr.Name, ErrFileTooLarge)
	}
	return string(data), true, nil
}
