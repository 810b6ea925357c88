package u

import (
	"bytes"
	"compress/gzip"
	"io"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// Compression is a compression format picked by file extension
type Compression string

const (
	CompressionNone   Compression = ""
	CompressionGzip   Compression = "gzip"
	CompressionZstd   Compression = "zstd"
	CompressionBrotli Compression = "brotli"
)

// CompressionForPath returns compression format for a file name
// based on its extension: .gz, .zst / .zstd, .br
func CompressionForPath(path string) Compression {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".gz":
		return CompressionGzip
	case ".zst", ".zstd":
		return CompressionZstd
	case ".br":
		return CompressionBrotli
	}
	return CompressionNone
}

// CompressForPath compresses d in the format implied by path's extension.
// Data for names with unknown extensions is returned as-is.
func CompressForPath(path string, d []byte) ([]byte, error) {
	switch CompressionForPath(path) {
	case CompressionGzip:
		return GzipCompressData(d)
	case CompressionZstd:
		return ZstdCompressData(d)
	case CompressionBrotli:
		return BrCompressDataBest(d)
	}
	return d, nil
}

// DecompressForPath is the reverse of CompressForPath
func DecompressForPath(path string, d []byte) ([]byte, error) {
	switch CompressionForPath(path) {
	case CompressionGzip:
		return GzipDecompressData(d)
	case CompressionZstd:
		return ZstdDecompressData(d)
	case CompressionBrotli:
		return BrDecompressData(d)
	}
	return d, nil
}

func GzipCompressData(d []byte) ([]byte, error) {
	var dst bytes.Buffer
	w, err := gzip.NewWriterLevel(&dst, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	_, err = w.Write(d)
	err2 := w.Close()
	if err = FirstErr(err, err2); err != nil {
		return nil, err
	}
	return dst.Bytes(), nil
}

func GzipDecompressData(d []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(d))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func BrCompressData(d []byte, level int) ([]byte, error) {
	var dst bytes.Buffer
	w := brotli.NewWriterLevel(&dst, level)
	_, err := w.Write(d)
	err2 := w.Close()
	if err = FirstErr(err, err2); err != nil {
		return nil, err
	}
	return dst.Bytes(), nil
}

func BrCompressDataBest(d []byte) ([]byte, error) {
	return BrCompressData(d, brotli.BestCompression)
}

func BrDecompressData(d []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(d))
	return io.ReadAll(r)
}

func zstdNewWriter(dst io.Writer) (*zstd.Encoder, error) {
	// config files are small so best compression is cheap
	return zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
}

func ZstdCompressData(d []byte) ([]byte, error) {
	var dst bytes.Buffer
	w, err := zstdNewWriter(&dst)
	if err != nil {
		return nil, err
	}
	_, err = w.Write(d)
	err2 := w.Close()
	if err = FirstErr(err, err2); err != nil {
		return nil, err
	}
	return dst.Bytes(), nil
}

func ZstdDecompressData(d []byte) ([]byte, error) {
	zr, err := zstd.NewReader(bytes.NewReader(d))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
