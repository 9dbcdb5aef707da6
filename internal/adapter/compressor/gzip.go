package compressor

import (
	"compress/gzip"
	"fmt"
	"io"
)

// GzipCompressor wraps streams in gzip so dumps and archives never touch
// disk uncompressed.
type GzipCompressor struct {
	level int
}

func NewGzip() *GzipCompressor {
	return &GzipCompressor{level: gzip.DefaultCompression}
}

// NewGzipLevel panics on levels gzip does not accept.
func NewGzipLevel(level int) *GzipCompressor {
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		panic(fmt.Sprintf("invalid gzip level %d", level))
	}
	return &GzipCompressor{level: level}
}

func (g *GzipCompressor) NewWriter(w io.Writer) (io.WriteCloser, error) {
	gw, err := gzip.NewWriterLevel(w, g.level)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	return gw, nil
}

func (g *GzipCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	return gr, nil
}
