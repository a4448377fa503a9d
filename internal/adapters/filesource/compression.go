package filesource

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

type compression int

const (
	compressionNone compression = iota
	compressionGzip
	compressionBzip2
	compressionXZ
)

func (c compression) String() string {
	switch c {
	case compressionGzip:
		return "gzip"
	case compressionBzip2:
		return "bzip2"
	case compressionXZ:
		return "xz"
	default:
		return "none"
	}
}

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	bzip2Magic = []byte{0x42, 0x5a, 0x68}
	xzMagic    = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}
)

func detectCompression(data []byte) compression {
	switch {
	case bytes.HasPrefix(data, gzipMagic):
		return compressionGzip
	case bytes.HasPrefix(data, bzip2Magic):
		return compressionBzip2
	case bytes.HasPrefix(data, xzMagic):
		return compressionXZ
	}
	return compressionNone
}

// decompress inflates data when it carries a known magic prefix.
func decompress(data []byte) ([]byte, compression, error) {
	c := detectCompression(data)
	var r io.Reader
	switch c {
	case compressionNone:
		return data, c, nil
	case compressionGzip:
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, c, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		r = gz
	case compressionBzip2:
		r = bzip2.NewReader(bytes.NewReader(data))
	case compressionXZ:
		xr, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, c, fmt.Errorf("xz: %w", err)
		}
		r = xr
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, c, fmt.Errorf("%s: %w", c, err)
	}
	return out, c, nil
}

// baseFormat strips compression suffixes: "listings.csv.xz" -> ".csv".
func baseFormat(path string) string {
	p := strings.ToLower(path)
	for _, suf := range []string{".gz", ".gzip", ".bz2", ".xz"} {
		p = strings.TrimSuffix(p, suf)
	}
	return filepath.Ext(p)
}
