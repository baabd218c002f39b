package analyzable

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// DecodeBody decodes a body according to the value of the
// Content-Encoding header, for analysis only. At most max decoded bytes
// are read, and truncated tells whether the decoded body is longer. The
// bytes are returned unchanged for the identity encoding and for unknown
// encodings.
func DecodeBody(contentEncoding string, b []byte, max int) (decoded []byte, truncated bool, err error) {
	var r io.Reader
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "gzip", "x-gzip":
		r, err = gzip.NewReader(bytes.NewReader(b))
	case "deflate":
		r, err = zlib.NewReader(bytes.NewReader(b))
		if err != nil {
			// some servers send raw deflate streams
			r, err = flate.NewReader(bytes.NewReader(b)), nil
		}
	case "br":
		r = brotli.NewReader(bytes.NewReader(b))
	default:
		r = bytes.NewReader(b)
	}

	if err != nil {
		return nil, false, fmt.Errorf("failed to decode %s body: %w", contentEncoding, err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(r, int64(max)+1)); err != nil {
		return nil, false, fmt.Errorf("failed to decode %s body: %w", contentEncoding, err)
	}

	decoded = buf.Bytes()
	if len(decoded) > max {
		return decoded[:max], true, nil
	}

	return decoded, false, nil
}
