package speechcache

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
)

// worthwhileRatio is the maximum compressed/original size ratio at which the
// CPU cost of inflating on every hit pays for itself.
const worthwhileRatio = 0.9

// maybeCompress deflates the payload when it is large enough and the saving
// is at least ten percent. The second return reports whether it did.
func maybeCompress(data []byte, minSize int) ([]byte, bool) {
	if len(data) <= minSize {
		return data, false
	}

	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, 6)
	if err != nil {
		return data, false
	}
	if _, err := w.Write(data); err != nil {
		return data, false
	}
	if err := w.Close(); err != nil {
		return data, false
	}

	if float64(buf.Len()) >= worthwhileRatio*float64(len(data)) {
		return data, false
	}
	return buf.Bytes(), true
}

func decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
