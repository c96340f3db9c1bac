package display

import (
	"encoding/base64"
	"fmt"
	"io"
)

const (
	escapeStart = "\x1b_G"
	escapeEnd   = "\x1b\\"
	chunkSize   = 4096
)

// KittyEncoder writes PNG data as kitty graphics protocol escapes.
type KittyEncoder struct {
	out     io.Writer
	columns int
}

func NewKittyEncoder(out io.Writer) *KittyEncoder {
	return &KittyEncoder{out: out}
}

func (e *KittyEncoder) WithColumns(cols int) *KittyEncoder {
	e.columns = cols
	return e
}

func (e *KittyEncoder) Encode(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	chunks := splitIntoChunks(base64.StdEncoding.EncodeToString(data), chunkSize)
	for i, chunk := range chunks {
		if _, err := fmt.Fprintf(e.out, "%s%s;%s%s", escapeStart, e.params(i, len(chunks)), chunk, escapeEnd); err != nil {
			return err
		}
	}
	return nil
}

// params returns the control data for chunk i of n. Only the first chunk
// carries the transmit-and-display keys; m=1 marks more chunks to follow.
func (e *KittyEncoder) params(i, n int) string {
	more := "m=0"
	if i < n-1 {
		more = "m=1"
	}
	if i > 0 {
		return more
	}

	p := "a=T,f=100,q=2"
	if e.columns > 0 {
		p += fmt.Sprintf(",c=%d", e.columns)
	}
	if n > 1 {
		p += "," + more
	}
	return p
}

func splitIntoChunks(s string, size int) []string {
	var chunks []string
	for len(s) > 0 {
		n := min(size, len(s))
		chunks = append(chunks, s[:n])
		s = s[n:]
	}
	return chunks
}
