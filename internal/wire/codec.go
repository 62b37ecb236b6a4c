package wire

import (
	"bufio"
	"encoding/json"
	"io"
)

// maxLine bounds a single newline-delimited message; generous for the
// small fixed-shape objects this protocol ever sends.
const maxLine = 64 * 1024

// Scanner reads newline-delimited JSON objects off a connection.
type Scanner struct {
	s *bufio.Scanner
}

// NewScanner wraps r for line-at-a-time JSON decoding.
func NewScanner(r io.Reader) *Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 4096), maxLine)
	return &Scanner{s: s}
}

// Next decodes the next line into v. It returns io.EOF when the
// connection is closed with no further data.
func (s *Scanner) Next(v interface{}) error {
	if !s.s.Scan() {
		if err := s.s.Err(); err != nil {
			return err
		}
		return io.EOF
	}
	return json.Unmarshal(s.s.Bytes(), v)
}

// Encode writes v as one JSON object followed by a newline.
func Encode(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	return enc.Encode(v)
}
