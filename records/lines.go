package records

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrMisaligned reports a translation file whose line count differs from
// its input file.
var ErrMisaligned = errors.New("translations do not line up with records")

// WriteLines writes one sentence per line. Embedded newlines are replaced
// by spaces so the line count always matches len(lines).
func WriteLines(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	bw := bufio.NewWriter(f)
	for _, l := range lines {
		bw.WriteString(flatten(l))
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// ReadLines reads a plain-text translation file. A trailing newline does
// not produce an extra empty line, but a file holding only a newline is
// one empty line. Only an empty file has no lines.
func ReadLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n"), nil
}

func flatten(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}

// BuildSubmission pairs records with translations line by line. A count
// mismatch means a sentence was dropped somewhere upstream; it is reported
// as ErrMisaligned instead of shifting every later prediction.
func BuildSubmission(recs []Record, lines []string) ([]Prediction, error) {
	if len(recs) != len(lines) {
		return nil, fmt.Errorf("%w: %d records, %d translations", ErrMisaligned, len(recs), len(lines))
	}
	out := make([]Prediction, len(recs))
	for i, rec := range recs {
		out[i] = NewPrediction(rec, strings.TrimSpace(lines[i]))
	}
	return out, nil
}
