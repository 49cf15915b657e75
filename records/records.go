// Package records reads benchmark input records and writes prediction,
// submission and corpus files, all as JSON Lines.
package records

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Record is one input sentence.
type Record struct {
	ID           string `json:"id" validate:"required"`
	Source       string `json:"source" validate:"required"`
	SourceLocale string `json:"source_locale" validate:"required"`
	TargetLocale string `json:"target_locale" validate:"required"`
}

// Prediction is one output line of a run or submission.
type Prediction struct {
	ID             string `json:"id"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	Text           string `json:"text"`
	Prediction     string `json:"prediction"`
}

// NewPrediction pairs a record with its translation.
func NewPrediction(rec Record, translation string) Prediction {
	return Prediction{
		ID:             rec.ID,
		SourceLanguage: rec.SourceLocale,
		TargetLanguage: rec.TargetLocale,
		Text:           rec.Source,
		Prediction:     translation,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks that all required fields are set.
func (r Record) Validate() error {
	if err := validate.Struct(r); err != nil {
		return describe(err)
	}
	return nil
}

// describe flattens validator errors into "missing field x, y".
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return fmt.Errorf("missing required field %s", strings.Join(fields, ", "))
}

// ---------------------------------------------------------------------------
// Reading
// ---------------------------------------------------------------------------

// ReadRecords loads and validates an input file.
func ReadRecords(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	recs, err := DecodeRecords(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}

// DecodeRecords reads records from r, one JSON object per line. Blank lines
// are skipped. The first malformed or incomplete line stops decoding with
// an error naming its line number.
func DecodeRecords(r io.Reader) ([]Record, error) {
	var recs []Record
	err := eachLine(r, func(line int, data []byte) error {
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		recs = append(recs, rec)
		return nil
	})
	return recs, err
}

func eachLine(r io.Reader, fn func(line int, data []byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for line := 1; sc.Scan(); line++ {
		data := bytes.TrimSpace(sc.Bytes())
		if len(data) == 0 {
			continue
		}
		if err := fn(line, data); err != nil {
			return err
		}
	}
	return sc.Err()
}

// ---------------------------------------------------------------------------
// Writing
// ---------------------------------------------------------------------------

// EncodeJSONL writes each item as one JSON line. Non-ASCII text and HTML
// characters are written as-is.
func EncodeJSONL[T any](w io.Writer, items []T) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i := range items {
		if err := enc.Encode(items[i]); err != nil {
			return err
		}
	}
	return nil
}

// WriteJSONL writes items to path, replacing the file.
func WriteJSONL[T any](path string, items []T) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	bw := bufio.NewWriter(f)
	if err := EncodeJSONL(bw, items); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// WritePredictions writes a prediction file.
func WritePredictions(path string, preds []Prediction) error {
	return WriteJSONL(path, preds)
}

// ReadPredictions loads a prediction file.
func ReadPredictions(path string) ([]Prediction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var preds []Prediction
	err = eachLine(f, func(line int, data []byte) error {
		var p Prediction
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		preds = append(preds, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return preds, nil
}
