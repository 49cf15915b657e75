package records

import (
	"encoding/json"
	"fmt"
	"os"
)

// Reference is a benchmark reference record with its gold translations.
type Reference struct {
	ID           string            `json:"id"`
	Source       string            `json:"source"`
	SourceLocale string            `json:"source_locale"`
	TargetLocale string            `json:"target_locale"`
	Targets      []ReferenceTarget `json:"targets"`
}

// ReferenceTarget is one gold translation.
type ReferenceTarget struct {
	Translation string `json:"translation"`
}

// CorpusRow is one sentence pair of a parallel corpus.
type CorpusRow struct {
	SourceLocale string `json:"source_locale"`
	TargetLocale string `json:"target_locale"`
	Source       string `json:"source"`
	Target       string `json:"target"`
}

// ReadReferences loads reference files in order.
func ReadReferences(paths ...string) ([]Reference, error) {
	var refs []Reference
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		err = eachLine(f, func(line int, data []byte) error {
			var ref Reference
			if err := json.Unmarshal(data, &ref); err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			refs = append(refs, ref)
			return nil
		})
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return refs, nil
}

// FlattenReferences emits one corpus row per gold translation. Records
// without targets and empty translations contribute nothing.
func FlattenReferences(refs []Reference) []CorpusRow {
	var rows []CorpusRow
	for _, ref := range refs {
		for _, t := range ref.Targets {
			if t.Translation == "" {
				continue
			}
			rows = append(rows, CorpusRow{
				SourceLocale: ref.SourceLocale,
				TargetLocale: ref.TargetLocale,
				Source:       ref.Source,
				Target:       t.Translation,
			})
		}
	}
	return rows
}
