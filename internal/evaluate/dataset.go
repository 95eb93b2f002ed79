// Package evaluate scores the email pipeline against a labelled CSV corpus.
package evaluate

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"

	"github.com/straja-ai/threatkit/internal/analyzer"
)

// RequiredColumns must all be present in the header row.
var RequiredColumns = []string{"subject", "from", "return_path", "to", "body", "label"}

// SampleSeed fixes the shuffle used by Sample.
const SampleSeed = 42

// ErrMissingColumn is wrapped when the header lacks a required column.
var ErrMissingColumn = errors.New("missing required column")

// Sample is one labelled email.
type Sample struct {
	Index    int
	Email    analyzer.EmailInput
	Phishing bool
}

// LoadFile reads samples from a CSV file.
func LoadFile(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	samples, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return samples, nil
}

// Load parses a CSV with a header row containing RequiredColumns in any order.
// Labels are integers; non-zero labels are phishing.
func Load(r io.Reader) ([]Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, c := range RequiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("%w %q (found %v)", ErrMissingColumn, c, header)
		}
	}

	field := func(row []string, name string) string {
		if i := cols[name]; i < len(row) {
			return row[i]
		}
		return ""
	}

	var out []Sample
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		label, err := parseLabel(field(row, "label"))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		out = append(out, Sample{
			Index: len(out),
			Email: analyzer.EmailInput{
				Subject:    field(row, "subject"),
				From:       field(row, "from"),
				ReturnPath: field(row, "return_path"),
				To:         field(row, "to"),
				Body:       field(row, "body"),
			},
			Phishing: label,
		})
	}
	return out, nil
}

func parseLabel(s string) (bool, error) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f) != 0, nil
	}
	return false, fmt.Errorf("invalid label %q", s)
}

// Limit returns at most n samples drawn by a seeded shuffle. n <= 0 or
// n >= len(samples) returns samples unchanged.
func Limit(samples []Sample, n int) []Sample {
	if n <= 0 || n >= len(samples) {
		return samples
	}
	shuffled := append([]Sample(nil), samples...)
	rng := rand.New(rand.NewPCG(SampleSeed, 0))
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:n]
}
