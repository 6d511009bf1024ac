// Package flowfile loads flow identifiers from JSON, text and CSV files.
package flowfile

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sunyxi/salesforce-flow-cli/internal/logging"
)

// Errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrInvalidFormat     = errors.New("invalid flow file")
)

// FlowSpec names a flow and optionally the version to activate.
type FlowSpec struct {
	Name    string `json:"name"`
	Version *int   `json:"version,omitempty"`
}

// Load reads flow specs from path. See LoadContext.
func Load(path string) ([]FlowSpec, error) {
	return LoadContext(context.Background(), path)
}

// LoadContext reads flow specs from path, dispatching on the file extension:
//
//   - .json: an array of names or {name, version} objects, {"flows": [...]},
//     or {"flows": {"<env>": [...]}} which is flattened.
//   - .txt: one name per line.
//   - .csv: one name per row with an optional version column.
//
// Blank lines and lines starting with # are ignored in text and CSV files.
// Entries without a usable name are skipped with a warning.
func LoadContext(ctx context.Context, path string) ([]FlowSpec, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load flows from file %s: %w", path, err)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to load flows from file %s: %w", path, err)
	}

	var specs []FlowSpec
	switch ext := strings.ToLower(filepath.Ext(abs)); ext {
	case ".json":
		specs, err = parseJSON(ctx, data)
	case ".txt":
		specs = parseText(data)
	case ".csv":
		specs, err = parseCSV(data)
	default:
		err = fmt.Errorf("%w: %s (supported: .json, .txt, .csv)", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load flows from file %s: %w", path, err)
	}

	logging.FromContext(ctx).Debug().Ctx(ctx).
		Str("component", "flowfile").
		Str("path", abs).
		Int("flows", len(specs)).
		Msg("loaded flow file")
	return specs, nil
}

func parseJSON(ctx context.Context, data []byte) ([]FlowSpec, error) {
	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}

	var entries []any
	switch v := root.(type) {
	case []any:
		entries = v
	case map[string]any:
		switch flows := v["flows"].(type) {
		case []any:
			entries = flows
		case map[string]any:
			for _, key := range sortedKeys(flows) {
				if list, ok := flows[key].([]any); ok {
					entries = append(entries, list...)
				}
			}
		default:
			return nil, fmt.Errorf("%w: expected array of flow names or object with flows property", ErrInvalidFormat)
		}
	default:
		return nil, fmt.Errorf("%w: expected array of flow names or object with flows property", ErrInvalidFormat)
	}

	specs := make([]FlowSpec, 0, len(entries))
	for _, e := range entries {
		spec, ok := specFromJSON(e)
		if !ok {
			logging.FromContext(ctx).Warn().Ctx(ctx).
				Str("component", "flowfile").
				Interface("entry", e).
				Msg("Skipping invalid flow name")
			continue
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func specFromJSON(e any) (FlowSpec, bool) {
	switch v := e.(type) {
	case string:
		name := strings.TrimSpace(v)
		return FlowSpec{Name: name}, name != ""
	case map[string]any:
		name, _ := v["name"].(string)
		name = strings.TrimSpace(name)
		if name == "" {
			return FlowSpec{}, false
		}
		spec := FlowSpec{Name: name}
		if n, ok := v["version"].(float64); ok && n >= 1 && n == float64(int(n)) {
			ver := int(n)
			spec.Version = &ver
		}
		return spec, true
	default:
		return FlowSpec{}, false
	}
}

func parseText(data []byte) []FlowSpec {
	var specs []FlowSpec
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		specs = append(specs, FlowSpec{Name: line})
	}
	return specs
}

func parseCSV(data []byte) ([]FlowSpec, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comment = '#'
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var specs []FlowSpec
	for row := 0; ; row++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
		}

		name := strings.TrimSpace(record[0])
		if name == "" {
			continue
		}
		if row == 0 && strings.EqualFold(name, "name") {
			continue
		}

		spec := FlowSpec{Name: name}
		if len(record) > 1 {
			if raw := strings.TrimPrefix(strings.TrimSpace(record[1]), "v"); raw != "" {
				ver, convErr := strconv.Atoi(raw)
				if convErr != nil || ver < 1 {
					line, _ := r.FieldPos(0)
					return nil, fmt.Errorf("%w: line %d: invalid version %q for %s", ErrInvalidFormat, line, record[1], name)
				}
				spec.Version = &ver
			}
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Names returns the flow names of specs in order.
func Names(specs []FlowSpec) []string {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names
}

// Dedupe removes repeated names, keeping the first occurrence.
func Dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// DedupeSpecs removes specs with repeated names, keeping the first occurrence.
func DedupeSpecs(specs []FlowSpec) []FlowSpec {
	seen := make(map[string]struct{}, len(specs))
	out := make([]FlowSpec, 0, len(specs))
	for _, s := range specs {
		if _, ok := seen[s.Name]; ok {
			continue
		}
		seen[s.Name] = struct{}{}
		out = append(out, s)
	}
	return out
}

// FromNames wraps plain names as specs without a version.
func FromNames(names []string) []FlowSpec {
	specs := make([]FlowSpec, len(names))
	for i, n := range names {
		specs[i] = FlowSpec{Name: n}
	}
	return specs
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
