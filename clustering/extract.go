package clustering

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// SummaryFileName is written by WriteExtraction next to the per-key files.
const SummaryFileName = "extracted_fields_summary.json"

// fieldValues tracks the occurrences of one key across all scanned files.
type fieldValues struct {
	order  []string
	counts map[string]int
}

func (f *fieldValues) add(v string) {
	if _, ok := f.counts[v]; !ok {
		f.order = append(f.order, v)
	}
	f.counts[v]++
}

// Extraction is the result of scanning JSON documents for string fields.
type Extraction struct {
	Keys    []string
	Files   int
	Matched int
	Failed  []string
	fields  map[string]*fieldValues
}

func newExtraction(keys []string) *Extraction {
	ext := &Extraction{Keys: append([]string(nil), keys...), fields: make(map[string]*fieldValues, len(keys))}
	for _, k := range keys {
		ext.fields[k] = &fieldValues{counts: make(map[string]int)}
	}
	return ext
}

// Unique returns the distinct values of key in lexical order.
func (e *Extraction) Unique(key string) []string {
	f, ok := e.fields[key]
	if !ok {
		return nil
	}
	out := make([]string, len(f.order))
	copy(out, f.order)
	sort.Strings(out)
	return out
}

// Occurrences returns how often key was seen with a non-empty value.
func (e *Extraction) Occurrences(key string) int {
	f, ok := e.fields[key]
	if !ok {
		return 0
	}
	total := 0
	for _, c := range f.counts {
		total += c
	}
	return total
}

// SortedByFrequency returns the values of key, most frequent first. Ties keep
// the order in which values were first seen.
func (e *Extraction) SortedByFrequency(key string) []TermEntry {
	f, ok := e.fields[key]
	if !ok {
		return nil
	}
	out := make([]TermEntry, len(f.order))
	for i, v := range f.order {
		out[i] = TermEntry{Term: v, Count: f.counts[v]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// ExtractFields scans path (a JSON file or a directory walked recursively for
// *.json) and collects trimmed non-empty string values stored under keys.
// Files that cannot be decoded are logged and recorded in Failed.
func ExtractFields(path string, keys []string, logger zerolog.Logger) (*Extraction, error) {
	cleaned := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			cleaned = append(cleaned, k)
		}
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("%w: no keys to extract", ErrInvalidInput)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	ext := newExtraction(cleaned)
	if !info.IsDir() {
		ext.scanFile(path, logger)
		return ext, nil
	}
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".json") {
			return nil
		}
		ext.scanFile(p, logger)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", path, err)
	}
	logger.Info().Int("files", ext.Files).Int("matched", ext.Matched).Int("failed", len(ext.Failed)).Msg("extraction finished")
	return ext, nil
}

func (e *Extraction) scanFile(path string, logger zerolog.Logger) {
	e.Files++
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn().Err(err).Str("file", path).Msg("skipping unreadable file")
		e.Failed = append(e.Failed, path)
		return
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		logger.Warn().Err(err).Str("file", path).Msg("skipping invalid JSON")
		e.Failed = append(e.Failed, path)
		return
	}
	doc = unwrap(doc, "content")
	doc = unwrap(doc, "final_structured_response")

	local := newExtraction(e.Keys)
	local.walk(doc)
	found := false
	for _, k := range e.Keys {
		lf := local.fields[k]
		if len(lf.order) == 0 {
			continue
		}
		found = true
		gf := e.fields[k]
		for _, v := range lf.order {
			if _, ok := gf.counts[v]; !ok {
				gf.order = append(gf.order, v)
			}
			gf.counts[v] += lf.counts[v]
		}
	}
	if !found {
		logger.Debug().Str("file", path).Msg("no requested keys found")
		e.Failed = append(e.Failed, path)
		return
	}
	e.Matched++
}

func unwrap(doc any, key string) any {
	if obj, ok := doc.(map[string]any); ok {
		if inner, ok := obj[key]; ok {
			return inner
		}
	}
	return doc
}

func (e *Extraction) walk(node any) {
	switch v := node.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := v[k]
			if f, ok := e.fields[k]; ok {
				if s, ok := child.(string); ok {
					if s = strings.TrimSpace(s); s != "" {
						f.add(s)
					}
				}
			}
			e.walk(child)
		}
	case []any:
		for _, item := range v {
			e.walk(item)
		}
	}
}

type frequencyBlock struct {
	TotalOccurrences  int             `json:"total_occurrences"`
	UniqueCount       int             `json:"unique_count"`
	FrequencyStats    map[string]int  `json:"frequency_stats"`
	SortedByFrequency [][]interface{} `json:"sorted_by_frequency"`
}

// WriteExtraction writes the summary JSON plus <key>.txt and <key>_frequency.txt
// for every key into dir.
func WriteExtraction(dir string, ext *Extraction) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	summary := make(map[string]int)
	doc := map[string]any{"extraction_summary": summary}
	for _, key := range ext.Keys {
		unique := ext.Unique(key)
		occurrences := ext.Occurrences(key)
		summary["total_unique_"+key] = len(unique)
		summary["total_"+key+"_occurrences"] = occurrences
		doc[key] = unique

		var values strings.Builder
		for _, v := range unique {
			values.WriteString(v)
			values.WriteByte('\n')
		}
		if err := os.WriteFile(filepath.Join(dir, key+".txt"), []byte(values.String()), 0o644); err != nil {
			return fmt.Errorf("write %s values: %w", key, err)
		}

		sorted := ext.SortedByFrequency(key)
		if len(sorted) == 0 {
			continue
		}
		block := frequencyBlock{
			TotalOccurrences:  occurrences,
			UniqueCount:       len(sorted),
			FrequencyStats:    make(map[string]int, len(sorted)),
			SortedByFrequency: make([][]interface{}, len(sorted)),
		}
		var freq strings.Builder
		freq.WriteString(key + "\tFrequency\n")
		for i, entry := range sorted {
			block.FrequencyStats[entry.Term] = entry.Count
			block.SortedByFrequency[i] = []interface{}{entry.Term, entry.Count}
			fmt.Fprintf(&freq, "%s\t%d\n", entry.Term, entry.Count)
		}
		doc[key+"_frequency"] = block
		if err := os.WriteFile(filepath.Join(dir, key+"_frequency.txt"), []byte(freq.String()), 0o644); err != nil {
			return fmt.Errorf("write %s frequency: %w", key, err)
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, SummaryFileName), buf.Bytes(), 0o644)
}
