package clustering

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// TableOptions selects the term and count columns of a delimited file. Empty
// values trigger header auto-detection; "#n" picks the 1-based column n.
type TableOptions struct {
	TermColumn  string
	CountColumn string
}

// LoadTerms reads a vocabulary from path, dispatching on the file extension:
// .json expects the extraction summary layout, everything else a frequency table.
func LoadTerms(path, field string, opts TableOptions) (*TermStore, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return LoadFrequencyJSON(path, field)
	}
	return LoadFrequencyTable(path, opts)
}

type frequencySection struct {
	SortedByFrequency []json.RawMessage `json:"sorted_by_frequency"`
}

// LoadFrequencyJSON reads data[field].sorted_by_frequency, a list of
// [term, count] pairs.
func LoadFrequencyJSON(path, field string) (*TermStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidInput, filepath.Base(path), err)
	}
	raw, ok := doc[field]
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s", ErrFieldNotFound, field, filepath.Base(path))
	}
	var section map[string]json.RawMessage
	if err := json.Unmarshal(raw, &section); err != nil {
		return nil, fmt.Errorf("%w: %q is not an object: %v", ErrInvalidInput, field, err)
	}
	if _, ok := section["sorted_by_frequency"]; !ok {
		return nil, fmt.Errorf("%w: %q has no sorted_by_frequency list", ErrFieldNotFound, field)
	}
	var freq frequencySection
	if err := json.Unmarshal(raw, &freq); err != nil {
		return nil, fmt.Errorf("%w: %q.sorted_by_frequency: %v", ErrInvalidInput, field, err)
	}

	store := NewTermStore()
	for i, item := range freq.SortedByFrequency {
		term, count, err := decodePair(item)
		if err != nil {
			return nil, fmt.Errorf("%w: %q entry %d: %v", ErrInvalidInput, field, i, err)
		}
		if err := store.Add(term, count); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func decodePair(raw json.RawMessage) (string, int, error) {
	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil {
		return "", 0, err
	}
	if len(pair) != 2 {
		return "", 0, fmt.Errorf("want [term, count], got %d elements", len(pair))
	}
	var term string
	if err := json.Unmarshal(pair[0], &term); err != nil {
		return "", 0, fmt.Errorf("term: %w", err)
	}
	var count float64
	if err := json.Unmarshal(pair[1], &count); err != nil {
		return "", 0, fmt.Errorf("count: %w", err)
	}
	if count != math.Trunc(count) {
		return "", 0, fmt.Errorf("count %v is not an integer", count)
	}
	return term, int(count), nil
}

// LoadFrequencyTable reads a CSV, TSV or tab separated *.txt file of term/count
// pairs. Files without a recognised header are read as term, count columns.
func LoadFrequencyTable(path string, opts TableOptions) (*TermStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	reader := csv.NewReader(bufio.NewReader(f))
	reader.Comma = delimiterFor(path)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	store := NewTermStore()
	if len(rows) == 0 {
		return store, nil
	}
	header := make([]string, len(rows[0]))
	for i, cell := range rows[0] {
		header[i] = cleanCell(cell)
	}
	termCol, countCol, skipHeader, err := resolveTableColumns(header, opts)
	if err != nil {
		return nil, err
	}
	start := 0
	if skipHeader {
		start = 1
	}
	for n, row := range rows[start:] {
		if termCol >= len(row) {
			continue
		}
		term := cleanCell(row[termCol])
		if term == "" {
			continue
		}
		count := 1
		if countCol >= 0 {
			if countCol >= len(row) {
				return nil, fmt.Errorf("%w: %s line %d has no count column", ErrInvalidInput, filepath.Base(path), n+start+1)
			}
			count, err = strconv.Atoi(cleanCell(row[countCol]))
			if err != nil {
				return nil, fmt.Errorf("%w: %s line %d: count %q", ErrInvalidInput, filepath.Base(path), n+start+1, row[countCol])
			}
		}
		if err := store.Add(term, count); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func delimiterFor(path string) rune {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ','
	default:
		return '\t'
	}
}

func resolveTableColumns(header []string, opts TableOptions) (term, count int, skipHeader bool, err error) {
	candidates := getColumnCandidates()
	termRes, err := pickColumn(header, opts.TermColumn, candidates.Term)
	if err != nil {
		return -1, -1, false, err
	}
	countRes, err := pickColumn(header, opts.CountColumn, candidates.Count)
	if err != nil {
		return -1, -1, false, err
	}
	skipHeader = termRes.FromHeader || countRes.FromHeader
	if termRes.Index < 0 {
		termRes.Index = 0
	}
	if countRes.Index < 0 && len(header) > 1 {
		countRes.Index = 1
		if termRes.Index == 1 {
			countRes.Index = 0
		}
	}
	if countRes.Index == termRes.Index {
		return -1, -1, false, fmt.Errorf("%w: term and count resolve to the same column", ErrInvalidInput)
	}
	return termRes.Index, countRes.Index, skipHeader, nil
}

func cleanCell(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "\ufeff")
	return v
}

func findColumn(header []string, candidates []string) int {
	for i, col := range header {
		for _, cand := range candidates {
			if strings.EqualFold(col, cand) {
				return i
			}
		}
	}
	return -1
}

type columnResult struct {
	Index      int
	FromHeader bool
}

func pickColumn(header []string, explicit string, candidates []string) (columnResult, error) {
	res := columnResult{Index: -1}
	if strings.TrimSpace(explicit) != "" {
		idx, fromHeader, err := matchExplicitColumn(header, explicit)
		if err != nil {
			return res, err
		}
		res.Index = idx
		res.FromHeader = fromHeader
		return res, nil
	}
	if idx := findColumn(header, candidates); idx >= 0 {
		res.Index = idx
		res.FromHeader = true
	}
	return res, nil
}

func matchExplicitColumn(header []string, explicit string) (int, bool, error) {
	trimmed := strings.TrimSpace(explicit)
	for i, col := range header {
		if strings.EqualFold(col, trimmed) {
			return i, true, nil
		}
	}
	if strings.HasPrefix(trimmed, "#") {
		idx, err := parseColumnIndex(trimmed)
		if err != nil {
			return -1, false, err
		}
		if idx >= len(header) {
			return -1, false, fmt.Errorf("column index %s is out of range", trimmed)
		}
		return idx, false, nil
	}
	return -1, false, fmt.Errorf("column %q not found", explicit)
}

func parseColumnIndex(token string) (int, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(token, "#"))
	idx, err := strconv.Atoi(trimmed)
	if err != nil {
		return -1, fmt.Errorf("invalid column index %q", token)
	}
	if idx <= 0 {
		return -1, fmt.Errorf("column indices are 1-based: %q", token)
	}
	return idx - 1, nil
}

// ResultHeader is the first line of every exported table.
var ResultHeader = []string{"cluster_id", "cluster_total_frequency", "member_count", "property", "count"}

// WriteRows writes the header and rows as CSV.
func WriteRows(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ResultHeader); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.Label(),
			strconv.Itoa(r.ClusterTotalFrequency),
			strconv.Itoa(r.MemberCount),
			r.Term,
			strconv.Itoa(r.Count),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteResultCSV writes rows to path through a temporary file.
func WriteResultCSV(path string, rows []Row) error {
	if path == "" {
		return errors.New("output path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(tmp), err)
	}
	bw := bufio.NewWriter(f)
	if err := WriteRows(bw, rows); err != nil {
		f.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// DefaultOutputPath names the table of a run inside dir.
func DefaultOutputPath(dir, runID string) string {
	return filepath.Join(dir, fmt.Sprintf("property_clusters_%s.csv", runID))
}
