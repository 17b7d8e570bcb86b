package clustering

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFrequencyJSON(t *testing.T) {
	path := writeFile(t, "summary.json", `{
  "names_frequency": {"total_occurrences": 6, "sorted_by_frequency": [["red", 4], ["blue", 1.0], ["red", 1]]},
  "other": []
}`)
	store, err := LoadFrequencyJSON(path, "names_frequency")
	require.NoError(t, err)
	assert.Equal(t, []string{"red", "blue"}, store.Terms())
	assert.Equal(t, 5, store.Count("red"))
	assert.Equal(t, 1, store.Count("blue"))
}

func TestLoadFrequencyJSONMissingField(t *testing.T) {
	path := writeFile(t, "summary.json", `{"names_frequency": {"unique_count": 0}}`)
	_, err := LoadFrequencyJSON(path, "physical_form_frequency")
	assert.ErrorIs(t, err, ErrFieldNotFound)
	_, err = LoadFrequencyJSON(path, "names_frequency")
	assert.ErrorIs(t, err, ErrFieldNotFound)
}

func TestLoadFrequencyJSONEmptyList(t *testing.T) {
	path := writeFile(t, "summary.json", `{"f": {"sorted_by_frequency": []}}`)
	store, err := LoadFrequencyJSON(path, "f")
	require.NoError(t, err)
	assert.Zero(t, store.Len())
}

func TestLoadFrequencyJSONBadPairs(t *testing.T) {
	for name, body := range map[string]string{
		"short":    `{"f": {"sorted_by_frequency": [["a"]]}}`,
		"fraction": `{"f": {"sorted_by_frequency": [["a", 1.5]]}}`,
		"negative": `{"f": {"sorted_by_frequency": [["a", -1]]}}`,
		"not json": `{"f": `,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFrequencyJSON(writeFile(t, "s.json", body), "f")
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestLoadFrequencyTableAutoDetect(t *testing.T) {
	path := writeFile(t, "terms.csv", "\ufeffid,Property,Frequency\n1,red,10\n2,blue,3\n3,,9\n")
	store, err := LoadFrequencyTable(path, TableOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"red", "blue"}, store.Terms())
	assert.Equal(t, 10, store.Count("red"))
}

func TestLoadFrequencyTableExtractionOutput(t *testing.T) {
	path := writeFile(t, "physical_form_frequency.txt", "physical_form\tFrequency\npowder\t12\nliquid\t4\n")
	store, err := LoadFrequencyTable(path, TableOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"powder", "liquid"}, store.Terms())
	assert.Equal(t, 16, store.Total())
}

func TestLoadFrequencyTableHeaderless(t *testing.T) {
	path := writeFile(t, "terms.tsv", "red\t10\nblue\t3\n")
	store, err := LoadFrequencyTable(path, TableOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"red", "blue"}, store.Terms())
}

func TestLoadFrequencyTableExplicitColumns(t *testing.T) {
	path := writeFile(t, "terms.csv", "n,a,b\n7,red,x\n2,blue,y\n")
	store, err := LoadFrequencyTable(path, TableOptions{TermColumn: "a", CountColumn: "#1"})
	require.NoError(t, err)
	assert.Equal(t, 7, store.Count("red"))
	assert.Equal(t, 2, store.Count("blue"))

	_, err = LoadFrequencyTable(path, TableOptions{TermColumn: "missing"})
	assert.Error(t, err)
	_, err = LoadFrequencyTable(path, TableOptions{TermColumn: "#9"})
	assert.Error(t, err)
}

func TestLoadFrequencyTableBadCount(t *testing.T) {
	path := writeFile(t, "terms.csv", "property,count\nred,many\n")
	_, err := LoadFrequencyTable(path, TableOptions{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLoadTermsDispatch(t *testing.T) {
	jsonPath := writeFile(t, "s.json", `{"names_frequency": {"sorted_by_frequency": [["a", 2]]}}`)
	store, err := LoadTerms(jsonPath, "names_frequency", TableOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, store.Count("a"))

	csvPath := writeFile(t, "t.csv", "term,count\nb,3\n")
	store, err = LoadTerms(csvPath, "ignored", TableOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, store.Count("b"))
}

func TestWriteRows(t *testing.T) {
	rows := []Row{
		{ClusterID: 1, ClusterTotalFrequency: 105, MemberCount: 2, Term: "red", Count: 100},
		{ClusterID: 1, ClusterTotalFrequency: 105, MemberCount: 2, Term: "scarlet, dark", Count: 5},
		{Others: true, ClusterTotalFrequency: 3, MemberCount: 1, Term: "b", Count: 3},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteRows(&buf, rows))
	assert.Equal(t, "cluster_id,cluster_total_frequency,member_count,property,count\n"+
		"1,105,2,red,100\n"+
		"1,105,2,\"scarlet, dark\",5\n"+
		"Others,3,1,b,3\n", buf.String())
}

func TestWriteResultCSVReproducible(t *testing.T) {
	dir := t.TempDir()
	rows := []Row{{ClusterID: 1, ClusterTotalFrequency: 2, MemberCount: 1, Term: "a", Count: 2}}
	first := DefaultOutputPath(filepath.Join(dir, "csv"), "A")
	second := DefaultOutputPath(filepath.Join(dir, "csv"), "B")
	require.NoError(t, WriteResultCSV(first, rows))
	require.NoError(t, WriteResultCSV(second, rows))
	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "property_clusters_A.csv", filepath.Base(first))
}

func TestSetColumnCandidates(t *testing.T) {
	SetColumnCandidates(ColumnCandidates{Term: []string{"material"}})
	defer SetColumnCandidates(ColumnCandidates{})

	path := writeFile(t, "terms.csv", "id,material,count\n1,steel,4\n")
	store, err := LoadFrequencyTable(path, TableOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, store.Count("steel"))
	assert.Contains(t, DefaultColumnCandidates().Term, "property")
	assert.Contains(t, getColumnCandidates().Count, "count")
}
