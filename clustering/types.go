package clustering

import (
	"encoding/json"
	"strconv"

	"yashubustudio/propcluster/internal/logging"
)

// OthersLabel is the cluster label of the shared overflow bucket.
const OthersLabel = "Others"

// Embedder providers understood by the CLI.
const (
	ProviderONNX   = "onnx"
	ProviderOpenAI = "openai"
)

// TermEntry is a (term, occurrence count) pair as delivered by ingestion.
type TermEntry struct {
	Term  string `json:"property"`
	Count int    `json:"count"`
}

// Member is a term together with the count it was observed with.
type Member struct {
	Term  string `json:"property"`
	Count int    `json:"count"`
}

// PrimaryCluster is a coarse cluster found over the full vocabulary.
type PrimaryCluster struct {
	ID      string   `json:"clusterId"`
	Members []Member `json:"members"`
}

// Terms returns the member terms in order.
func (p PrimaryCluster) Terms() []string {
	out := make([]string, len(p.Members))
	for i, m := range p.Members {
		out[i] = m.Term
	}
	return out
}

// TotalFrequency sums the member counts.
func (p PrimaryCluster) TotalFrequency() int {
	total := 0
	for _, m := range p.Members {
		total += m.Count
	}
	return total
}

// SubCluster is a fine cluster inside one primary cluster.
type SubCluster struct {
	Members        []string `json:"members"`
	TotalFrequency int      `json:"totalFrequency"`
}

// FinalCluster is a sub-cluster after the frequency merge. Base marks the
// frequency-dominant sub-cluster of its primary cluster.
type FinalCluster struct {
	PrimaryID      string   `json:"primaryId"`
	Members        []string `json:"members"`
	TotalFrequency int      `json:"totalFrequency"`
	Base           bool     `json:"base"`
}

// UnclusteredItem is a term left over after primary clustering.
type UnclusteredItem = Member

// Row is one line of the exported cluster table.
type Row struct {
	ClusterID             int    `json:"clusterId,omitempty"`
	Others                bool   `json:"others,omitempty"`
	ClusterTotalFrequency int    `json:"clusterTotalFrequency"`
	MemberCount           int    `json:"memberCount"`
	Term                  string `json:"property"`
	Count                 int    `json:"count"`
}

// Label renders the cluster id column: a positive integer or "Others".
func (r Row) Label() string {
	if r.Others {
		return OthersLabel
	}
	return strconv.Itoa(r.ClusterID)
}

// Summary reports the shape of the aggregated table.
type Summary struct {
	// NumberedClusters counts distinct numeric cluster ids.
	NumberedClusters   int `json:"numberedClusters"`
	FromClusters       int `json:"fromClusters"`
	PromotedSingletons int `json:"promotedSingletons"`
	OthersSize         int `json:"othersSize"`
	OthersFrequency    int `json:"othersFrequency"`
	Rows               int `json:"rows"`
}

// ClusterConfig holds the similarity settings of both clustering rounds.
type ClusterConfig struct {
	PrimaryThreshold   float32 `json:"primaryThreshold" yaml:"primaryThreshold"`
	SecondaryThreshold float32 `json:"secondaryThreshold" yaml:"secondaryThreshold"`
	// MinCommunitySize applies to the primary round only.
	MinCommunitySize int `json:"minCommunitySize" yaml:"minCommunitySize"`
	Workers          int `json:"workers" yaml:"workers"`
	// RedirectDropped sends members of primary clusters that produced no
	// sub-clusters to the unclustered path instead of dropping them.
	RedirectDropped *bool `json:"redirectDropped,omitempty" yaml:"redirectDropped,omitempty"`
	// SeparateSingletons numbers promoted unclustered terms after all final
	// clusters rather than ranking them together by frequency.
	SeparateSingletons bool `json:"separateSingletons" yaml:"separateSingletons"`
}

// FrequencyConfig derives the threshold value used by merge and aggregation.
type FrequencyConfig struct {
	FileCount        float64 `json:"fileCount" yaml:"fileCount"`
	ThresholdPercent float64 `json:"thresholdPercent" yaml:"thresholdPercent"`
}

// ThresholdValue returns fileCount × thresholdPercent.
func (f FrequencyConfig) ThresholdValue() float64 {
	return f.FileCount * f.ThresholdPercent
}

// EmbedderConfig wraps the configuration for the embedding backend and cache.
type EmbedderConfig struct {
	Provider        string `json:"provider" yaml:"provider"`
	OrtDLL          string `json:"ortDll" yaml:"ortDll"`
	ModelPath       string `json:"modelPath" yaml:"modelPath"`
	TokenizerPath   string `json:"tokenizerPath" yaml:"tokenizerPath"`
	MaxSeqLen       int    `json:"maxSeqLen" yaml:"maxSeqLen"`
	Dimension       int    `json:"dimension" yaml:"dimension"`
	ModelID         string `json:"modelId" yaml:"modelId"`
	CacheDir        string `json:"cacheDir" yaml:"cacheDir"`
	CacheDB         string `json:"cacheDb" yaml:"cacheDb"`
	OpenAIModel     string `json:"openaiModel" yaml:"openaiModel"`
	OpenAIDimension int    `json:"openaiDimension" yaml:"openaiDimension"`
	APIKey          string `json:"-" yaml:"-"`
}

// InputConfig locates the term vocabulary.
type InputConfig struct {
	Path        string `json:"path" yaml:"path"`
	Field       string `json:"field" yaml:"field"`
	TermColumn  string `json:"termColumn" yaml:"termColumn"`
	CountColumn string `json:"countColumn" yaml:"countColumn"`
}

// OutputConfig locates the exported table.
type OutputConfig struct {
	Path string `json:"path" yaml:"path"`
	Dir  string `json:"dir" yaml:"dir"`
}

// Config aggregates runtime settings persisted to config.json or config.yaml.
type Config struct {
	Input     InputConfig     `json:"input" yaml:"input"`
	Output    OutputConfig    `json:"output" yaml:"output"`
	Cluster   ClusterConfig   `json:"cluster" yaml:"cluster"`
	Frequency FrequencyConfig `json:"frequency" yaml:"frequency"`
	Embedder  EmbedderConfig  `json:"embedder" yaml:"embedder"`
	Log       logging.Config  `json:"log" yaml:"log"`
}

// Clone creates a deep copy of the configuration so callers can mutate safely.
func (c Config) Clone() Config {
	buf, _ := json.Marshal(c)
	var out Config
	_ = json.Unmarshal(buf, &out)
	out.Embedder.APIKey = c.Embedder.APIKey
	return out
}

// ApplyDefaults populates zero values with the defaults of the original tool.
func (c *Config) ApplyDefaults() {
	if c.Input.Field == "" {
		c.Input.Field = "names_frequency"
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "csv"
	}
	if c.Cluster.PrimaryThreshold == 0 {
		c.Cluster.PrimaryThreshold = 0.85
	}
	if c.Cluster.SecondaryThreshold == 0 {
		c.Cluster.SecondaryThreshold = 0.95
	}
	if c.Cluster.MinCommunitySize == 0 {
		c.Cluster.MinCommunitySize = 2
	}
	if c.Cluster.Workers == 0 {
		c.Cluster.Workers = 1
	}
	if c.Cluster.RedirectDropped == nil {
		redirect := true
		c.Cluster.RedirectDropped = &redirect
	}
	if c.Frequency.FileCount == 0 {
		c.Frequency.FileCount = 1000
	}
	if c.Frequency.ThresholdPercent == 0 {
		c.Frequency.ThresholdPercent = 0.01
	}
	if c.Embedder.Provider == "" {
		c.Embedder.Provider = ProviderONNX
	}
	if c.Embedder.MaxSeqLen == 0 {
		c.Embedder.MaxSeqLen = 256
	}
	if c.Embedder.Dimension == 0 {
		c.Embedder.Dimension = 384
	}
	if c.Embedder.OpenAIModel == "" {
		c.Embedder.OpenAIModel = "text-embedding-3-small"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// RedirectsDropped reports whether dropped primary members go to the unclustered path.
func (c ClusterConfig) RedirectsDropped() bool {
	return c.RedirectDropped == nil || *c.RedirectDropped
}
