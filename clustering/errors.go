package clustering

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrFieldNotFound     = errors.New("field not found")
	ErrStructure         = errors.New("structural invariant violated")
	ErrEmbeddingMismatch = errors.New("embedding count does not match input")
)

// StructureError reports an invariant violation tied to a specific cluster.
type StructureError struct {
	Stage   string // "primary" or "secondary"
	Cluster string
	Index   int
	Reason  string
}

func (e *StructureError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s clustering: cluster %s: %s (index %d)", e.Stage, e.Cluster, e.Reason, e.Index)
	}
	return fmt.Sprintf("%s clustering: cluster %s: %s", e.Stage, e.Cluster, e.Reason)
}

// Unwrap lets errors.Is match ErrStructure.
func (e *StructureError) Unwrap() error {
	return ErrStructure
}
