package index

import (
	"context"
	"fmt"
)

// Counter counts stored events. *store.SQLiteStore satisfies it.
type Counter interface {
	CountEvents(ctx context.Context, source string) (int, error)
}

// Sized reports how many vectors an index holds.
type Sized interface {
	Count() int
}

// CheckResult compares the record store with the vector index.
type CheckResult struct {
	Events  int
	Vectors int
}

// Stale reports whether the vector index needs a rebuild.
func (c CheckResult) Stale() bool {
	return c.Events != c.Vectors
}

func (c CheckResult) String() string {
	if !c.Stale() {
		return fmt.Sprintf("index up to date (%d events)", c.Events)
	}
	return fmt.Sprintf("index stale: %d events stored, %d vectors indexed", c.Events, c.Vectors)
}

// Check compares event and vector counts.
func Check(ctx context.Context, records Counter, vectors Sized) (CheckResult, error) {
	n, err := records.CountEvents(ctx, "")
	if err != nil {
		return CheckResult{}, err
	}
	return CheckResult{Events: n, Vectors: vectors.Count()}, nil
}
