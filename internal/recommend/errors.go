package recommend

import "fmt"

// DependencyError reports that a HistoryStore or ItemSearch call failed.
// The engine never retries and never returns a partial result.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("recommend: %s: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}
