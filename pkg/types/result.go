package types

import "time"

// RepositoryResult is the outcome of probing or fetching one repository.
type RepositoryResult struct {
	Name        string
	URL         string
	Type        string
	Success     bool
	Error       error
	Duration    time.Duration
	ResolvedRef string
}

// ProbeResult aggregates repository results of one operation.
type ProbeResult struct {
	TotalRepos   int
	SuccessCount int
	FailureCount int
	Results      []RepositoryResult
	Duration     time.Duration
}

// NewProbeResult creates a ProbeResult from a slice of repository results.
func NewProbeResult(results []RepositoryResult, duration time.Duration) *ProbeResult {
	pr := &ProbeResult{
		TotalRepos: len(results),
		Results:    results,
		Duration:   duration,
	}
	for _, r := range results {
		if r.Success {
			pr.SuccessCount++
		} else {
			pr.FailureCount++
		}
	}
	return pr
}

// HasFailures returns true if any repository failed.
func (pr *ProbeResult) HasFailures() bool {
	return pr.FailureCount > 0
}

// FailedResults returns only the failed repository results.
func (pr *ProbeResult) FailedResults() []RepositoryResult {
	var failed []RepositoryResult
	for _, r := range pr.Results {
		if !r.Success {
			failed = append(failed, r)
		}
	}
	return failed
}

// Get returns the result for the named repository.
func (pr *ProbeResult) Get(name string) (RepositoryResult, bool) {
	for _, r := range pr.Results {
		if r.Name == name {
			return r, true
		}
	}
	return RepositoryResult{}, false
}
