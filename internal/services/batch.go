package services

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ItemResult is the outcome of one event inside a batch operation.
type ItemResult struct {
	EventID  string
	Err      error
	Notified bool
}

func (r ItemResult) MarshalJSON() ([]byte, error) {
	out := struct {
		EventID  string `json:"event_id"`
		OK       bool   `json:"ok"`
		Error    string `json:"error,omitempty"`
		Notified bool   `json:"notified"`
	}{EventID: r.EventID, OK: r.Err == nil, Notified: r.Notified}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

type batchSummary struct {
	Succeeded int
	Notified  int
	Failed    int
	Error     string
}

func fold(items []ItemResult) batchSummary {
	var (
		sum      batchSummary
		failures []string
	)
	for _, it := range items {
		if it.Err != nil {
			sum.Failed++
			failures = append(failures, fmt.Sprintf("%s: %v", it.EventID, it.Err))
			continue
		}
		sum.Succeeded++
		if it.Notified {
			sum.Notified++
		}
	}
	if sum.Failed > 0 {
		sum.Error = fmt.Sprintf("%d of %d events failed: %s", sum.Failed, len(items), strings.Join(failures, "; "))
	}
	return sum
}

// uniqueIDs keeps the first occurrence of every id.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
