// Package action implements the four interception actions a rule can apply
// to a proxied exchange: replace, modify, randomize_app_duration, and
// passthrough.
package action

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
)

const (
	Replace               = "replace"
	Modify                = "modify"
	RandomizeAppDuration  = "randomize_app_duration"
	Passthrough           = "passthrough"
	defaultTargetPackage  = "com.kingsoft"
	defaultMaxDurationMin = 30
	defaultKeepCount      = 2
)

// BuildReplaceResponse parses a rule's custom_response and re-marshals it,
// so the client receives the exact JSON object an admin configured
// regardless of how it was originally formatted.
func BuildReplaceResponse(customResponse string) (string, error) {
	if customResponse == "" {
		return "{}", nil
	}
	var v interface{}
	if err := json.Unmarshal([]byte(customResponse), &v); err != nil {
		return "", fmt.Errorf("action: replace: invalid custom_response: %w", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("action: replace: %w", err)
	}
	return string(out), nil
}

// ApplyModify parses a rule's custom_response and returns it as the
// replacement params object — "modify" swaps only the outbound params,
// leaving the rest of the envelope (method, id, jsonrpc, ...) untouched.
func ApplyModify(customResponse string) (map[string]interface{}, error) {
	if customResponse == "" {
		return map[string]interface{}{}, nil
	}
	var replacement map[string]interface{}
	if err := json.Unmarshal([]byte(customResponse), &replacement); err != nil {
		return nil, fmt.Errorf("action: modify: invalid custom_response: %w", err)
	}
	return replacement, nil
}

// DurationDetail records one change made by ApplyRandomizeAppDuration: a
// shortened entry (original and new duration) or a thinned package
// (Action "reduce_count", original and new count). The pipeline attaches the
// trail to the envelope's plaintext _rule_info field, which is sent upstream
// alongside the encrypted params and kept in the intercepted_request log.
type DurationDetail struct {
	Package           string `json:"package"`
	Action            string `json:"action,omitempty"`
	OriginalDurationS int64  `json:"original_duration_s,omitempty"`
	NewDurationS      int64  `json:"new_duration_s,omitempty"`
	OriginalCount     int    `json:"original_count,omitempty"`
	NewCount          int    `json:"new_count,omitempty"`
}

type durationConfig struct {
	Packages          []string `json:"packages"`
	MaxDurationMinute int      `json:"max_duration_minutes"`
	KeepCount         int      `json:"keep_count"`
}

// ApplyRandomizeAppDuration rewrites usage log entries whose duration
// exceeds max_duration_minutes*60*1000 milliseconds down to a random value
// in [1000, max_duration_minutes*60*1000] (a whole number of seconds, in
// milliseconds) for the configured target packages, then thins each
// package's entries down to keep_count via random sampling, preserving the
// original relative order of the entries it keeps. mBeginTimeStamp and
// mEndTimeStamp are millisecond epoch values.
//
// logs must be the decoded value of params["logs"]; it returns the new logs
// slice plus the action-detail trail for the log annotation.
func ApplyRandomizeAppDuration(logs []interface{}, configJSON string) ([]interface{}, []DurationDetail, error) {
	cfg := durationConfig{
		Packages:          []string{defaultTargetPackage},
		MaxDurationMinute: defaultMaxDurationMin,
		KeepCount:         defaultKeepCount,
	}
	if configJSON != "" {
		var parsed durationConfig
		if err := json.Unmarshal([]byte(configJSON), &parsed); err == nil {
			if len(parsed.Packages) > 0 {
				cfg.Packages = parsed.Packages
			}
			if parsed.MaxDurationMinute > 0 {
				cfg.MaxDurationMinute = parsed.MaxDurationMinute
			}
			if parsed.KeepCount > 0 {
				cfg.KeepCount = parsed.KeepCount
			}
		}
	}

	targets := make(map[string]bool, len(cfg.Packages))
	for _, p := range cfg.Packages {
		targets[p] = true
	}
	maxDurationSecondBound := int64(cfg.MaxDurationMinute) * 60
	maxDurationMs := maxDurationSecondBound * 1000

	var untargeted []interface{}
	byPackage := map[string][]map[string]interface{}{}
	order := []string{}

	for _, entry := range logs {
		m, ok := entry.(map[string]interface{})
		if !ok {
			untargeted = append(untargeted, entry)
			continue
		}
		pkg, _ := m["mPackageName"].(string)
		if !targets[pkg] {
			untargeted = append(untargeted, entry)
			continue
		}
		if _, seen := byPackage[pkg]; !seen {
			order = append(order, pkg)
		}
		byPackage[pkg] = append(byPackage[pkg], m)
	}

	var details []DurationDetail
	result := append([]interface{}{}, untargeted...)

	for _, pkg := range order {
		entries := byPackage[pkg]

		for _, m := range entries {
			begin := toInt64(m["mBeginTimeStamp"])
			end := toInt64(m["mEndTimeStamp"])
			duration := end - begin
			if duration <= maxDurationMs {
				continue
			}
			newDuration := (int64(rand.IntN(int(maxDurationSecondBound))) + 1) * 1000
			m["mEndTimeStamp"] = begin + newDuration
			m["mDuration"] = newDuration
			details = append(details, DurationDetail{
				Package:           pkg,
				OriginalDurationS: duration / 1000,
				NewDurationS:      newDuration / 1000,
			})
		}

		kept := entries
		if len(entries) > cfg.KeepCount {
			indices := sampleIndices(len(entries), cfg.KeepCount)
			kept = make([]map[string]interface{}, len(indices))
			for i, idx := range indices {
				kept[i] = entries[idx]
			}
			details = append(details, DurationDetail{
				Package:       pkg,
				Action:        "reduce_count",
				OriginalCount: len(entries),
				NewCount:      cfg.KeepCount,
			})
		}

		for _, m := range kept {
			result = append(result, m)
		}
	}

	return result, details, nil
}

// sampleIndices picks k distinct indices from [0, n) uniformly at random and
// returns them in ascending order, preserving the kept entries' relative
// order the way the reference implementation's sorted random.sample does.
func sampleIndices(n, k int) []int {
	if k >= n {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	pool := make([]int, n)
	for i := range pool {
		pool[i] = i
	}
	rand.Shuffle(n, func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	chosen := pool[:k]
	for i := 1; i < len(chosen); i++ {
		for j := i; j > 0 && chosen[j-1] > chosen[j]; j-- {
			chosen[j-1], chosen[j] = chosen[j], chosen[j-1]
		}
	}
	return chosen
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}
