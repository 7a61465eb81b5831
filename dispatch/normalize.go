package dispatch

import "time"

// normalize maps an engine-native response into the stable product
// shape: fetched, riskScore, durationMs, aborted, status. The first
// non-nil source in each column of the normalization table wins.
func normalize(raw map[string]interface{}, measured time.Duration) map[string]interface{} {
	summary, _ := raw["engineSummary"].(map[string]interface{})

	fetched := firstNonNilInt(
		fieldOf(summary, "fetchedPosts"),
		lengthOf(raw["tweets"]),
	)

	riskScore := firstNonNilFloat(
		fieldOf(summary, "finalRisk"),
		fieldOf(summary, "riskMax"),
	)

	durationMs := firstNonNilInt(
		fieldOf(summary, "durationMs"),
	)
	if durationMs == 0 {
		durationMs = measured.Milliseconds()
	}

	aborted := coerceBool(fieldOf(summary, "aborted"))

	status := StatusOK
	if aborted {
		if fetched > 0 {
			status = StatusPartial
		} else {
			status = StatusAborted
		}
	}

	return map[string]interface{}{
		"fetched":    fetched,
		"riskScore":  riskScore,
		"durationMs": durationMs,
		"aborted":    aborted,
		"status":     string(status),
	}
}

func fieldOf(m map[string]interface{}, key string) interface{} {
	if m == nil {
		return nil
	}
	return m[key]
}

func lengthOf(v interface{}) interface{} {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	return len(arr)
}

func firstNonNilInt(candidates ...interface{}) int {
	for _, c := range candidates {
		if c == nil {
			continue
		}
		switch n := c.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}

func firstNonNilFloat(candidates ...interface{}) float64 {
	for _, c := range candidates {
		if c == nil {
			continue
		}
		switch n := c.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		case int64:
			return float64(n)
		}
	}
	return 0
}

func coerceBool(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	default:
		return false
	}
}
