package envelope

import "strings"

// CanonicalStatus maps an upstream stamp status label to a Status.
func CanonicalStatus(label string) Status {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "success", "ok", "done", "complete", "completed", "finalized":
		return StatusFinalized
	case "pending", "processing", "in_progress", "queued":
		return StatusPending
	case "failed", "fail", "error":
		return StatusFailed
	}
	return StatusUnknown
}

// CanonicalVerifyStatus maps a verification result label to a Status.
func CanonicalVerifyStatus(result string) Status {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "match", "full match", "ok", "exists", "found", "success":
		return StatusFinalized
	case "mismatch", "no_match", "not_found", "missing", "error", "failed":
		return StatusFailed
	}
	return StatusUnknown
}

// AggregateStatus folds per-item statuses into one: all finalized gives
// finalized, all failed gives failed, anything else is unknown.
func AggregateStatus(statuses []Status) Status {
	if len(statuses) == 0 {
		return StatusUnknown
	}
	first := statuses[0]
	for _, s := range statuses[1:] {
		if s != first {
			return StatusUnknown
		}
	}
	switch first {
	case StatusFinalized, StatusFailed, StatusPending:
		return first
	}
	return StatusUnknown
}
