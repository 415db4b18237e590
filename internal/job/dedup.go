package job

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
)

// Fingerprint identifies a posting by the SHA-256 of its apply URL. Two jobs
// with the same apply URL are the same job, whatever their ids say.
func Fingerprint(j RawJob) string {
	sum := sha256.Sum256([]byte(j.ApplyURL))
	return hex.EncodeToString(sum[:])
}

// Deduplicate keeps the first occurrence of every fingerprint, preserving
// input order. A nil or empty input yields an empty, non-nil slice.
func Deduplicate(jobs []RawJob) []RawJob {
	if len(jobs) == 0 {
		return []RawJob{}
	}

	seen := make(map[string]struct{}, len(jobs))
	unique := make([]RawJob, 0, len(jobs))
	for _, j := range jobs {
		fp := Fingerprint(j)
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		unique = append(unique, j)
	}

	slog.Debug("deduplicated jobs", "in", len(jobs), "out", len(unique))
	return unique
}
