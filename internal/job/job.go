// Package job defines the canonical job records that flow through the
// search pipeline: vendor postings, their fingerprints, and the storable
// documents kept in the vector index.
package job

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation is returned (wrapped in *ValidationError) when a RawJob is
// missing a required field.
var ErrValidation = errors.New("invalid job")

// ValidationError reports the first required field found empty.
type ValidationError struct {
	JobID string
	Field string
}

func (e *ValidationError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("invalid job: missing %s", e.Field)
	}
	return fmt.Sprintf("invalid job %q: missing %s", e.JobID, e.Field)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// RawJob is a job posting as returned by a vendor, before canonicalisation.
// JobID is vendor-assigned and not unique across vendors or pages.
type RawJob struct {
	JobID        string
	Title        string
	Description  string
	ApplyURL     string
	EmployerName *string
	City         *string
	State        *string
	Country      *string
}

// Validate checks that the always-present fields are set.
func (j RawJob) Validate() error {
	switch {
	case strings.TrimSpace(j.JobID) == "":
		return &ValidationError{Field: "job_id"}
	case strings.TrimSpace(j.Title) == "":
		return &ValidationError{JobID: j.JobID, Field: "job_title"}
	case j.Description == "":
		return &ValidationError{JobID: j.JobID, Field: "job_description"}
	case strings.TrimSpace(j.ApplyURL) == "":
		return &ValidationError{JobID: j.JobID, Field: "job_apply_link"}
	}
	return nil
}

// LocationNotSpecified is rendered when a job has no city, state or country.
const LocationNotSpecified = "Location not specified"

// LocationString joins the present location parts in city, state, country
// order.
func LocationString(city, state, country *string) string {
	parts := make([]string, 0, 3)
	for _, p := range []*string{city, state, country} {
		if p != nil && *p != "" {
			parts = append(parts, *p)
		}
	}
	if len(parts) == 0 {
		return LocationNotSpecified
	}
	return strings.Join(parts, ", ")
}

// String returns a pointer to s, for building optional fields.
func String(s string) *string { return &s }

// Deref returns the pointed-to value or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
