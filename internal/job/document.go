package job

import (
	"errors"
	"fmt"
	"sort"
)

// Document is the canonical unit stored in and retrieved from the vector
// index. LocationString is always derived from City, State and Country;
// build documents with NewDocument or FromMetadata.
type Document struct {
	JobID          string   `json:"job_id"`
	Title          string   `json:"job_title"`
	Description    string   `json:"job_description"`
	ApplyURL       string   `json:"job_apply_link"`
	EmployerName   *string  `json:"employer_name"`
	City           *string  `json:"job_city"`
	State          *string  `json:"job_state"`
	Country        *string  `json:"job_country"`
	LocationString string   `json:"location_string"`
	RelevanceScore *float64 `json:"relevance_score,omitempty"`
}

// NewDocument canonicalises a single raw job.
func NewDocument(j RawJob) Document {
	return Document{
		JobID:          j.JobID,
		Title:          j.Title,
		Description:    j.Description,
		ApplyURL:       j.ApplyURL,
		EmployerName:   j.EmployerName,
		City:           j.City,
		State:          j.State,
		Country:        j.Country,
		LocationString: LocationString(j.City, j.State, j.Country),
	}
}

// Transform maps raw jobs one-to-one, in order, onto documents.
func Transform(jobs []RawJob) []Document {
	docs := make([]Document, len(jobs))
	for i, j := range jobs {
		docs[i] = NewDocument(j)
	}
	return docs
}

// nullText is how an absent employer is rendered in the combined text.
const nullText = "None"

// CombinedText is the text fed to the embedding model. The layout is fixed:
// the blank line before Description is part of it.
func (d Document) CombinedText() string {
	employer := nullText
	if d.EmployerName != nil {
		employer = *d.EmployerName
	}
	return fmt.Sprintf("Job Title: %s\nCompany: %s\nLocation: %s\n\nDescription: %s",
		d.Title, employer, d.LocationString, d.Description)
}

// Field is a metadata key. The set is closed; see Fields.
type Field string

const (
	FieldJobID          Field = "job_id"
	FieldTitle          Field = "job_title"
	FieldEmployerName   Field = "employer_name"
	FieldCity           Field = "job_city"
	FieldState          Field = "job_state"
	FieldCountry        Field = "job_country"
	FieldApplyURL       Field = "job_apply_link"
	FieldDescription    Field = "job_description"
	FieldLocationString Field = "location_string"
)

// Fields lists every known metadata key.
var Fields = []Field{
	FieldJobID, FieldTitle, FieldEmployerName, FieldCity, FieldState,
	FieldCountry, FieldApplyURL, FieldDescription, FieldLocationString,
}

// ErrUnknownField is returned for metadata keys outside Fields.
var ErrUnknownField = errors.New("unknown metadata field")

// Metadata maps known fields to optional values. A nil value is an explicit
// null; a missing key is an absent field.
type Metadata map[Field]*string

// Metadata returns the base record: identity, title, employer, location
// parts and apply link. Description and location string are excluded.
func (d Document) Metadata() Metadata {
	return Metadata{
		FieldJobID:        String(d.JobID),
		FieldTitle:        String(d.Title),
		FieldEmployerName: d.EmployerName,
		FieldCity:         d.City,
		FieldState:        d.State,
		FieldCountry:      d.Country,
		FieldApplyURL:     String(d.ApplyURL),
	}
}

// StoredMetadata is Metadata plus description and location string, the full
// record persisted by every index backend.
func (d Document) StoredMetadata() Metadata {
	m := d.Metadata()
	m[FieldDescription] = String(d.Description)
	m[FieldLocationString] = String(d.LocationString)
	return m
}

// FromMetadata rebuilds a document from stored metadata. Absent fields become
// empty or nil; LocationString is recomputed from the location parts.
func FromMetadata(m Metadata) Document {
	d := Document{
		JobID:        Deref(m[FieldJobID]),
		Title:        Deref(m[FieldTitle]),
		Description:  Deref(m[FieldDescription]),
		ApplyURL:     Deref(m[FieldApplyURL]),
		EmployerName: m[FieldEmployerName],
		City:         m[FieldCity],
		State:        m[FieldState],
		Country:      m[FieldCountry],
	}
	d.LocationString = LocationString(d.City, d.State, d.Country)
	return d
}

// ParseMetadata converts a loosely keyed map into Metadata, rejecting keys
// outside the closed field set.
func ParseMetadata(raw map[string]*string) (Metadata, error) {
	m := make(Metadata, len(raw))
	var unknown []string
	for k, v := range raw {
		f := Field(k)
		if !f.Known() {
			unknown = append(unknown, k)
			continue
		}
		m[f] = v
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %v", ErrUnknownField, unknown)
	}
	return m, nil
}

// Known reports whether f is one of Fields.
func (f Field) Known() bool {
	for _, k := range Fields {
		if k == f {
			return true
		}
	}
	return false
}

// WithScore returns a copy of d carrying the given relevance score.
func (d Document) WithScore(score float64) Document {
	d.RelevanceScore = &score
	return d
}
