package jsearch

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DatePosted filters by posting age.
type DatePosted string

const (
	DatePostedAll       DatePosted = "all"
	DatePostedToday     DatePosted = "today"
	DatePostedThreeDays DatePosted = "3days"
	DatePostedWeek      DatePosted = "week"
	DatePostedMonth     DatePosted = "month"
)

// EmploymentType filters by contract kind.
type EmploymentType string

const (
	EmploymentFullTime   EmploymentType = "FULLTIME"
	EmploymentContractor EmploymentType = "CONTRACTOR"
	EmploymentPartTime   EmploymentType = "PARTTIME"
	EmploymentIntern     EmploymentType = "INTERN"
)

// JobRequirement filters by experience or education.
type JobRequirement string

const (
	RequirementUnder3Years  JobRequirement = "under_3_years_experience"
	RequirementMore3Years   JobRequirement = "more_than_3_years_experience"
	RequirementNoExperience JobRequirement = "no_experience"
	RequirementNoDegree     JobRequirement = "no_degree"
)

const maxPages = 20

// ErrInvalidParams marks search parameters or filters rejected before any
// vendor call is made.
var ErrInvalidParams = errors.New("invalid search params")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParams, fmt.Sprintf(format, args...))
}

// SearchParams are the inputs of a /search call.
type SearchParams struct {
	Query           string
	Page            int
	DatePosted      DatePosted
	RemoteJobsOnly  bool
	EmploymentTypes []EmploymentType
	JobRequirements []JobRequirement
	RadiusKM        int
	NumPages        int
	Country         string
}

// Validate checks ranges and enum values. Zero values are allowed and mean
// "use the default".
func (p SearchParams) Validate() error {
	if p.Page < 0 {
		return invalidf("page must be >= 1, got %d", p.Page)
	}
	if p.NumPages < 0 || p.NumPages > maxPages {
		return invalidf("num_pages must be between 1 and %d, got %d", maxPages, p.NumPages)
	}
	if p.RadiusKM < 0 {
		return invalidf("radius must be >= 1, got %d", p.RadiusKM)
	}
	switch p.DatePosted {
	case "", DatePostedAll, DatePostedToday, DatePostedThreeDays, DatePostedWeek, DatePostedMonth:
	default:
		return invalidf("unknown date_posted %q", p.DatePosted)
	}
	for _, et := range p.EmploymentTypes {
		switch et {
		case EmploymentFullTime, EmploymentContractor, EmploymentPartTime, EmploymentIntern:
		default:
			return invalidf("unknown employment type %q", et)
		}
	}
	for _, jr := range p.JobRequirements {
		switch jr {
		case RequirementUnder3Years, RequirementMore3Years, RequirementNoExperience, RequirementNoDegree:
		default:
			return invalidf("unknown job requirement %q", jr)
		}
	}
	return nil
}

// Values renders the params as JSearch query parameters.
func (p SearchParams) Values() url.Values {
	v := url.Values{}
	v.Set("query", p.Query)

	page := p.Page
	if page == 0 {
		page = 1
	}
	v.Set("page", strconv.Itoa(page))

	numPages := p.NumPages
	if numPages == 0 {
		numPages = 1
	}
	v.Set("num_pages", strconv.Itoa(numPages))

	datePosted := p.DatePosted
	if datePosted == "" {
		datePosted = DatePostedAll
	}
	v.Set("date_posted", string(datePosted))

	if p.RemoteJobsOnly {
		v.Set("remote_jobs_only", "true")
	}
	if len(p.EmploymentTypes) > 0 {
		types := make([]string, len(p.EmploymentTypes))
		for i, et := range p.EmploymentTypes {
			types[i] = string(et)
		}
		v.Set("employment_types", strings.Join(types, ","))
	}
	if len(p.JobRequirements) > 0 {
		reqs := make([]string, len(p.JobRequirements))
		for i, jr := range p.JobRequirements {
			reqs[i] = string(jr)
		}
		v.Set("job_requirements", strings.Join(reqs, ","))
	}
	if p.RadiusKM > 0 {
		v.Set("radius", strconv.Itoa(p.RadiusKM))
	}
	if p.Country != "" {
		v.Set("country", p.Country)
	}
	return v
}

// ParamsFromFilters maps the pipeline's string filters onto typed params.
// Keys the vendor does not understand are ignored.
func ParamsFromFilters(query string, filters map[string]string) (SearchParams, error) {
	p := SearchParams{Query: query}
	for key, raw := range filters {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		switch key {
		case "country":
			p.Country = strings.ToLower(raw)
		case "date_posted":
			p.DatePosted = DatePosted(raw)
		case "remote_jobs_only", "remote_only":
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return p, invalidf("filter %s: %v", key, err)
			}
			p.RemoteJobsOnly = b
		case "employment_types":
			for _, s := range splitList(raw) {
				p.EmploymentTypes = append(p.EmploymentTypes, EmploymentType(strings.ToUpper(s)))
			}
		case "job_requirements":
			for _, s := range splitList(raw) {
				p.JobRequirements = append(p.JobRequirements, JobRequirement(strings.ToLower(s)))
			}
		case "radius", "radius_km", "num_pages", "page":
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				return p, invalidf("filter %s must be a positive integer, got %q", key, raw)
			}
			switch key {
			case "num_pages":
				p.NumPages = n
			case "page":
				p.Page = n
			default:
				p.RadiusKM = n
			}
		}
	}
	return p, p.Validate()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
