package fhir

import (
	"net/url"
	"strconv"
	"time"

	"github.com/fhirlite/server/pkg/pagination"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string                 `json:"fullUrl"`
	Resource map[string]interface{} `json:"resource"`
	Search   *BundleSearch          `json:"search,omitempty"`
}

type BundleSearch struct {
	Mode string `json:"mode"`
}

// SearchBundleParams describes the page a searchset Bundle holds.
type SearchBundleParams struct {
	// BaseURL prefixes entry and link URLs; empty yields server-relative URLs.
	BaseURL string
	// Path is the resource collection path, e.g. "/Patient".
	Path  string
	Query url.Values
	Page  pagination.Params
	Total int
}

// NewSearchBundle wraps one page of matches in a searchset Bundle. Each entry
// pairs the rendered resource with its addressable URL.
func NewSearchBundle(resources []Resource, params SearchBundleParams) *Bundle {
	now := time.Now().UTC()
	entries := make([]BundleEntry, 0, len(resources))
	for _, r := range resources {
		entries = append(entries, BundleEntry{
			FullURL:  params.BaseURL + "/" + FormatReference(r.ResourceType(), r.ResourceID()),
			Resource: r.ToFHIR(),
			Search:   &BundleSearch{Mode: "match"},
		})
	}

	total := params.Total
	return &Bundle{
		ResourceType: "Bundle",
		Type:         "searchset",
		Timestamp:    &now,
		Total:        &total,
		Link:         buildPaginationLinks(params),
		Entry:        entries,
	}
}

func buildPaginationLinks(p SearchBundleParams) []BundleLink {
	links := []BundleLink{{Relation: "self", URL: pageURL(p, p.Page.Offset)}}

	if p.Page.HasNext(p.Total) {
		links = append(links, BundleLink{Relation: "next", URL: pageURL(p, p.Page.NextOffset())})
	}
	if p.Page.HasPrevious() {
		links = append(links, BundleLink{Relation: "previous", URL: pageURL(p, p.Page.PreviousOffset())})
	}
	return links
}

func pageURL(p SearchBundleParams, offset int) string {
	q := url.Values{}
	for k, v := range p.Query {
		switch k {
		case "count", "_count", "offset", "_offset":
			continue
		}
		q[k] = v
	}
	q.Set("count", strconv.Itoa(p.Page.Count))
	q.Set("offset", strconv.Itoa(offset))
	return p.BaseURL + p.Path + "?" + q.Encode()
}
