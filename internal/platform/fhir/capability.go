package fhir

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fhirlite/server/pkg/pagination"
)

const FHIRVersion = "4.0.1"

// SearchParam describes a search parameter advertised in the CapabilityStatement.
type SearchParam struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Documentation string `json:"documentation,omitempty"`
}

// DefaultInteractions returns the type- and instance-level interactions every
// registered resource supports.
func DefaultInteractions() []string {
	return []string{"read", "create", "update", "delete", "search-type"}
}

// PagingParams advertises the paging parameters accepted by every search.
// Larger counts are clamped; the Bundle's self link shows the size served.
func PagingParams() []SearchParam {
	return []SearchParam{
		{
			Name:          "_count",
			Type:          "number",
			Documentation: fmt.Sprintf("Page size (alias count), default %d, at most %d", pagination.DefaultCount, pagination.MaxCount),
		},
		{
			Name:          "_offset",
			Type:          "number",
			Documentation: "Number of matches to skip (alias offset)",
		},
	}
}

type CapabilityStatement struct {
	ResourceType   string             `json:"resourceType"`
	Status         string             `json:"status"`
	Date           string             `json:"date"`
	Kind           string             `json:"kind"`
	FHIRVersion    string             `json:"fhirVersion"`
	Format         []string           `json:"format"`
	Software       CapabilitySoftware `json:"software"`
	Implementation CapabilityImpl     `json:"implementation"`
	Rest           []CapabilityRest   `json:"rest"`
}

type CapabilitySoftware struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type CapabilityImpl struct {
	Description string `json:"description"`
	URL         string `json:"url,omitempty"`
}

type CapabilityRest struct {
	Mode     string               `json:"mode"`
	Resource []CapabilityResource `json:"resource"`
}

// CapabilityResource advertises one resource type. UpdateCreate is always
// false: a PUT to an unknown id is a 404, never a create.
type CapabilityResource struct {
	Type         string        `json:"type"`
	Interaction  []Interaction `json:"interaction"`
	Versioning   string        `json:"versioning"`
	ReadHistory  bool          `json:"readHistory"`
	UpdateCreate bool          `json:"updateCreate"`
	SearchParam  []SearchParam `json:"searchParam,omitempty"`
}

type Interaction struct {
	Code string `json:"code"`
}

// CapabilityBuilder collects resource registrations during startup. It is
// not safe for concurrent use; register everything before serving.
type CapabilityBuilder struct {
	resources map[string]CapabilityResource

	ServerName    string
	ServerVersion string
	BaseURL       string
}

func NewCapabilityBuilder(baseURL, version string) *CapabilityBuilder {
	return &CapabilityBuilder{
		resources:     make(map[string]CapabilityResource),
		ServerName:    "FHIR-lite",
		ServerVersion: version,
		BaseURL:       baseURL,
	}
}

// AddResource registers a resource type. A second call for the same type
// replaces the earlier registration. Search parameters are sorted by name.
func (b *CapabilityBuilder) AddResource(resourceType string, interactions []string, searchParams []SearchParam) {
	params := append([]SearchParam(nil), searchParams...)
	sort.Slice(params, func(i, j int) bool { return params[i].Name < params[j].Name })

	codes := make([]Interaction, len(interactions))
	for i, code := range interactions {
		codes[i] = Interaction{Code: code}
	}
	b.resources[resourceType] = CapabilityResource{
		Type:        resourceType,
		Interaction: codes,
		Versioning:  "no-version",
		SearchParam: params,
	}
}

// ResourceTypes lists registered types in alphabetical order.
func (b *CapabilityBuilder) ResourceTypes() []string {
	types := make([]string, 0, len(b.resources))
	for rt := range b.resources {
		types = append(types, rt)
	}
	sort.Strings(types)
	return types
}

// Build renders the statement, stamped with today's date.
func (b *CapabilityBuilder) Build() *CapabilityStatement {
	types := b.ResourceTypes()
	resources := make([]CapabilityResource, 0, len(types))
	for _, rt := range types {
		resources = append(resources, b.resources[rt])
	}

	return &CapabilityStatement{
		ResourceType: "CapabilityStatement",
		Status:       "active",
		Date:         FormatDate(time.Now().UTC()),
		Kind:         "instance",
		FHIRVersion:  FHIRVersion,
		Format:       []string{"json"},
		Software:     CapabilitySoftware{Name: b.ServerName, Version: b.ServerVersion},
		Implementation: CapabilityImpl{
			Description: b.ServerName + " FHIR R4 server",
			URL:         b.BaseURL,
		},
		Rest: []CapabilityRest{{Mode: "server", Resource: resources}},
	}
}

// CapabilityHandler serves the CapabilityStatement built at startup.
type CapabilityHandler struct {
	statement *CapabilityStatement
}

func NewCapabilityHandler(builder *CapabilityBuilder) *CapabilityHandler {
	return &CapabilityHandler{statement: builder.Build()}
}

func (h *CapabilityHandler) RegisterRoutes(e *echo.Echo, mw ...echo.MiddlewareFunc) {
	e.GET("/metadata", h.GetMetadata, mw...)
}

func (h *CapabilityHandler) GetMetadata(c echo.Context) error {
	return JSON(c, http.StatusOK, h.statement)
}
