package fhir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/labstack/echo/v4"
)

// Resource is a stored record with a FHIR document form. Patient and
// Observation records are its only implementations.
type Resource interface {
	ResourceType() string
	ResourceID() string
	// ToFHIR renders the record as a FHIR document.
	ToFHIR() map[string]interface{}
	// FromFHIR validates doc and overwrites the record's fields from it.
	// The record is left unchanged when an error is returned.
	FromFHIR(doc Document) error
}

// Document is an inbound FHIR JSON object with its members kept undecoded,
// so nested structures can be stored exactly as received.
type Document map[string]json.RawMessage

// ParseDocument decodes body, which must be a JSON object.
func ParseDocument(body []byte) (Document, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return nil, Invalid("", "request body must be a JSON object")
	}
	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, Invalid("", "malformed JSON: %v", err)
	}
	return doc, nil
}

// Has reports whether key is present with a non-null value.
func (d Document) Has(key string) bool {
	raw, ok := d[key]
	return ok && !IsEmptyJSON(raw)
}

// String returns the string member key. ok is false when the member is absent
// or null.
func (d Document) String(key string) (s string, ok bool, err error) {
	if !d.Has(key) {
		return "", false, nil
	}
	if err := json.Unmarshal(d[key], &s); err != nil {
		return "", false, Invalid(key, "%s must be a string", key)
	}
	return s, true, nil
}

// Array returns the raw member key after checking it is a JSON array.
func (d Document) Array(key string) (json.RawMessage, error) {
	raw := d[key]
	if IsEmptyJSON(raw) {
		return nil, nil
	}
	if raw[0] != '[' {
		return nil, Invalid(key, "%s must be an array", key)
	}
	return raw, nil
}

// Object returns the raw member key after checking it is a JSON object.
func (d Document) Object(key string) (json.RawMessage, error) {
	raw := d[key]
	if IsEmptyJSON(raw) {
		return nil, nil
	}
	if raw[0] != '{' {
		return nil, Invalid(key, "%s must be an object", key)
	}
	return raw, nil
}

// CheckResourceType fails when the document names a resourceType other than want.
func (d Document) CheckResourceType(want string) error {
	rt, ok, err := d.String("resourceType")
	if err != nil {
		return err
	}
	if ok && rt != want {
		return Invalid("resourceType", "resourceType must be %q, got %q", want, rt)
	}
	return nil
}

// IsEmptyJSON reports whether raw is missing, null, or an empty array, object or string.
func IsEmptyJSON(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "[]", "{}", `""`:
		return true
	}
	return false
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Type      string `json:"type,omitempty"`
	Display   string `json:"display,omitempty"`
}

type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Text   string   `json:"text,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
	Prefix []string `json:"prefix,omitempty"`
	Suffix []string `json:"suffix,omitempty"`
}

type Address struct {
	Use        string   `json:"use,omitempty"`
	Type       string   `json:"type,omitempty"`
	Text       string   `json:"text,omitempty"`
	Line       []string `json:"line,omitempty"`
	City       string   `json:"city,omitempty"`
	District   string   `json:"district,omitempty"`
	State      string   `json:"state,omitempty"`
	PostalCode string   `json:"postalCode,omitempty"`
	Country    string   `json:"country,omitempty"`
}

type ContactPoint struct {
	System string `json:"system"`
	Value  string `json:"value"`
	Use    string `json:"use,omitempty"`
}

type Quantity struct {
	Value  *json.Number `json:"value,omitempty"`
	Unit   string       `json:"unit,omitempty"`
	System string       `json:"system,omitempty"`
	Code   string       `json:"code,omitempty"`
}

type Range struct {
	Low  *Quantity `json:"low,omitempty"`
	High *Quantity `json:"high,omitempty"`
	Text string    `json:"text,omitempty"`
}

// ArrayOfObjects checks that raw is a JSON array whose elements are all objects.
func ArrayOfObjects(field string, raw json.RawMessage) error {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return Invalid(field, "%s must be an array", field)
	}
	for i, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			return Invalid(field, "%s[%d] must be an object", field, i)
		}
	}
	return nil
}

// DecodeInto decodes a raw member into v, reporting type mismatches as
// validation errors against field.
func DecodeInto(field string, raw json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return Invalid(field, "%s is malformed: %v", field, err)
	}
	return nil
}

// FormatReference builds a relative reference such as "Patient/123".
func FormatReference(resourceType, id string) string {
	return resourceType + "/" + id
}

// ParseReference splits "Type/id". ok is false for any other shape.
func ParseReference(ref string) (resourceType, id string, ok bool) {
	resourceType, id, found := strings.Cut(ref, "/")
	if !found || resourceType == "" || id == "" || strings.Contains(id, "/") {
		return "", "", false
	}
	return resourceType, id, true
}

// StripReference removes a leading "Type/" from ref, returning bare ids unchanged.
func StripReference(resourceType, ref string) string {
	return strings.TrimPrefix(ref, resourceType+"/")
}

// MarshalRaw is json.Marshal for values that are known to encode.
func MarshalRaw(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("fhir: marshal %T: %v", v, err))
	}
	return b
}

// ReadDocument reads and parses the request body. Echo's Bind does not
// accept application/fhir+json, so the body is decoded here.
func ReadDocument(c echo.Context) (Document, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return ParseDocument(body)
}
