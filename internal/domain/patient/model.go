package patient

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/fhirlite/server/internal/platform/fhir"
)

const ResourceType = "Patient"

var validGenders = map[string]bool{
	"male":    true,
	"female":  true,
	"other":   true,
	"unknown": true,
}

// Patient is the stored form of a FHIR Patient. Name, address and identifier
// are kept exactly as submitted; telecom is normalized on the way in.
type Patient struct {
	ID         string
	Active     string
	Gender     *string
	BirthDate  *time.Time
	Name       json.RawMessage
	Telecom    []fhir.ContactPoint
	Address    json.RawMessage
	Identifier json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// New returns an empty, active Patient with the given id.
func New(id string) *Patient {
	return &Patient{ID: id, Active: "true"}
}

func (p *Patient) ResourceType() string { return ResourceType }
func (p *Patient) ResourceID() string   { return p.ID }

func (p *Patient) IsActive() bool {
	return p.Active == "true"
}

func (p *Patient) ToFHIR() map[string]interface{} {
	result := map[string]interface{}{
		"resourceType": ResourceType,
		"id":           p.ID,
		"active":       p.IsActive(),
	}
	if !fhir.IsEmptyJSON(p.Name) {
		result["name"] = p.Name
	}
	if p.Gender != nil {
		result["gender"] = *p.Gender
	}
	if p.BirthDate != nil {
		result["birthDate"] = fhir.FormatDate(*p.BirthDate)
	}
	if len(p.Telecom) > 0 {
		result["telecom"] = p.Telecom
	}
	if !fhir.IsEmptyJSON(p.Address) {
		result["address"] = p.Address
	}
	if !fhir.IsEmptyJSON(p.Identifier) {
		result["identifier"] = p.Identifier
	}
	return result
}

// FromFHIR replaces the patient's fields with those of doc. A name absent
// from doc keeps the current name; every other field is replaced outright.
func (p *Patient) FromFHIR(doc fhir.Document) error {
	if err := doc.CheckResourceType(ResourceType); err != nil {
		return err
	}
	next := *p

	name, err := doc.Array("name")
	if err != nil {
		return err
	}
	if name != nil {
		var names []fhir.HumanName
		if err := fhir.DecodeInto("name", name, &names); err != nil {
			return err
		}
		next.Name = name
	}

	if next.Telecom, err = normalizeTelecom(doc); err != nil {
		return err
	}

	next.Gender = nil
	if gender, ok, err := doc.String("gender"); err != nil {
		return err
	} else if ok {
		if !validGenders[gender] {
			return fhir.Invalid("gender", "gender must be one of male, female, other, unknown; got %q", gender)
		}
		next.Gender = &gender
	}

	next.BirthDate = nil
	if bd, ok, err := doc.String("birthDate"); err != nil {
		return err
	} else if ok {
		t, err := fhir.ParseDate(bd)
		if err != nil {
			return fhir.Invalid("birthDate", "birthDate must be a date (YYYY-MM-DD), got %q", bd)
		}
		next.BirthDate = &t
	}

	if next.Address, err = doc.Array("address"); err != nil {
		return err
	}
	if next.Address != nil {
		var addrs []fhir.Address
		if err := fhir.DecodeInto("address", next.Address, &addrs); err != nil {
			return err
		}
	}

	if next.Identifier, err = doc.Array("identifier"); err != nil {
		return err
	}
	if next.Identifier != nil {
		if err := fhir.ArrayOfObjects("identifier", next.Identifier); err != nil {
			return err
		}
	}

	if next.Active, err = parseActive(doc); err != nil {
		return err
	}

	if err := next.checkIdentification(); err != nil {
		return err
	}

	*p = next
	return nil
}

// normalizeTelecom drops contact points without a system or value and keeps
// use only where it was given.
func normalizeTelecom(doc fhir.Document) ([]fhir.ContactPoint, error) {
	raw, err := doc.Array("telecom")
	if err != nil || raw == nil {
		return nil, err
	}

	var entries []struct {
		System *string `json:"system"`
		Value  *string `json:"value"`
		Use    *string `json:"use"`
	}
	if err := fhir.DecodeInto("telecom", raw, &entries); err != nil {
		return nil, err
	}

	var out []fhir.ContactPoint
	for _, e := range entries {
		if e.System == nil || *e.System == "" || e.Value == nil || *e.Value == "" {
			continue
		}
		cp := fhir.ContactPoint{System: *e.System, Value: *e.Value}
		if e.Use != nil {
			cp.Use = *e.Use
		}
		out = append(out, cp)
	}
	return out, nil
}

func parseActive(doc fhir.Document) (string, error) {
	if !doc.Has("active") {
		return "true", nil
	}

	var b bool
	if err := json.Unmarshal(doc["active"], &b); err == nil {
		if b {
			return "true", nil
		}
		return "false", nil
	}

	s, _, err := doc.String("active")
	if err != nil {
		return "", fhir.Invalid("active", "active must be a boolean")
	}
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "true", "false":
		return s, nil
	}
	return "", fhir.Invalid("active", "active must be true or false, got %q", s)
}

// checkIdentification requires a name, telecom or identifier. A patient known
// only by email addresses must have plausible ones.
func (p *Patient) checkIdentification() error {
	hasName := !fhir.IsEmptyJSON(p.Name)
	hasIdentifier := !fhir.IsEmptyJSON(p.Identifier)

	if !hasName && !hasIdentifier && len(p.Telecom) == 0 {
		return fhir.Invalid("", "Patient must have at least one of name, telecom or identifier")
	}
	if hasName || hasIdentifier {
		return nil
	}

	for _, cp := range p.Telecom {
		if cp.System != "email" {
			return nil
		}
	}
	for _, cp := range p.Telecom {
		if !strings.Contains(cp.Value, "@") || !strings.Contains(cp.Value, ".") {
			return fhir.Invalid("telecom", "telecom email %q is not a valid email address", cp.Value)
		}
	}
	return nil
}
