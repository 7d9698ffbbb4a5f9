package observation

import (
	"encoding/json"
	"time"

	"github.com/fhirlite/server/internal/domain/patient"
	"github.com/fhirlite/server/internal/platform/fhir"
)

const ResourceType = "Observation"

var validStatuses = map[string]bool{
	"registered":       true,
	"preliminary":      true,
	"final":            true,
	"amended":          true,
	"cancelled":        true,
	"entered-in-error": true,
}

// Observation is a measurement about one Patient. Coded elements and
// quantities are stored exactly as submitted.
type Observation struct {
	ID                string
	Status            string
	Category          json.RawMessage
	Code              json.RawMessage
	SubjectID         string
	EffectiveDateTime *time.Time
	ValueQuantity     json.RawMessage
	ReferenceRange    json.RawMessage
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func New(id string) *Observation {
	return &Observation{ID: id}
}

func (o *Observation) ResourceType() string { return ResourceType }
func (o *Observation) ResourceID() string   { return o.ID }

// SubjectReference is the subject as a relative reference, "Patient/{id}".
func (o *Observation) SubjectReference() string {
	return fhir.FormatReference(patient.ResourceType, o.SubjectID)
}

func (o *Observation) ToFHIR() map[string]interface{} {
	result := map[string]interface{}{
		"resourceType": ResourceType,
		"id":           o.ID,
		"status":       o.Status,
		"code":         o.Code,
		"subject":      fhir.Reference{Reference: o.SubjectReference()},
	}
	if !fhir.IsEmptyJSON(o.Category) {
		result["category"] = o.Category
	}
	if o.EffectiveDateTime != nil {
		result["effectiveDateTime"] = fhir.FormatDateTime(*o.EffectiveDateTime)
	}
	if !fhir.IsEmptyJSON(o.ValueQuantity) {
		result["valueQuantity"] = o.ValueQuantity
	}
	if !fhir.IsEmptyJSON(o.ReferenceRange) {
		result["referenceRange"] = o.ReferenceRange
	}
	return result
}

// FromFHIR copies the members present in doc onto the observation. Absent
// members leave the current values in place.
func (o *Observation) FromFHIR(doc fhir.Document) error {
	if err := doc.CheckResourceType(ResourceType); err != nil {
		return err
	}
	next := *o

	if status, ok, err := doc.String("status"); err != nil {
		return err
	} else if ok {
		if !validStatuses[status] {
			return fhir.Invalid("status", "status %q is not a valid observation status", status)
		}
		next.Status = status
	}

	if raw, err := doc.Object("code"); err != nil {
		return err
	} else if raw != nil {
		var cc fhir.CodeableConcept
		if err := fhir.DecodeInto("code", raw, &cc); err != nil {
			return err
		}
		next.Code = raw
	}

	if raw, err := doc.Array("category"); err != nil {
		return err
	} else if raw != nil {
		var cats []fhir.CodeableConcept
		if err := fhir.DecodeInto("category", raw, &cats); err != nil {
			return err
		}
		next.Category = raw
	}

	if raw, err := doc.Object("subject"); err != nil {
		return err
	} else if raw != nil {
		id, err := parseSubject(raw)
		if err != nil {
			return err
		}
		next.SubjectID = id
	}

	if s, ok, err := doc.String("effectiveDateTime"); err != nil {
		return err
	} else if ok {
		t, err := fhir.ParseDateTime(s)
		if err != nil {
			return fhir.Invalid("effectiveDateTime", "effectiveDateTime must be an ISO 8601 date or dateTime, got %q", s)
		}
		next.EffectiveDateTime = &t
	}

	if raw, err := doc.Object("valueQuantity"); err != nil {
		return err
	} else if raw != nil {
		var q fhir.Quantity
		if err := fhir.DecodeInto("valueQuantity", raw, &q); err != nil {
			return err
		}
		next.ValueQuantity = raw
	}

	if raw, err := doc.Array("referenceRange"); err != nil {
		return err
	} else if raw != nil {
		var ranges []fhir.Range
		if err := fhir.DecodeInto("referenceRange", raw, &ranges); err != nil {
			return err
		}
		next.ReferenceRange = raw
	}

	switch {
	case next.Status == "":
		return fhir.Invalid("status", "status is required")
	case fhir.IsEmptyJSON(next.Code):
		return fhir.Invalid("code", "code is required")
	case next.SubjectID == "":
		return fhir.Invalid("subject", "subject is required")
	}

	*o = next
	return nil
}

// parseSubject accepts only a relative "Patient/{id}" reference.
func parseSubject(raw json.RawMessage) (string, error) {
	var ref fhir.Reference
	if err := fhir.DecodeInto("subject", raw, &ref); err != nil {
		return "", err
	}
	rt, id, ok := fhir.ParseReference(ref.Reference)
	if !ok || rt != patient.ResourceType {
		return "", fhir.Invalid("subject", "subject.reference must have the form Patient/{id}, got %q", ref.Reference)
	}
	return id, nil
}
