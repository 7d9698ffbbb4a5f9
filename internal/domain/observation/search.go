package observation

import (
	"github.com/fhirlite/server/internal/domain/patient"
	"github.com/fhirlite/server/internal/platform/fhir"
)

var subjectParam = fhir.SearchParamConfig{
	Type:   fhir.SearchParamReference,
	Column: "subject_reference",
	Target: patient.ResourceType,
}

// SearchParams maps Observation query parameters to their predicates.
var SearchParams = map[string]fhir.SearchParamConfig{
	"patient": subjectParam,
	"subject": subjectParam,
	"category": {
		Type:   fhir.SearchParamContains,
		Column: "category",
		Pattern: func(v string) interface{} {
			return []fhir.CodeableConcept{{Coding: []fhir.Coding{coding(v)}}}
		},
	},
	"code": {
		Type:   fhir.SearchParamContains,
		Column: "code",
		Pattern: func(v string) interface{} {
			return fhir.CodeableConcept{Coding: []fhir.Coding{coding(v)}}
		},
	},
	"date": {Type: fhir.SearchParamDateTime, Column: "effective_datetime"},
}

// coding turns a "system|code" or bare "code" token into the Coding shape
// a stored element must contain.
func coding(token string) fhir.Coding {
	system, code, _ := fhir.SplitToken(token)
	return fhir.Coding{System: system, Code: code}
}
