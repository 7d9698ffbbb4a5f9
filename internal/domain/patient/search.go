package patient

import "github.com/fhirlite/server/internal/platform/fhir"

var birthDateParam = fhir.SearchParamConfig{Type: fhir.SearchParamDate, Column: "birth_date"}

// SearchParams maps Patient query parameters to their predicates.
var SearchParams = map[string]fhir.SearchParamConfig{
	"family": {
		Type:           fhir.SearchParamContains,
		Column:         "name",
		CapabilityType: "string",
		Pattern: func(v string) interface{} {
			return []map[string]interface{}{{"family": v}}
		},
	},
	"given": {
		Type:           fhir.SearchParamContains,
		Column:         "name",
		CapabilityType: "string",
		Pattern: func(v string) interface{} {
			return []map[string]interface{}{{"given": []string{v}}}
		},
	},
	"email": {
		Type:   fhir.SearchParamContains,
		Column: "telecom",
		Pattern: func(v string) interface{} {
			return []fhir.ContactPoint{{System: "email", Value: v}}
		},
	},
	"identifier": {
		Type:   fhir.SearchParamContains,
		Column: "identifier",
		Pattern: func(v string) interface{} {
			system, value, ok := fhir.SplitToken(v)
			if !ok {
				return []map[string]interface{}{{"value": value}}
			}
			return []map[string]interface{}{{"system": system, "value": value}}
		},
	},
	"gender":     {Type: fhir.SearchParamToken, Column: "gender"},
	"active":     {Type: fhir.SearchParamToken, Column: "active"},
	"birthdate":  birthDateParam,
	"birthDate":  birthDateParam,
	"birth_date": birthDateParam,
}
