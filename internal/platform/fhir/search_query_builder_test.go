package fhir

import (
	"net/url"
	"testing"
	"time"
)

var testConfigs = map[string]SearchParamConfig{
	"gender":    {Type: SearchParamToken, Column: "gender"},
	"birthdate": {Type: SearchParamDate, Column: "birth_date"},
	"birthDate": {Type: SearchParamDate, Column: "birth_date"},
	"date":      {Type: SearchParamDateTime, Column: "effective_datetime"},
	"patient":   {Type: SearchParamReference, Column: "subject_reference", Target: "Patient"},
	"family": {
		Type:           SearchParamContains,
		Column:         "name",
		CapabilityType: "string",
		Pattern: func(v string) interface{} {
			return []map[string]string{{"family": v}}
		},
	},
}

func TestSearchQuery_Empty(t *testing.T) {
	q := NewSearchQuery("patients", "id")
	q.OrderBy("created_at ASC, id ASC")

	if got := q.CountSQL(); got != "SELECT COUNT(*) FROM patients WHERE 1=1" {
		t.Errorf("CountSQL = %s", got)
	}
	if got := q.DataSQL(); got != "SELECT id FROM patients WHERE 1=1 ORDER BY created_at ASC, id ASC LIMIT $1 OFFSET $2" {
		t.Errorf("DataSQL = %s", got)
	}
	args := q.DataArgs(10, 0)
	if len(args) != 2 || args[0] != 10 || args[1] != 0 {
		t.Errorf("DataArgs = %v", args)
	}
}

func TestSearchQuery_ApplyParams(t *testing.T) {
	q := NewSearchQuery("patients", "id")
	params := url.Values{
		"gender":    {"female"},
		"family":    {"Doe"},
		"unknown":   {"ignored"},
		"count":     {"5"},
		"birthdate": {""},
	}
	if err := q.ApplyParams(params, testConfigs); err != nil {
		t.Fatalf("ApplyParams: %v", err)
	}

	want := "SELECT COUNT(*) FROM patients WHERE 1=1 AND name @> $1::jsonb AND gender = $2"
	if got := q.CountSQL(); got != want {
		t.Errorf("CountSQL =\n%s\nwant\n%s", got, want)
	}
	args := q.CountArgs()
	if len(args) != 2 {
		t.Fatalf("expected 2 args, got %v", args)
	}
	if args[0] != `[{"family":"Doe"}]` {
		t.Errorf("containment pattern = %v", args[0])
	}
	if args[1] != "female" {
		t.Errorf("gender arg = %v", args[1])
	}
	if got := q.DataSQL(); got != "SELECT id FROM patients WHERE 1=1 AND name @> $1::jsonb AND gender = $2 LIMIT $3 OFFSET $4" {
		t.Errorf("DataSQL = %s", got)
	}
}

func TestSearchQuery_ReferenceStripsPrefix(t *testing.T) {
	for _, v := range []string{"Patient/abc", "abc"} {
		q := NewSearchQuery("observations", "id")
		if err := q.ApplyParam("patient", testConfigs["patient"], v); err != nil {
			t.Fatal(err)
		}
		if q.CountArgs()[0] != "abc" {
			t.Errorf("patient=%s: arg = %v", v, q.CountArgs()[0])
		}
	}
}

func TestSearchQuery_DateParams(t *testing.T) {
	q := NewSearchQuery("observations", "id")
	if err := q.ApplyParam("date", testConfigs["date"], "2024-01-15T10:30:00Z"); err != nil {
		t.Fatal(err)
	}
	got, ok := q.CountArgs()[0].(time.Time)
	if !ok || !got.Equal(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)) {
		t.Errorf("date arg = %v", q.CountArgs()[0])
	}
	if q.CountSQL() != "SELECT COUNT(*) FROM observations WHERE 1=1 AND effective_datetime = $1" {
		t.Errorf("CountSQL = %s", q.CountSQL())
	}

	if err := q.ApplyParam("date", testConfigs["date"], "last week"); !IsValidationError(err) {
		t.Errorf("expected validation error for bad date, got %v", err)
	}
	if err := q.ApplyParam("birthdate", testConfigs["birthdate"], "1990-02-30"); !IsValidationError(err) {
		t.Errorf("expected validation error for bad birthdate, got %v", err)
	}
}

func TestCapabilityParams(t *testing.T) {
	params := CapabilityParams(testConfigs, "birthdate")

	got := map[string]string{}
	for _, p := range params {
		got[p.Name] = p.Type
	}
	want := map[string]string{
		"birthdate": "date",
		"date":      "date",
		"family":    "string",
		"gender":    "token",
		"patient":   "reference",
	}
	if len(got) != len(want) {
		t.Fatalf("got params %v, want %v", got, want)
	}
	for name, typ := range want {
		if got[name] != typ {
			t.Errorf("%s: type %q, want %q", name, got[name], typ)
		}
	}
}
