package observation

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/fhirlite/server/internal/platform/fhir"
)

const glucose = `{
	"resourceType": "Observation",
	"status": "final",
	"category": [{"coding": [{"system": "http://terminology.hl7.org/CodeSystem/observation-category", "code": "laboratory"}]}],
	"code": {"coding": [{"system": "http://loinc.org", "code": "2345-7", "display": "Glucose"}], "text": "Glucose"},
	"subject": {"reference": "Patient/p-1"},
	"effectiveDateTime": "2024-03-01T08:30:00Z",
	"valueQuantity": {"value": 6.3, "unit": "mmol/L", "system": "http://unitsofmeasure.org", "code": "mmol/L"},
	"referenceRange": [{"low": {"value": 3.1, "unit": "mmol/L"}, "high": {"value": 6.2, "unit": "mmol/L"}}]
}`

func mustDoc(t *testing.T, body string) fhir.Document {
	t.Helper()
	doc, err := fhir.ParseDocument([]byte(body))
	if err != nil {
		t.Fatalf("parse %s: %v", body, err)
	}
	return doc
}

func normalize(t *testing.T, v interface{}) interface{} {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestObservation_RoundTrip(t *testing.T) {
	o := New("o-1")
	if err := o.FromFHIR(mustDoc(t, glucose)); err != nil {
		t.Fatalf("FromFHIR: %v", err)
	}
	if o.SubjectID != "p-1" {
		t.Errorf("SubjectID = %q", o.SubjectID)
	}

	var want map[string]interface{}
	if err := json.Unmarshal([]byte(glucose), &want); err != nil {
		t.Fatal(err)
	}
	want["id"] = "o-1"

	if got := normalize(t, o.ToFHIR()); !reflect.DeepEqual(got, normalize(t, want)) {
		t.Errorf("round trip mismatch\n got: %v\nwant: %v", got, want)
	}
}

func TestObservation_ToFHIR_Minimal(t *testing.T) {
	o := &Observation{ID: "o-2", Status: "final", Code: json.RawMessage(`{"text":"x"}`), SubjectID: "p-9"}
	out := normalize(t, o.ToFHIR()).(map[string]interface{})

	for _, key := range []string{"category", "effectiveDateTime", "valueQuantity", "referenceRange"} {
		if _, ok := out[key]; ok {
			t.Errorf("expected %s to be omitted", key)
		}
	}
	subject := out["subject"].(map[string]interface{})
	if subject["reference"] != "Patient/p-9" {
		t.Errorf("subject = %v", subject)
	}
}

func TestObservation_FromFHIR_EffectiveDateTimeFormats(t *testing.T) {
	tests := map[string]time.Time{
		"2024-03-01T08:30:00Z":      time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC),
		"2024-03-01T10:30:00+02:00": time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC),
		"2024-03-01T08:30:00":       time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC),
		"2024-03-01":                time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	for in, want := range tests {
		o := New("o")
		body := `{"status":"final","code":{"text":"x"},"subject":{"reference":"Patient/p"},"effectiveDateTime":"` + in + `"}`
		if err := o.FromFHIR(mustDoc(t, body)); err != nil {
			t.Errorf("%s: %v", in, err)
			continue
		}
		if !o.EffectiveDateTime.Equal(want) {
			t.Errorf("%s: got %v, want %v", in, o.EffectiveDateTime, want)
		}
	}
}

func TestObservation_FromFHIR_PartialUpdateKeepsValues(t *testing.T) {
	o := New("o")
	if err := o.FromFHIR(mustDoc(t, glucose)); err != nil {
		t.Fatal(err)
	}
	before := *o

	if err := o.FromFHIR(mustDoc(t, `{"status":"amended"}`)); err != nil {
		t.Fatalf("partial update: %v", err)
	}
	if o.Status != "amended" {
		t.Errorf("status = %s", o.Status)
	}
	if string(o.Code) != string(before.Code) || o.SubjectID != before.SubjectID ||
		string(o.ValueQuantity) != string(before.ValueQuantity) || !o.EffectiveDateTime.Equal(*before.EffectiveDateTime) {
		t.Error("absent members should keep their values")
	}
}

func TestObservation_FromFHIR_Validation(t *testing.T) {
	base := `"code":{"text":"x"},"subject":{"reference":"Patient/p"}`
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"wrong resourceType", `{"resourceType":"Patient","status":"final",` + base + `}`, "resourceType"},
		{"missing status", `{` + base + `}`, "status"},
		{"bad status", `{"status":"done",` + base + `}`, "status"},
		{"missing code", `{"status":"final","subject":{"reference":"Patient/p"}}`, "code"},
		{"code array", `{"status":"final","code":[{"text":"x"}],"subject":{"reference":"Patient/p"}}`, "code"},
		{"missing subject", `{"status":"final","code":{"text":"x"}}`, "subject"},
		{"subject wrong type", `{"status":"final","code":{"text":"x"},"subject":{"reference":"Group/g"}}`, "subject"},
		{"subject bare id", `{"status":"final","code":{"text":"x"},"subject":{"reference":"p"}}`, "subject"},
		{"subject empty id", `{"status":"final","code":{"text":"x"},"subject":{"reference":"Patient/"}}`, "subject"},
		{"subject absolute", `{"status":"final","code":{"text":"x"},"subject":{"reference":"http://x/Patient/p"}}`, "subject"},
		{"category object", `{"status":"final","category":{"text":"lab"},` + base + `}`, "category"},
		{"valueQuantity array", `{"status":"final","valueQuantity":[1],` + base + `}`, "valueQuantity"},
		{"valueQuantity bad value", `{"status":"final","valueQuantity":{"value":"high"},` + base + `}`, "valueQuantity"},
		{"referenceRange object", `{"status":"final","referenceRange":{"text":"n"},` + base + `}`, "referenceRange"},
		{"bad effectiveDateTime", `{"status":"final","effectiveDateTime":"yesterday",` + base + `}`, "effectiveDateTime"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := New("o")
			err := o.FromFHIR(mustDoc(t, tt.body))
			ve, ok := fhir.AsValidationError(err)
			if !ok {
				t.Fatalf("expected validation error, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("field = %q, want %q (%s)", ve.Field, tt.field, ve.Msg)
			}
			if o.Status != "" || o.Code != nil || o.SubjectID != "" {
				t.Errorf("record mutated by failed FromFHIR: %+v", o)
			}
		})
	}
}
