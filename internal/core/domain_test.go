package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want Date
		ok   bool
	}{
		{"2025-03-10", NewDate(2025, 3, 10), true},
		{"2025-03-10T09:30:00Z", Date{Time: time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)}, true},
		{"10/03/2025", NewDate(2025, 3, 10), true},
		{"", Date{}, false},
		{"Invalid Date", Date{}, false},
	}
	for _, tc := range cases {
		got, err := ParseDate(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(tc.want.Time) {
				t.Fatalf("%q expected %v, got %v (err=%v)", tc.in, tc.want, got, err)
			}
			continue
		}
		if !errors.Is(err, ErrMissingDate) {
			t.Fatalf("%q expected ErrMissingDate, got %v", tc.in, err)
		}
	}
}

func TestStepUnmarshalLenient(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr error
		sum     string
	}{
		{"numbers", `{"amount":1000,"revision":0,"date":"2025-03-10","invoiced":false,"reliability":100}`, nil, "1000"},
		{"strings", `{"amount":"500","revision":"50","date":"2025-03-20","invoiced":true,"reliability":"75"}`, nil, "550"},
		{"comma decimal", `{"amount":"12,50","date":"2025-01-01"}`, nil, "12.5"},
		{"null revision", `{"amount":10,"revision":null,"date":"2025-01-01"}`, nil, "10"},
		{"timestamp date", `{"amount":10,"date":{"seconds":1741564800,"nanoseconds":0}}`, nil, "10"},
		{"missing date", `{"amount":10}`, ErrMissingDate, "10"},
		{"bad date", `{"amount":10,"date":"Invalid Date"}`, ErrMissingDate, "10"},
		{"bad amount", `{"amount":"abc","date":"2025-01-01"}`, ErrInvalidAmount, "0"},
		{"missing amount", `{"date":"2025-01-01"}`, ErrInvalidAmount, "0"},
		{"bad revision", `{"amount":1,"revision":"x","date":"2025-01-01"}`, ErrInvalidRevision, "1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var s BillingStep
			if err := json.Unmarshal([]byte(tc.body), &s); err != nil {
				t.Fatalf("unmarshal should not fail: %v", err)
			}
			err := s.Validate()
			if tc.wantErr == nil && err != nil {
				t.Fatalf("expected valid step, got %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if !s.Sum().Equal(decimal.RequireFromString(tc.sum)) {
				t.Fatalf("sum = %s, want %s", s.Sum(), tc.sum)
			}
		})
	}
}

func TestMalformedStepIsWrittenBackUnchanged(t *testing.T) {
	body := `{"quotationId":3,"projectTitle":"","generatedBy":"","steps":[` +
		`{"amount":100,"date":"2025-03-10"},` +
		`{"amount":"abc","date":"2025-04-10","invoiced":false},` +
		`{"amount":300,"date":"not a date"}]}`
	var p BillingPlan
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	p.Steps[0].Invoiced = true

	out, err := json.Marshal(p.Steps)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(out, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	if got := string(raw[1]); got != `{"amount":"abc","date":"2025-04-10","invoiced":false}` {
		t.Fatalf("bad amount step rewritten: %s", got)
	}
	if got := string(raw[2]); got != `{"amount":300,"date":"not a date"}` {
		t.Fatalf("bad date step rewritten: %s", got)
	}

	var back []BillingStep
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal back: %v", err)
	}
	if !back[0].Invoiced || back[1].Validate() == nil || back[2].Validate() == nil {
		t.Fatalf("unexpected steps after write back: %s", out)
	}
}

func TestTimestampDateUsesLocation(t *testing.T) {
	// 2025-03-01T00:00:00+01:00
	body := `{"amount":10,"date":{"seconds":1740783600,"nanoseconds":0}}`

	var utc BillingStep
	if err := json.Unmarshal([]byte(body), &utc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := utc.Date.MonthKey(); got != (MonthKey{Year: 2025, Month: time.February}) {
		t.Fatalf("UTC month = %v", got)
	}

	SetTimestampLocation(time.FixedZone("CET", 3600))
	t.Cleanup(func() { SetTimestampLocation(nil) })

	var local BillingStep
	if err := json.Unmarshal([]byte(body), &local); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := local.Date.MonthKey(); got != (MonthKey{Year: 2025, Month: time.March}) {
		t.Fatalf("local month = %v", got)
	}
	if local.Date.String() != "2025-03-01" {
		t.Fatalf("local date = %s", local.Date)
	}
}

func TestPlanJSONRoundTripKeepsStepOrder(t *testing.T) {
	body := `{"quotationId":"42","projectTitle":"Caf&eacute; &amp; Co","generatedBy":"ada@example.com",
		"steps":[{"amount":100,"date":"2025-01-05","reliability":100},{"amount":200,"revision":-20,"date":"2025-02-05"}]}`
	var p BillingPlan
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.QuotationID != 42 {
		t.Fatalf("quotation id = %d", p.QuotationID)
	}
	if p.Title() != "Café & Co" {
		t.Fatalf("title = %q", p.Title())
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	out, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back BillingPlan
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal back: %v", err)
	}
	if len(back.Steps) != 2 || !back.Steps[1].Sum().Equal(decimal.NewFromInt(180)) {
		t.Fatalf("unexpected steps after round trip: %s", out)
	}
	if !back.Steps[0].Reliability.Is(100) || back.Steps[1].Reliability.Defined() {
		t.Fatalf("reliability not preserved: %s", out)
	}
}

func TestPlanValidate(t *testing.T) {
	good := BillingPlan{QuotationID: 1, Steps: []BillingStep{{Amount: decimal.NewFromInt(1), Date: NewDate(2025, 1, 1)}}}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bads := []struct {
		plan BillingPlan
		want error
	}{
		{BillingPlan{Steps: good.Steps}, ErrInvalidQuotation},
		{BillingPlan{QuotationID: 1}, ErrEmptySteps},
		{BillingPlan{QuotationID: 1, Steps: []BillingStep{{Amount: decimal.NewFromInt(1)}}}, ErrMissingDate},
	}
	for i, tc := range bads {
		if err := tc.plan.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("case %d expected %v, got %v", i, tc.want, err)
		}
	}
}

func TestValidateAgainstQuotation(t *testing.T) {
	rev := decimal.NullDecimal{Decimal: decimal.NewFromInt(100), Valid: true}
	plan := BillingPlan{QuotationID: 1, Steps: []BillingStep{
		{Amount: decimal.NewFromInt(1000), Revision: rev, Date: NewDate(2025, 1, 1)},
	}}
	if err := plan.ValidateAgainstQuotation(decimal.NewFromInt(1000)); err != nil {
		t.Fatalf("1100 > 1000 should pass: %v", err)
	}
	if err := plan.ValidateAgainstQuotation(decimal.NewFromInt(1100)); !errors.Is(err, ErrPlanUnderQuoted) {
		t.Fatalf("expected ErrPlanUnderQuoted, got %v", err)
	}

	noRevision := BillingPlan{QuotationID: 1, Steps: []BillingStep{{Amount: decimal.NewFromInt(10), Date: NewDate(2025, 1, 1)}}}
	if err := noRevision.ValidateAgainstQuotation(decimal.NewFromInt(5000)); err != nil {
		t.Fatalf("rule only applies with revisions: %v", err)
	}
}
