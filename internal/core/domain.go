package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// PlansCollection is the document collection holding billing plans.
const PlansCollection = "billingPlans"

type (
	Date struct {
		time.Time
	}

	// BillingStep is one scheduled invoicing event within a plan.
	BillingStep struct {
		Amount       decimal.Decimal
		Revision     decimal.NullDecimal
		Date         Date
		Invoiced     bool
		Reliability  Reliability
		StepsComment string

		// decodeErr keeps a malformed field seen while decoding so the
		// aggregator can reject the step instead of the whole plan. raw is
		// the undecodable document, written back as is.
		decodeErr error
		raw       json.RawMessage
	}

	// BillingPlan is the persisted invoicing schedule of one quotation.
	// Step order defines the step index and the step count.
	BillingPlan struct {
		DocID        string
		QuotationID  int64
		ProjectTitle string
		GeneratedBy  string
		Steps        []BillingStep
	}
)

var (
	ErrMissingDate      = errors.New("missing or invalid step date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidRevision  = errors.New("invalid revision")
	ErrEmptySteps       = errors.New("billing plan has no steps")
	ErrInvalidQuotation = errors.New("invalid quotation id")
	ErrPlanUnderQuoted  = errors.New("plan total with revisions must exceed the quotation total")
)

const dateLayout = "2006-01-02"

var dateLayouts = []string{
	dateLayout,
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02/01/2006",
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts ISO dates, RFC 3339 timestamps and dd/mm/yyyy.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrMissingDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Date{Time: t}, nil
		}
	}
	return Date{}, fmt.Errorf("%w: %q", ErrMissingDate, s)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrMissingDate
	}
	return nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// MonthKey returns the calendar month the date falls in.
func (d Date) MonthKey() MonthKey {
	return MonthKeyOf(d.Time)
}

// Sum returns amount plus revision, a null revision counting as zero.
func (s BillingStep) Sum() decimal.Decimal {
	if s.Revision.Valid {
		return s.Amount.Add(s.Revision.Decimal)
	}
	return s.Amount
}

// RevisionValue returns the revision or zero when it is null.
func (s BillingStep) RevisionValue() decimal.Decimal {
	if s.Revision.Valid {
		return s.Revision.Decimal
	}
	return decimal.Zero
}

func (s BillingStep) Validate() error {
	if s.decodeErr != nil {
		return s.decodeErr
	}
	return s.Date.Validate()
}

type stepWire struct {
	Amount       json.RawMessage `json:"amount"`
	Revision     json.RawMessage `json:"revision"`
	Date         json.RawMessage `json:"date"`
	Invoiced     bool            `json:"invoiced"`
	Reliability  Reliability     `json:"reliability"`
	StepsComment string          `json:"stepsComment,omitempty"`
}

// UnmarshalJSON decodes a step leniently: amounts as numbers or strings,
// dates as strings or {seconds,nanoseconds} timestamps. A malformed amount
// or date does not fail decoding; it surfaces from Validate.
func (s *BillingStep) UnmarshalJSON(data []byte) error {
	var w stepWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = BillingStep{
		Invoiced:     w.Invoiced,
		Reliability:  w.Reliability,
		StepsComment: w.StepsComment,
	}

	amount, ok, err := decodeDecimal(w.Amount)
	switch {
	case err != nil:
		s.decodeErr = fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	case !ok:
		s.decodeErr = fmt.Errorf("%w: missing", ErrInvalidAmount)
	default:
		s.Amount = amount
	}

	revision, ok, err := decodeDecimal(w.Revision)
	if err != nil && s.decodeErr == nil {
		s.decodeErr = fmt.Errorf("%w: %v", ErrInvalidRevision, err)
	} else if ok {
		s.Revision = decimal.NullDecimal{Decimal: revision, Valid: true}
	}

	d, err := decodeDate(w.Date)
	if err != nil && s.decodeErr == nil {
		s.decodeErr = err
	}
	s.Date = d
	if s.decodeErr != nil {
		s.raw = append(json.RawMessage(nil), data...)
	}
	return nil
}

// MarshalJSON writes a step rejected at decode time back unchanged.
func (s BillingStep) MarshalJSON() ([]byte, error) {
	if s.decodeErr != nil && len(s.raw) > 0 {
		return s.raw, nil
	}
	w := struct {
		Amount       json.Number  `json:"amount"`
		Revision     *json.Number `json:"revision"`
		Date         string       `json:"date"`
		Invoiced     bool         `json:"invoiced"`
		Reliability  Reliability  `json:"reliability"`
		StepsComment string       `json:"stepsComment,omitempty"`
	}{
		Amount:       json.Number(s.Amount.String()),
		Date:         s.Date.String(),
		Invoiced:     s.Invoiced,
		Reliability:  s.Reliability,
		StepsComment: s.StepsComment,
	}
	if s.Revision.Valid {
		n := json.Number(s.Revision.Decimal.String())
		w.Revision = &n
	}
	return json.Marshal(w)
}

func decodeDecimal(raw json.RawMessage) (decimal.Decimal, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Zero, false, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, false, err
		}
		if strings.TrimSpace(s) == "" {
			return decimal.Zero, false, nil
		}
		d, err := ParseAmount(s)
		return d, err == nil, err
	}
	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero, false, err
	}
	return d, true, nil
}

func decodeDate(raw json.RawMessage) (Date, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Date{}, ErrMissingDate
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Date{}, fmt.Errorf("%w: %v", ErrMissingDate, err)
		}
		return ParseDate(s)
	case '{':
		var ts struct {
			Seconds     *int64 `json:"seconds"`
			Nanoseconds int64  `json:"nanoseconds"`
		}
		if err := json.Unmarshal(raw, &ts); err != nil || ts.Seconds == nil {
			return Date{}, ErrMissingDate
		}
		return Date{Time: time.Unix(*ts.Seconds, ts.Nanoseconds).In(TimestampLocation())}, nil
	}
	return Date{}, fmt.Errorf("%w: %s", ErrMissingDate, raw)
}

var timestampLocation atomic.Pointer[time.Location]

// SetTimestampLocation sets the zone {seconds,nanoseconds} dates are read
// in, which decides their calendar month. A nil loc resets it to UTC.
func SetTimestampLocation(loc *time.Location) {
	timestampLocation.Store(loc)
}

// TimestampLocation returns the zone set by SetTimestampLocation.
func TimestampLocation() *time.Location {
	if loc := timestampLocation.Load(); loc != nil {
		return loc
	}
	return time.UTC
}

type planWire struct {
	QuotationID  json.RawMessage `json:"quotationId"`
	ProjectTitle string          `json:"projectTitle"`
	GeneratedBy  string          `json:"generatedBy"`
	Steps        []BillingStep   `json:"steps"`
}

// UnmarshalJSON accepts the quotation id as a number or a numeric string.
// DocID is not part of the document body and is left untouched.
func (p *BillingPlan) UnmarshalJSON(data []byte) error {
	var w planWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	id, err := decodeQuotationID(w.QuotationID)
	if err != nil {
		return err
	}
	p.QuotationID = id
	p.ProjectTitle = w.ProjectTitle
	p.GeneratedBy = w.GeneratedBy
	p.Steps = w.Steps
	return nil
}

func (p BillingPlan) MarshalJSON() ([]byte, error) {
	steps := p.Steps
	if steps == nil {
		steps = []BillingStep{}
	}
	return json.Marshal(struct {
		QuotationID  int64         `json:"quotationId"`
		ProjectTitle string        `json:"projectTitle"`
		GeneratedBy  string        `json:"generatedBy"`
		Steps        []BillingStep `json:"steps"`
	}{p.QuotationID, p.ProjectTitle, p.GeneratedBy, steps})
}

func decodeQuotationID(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
	}
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidQuotation, raw)
	}
	return id, nil
}

// DocIDFor returns the document id of the plan for a quotation.
func DocIDFor(quotationID int64) string {
	return strconv.FormatInt(quotationID, 10)
}

// Title returns the project title with HTML entities decoded.
func (p BillingPlan) Title() string {
	return html.UnescapeString(p.ProjectTitle)
}

// Total sums amount+revision over every step.
func (p BillingPlan) Total() decimal.Decimal {
	total := decimal.Zero
	for _, s := range p.Steps {
		total = total.Add(s.Sum())
	}
	return total
}

// HasRevision reports whether any step carries a non-zero revision.
func (p BillingPlan) HasRevision() bool {
	for _, s := range p.Steps {
		if s.Revision.Valid && !s.Revision.Decimal.IsZero() {
			return true
		}
	}
	return false
}

// Validate checks the plan shape and every step.
func (p BillingPlan) Validate() error {
	if p.QuotationID <= 0 {
		return ErrInvalidQuotation
	}
	if len(p.Steps) == 0 {
		return ErrEmptySteps
	}
	var errs []error
	for i, s := range p.Steps {
		if err := s.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("step %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// ValidateAgainstQuotation applies the creation rule: when any revision is
// present the plan total must exceed the quotation's tax-inclusive total.
func (p BillingPlan) ValidateAgainstQuotation(quotationTotal decimal.Decimal) error {
	if !p.HasRevision() {
		return nil
	}
	if !p.Total().GreaterThan(quotationTotal) {
		return fmt.Errorf("%w: plan %s, quotation %s", ErrPlanUnderQuoted, p.Total().StringFixed(2), quotationTotal.StringFixed(2))
	}
	return nil
}
