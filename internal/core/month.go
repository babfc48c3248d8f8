package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Locale selects display language for labels and exports.
type Locale string

const (
	LocaleFR Locale = "fr"
	LocaleEN Locale = "en"
)

var monthNames = map[Locale][12]string{
	LocaleFR: {"janvier", "février", "mars", "avril", "mai", "juin", "juillet", "août", "septembre", "octobre", "novembre", "décembre"},
	LocaleEN: {"January", "February", "March", "April", "May", "June", "July", "August", "September", "October", "November", "December"},
}

// ParseLocale maps "en", "en-US", "fr_FR"... onto a supported locale; the
// default is French.
func ParseLocale(s string) Locale {
	s = strings.ToLower(strings.TrimSpace(s))
	if strings.HasPrefix(s, "en") {
		return LocaleEN
	}
	return LocaleFR
}

// IsValid reports whether the locale is supported.
func (l Locale) IsValid() bool {
	_, ok := monthNames[l]
	return ok
}

func (l Locale) names() [12]string {
	if n, ok := monthNames[l]; ok {
		return n
	}
	return monthNames[LocaleFR]
}

// MonthName returns the localized month name.
func (l Locale) MonthName(m time.Month) string {
	if m < time.January || m > time.December {
		return ""
	}
	return l.names()[m-1]
}

// YesNo localizes a boolean.
func (l Locale) YesNo(b bool) string {
	switch {
	case l == LocaleEN && b:
		return "Yes"
	case l == LocaleEN:
		return "No"
	case b:
		return "Oui"
	default:
		return "Non"
	}
}

// MonthKey identifies a calendar month. It is the grouping and sorting key
// for billing buckets; display labels are derived from it.
type MonthKey struct {
	Year  int
	Month time.Month
}

// MonthKeyOf returns the month containing t.
func MonthKeyOf(t time.Time) MonthKey {
	return MonthKey{Year: t.Year(), Month: t.Month()}
}

// String formats the key as YYYY-MM.
func (k MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, int(k.Month))
}

// Label returns the "Month Year" display text, e.g. "March 2025" or "mars 2025".
func (k MonthKey) Label(l Locale) string {
	return l.MonthName(k.Month) + " " + strconv.Itoa(k.Year)
}

// Before reports whether k is an earlier month than o.
func (k MonthKey) Before(o MonthKey) bool {
	if k.Year != o.Year {
		return k.Year < o.Year
	}
	return k.Month < o.Month
}

// IsZero reports whether the key is unset.
func (k MonthKey) IsZero() bool {
	return k.Year == 0 && k.Month == 0
}

// ParseMonthKey accepts "YYYY-MM" or a display label in any supported
// locale ("March 2025", "mars 2025").
func ParseMonthKey(s string) (MonthKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return MonthKey{}, fmt.Errorf("empty month")
	}
	if t, err := time.Parse("2006-01", s); err == nil {
		return MonthKeyOf(t), nil
	}
	fields := strings.Fields(s)
	if len(fields) == 2 {
		year, err := strconv.Atoi(fields[1])
		if err == nil {
			for _, names := range monthNames {
				for i, name := range names {
					if strings.EqualFold(name, fields[0]) {
						return MonthKey{Year: year, Month: time.Month(i + 1)}, nil
					}
				}
			}
		}
	}
	return MonthKey{}, fmt.Errorf("invalid month %q", s)
}
