package billing

import (
	"sort"
	"strings"
)

// SortKey names the field items are ordered by.
type SortKey string

const (
	SortNone         SortKey = ""
	SortDate         SortKey = "date"
	SortAmount       SortKey = "amount"
	SortReliability  SortKey = "reliability"
	SortGeneratedBy  SortKey = "generatedBy"
	SortTitle        SortKey = "title"
	SortStepsComment SortKey = "stepsComment"
	SortDocID        SortKey = "docId"
	SortQuotationID  SortKey = "quotationId"
)

// Direction is the sort order.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// ParseDirection reads "asc" or "desc"; anything else is ascending.
func ParseDirection(s string) Direction {
	if strings.EqualFold(strings.TrimSpace(s), "desc") {
		return Descending
	}
	return Ascending
}

// SortState is the column a table is currently sorted by.
type SortState struct {
	Key SortKey
	Dir Direction
}

// Toggle returns the state after selecting key: the same key flips the
// direction, a new key starts ascending.
func (s SortState) Toggle(key SortKey) SortState {
	if s.Key == key {
		if s.Dir == Ascending {
			return SortState{Key: key, Dir: Descending}
		}
		return SortState{Key: key, Dir: Ascending}
	}
	return SortState{Key: key, Dir: Ascending}
}

// Process filters items by term then sorts them by key. The input slice is
// never modified.
func Process(items []Item, term string, key SortKey, dir Direction) []Item {
	return Sort(Search(items, term), key, dir)
}

// Search keeps the items whose title or author contains term, ignoring
// case. A blank term keeps everything.
func Search(items []Item, term string) []Item {
	term = strings.ToLower(strings.TrimSpace(term))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if term == "" ||
			strings.Contains(strings.ToLower(it.Title), term) ||
			strings.Contains(strings.ToLower(it.GeneratedBy), term) {
			out = append(out, it)
		}
	}
	return out
}

// Sort returns a stably sorted copy of items. Ties keep their input order
// in both directions. Unknown keys leave the order unchanged.
func Sort(items []Item, key SortKey, dir Direction) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	cmp := comparator(key)
	if cmp == nil {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		if dir == Descending {
			return cmp(out[j], out[i]) < 0
		}
		return cmp(out[i], out[j]) < 0
	})
	return out
}

func comparator(key SortKey) func(a, b Item) int {
	switch key {
	case SortDate:
		return func(a, b Item) int { return a.Date.Compare(b.Date.Time) }
	case SortAmount:
		return func(a, b Item) int { return a.Sum().Cmp(b.Sum()) }
	case SortReliability:
		return func(a, b Item) int { return compareInts(a.Reliability.Int(), b.Reliability.Int()) }
	case SortQuotationID:
		return func(a, b Item) int { return compareInts(int(a.QuotationID), int(b.QuotationID)) }
	}
	field := stringField(key)
	if field == nil {
		return nil
	}
	return func(a, b Item) int {
		return strings.Compare(strings.ToLower(field(a)), strings.ToLower(field(b)))
	}
}

func stringField(key SortKey) func(Item) string {
	switch key {
	case SortGeneratedBy:
		return func(it Item) string { return it.GeneratedBy }
	case SortTitle:
		return func(it Item) string { return it.Title }
	case SortStepsComment:
		return func(it Item) string { return it.StepsComment }
	case SortDocID:
		return func(it Item) string { return it.DocID }
	}
	return nil
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Query bundles the view parameters of one month table.
type Query struct {
	Search      string
	Sort        SortState
	CurrentUser string
}

// ParseQuery builds a Query from raw request values.
func ParseQuery(search, sortKey, dir, user string) Query {
	return Query{
		Search:      search,
		Sort:        SortState{Key: SortKey(strings.TrimSpace(sortKey)), Dir: ParseDirection(dir)},
		CurrentUser: user,
	}
}

// Apply partitions b, then searches and sorts each side. The current
// user's items stay ahead of the others on each side.
func (q Query) Apply(b Bucket) Partitioned {
	p := Partition(b, q.CurrentUser)
	return Partitioned{
		ToBeInvoiced:    SelfFirst(Process(p.ToBeInvoiced, q.Search, q.Sort.Key, q.Sort.Dir), q.CurrentUser),
		AlreadyInvoiced: SelfFirst(Process(p.AlreadyInvoiced, q.Search, q.Sort.Key, q.Sort.Dir), q.CurrentUser),
	}
}
