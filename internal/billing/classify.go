package billing

import (
	"sort"
	"strings"

	"facturation/internal/core"

	"github.com/shopspring/decimal"
)

// Totals holds the reliability breakdown of the amount left to invoice in
// a bucket. Reliable100 + Reliable75 + Other always equals ToBeInvoiced.
type Totals struct {
	ToBeInvoiced    decimal.Decimal
	AlreadyInvoiced decimal.Decimal
	Reliable100     decimal.Decimal
	Reliable75      decimal.Decimal
	Other           decimal.Decimal
}

// Classify computes the reliability totals of a bucket.
func Classify(b Bucket) Totals {
	t := Totals{
		ToBeInvoiced:    decimal.Zero,
		AlreadyInvoiced: decimal.Zero,
		Reliable100:     decimal.Zero,
		Reliable75:      decimal.Zero,
		Other:           decimal.Zero,
	}
	for _, it := range b.Items {
		sum := it.Sum()
		if it.Invoiced {
			t.AlreadyInvoiced = t.AlreadyInvoiced.Add(sum)
			continue
		}
		t.ToBeInvoiced = t.ToBeInvoiced.Add(sum)
		switch {
		case it.Reliability.Is(core.ReliabilityCertain):
			t.Reliable100 = t.Reliable100.Add(sum)
		case it.Reliability.Is(core.ReliabilityLikely):
			t.Reliable75 = t.Reliable75.Add(sum)
		default:
			t.Other = t.Other.Add(sum)
		}
	}
	return t
}

// ReliableToBeInvoiced sums amount+revision over the non-invoiced items of
// a bucket with the given reliability tier.
func ReliableToBeInvoiced(b Bucket, tier int) decimal.Decimal {
	total := decimal.Zero
	for _, it := range b.Items {
		if !it.Invoiced && it.Reliability.Is(tier) {
			total = total.Add(it.Sum())
		}
	}
	return total
}

// Partitioned splits a bucket's items by invoiced state.
type Partitioned struct {
	ToBeInvoiced    []Item
	AlreadyInvoiced []Item
}

// Partition splits the items of b by invoiced state. Within each side,
// items authored by currentUser come first; order is otherwise preserved.
func Partition(b Bucket, currentUser string) Partitioned {
	var p Partitioned
	for _, it := range b.Items {
		if it.Invoiced {
			p.AlreadyInvoiced = append(p.AlreadyInvoiced, it)
		} else {
			p.ToBeInvoiced = append(p.ToBeInvoiced, it)
		}
	}
	p.ToBeInvoiced = SelfFirst(p.ToBeInvoiced, currentUser)
	p.AlreadyInvoiced = SelfFirst(p.AlreadyInvoiced, currentUser)
	return p
}

// SelfFirst returns a copy of items with the ones generated by user moved
// to the front. Relative order is kept on both sides. An empty user leaves
// the order unchanged.
func SelfFirst(items []Item, user string) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	user = strings.TrimSpace(user)
	if user == "" {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		return isAuthor(out[i], user) && !isAuthor(out[j], user)
	})
	return out
}

func isAuthor(it Item, user string) bool {
	return strings.EqualFold(strings.TrimSpace(it.GeneratedBy), user)
}
