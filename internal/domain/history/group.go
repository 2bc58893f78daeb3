package history

import (
	"sort"

	"github.com/okian/tinymerit/internal/domain/model"
	"github.com/shopspring/decimal"
)

// UngroupedKey collects records without a group id.
const UngroupedKey = "no-group"

const microUnitsExp = -6

// Group is a set of payments made in one checkout.
type Group struct {
	Key          string                `json:"key"`
	ID           string                `json:"group_id,omitempty"`
	Records      []model.PaymentRecord `json:"records"`
	Total        decimal.Decimal       `json:"-"`
	MaxTimestamp int64                 `json:"max_timestamp"`
}

// Grouped reports whether the group has a real group id.
func (g Group) Grouped() bool { return g.ID != "" }

// TotalDisplay formats the total with exactly two decimals.
func (g Group) TotalDisplay() string { return g.Total.StringFixed(2) }

// ShortID abbreviates the group id for headers.
func (g Group) ShortID() string {
	if len(g.ID) <= 12 {
		return g.ID
	}
	return g.ID[:12] + "..."
}

// MicroToDollars converts a raw micro-unit amount. Unparseable input is zero.
func MicroToDollars(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d.Shift(microUnitsExp)
}

// GroupRecords folds a page of records into groups. Grouped groups come
// first; within a tier groups are ordered by their newest record. Ties keep
// first-seen order.
func GroupRecords(records []model.PaymentRecord) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, rec := range records {
		key := rec.GroupID
		if key == "" {
			key = UngroupedKey
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key, ID: rec.GroupID, Total: decimal.Zero, MaxTimestamp: rec.Unix()})
		}
		g := &groups[i]
		g.Records = append(g.Records, rec)
		g.Total = g.Total.Add(MicroToDollars(rec.Amount.Raw.String()))
		if ts := rec.Unix(); ts > g.MaxTimestamp {
			g.MaxTimestamp = ts
		}
	}

	sort.SliceStable(groups, func(a, b int) bool {
		ga, gb := groups[a], groups[b]
		if ga.Grouped() != gb.Grouped() {
			return ga.Grouped()
		}
		return ga.MaxTimestamp > gb.MaxTimestamp
	})
	return groups
}

// Collapsed tracks which group ids are folded. Not safe for concurrent use.
type Collapsed struct {
	ids map[string]struct{}
}

// Toggle flips id and reports whether it is now collapsed.
func (c *Collapsed) Toggle(id string) bool {
	if c.ids == nil {
		c.ids = make(map[string]struct{})
	}
	if _, ok := c.ids[id]; ok {
		delete(c.ids, id)
		return false
	}
	c.ids[id] = struct{}{}
	return true
}

// IsCollapsed reports whether id is folded.
func (c *Collapsed) IsCollapsed(id string) bool {
	_, ok := c.ids[id]
	return ok
}
