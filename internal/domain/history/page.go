package history

// DefaultPageSize is the number of payments per page.
const DefaultPageSize = 20

// Page is the pagination state of the history view. Number is 1-based.
type Page struct {
	Number     int  `json:"page"`
	Size       int  `json:"page_size"`
	TotalCount int  `json:"total_count"`
	HasNext    bool `json:"has_next"`
}

// Range returns the 1-based positions shown on this page, or 0,0 when empty.
func (p Page) Range() (first, last int) {
	if p.TotalCount <= 0 || p.Number < 1 || p.Size < 1 {
		return 0, 0
	}
	first = (p.Number-1)*p.Size + 1
	last = min(p.Number*p.Size, p.TotalCount)
	if first > last {
		return 0, 0
	}
	return first, last
}

// CanPrev reports whether a previous page exists.
func (p Page) CanPrev() bool { return p.Number > 1 }

// CanNext reports whether the server has more pages.
func (p Page) CanNext() bool { return p.HasNext }
