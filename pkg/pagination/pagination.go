package pagination

import (
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultCount = 10
	// MaxCount caps page size.
	MaxCount = 1000
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Count  int
	Offset int
}

// FromValues reads count/_count and offset/_offset. A missing, malformed or
// negative count falls back to DefaultCount; a count of 0 asks for the total
// only. Negative or malformed offsets become 0.
func FromValues(q url.Values) Params {
	count := DefaultCount
	if n, ok := firstInt(q, "count", "_count"); ok && n >= 0 {
		count = n
	}
	if count > MaxCount {
		count = MaxCount
	}

	offset := 0
	if n, ok := firstInt(q, "offset", "_offset"); ok && n > 0 {
		offset = n
	}

	return Params{Count: count, Offset: offset}
}

// FromContext extracts pagination parameters from the echo context.
func FromContext(c echo.Context) Params {
	return FromValues(c.QueryParams())
}

func firstInt(q url.Values, keys ...string) (int, bool) {
	for _, k := range keys {
		if v := q.Get(k); v != "" {
			n, err := strconv.Atoi(v)
			return n, err == nil
		}
	}
	return 0, false
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Count > 0 && p.Offset+p.Count < total
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Offset > 0
}

// NextOffset returns the offset for the next page.
func (p Params) NextOffset() int {
	return p.Offset + p.Count
}

// PreviousOffset returns the offset for the previous page, never negative.
func (p Params) PreviousOffset() int {
	prev := p.Offset - p.Count
	if prev < 0 || p.Count == 0 {
		return 0
	}
	return prev
}
