package gmail

import (
	"strings"
	"time"
)

// BaseQuery keeps promotions and social notifications out of the inbox view.
const BaseQuery = "-category:promotions -category:social"

const (
	inputDate = "2006-01-02"
	queryDate = "2006/01/02"
)

// Filter holds the inbox filters of the web UI. Dates are YYYY-MM-DD.
type Filter struct {
	Subject    string
	Contains   string
	SingleDate string
	DateStart  string
	DateEnd    string
	// Senders is a list of addresses or names; any of them matches.
	Senders []string
}

// ParseSenders splits a comma separated sender list.
func ParseSenders(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Query renders the filter as a Gmail search query. SingleDate wins over the
// date range. Unparseable dates are ignored.
func (f Filter) Query() string {
	parts := []string{BaseQuery}

	if f.Subject != "" {
		parts = append(parts, "subject:"+f.Subject)
	}
	if f.Contains != "" {
		parts = append(parts, f.Contains)
	}

	var senders []string
	for _, s := range f.Senders {
		if s = strings.TrimSpace(s); s != "" {
			senders = append(senders, "from:"+s)
		}
	}
	if len(senders) > 0 {
		parts = append(parts, "("+strings.Join(senders, " OR ")+")")
	}

	if day, ok := parseDate(f.SingleDate); ok {
		parts = append(parts,
			"after:"+day.Format(queryDate),
			"before:"+day.AddDate(0, 0, 1).Format(queryDate))
	} else {
		if start, ok := parseDate(f.DateStart); ok {
			parts = append(parts, "after:"+start.Format(queryDate))
		}
		if end, ok := parseDate(f.DateEnd); ok {
			parts = append(parts, "before:"+end.AddDate(0, 0, 1).Format(queryDate))
		}
	}

	return strings.Join(parts, " ")
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(inputDate, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
