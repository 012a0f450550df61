package history

import (
	"fmt"
	"strconv"
	"time"
)

// Record is one past search: the query and the top result it produced.
type Record struct {
	Query     string `json:"query"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Timestamp string `json:"timestamp"` // seconds since epoch, as text
}

// NewRecord builds a record stamped with t.
func NewRecord(query, title, url string, t time.Time) Record {
	return Record{
		Query:     query,
		Title:     title,
		URL:       url,
		Timestamp: Timestamp(t),
	}
}

// Timestamp formats t as fractional seconds since the Unix epoch, e.g. "1718000000.123456".
func Timestamp(t time.Time) string {
	us := t.UnixMicro()
	return strconv.FormatInt(us/1e6, 10) + "." + fmt.Sprintf("%06d", us%1e6)
}
