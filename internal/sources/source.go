// Package sources defines the record-source contract the reconciler consumes
// and a few concrete sources. A source is anything that can hand over rows as
// column-name to raw-value maps and name its identity columns.
package sources

import (
	"time"

	"github.com/respstack/respstats/internal/models"
)

// Record is one row from a source, keyed by column name.
type Record map[string]string

// Source yields records for reconciliation. Connect returning false marks the
// source unusable for this run; the pipeline skips it and moves on.
type Source interface {
	Name() string
	Connect() bool
	Disconnect()
	Records() []Record
	RecordsBetween(start, end time.Time) []Record

	// IDColumn names the column carrying the incident identity.
	IDColumn() string
	// ResponseIDColumn names the column carrying the response identity.
	// Empty means the source cannot feed response-level mappings.
	ResponseIDColumn() string
}

// filterBetween keeps records whose timeColumn value parses as a timestamp
// inside [start, end]. Records without a parseable value are kept; dropping
// them silently would hide data from time-agnostic mappings.
func filterBetween(records []Record, timeColumn string, start, end time.Time) []Record {
	if timeColumn == "" {
		return records
	}
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		raw, ok := rec[timeColumn]
		if !ok {
			out = append(out, rec)
			continue
		}
		ts, ok := models.ParseTime(raw)
		if !ok {
			out = append(out, rec)
			continue
		}
		if ts.Before(start) || ts.After(end) {
			continue
		}
		out = append(out, rec)
	}
	return out
}
