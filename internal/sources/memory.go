package sources

import "time"

// MemorySource serves records held in memory. Used for fixtures and tests,
// and as the backing store the CSV and HTTP sources load into.
type MemorySource struct {
	name       string
	idColumn   string
	respColumn string
	timeColumn string
	records    []Record
}

// NewMemorySource creates an in-memory source. respColumn and timeColumn may
// be empty when the source carries no response-level or time data.
func NewMemorySource(name, idColumn, respColumn, timeColumn string, records []Record) *MemorySource {
	return &MemorySource{
		name:       name,
		idColumn:   idColumn,
		respColumn: respColumn,
		timeColumn: timeColumn,
		records:    records,
	}
}

func (s *MemorySource) Name() string             { return s.name }
func (s *MemorySource) Connect() bool            { return true }
func (s *MemorySource) Disconnect()              {}
func (s *MemorySource) Records() []Record        { return s.records }
func (s *MemorySource) IDColumn() string         { return s.idColumn }
func (s *MemorySource) ResponseIDColumn() string { return s.respColumn }

// RecordsBetween filters on the configured time column.
func (s *MemorySource) RecordsBetween(start, end time.Time) []Record {
	return filterBetween(s.records, s.timeColumn, start, end)
}
