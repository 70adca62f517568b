package sources

import (
	"encoding/csv"
	"log/slog"
	"os"
	"time"
)

// CSVSource reads records from a delimited file. The first row names the
// columns. The file is read once on Connect; a read failure makes Connect
// report false and the source is skipped for the run.
type CSVSource struct {
	name       string
	path       string
	idColumn   string
	respColumn string
	timeColumn string
	comma      rune
	logger     *slog.Logger
	records    []Record
}

// NewCSVSource creates a file-backed source. comma zero means ','.
func NewCSVSource(name, path, idColumn, respColumn, timeColumn string, comma rune, logger *slog.Logger) *CSVSource {
	if comma == 0 {
		comma = ','
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVSource{
		name:       name,
		path:       path,
		idColumn:   idColumn,
		respColumn: respColumn,
		timeColumn: timeColumn,
		comma:      comma,
		logger:     logger,
	}
}

func (s *CSVSource) Name() string             { return s.name }
func (s *CSVSource) IDColumn() string         { return s.idColumn }
func (s *CSVSource) ResponseIDColumn() string { return s.respColumn }

// Connect loads the file into memory.
func (s *CSVSource) Connect() bool {
	f, err := os.Open(s.path)
	if err != nil {
		s.logger.Warn("csv source unavailable", slog.String("source", s.name), slog.Any("error", err))
		return false
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = s.comma
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		s.logger.Warn("csv source unreadable", slog.String("source", s.name), slog.Any("error", err))
		return false
	}
	if len(rows) < 1 {
		s.records = nil
		return true
	}

	header := rows[0]
	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(Record, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		records = append(records, rec)
	}
	s.records = records
	return true
}

// Disconnect releases the loaded rows.
func (s *CSVSource) Disconnect() { s.records = nil }

func (s *CSVSource) Records() []Record { return s.records }

// RecordsBetween filters on the configured time column.
func (s *CSVSource) RecordsBetween(start, end time.Time) []Record {
	return filterBetween(s.records, s.timeColumn, start, end)
}
