package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPSource fetches records from an endpoint returning a JSON array of
// objects. Values are flattened to strings so the coercer sees the same raw
// form it would get from a file.
type HTTPSource struct {
	name       string
	url        string
	idColumn   string
	respColumn string
	timeColumn string
	httpClient *http.Client
	logger     *slog.Logger
	records    []Record
}

// NewHTTPSource creates an HTTP-backed source with the given request timeout.
func NewHTTPSource(name, url, idColumn, respColumn, timeColumn string, timeout time.Duration, logger *slog.Logger) *HTTPSource {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSource{
		name:       name,
		url:        strings.TrimRight(url, "/"),
		idColumn:   idColumn,
		respColumn: respColumn,
		timeColumn: timeColumn,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (s *HTTPSource) Name() string             { return s.name }
func (s *HTTPSource) IDColumn() string         { return s.idColumn }
func (s *HTTPSource) ResponseIDColumn() string { return s.respColumn }

// Connect fetches and decodes the record payload.
func (s *HTTPSource) Connect() bool {
	records, err := s.fetch(context.Background())
	if err != nil {
		s.logger.Warn("http source unavailable", slog.String("source", s.name), slog.Any("error", err))
		return false
	}
	s.records = records
	return true
}

// Disconnect drops the fetched rows.
func (s *HTTPSource) Disconnect() { s.records = nil }

func (s *HTTPSource) Records() []Record { return s.records }

// RecordsBetween filters on the configured time column.
func (s *HTTPSource) RecordsBetween(start, end time.Time) []Record {
	return filterBetween(s.records, s.timeColumn, start, end)
}

func (s *HTTPSource) fetch(ctx context.Context) ([]Record, error) {
	if s.url == "" {
		return nil, fmt.Errorf("http source %s: url not configured", s.name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch records: unexpected status %d", resp.StatusCode)
	}

	var rows []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec := make(Record, len(row))
		for col, value := range row {
			rec[col] = stringify(value)
		}
		records = append(records, rec)
	}
	return records, nil
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
