package sources

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCSVSourceReadsHeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "incidents.csv")
	content := "IncidentNum,Unit,Alarm\nA1,E7,2024-03-01 10:00:00\nA2,L3,2024-03-02 11:00:00\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	src := NewCSVSource("dispatch", path, "IncidentNum", "Unit", "Alarm", 0, nil)
	if !src.Connect() {
		t.Fatalf("expected Connect to succeed")
	}
	defer src.Disconnect()

	records := src.Records()
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0]["IncidentNum"] != "A1" || records[1]["Unit"] != "L3" {
		t.Fatalf("unexpected record content: %v", records)
	}
}

func TestCSVSourceMissingFile(t *testing.T) {
	src := NewCSVSource("dispatch", "/nonexistent/file.csv", "IncidentNum", "", "", 0, nil)
	if src.Connect() {
		t.Fatalf("expected Connect to fail for missing file")
	}
}

func TestRecordsBetweenFiltersTimeColumn(t *testing.T) {
	records := []Record{
		{"id": "1", "Alarm": "2024-03-01 10:00:00"},
		{"id": "2", "Alarm": "2024-03-05 10:00:00"},
		{"id": "3", "Alarm": "garbage"},
	}
	src := NewMemorySource("mem", "id", "", "Alarm", records)

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	got := src.RecordsBetween(start, end)
	if len(got) != 2 {
		t.Fatalf("expected in-range record plus unparseable record, got %d", len(got))
	}
}

func TestHTTPSourceFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rows := []map[string]any{
			{"IncidentNum": "A1", "Priority": 1.0, "Mutual": true},
		}
		_ = json.NewEncoder(w).Encode(rows)
	}))
	defer server.Close()

	src := NewHTTPSource("cad", server.URL, "IncidentNum", "", "", time.Second, nil)
	if !src.Connect() {
		t.Fatalf("expected Connect to succeed")
	}
	records := src.Records()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0]["Priority"] != "1" || records[0]["Mutual"] != "true" {
		t.Fatalf("values must flatten to strings: %v", records[0])
	}
}

func TestHTTPSourceBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	src := NewHTTPSource("cad", server.URL, "IncidentNum", "", "", time.Second, nil)
	if src.Connect() {
		t.Fatalf("expected Connect to fail on server error")
	}
}
