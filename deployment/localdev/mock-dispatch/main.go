// Command mock-dispatch serves a small fixed set of dispatch records as the
// JSON array the engine's HTTP source expects. Useful for local runs without
// a real CAD export.
package main

import (
	"encoding/json"
	"log"
	"net/http"
)

type record map[string]any

func records() []record {
	return []record{
		{
			"incident_id": "2024-000101",
			"unit_id":     "E1",
			"alarm_time":  "2024-03-01 10:00:00",
			"dispatched":  "2024-03-01 10:00:45",
			"responding":  "2024-03-01 10:02:00",
			"arrival":     "2024-03-01 10:07:30",
			"clear":       "2024-03-01 10:45:00",
			"category":    "Structure Fire",
			"lat":         40.012,
			"lon":         -75.013,
		},
		{
			"incident_id": "2024-000101",
			"unit_id":     "L2",
			"alarm_time":  "2024-03-01 10:00:00",
			"dispatched":  "2024-03-01 10:01:10",
			"responding":  "2024-03-01 10:03:05",
			"arrival":     "2024-03-01 10:09:00",
			"clear":       "2024-03-01 10:50:00",
			"category":    "Structure Fire",
			"lat":         40.012,
			"lon":         -75.013,
		},
		{
			"incident_id": "2024-000102",
			"unit_id":     "M7",
			"alarm_time":  "2024-03-01 14:30:00",
			"dispatched":  "2024-03-01 14:30:40",
			"responding":  "2024-03-01 14:31:30",
			"arrival":     "2024-03-01 14:36:00",
			"clear":       "2024-03-01 15:05:00",
			"category":    "EMS",
			"lat":         40.055,
			"lon":         -75.080,
		},
	}
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/records", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(records()); err != nil {
			log.Printf("encode records: %v", err)
		}
	})

	log.Println("mock-dispatch listening on :8085")
	if err := http.ListenAndServe(":8085", mux); err != nil {
		log.Fatal(err)
	}
}
