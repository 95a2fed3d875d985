package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"trafficcam/internal/service/stats"
)

func TestStatsHandler(t *testing.T) {
	agg := stats.NewAggregator()
	agg.Publish("3", stats.Snapshot{Car: 2, Truck: 1, TotalVehicles: 7, FlowRate: 14})
	h := mux("GET /stats/{camera_id}", StatsHandler(agg))

	tests := []struct {
		name string
		path string
		want string
	}{
		{"known camera", "/stats/3", `{"car":2,"motorcycle":0,"bus":0,"truck":1,"total_vehicles":7,"flow_rate":14}`},
		{"leading zeros", "/stats/003", `{"car":2,"motorcycle":0,"bus":0,"truck":1,"total_vehicles":7,"flow_rate":14}`},
		{"unknown camera", "/stats/99", `{"car":0,"motorcycle":0,"bus":0,"truck":0,"total_vehicles":0,"flow_rate":0}`},
		{"non-numeric id", "/stats/abc", `{"car":0,"motorcycle":0,"bus":0,"truck":0,"total_vehicles":0,"flow_rate":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("Expected 200, got %d", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Expected JSON content type, got %q", ct)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestAllStatsHandler(t *testing.T) {
	agg := stats.NewAggregator()
	agg.Publish("1", stats.Snapshot{Bus: 1, TotalVehicles: 1, FlowRate: 2})

	rec := httptest.NewRecorder()
	AllStatsHandler(agg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	want := `{"1":{"car":0,"motorcycle":0,"bus":1,"truck":0,"total_vehicles":1,"flow_rate":2}}`
	if got := strings.TrimSpace(rec.Body.String()); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}
