package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/opscart/rds-idle-manager/pkg/metrics"
	"github.com/opscart/rds-idle-manager/pkg/models"
	"github.com/opscart/rds-idle-manager/pkg/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Service is the surface the HTTP boundary needs from the orchestrator
type Service interface {
	Sweep(ctx context.Context) *models.SweepReport
	Start(ctx context.Context, resourceRef string) models.StartResult
}

// NewHTTPMux builds the request router. Dispatch is one route per
// operation; nothing inspects payloads to guess a mode. store may be nil
// when persistence is disabled.
func NewHTTPMux(s Service, store storage.Store) *http.ServeMux {
	mux := &http.ServeMux{}

	mux.HandleFunc("/sweep", func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodPost {
			writer.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		report := s.Sweep(request.Context())
		metrics.ObserveSweep(report)

		if store != nil {
			if err := store.SaveSweep(request.Context(), report); err != nil {
				fmt.Printf("[WARN] Failed to save sweep %s: %v\n", report.ID, err)
			}
		}

		writeJSON(writer, http.StatusOK, map[string]interface{}{
			"id":      report.ID,
			"actions": report.Actions(),
		})
	})

	mux.HandleFunc("/start", func(writer http.ResponseWriter, request *http.Request) {
		request.ParseForm()

		resource := request.Form.Get("resource")
		if resource == "" {
			resource = request.Form.Get("db")
		}

		result := s.Start(request.Context(), resource)
		metrics.ObserveStart(result)

		writeJSON(writer, result.StatusCode, result)
	})

	mux.HandleFunc("/healthz", func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusOK)
		writer.Write([]byte("ok"))
	})

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	ba, err := json.Marshal(body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(err.Error()))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(ba)
}
