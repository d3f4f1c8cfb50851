package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/metroad/leadops/internal/ingest"
	"github.com/metroad/leadops/internal/reconcile"
)

type ingestResponse struct {
	Ingest *ingest.Result        `json:"ingest"`
	Save   *reconcile.SaveResult `json:"save"`
}

// ingest fetches one LOCALDATA service and saves the leads not stored yet.
// The body is optional; without a service_id the first configured one is used.
func (s *Server) ingest(w http.ResponseWriter, r *http.Request) {
	if s.ingester == nil {
		writeError(w, http.StatusServiceUnavailable, "ingestion is not configured")
		return
	}

	var req struct {
		ServiceID string `json:"service_id"`
	}
	if r.ContentLength != 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := decodeOptional(r.Body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	serviceID := strings.TrimSpace(req.ServiceID)
	if serviceID == "" && len(s.opts.ServiceIDs) > 0 {
		serviceID = s.opts.ServiceIDs[0]
	}
	if serviceID == "" {
		writeError(w, http.StatusBadRequest, "service_id is required")
		return
	}

	res, err := s.ingester.Run(r.Context(), serviceID)
	if err != nil {
		zap.L().Error("http: ingest", zap.String("service_id", serviceID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "ingest failed for "+serviceID)
		return
	}

	saved, err := s.reconciler.SaveNew(r.Context(), res.Leads)
	if err != nil {
		writeStoreError(w, r, err, "save leads")
		return
	}
	writeData(w, ingestResponse{Ingest: res, Save: saved})
}

func decodeOptional(body io.Reader, v any) error {
	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(raw)) == "" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
