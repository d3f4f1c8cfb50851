package api

import (
	"net/http"
	"strconv"

	"github.com/metroad/leadops/internal/lead"
)

func (s *Server) dedupStats(w http.ResponseWriter, r *http.Request) {
	threshold := s.opts.SimilarityThreshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 || v > 1 {
			writeError(w, http.StatusBadRequest, "threshold must be in (0, 1]")
			return
		}
		threshold = v
	}

	stats, err := s.reconciler.Stats(r.Context(), threshold)
	if err != nil {
		writeStoreError(w, r, err, "dedup stats")
		return
	}
	writeData(w, stats)
}

func (s *Server) dedupGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.reconciler.Groups(r.Context())
	if err != nil {
		writeStoreError(w, r, err, "dedup groups")
		return
	}
	if groups == nil {
		groups = [][]lead.Lead{}
	}
	writeData(w, groups)
}

func (s *Server) mergeGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if distinctIDs(req.IDs) < 2 {
		writeError(w, http.StatusBadRequest, "merge needs at least two distinct lead ids")
		return
	}

	merged, err := s.reconciler.MergeGroup(r.Context(), req.IDs)
	if err != nil {
		writeStoreError(w, r, err, "merge group")
		return
	}
	writeData(w, merged)
}

func (s *Server) cleanup(w http.ResponseWriter, r *http.Request) {
	res, err := s.reconciler.Cleanup(r.Context())
	if err != nil {
		writeStoreError(w, r, err, "dedup cleanup")
		return
	}
	writeData(w, res)
}

func distinctIDs(ids []string) int {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" {
			seen[id] = true
		}
	}
	return len(seen)
}
