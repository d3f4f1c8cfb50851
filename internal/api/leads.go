package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/metroad/leadops/internal/dedup"
	"github.com/metroad/leadops/internal/lead"
	"github.com/metroad/leadops/internal/store"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

type leadsPage struct {
	Leads          []lead.Lead `json:"leads"`
	UniqueCount    int         `json:"unique_count"`
	DuplicateCount int         `json:"duplicate_count"`
	Limit          int         `json:"limit"`
	Offset         int         `json:"offset"`
}

// listLeads returns one page of the stored leads with duplicates hidden.
// Detection runs over the whole filtered set before paging so the first
// occurrence of a record is always the one shown.
func (s *Server) listLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.ListFilter{ServiceID: q.Get("service_id")}
	if raw := q.Get("status"); raw != "" {
		st, err := lead.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(raw))
			return
		}
		filter.Status = st
	}

	limit, ok := intParam(q.Get("limit"), defaultPageLimit)
	if !ok || limit < 1 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	limit = min(limit, maxPageLimit)
	offset, ok := intParam(q.Get("offset"), 0)
	if !ok || offset < 0 {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	leads, err := s.store.ListLeads(r.Context(), filter)
	if err != nil {
		writeStoreError(w, r, err, "list leads")
		return
	}

	opts := []dedup.Option{dedup.WithBizIDCheck(s.opts.CheckBizID)}
	if s.opts.DisplaySimilarity {
		opts = append(opts, dedup.WithSimilarity(s.opts.SimilarityThreshold))
	}
	res := dedup.Detect(leads, opts...)

	page := res.UniqueLeads[min(offset, len(res.UniqueLeads)):]
	page = page[:min(limit, len(page))]

	writeData(w, leadsPage{
		Leads:          page,
		UniqueCount:    res.UniqueCount,
		DuplicateCount: res.DuplicateCount,
		Limit:          limit,
		Offset:         offset,
	})
}

func (s *Server) updateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Status string `json:"status"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	st, err := lead.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(req.Status))
		return
	}

	if err := s.store.UpdateStatus(r.Context(), id, st); err != nil {
		writeStoreError(w, r, err, "update status")
		return
	}
	writeData(w, map[string]string{"id": id, "status": string(st)})
}

func intParam(raw string, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
