package domtrack

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/domsense/detect"
	"github.com/hazyhaar/domsense/shield"
)

// Handler returns the status API:
//
//	GET  /healthz
//	GET  /entities
//	GET  /watchers
//	GET  /matches?entity=name
//	GET  /stats
//	POST /scan?entity=a,b   (HTML body)
func (t *Tracker) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.Stack(t.logger) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/entities", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, t.reg.Names())
	})

	r.Get("/watchers", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, t.Watchers())
	})

	r.Get("/matches", func(w http.ResponseWriter, r *http.Request) {
		ms, err := t.Matches(r.Context(), r.URL.Query().Get("entity"))
		if err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, ErrNotStarted) || errors.Is(err, ErrStopped) {
				code = http.StatusServiceUnavailable
			}
			writeError(w, code, err)
			return
		}
		if ms == nil {
			ms = []MatchSummary{}
		}
		writeJSON(w, http.StatusOK, ms)
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		stats, err := t.Stats(r.Context())
		if err != nil {
			shield.GetLogger(r.Context()).Warn("domtrack: stats failed", "error", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if stats == nil {
			stats = []EntityStats{}
		}
		writeJSON(w, http.StatusOK, stats)
	})

	r.Post("/scan", func(w http.ResponseWriter, r *http.Request) {
		var names []string
		if q := r.URL.Query().Get("entity"); q != "" {
			names = strings.Split(q, ",")
		}
		ms, err := Scan(t.reg, r.Body, names...)
		if err != nil {
			code := http.StatusBadRequest
			if !errors.Is(err, detect.ErrUnknownEntity) {
				var tooBig *http.MaxBytesError
				if errors.As(err, &tooBig) {
					code = http.StatusRequestEntityTooLarge
				}
			}
			writeError(w, code, err)
			return
		}
		if ms == nil {
			ms = []MatchSummary{}
		}
		writeJSON(w, http.StatusOK, ms)
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
