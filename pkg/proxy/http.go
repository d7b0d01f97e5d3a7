package proxy

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Sternrassler/milkspot-proxy/pkg/records"
)

const (
	// HeaderCache reports HIT or MISS.
	HeaderCache = "X-Cache"

	// HeaderUpstreamOutcome reports found, exhausted or failed on a miss.
	HeaderUpstreamOutcome = "X-Upstream-Outcome"
)

// ServeTable returns a handler for routes of the form /<table>/{page}.
// Unlike Handle, which always answers 200, a page that is not a
// non-negative integer is rejected here with 400 before any lookup.
func (c *Coordinator) ServeTable(table records.Table, view string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := strconv.Atoi(r.PathValue("page"))
		if err != nil || page < 0 {
			writeError(w, http.StatusBadRequest, "page must be a non-negative integer")
			return
		}

		res := c.Handle(r.Context(), Request{Path: r.URL.Path, Page: page}, table, view)

		if res.CacheHit {
			w.Header().Set(HeaderCache, "HIT")
		} else {
			w.Header().Set(HeaderCache, "MISS")
			if res.Outcome != "" {
				w.Header().Set(HeaderUpstreamOutcome, string(res.Outcome))
			}
		}

		if res.Status != http.StatusOK {
			msg := http.StatusText(res.Status)
			if res.Err != nil {
				msg = res.Err.Error()
			}
			writeError(w, res.Status, msg)
			return
		}
		writeJSON(w, http.StatusOK, res.Records)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// URLs in record fields keep their & < > literal
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	// Headers are already sent, so an encode error cannot be reported
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
