package app

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hlt-mt/smarterp/internal/align"
	"github.com/hlt-mt/smarterp/internal/glossary"
)

// defaultResultLimit caps /sessions/{id}/results when no limit is given.
const defaultResultLimit = 50

type sessionView struct {
	ID        string    `json:"id"`
	Remote    string    `json:"remote"`
	StartedAt time.Time `json:"started_at"`
	SrcLang   string    `json:"src_lang,omitempty"`
	TgtLang   string    `json:"tgt_lang,omitempty"`
}

type resultView struct {
	Start       float64         `json:"start"`
	End         float64         `json:"end"`
	SrcLang     string          `json:"src_lang"`
	TgtLang     string          `json:"tgt_lang"`
	Score       float64         `json:"score"`
	Transcript  string          `json:"transcript"`
	Translation string          `json:"translation"`
	Entities    []align.Pair    `json:"entities"`
	Terms       []glossary.Term `json:"terms"`
	CreatedAt   time.Time       `json:"created_at"`
}

// listSessions reports the connected websocket sessions, oldest first.
func (a *App) listSessions(w http.ResponseWriter, _ *http.Request) {
	infos := a.server.Sessions()
	out := make([]sessionView, 0, len(infos))
	for _, s := range infos {
		out = append(out, sessionView{
			ID:        s.ID,
			Remote:    s.Remote,
			StartedAt: s.StartedAt,
			SrcLang:   s.SrcLang,
			TgtLang:   s.TgtLang,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// sessionResults returns the most recent persisted windows of one session.
// Without a configured store the list is always empty.
func (a *App) sessionResults(w http.ResponseWriter, r *http.Request) {
	limit := defaultResultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	results, err := a.results.Recent(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		slog.Warn("load session results", "session", r.PathValue("id"), "err", err)
		http.Error(w, "result store unavailable", http.StatusServiceUnavailable)
		return
	}
	out := make([]resultView, 0, len(results))
	for _, res := range results {
		out = append(out, resultView{
			Start:       res.Start,
			End:         res.End,
			SrcLang:     res.SrcLang,
			TgtLang:     res.TgtLang,
			Score:       res.Score,
			Transcript:  res.Transcript,
			Translation: res.Translation,
			Entities:    res.Entities,
			Terms:       res.Terms,
			CreatedAt:   res.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "err", err)
	}
}
