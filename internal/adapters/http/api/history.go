package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	service "github.com/okian/tinymerit/internal/app"
	"github.com/okian/tinymerit/internal/domain/enrich"
	"github.com/okian/tinymerit/internal/domain/history"
	"github.com/okian/tinymerit/internal/domain/model"
)

// HistoryDependencies defines the interface for the payment history view.
type HistoryDependencies interface {
	History(ctx context.Context, sess *service.Session, req service.HistoryRequest) (service.HistoryResult, error)
	ToggleGroup(sess *service.Session, groupID string) bool
}

// HistoryHandler handles history requests.
type HistoryHandler struct {
	deps     HistoryDependencies
	sessions sessionResolver
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(deps HistoryDependencies, sessions sessionResolver) *HistoryHandler {
	return &HistoryHandler{deps: deps, sessions: sessions}
}

type historyRow struct {
	Type        model.PaymentType `json:"type"`
	SubjectID   string            `json:"subject_id"`
	Amount      string            `json:"amount"`
	Timestamp   int64             `json:"timestamp"`
	TxHash      string            `json:"tx_hash"`
	DisplayName string            `json:"display_name"`
	AvatarURL   string            `json:"avatar_url,omitempty"`
	Status      enrich.Status     `json:"status,omitempty"`
}

type historyGroup struct {
	Key       string       `json:"key"`
	ID        string       `json:"id,omitempty"`
	ShortID   string       `json:"short_id,omitempty"`
	Grouped   bool         `json:"grouped"`
	Total     string       `json:"total"`
	Count     int          `json:"count"`
	Collapsed bool         `json:"collapsed"`
	Rows      []historyRow `json:"rows"`
}

type historyPage struct {
	history.Page
	From    int  `json:"from"`
	To      int  `json:"to"`
	HasPrev bool `json:"has_prev"`
}

type historyResponse struct {
	State      history.State      `json:"state"`
	Refreshing bool               `json:"refreshing"`
	Balance    *model.Balance     `json:"balance,omitempty"`
	Page       historyPage        `json:"page"`
	Groups     []historyGroup     `json:"groups"`
	Error      *history.ErrorInfo `json:"error,omitempty"`
}

func subjectKey(rec model.PaymentRecord) string {
	return string(rec.Type) + ":" + rec.SubjectID()
}

func newHistoryResponse(sess *service.Session, res service.HistoryResult) historyResponse {
	snap := res.Snapshot
	from, to := snap.Page.Range()
	out := historyResponse{
		State:      snap.State,
		Refreshing: snap.Refreshing,
		Balance:    snap.Balance,
		Page:       historyPage{Page: snap.Page, From: from, To: to, HasPrev: snap.Page.CanPrev()},
		Groups:     make([]historyGroup, 0, len(res.Groups)),
		Error:      res.Error,
	}

	// Rows resolve per payee, so any row for the same subject will do.
	rows := make(map[string]enrich.Row, len(res.Rows))
	for _, row := range res.Rows {
		rows[subjectKey(row.Record)] = row
	}

	for _, g := range res.Groups {
		hg := historyGroup{
			Key:       g.Key,
			ID:        g.ID,
			Grouped:   g.Grouped(),
			Total:     g.TotalDisplay(),
			Count:     len(g.Records),
			Collapsed: sess.IsCollapsed(g.Key),
			Rows:      make([]historyRow, 0, len(g.Records)),
		}
		if g.Grouped() {
			hg.ShortID = g.ShortID()
		}
		for _, rec := range g.Records {
			row := historyRow{
				Type:        rec.Type,
				SubjectID:   rec.SubjectID(),
				Amount:      history.MicroToDollars(rec.Amount.Raw.String()).StringFixed(2),
				Timestamp:   rec.Unix(),
				TxHash:      rec.TxHash,
				DisplayName: enrich.FallbackName(rec),
			}
			if er, ok := rows[subjectKey(rec)]; ok {
				row.DisplayName = er.DisplayName
				row.AvatarURL = er.AvatarURL
				row.Status = er.Status
			}
			hg.Rows = append(hg.Rows, row)
		}
		out.Groups = append(out.Groups, hg)
	}
	return out
}

// HandleGet handles GET /api/history?page=&refresh=&enrich= requests.
// Rows are enriched unless enrich=0.
func (h *HistoryHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_history"
	q := r.URL.Query()
	req := service.HistoryRequest{Page: 1, Refresh: q.Get("refresh") == "1", Enrich: q.Get("enrich") != "0"}
	if p := q.Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		req.Page = n
	}

	sess, err := h.sessions.resolve(w, r)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	res, err := h.deps.History(r.Context(), sess, req)
	if err != nil && res.Error == nil {
		writeServiceError(w, op, err)
		return
	}
	status := http.StatusOK
	if err != nil {
		status, _ = classify(err)
	}
	writeJSON(w, status, newHistoryResponse(sess, res))
}

// HandleToggleGroup handles POST /api/history/groups/{id}/toggle requests.
func (h *HistoryHandler) HandleToggleGroup(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.resolve(w, r)
	if err != nil {
		writeServiceError(w, "api.toggle_group", err)
		return
	}
	id := mux.Vars(r)["id"]
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "collapsed": h.deps.ToggleGroup(sess, id)})
}
