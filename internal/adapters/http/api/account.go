package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	service "github.com/okian/tinymerit/internal/app"
	"github.com/okian/tinymerit/internal/domain/model"
)

// AccountDependencies defines the interface for account settings.
type AccountDependencies interface {
	Store() *service.Store
	SearchAccounts(ctx context.Context, sess *service.Session, query string) ([]model.UserProfile, error)
}

// AccountHandler handles account and API key requests.
type AccountHandler struct {
	deps     AccountDependencies
	sessions sessionResolver
}

// NewAccountHandler creates a new account handler.
func NewAccountHandler(deps AccountDependencies, sessions sessionResolver) *AccountHandler {
	return &AccountHandler{deps: deps, sessions: sessions}
}

type accountResponse struct {
	Account      *model.UserProfile `json:"account"`
	APIKeyStored bool               `json:"api_key_stored"`
}

type apiKeyRequest struct {
	APIKey string `json:"api_key"`
}

func (h *AccountHandler) store() (*service.Store, error) {
	st := h.deps.Store()
	if st == nil {
		return nil, ErrUnavailable
	}
	return st, nil
}

func (h *AccountHandler) writeAccount(w http.ResponseWriter, st *service.Store) {
	resp := accountResponse{APIKeyStored: st.HasStoredAPIKey()}
	if acct, ok := st.Account(); ok {
		resp.Account = &acct
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGet handles GET /api/account requests.
func (h *AccountHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	st, err := h.store()
	if err != nil {
		writeServiceError(w, "api.get_account", err)
		return
	}
	h.writeAccount(w, st)
}

// HandlePut handles PUT /api/account requests.
func (h *AccountHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_account"
	var p model.UserProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	st, err := h.store()
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	if err := st.SetAccount(r.Context(), p); err != nil {
		writeServiceError(w, op, err)
		return
	}
	h.writeAccount(w, st)
}

// HandleDelete handles DELETE /api/account requests.
func (h *AccountHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_account"
	st, err := h.store()
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	if err := st.ClearAccount(r.Context()); err != nil {
		writeServiceError(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSearch handles GET /api/account/search?q= requests. A search
// overtaken by a newer one from the same session answers 204.
func (h *AccountHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	const op = "api.search_accounts"
	sess, err := h.sessions.resolve(w, r)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	users, err := h.deps.SearchAccounts(r.Context(), sess, r.URL.Query().Get("q"))
	switch {
	case errors.Is(err, service.ErrSuperseded), errors.Is(err, context.Canceled):
		w.WriteHeader(http.StatusNoContent)
		return
	case err != nil:
		writeServiceError(w, op, err)
		return
	}
	if users == nil {
		users = []model.UserProfile{}
	}
	writeJSON(w, http.StatusOK, users)
}

// HandlePutAPIKey handles PUT /api/apikey requests.
func (h *AccountHandler) HandlePutAPIKey(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_apikey"
	var req apiKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	st, err := h.store()
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	if err := st.SetAPIKey(r.Context(), req.APIKey); err != nil {
		writeServiceError(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeleteAPIKey handles DELETE /api/apikey requests.
func (h *AccountHandler) HandleDeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_apikey"
	st, err := h.store()
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	if err := st.ClearAPIKey(r.Context()); err != nil {
		writeServiceError(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
