package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	service "github.com/okian/tinymerit/internal/app"
	"github.com/okian/tinymerit/internal/domain/checkout"
	"github.com/okian/tinymerit/internal/domain/model"
	"github.com/okian/tinymerit/internal/domain/payee"
)

// PayeeDependencies defines the interface for payee selection and checkout.
type PayeeDependencies interface {
	Search(ctx context.Context, query string) (model.SearchResults, error)
	TogglePayee(sess *service.Session, item payee.Item) (payee.List, bool)
	RemovePayee(sess *service.Session, key string) payee.List
	SetAmount(sess *service.Session, key, amount string) (payee.List, error)
	Checkout(ctx context.Context, sess *service.Session) (checkout.Result, error)
}

// PayeeHandler handles search, cart and checkout requests.
type PayeeHandler struct {
	deps     PayeeDependencies
	sessions sessionResolver
}

// NewPayeeHandler creates a new payee handler.
func NewPayeeHandler(deps PayeeDependencies, sessions sessionResolver) *PayeeHandler {
	return &PayeeHandler{deps: deps, sessions: sessions}
}

type cartItem struct {
	Key       string     `json:"key"`
	Kind      payee.Kind `json:"kind"`
	ID        string     `json:"id"`
	Label     string     `json:"label"`
	AvatarURL string     `json:"avatar_url,omitempty"`
	Amount    string     `json:"amount"`
}

type cartResponse struct {
	Items       []cartItem `json:"items"`
	Total       string     `json:"total"`
	CanCheckout bool       `json:"can_checkout"`
}

func newCartResponse(list payee.List) cartResponse {
	items := list.Items()
	out := cartResponse{
		Items:       make([]cartItem, 0, len(items)),
		Total:       list.Total().StringFixed(2),
		CanCheckout: list.CanCheckout(),
	}
	for _, it := range items {
		out.Items = append(out.Items, cartItem{
			Key:       it.Key(),
			Kind:      it.Kind,
			ID:        it.ID,
			Label:     it.Label(),
			AvatarURL: it.AvatarURL(),
			Amount:    it.Amount.StringFixed(2),
		})
	}
	return out
}

// toggleRequest selects a user or a repo by profile.
type toggleRequest struct {
	Kind payee.Kind         `json:"kind"`
	User *model.UserProfile `json:"user,omitempty"`
	Repo *model.RepoProfile `json:"repo,omitempty"`
}

func (t toggleRequest) item() (payee.Item, error) {
	switch {
	case t.Kind == payee.KindUser && t.User != nil && t.User.ID > 0:
		return payee.NewUserItem(*t.User), nil
	case t.Kind == payee.KindRepo && t.Repo != nil && t.Repo.ID > 0:
		return payee.NewRepoItem(*t.Repo), nil
	}
	return payee.Item{}, errors.New("kind must match a user or repo profile with an id")
}

type amountRequest struct {
	Amount string `json:"amount"`
}

// HandleSearch handles GET /api/search?q= requests.
func (h *PayeeHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	const op = "api.search"
	res, err := h.deps.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	if res.Users == nil {
		res.Users = []model.UserProfile{}
	}
	if res.Repos == nil {
		res.Repos = []model.RepoProfile{}
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleGetCart handles GET /api/cart requests.
func (h *PayeeHandler) HandleGetCart(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.resolve(w, r)
	if err != nil {
		writeServiceError(w, "api.get_cart", err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(sess.Cart()))
}

// HandleToggle handles POST /api/cart/toggle requests.
func (h *PayeeHandler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	const op = "api.toggle_payee"
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	item, err := req.item()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	sess, err := h.sessions.resolve(w, r)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	list, selected := h.deps.TogglePayee(sess, item)
	writeJSON(w, http.StatusOK, struct {
		cartResponse
		Selected bool `json:"selected"`
	}{newCartResponse(list), selected})
}

// HandleRemove handles DELETE /api/cart/{key} requests, key being "u:<id>" or "r:<id>".
func (h *PayeeHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.resolve(w, r)
	if err != nil {
		writeServiceError(w, "api.remove_payee", err)
		return
	}
	list := h.deps.RemovePayee(sess, mux.Vars(r)["key"])
	writeJSON(w, http.StatusOK, newCartResponse(list))
}

// HandleSetAmount handles PUT /api/cart/{key}/amount requests.
func (h *PayeeHandler) HandleSetAmount(w http.ResponseWriter, r *http.Request) {
	const op = "api.set_amount"
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	sess, err := h.sessions.resolve(w, r)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	list, err := h.deps.SetAmount(sess, mux.Vars(r)["key"], req.Amount)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(list))
}

// HandleCheckout handles POST /api/checkout requests. With redirect=1 the
// caller is sent straight to the checkout page.
func (h *PayeeHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	const op = "api.checkout"
	sess, err := h.sessions.resolve(w, r)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	res, err := h.deps.Checkout(r.Context(), sess)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	if r.URL.Query().Get("redirect") == "1" {
		http.Redirect(w, r, res.URL, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
