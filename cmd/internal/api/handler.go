package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"unidash/cmd/internal/delivery"
	"unidash/cmd/internal/member"
	"unidash/cmd/internal/session"
)

const stateCookieName = "unidash_oauth_state"

// stateTTL bounds how long a login attempt may sit between redirect and callback.
const stateTTL = 10 * time.Minute

// Handler wires HTTP endpoints to the member, session, and delivery services.
type Handler struct {
	log *slog.Logger
	cfg Config

	members    *member.Service
	sessions   *session.Service
	deliveries *delivery.Service

	metrics *Metrics
}

// NewHandler constructs an API Handler. metrics may be nil.
func NewHandler(log *slog.Logger, cfg Config, members *member.Service, sessions *session.Service, deliveries *delivery.Service, metrics *Metrics) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if members == nil || sessions == nil || deliveries == nil {
		return nil, errors.New("api: nil service")
	}
	return &Handler{
		log:        log,
		cfg:        cfg,
		members:    members,
		sessions:   sessions,
		deliveries: deliveries,
		metrics:    metrics,
	}, nil
}

// Register wires all routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("GET /auth/google", h.handleLoginStart)
	mux.HandleFunc("GET /auth/google/callback", h.handleLoginCallback)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)

	mux.HandleFunc("GET /me", h.handleMe)
	mux.HandleFunc("GET /me/stats", h.handleMyStats)

	mux.HandleFunc("POST /api/requests", h.handleRequestCreate)
	mux.HandleFunc("GET /api/requests", h.handleRequestsOpen)
	mux.HandleFunc("PATCH /api/requests/{id}/accept", h.handleRequestAccept)
	mux.HandleFunc("POST /api/requests/{id}/complete", h.handleRequestComplete)
	mux.HandleFunc("PATCH /api/requests/{id}/cancel", h.handleRequestCancel)

	mux.HandleFunc("GET /api/my-requests", h.handleMyRequests)
	mux.HandleFunc("GET /api/my-deliveries", h.handleMyDeliveries)
	mux.HandleFunc("GET /api/my-active-order", h.handleMyActiveOrder)
}

// ---- auth ----

func (h *Handler) handleLoginStart(w http.ResponseWriter, r *http.Request) {
	state, err := newState()
	if err != nil {
		h.log.Error("api.login.state.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/auth/google",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.sessions.Config().CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.members.LoginURL(state), http.StatusFound)
}

func (h *Handler) handleLoginCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Get("error") != "" {
		h.redirectLoginError(w, r, "login_failed")
		return
	}
	if !h.stateValid(r, q.Get("state")) {
		h.redirectLoginError(w, r, "state_mismatch")
		return
	}
	h.clearStateCookie(w)

	code := strings.TrimSpace(q.Get("code"))
	if code == "" {
		h.redirectLoginError(w, r, "login_failed")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	m, err := h.members.ResolveLogin(ctx, code, now)
	if err != nil {
		if member.IsDomainNotAllowed(err) {
			h.redirectLoginError(w, r, "domain_mismatch")
			return
		}
		h.log.Error("api.login.resolve.fail", "err", err)
		h.redirectLoginError(w, r, "login_failed")
		return
	}

	issued, err := h.sessions.Issue(ctx, m.ID, now)
	if err != nil {
		h.log.Error("api.login.session.fail", "err", err)
		h.redirectLoginError(w, r, "login_failed")
		return
	}

	h.setSessionCookie(w, issued.Token, issued.ExpiresAt)
	h.log.Info("api.login.ok", "member_id", m.ID)
	http.Redirect(w, r, h.cfg.FrontendURL+"/dashboard", http.StatusFound)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(h.sessions.Config().CookieName); err == nil {
		if err := h.sessions.Revoke(r.Context(), c.Value, time.Now().UTC()); err != nil {
			h.log.Error("api.logout.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
	}
	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// ---- member ----

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	m, err := h.members.Get(r.Context(), memberID)
	if err != nil {
		if member.IsNotFound(err) {
			// Session outlived the member row.
			h.clearSessionCookie(w)
			writeError(w, http.StatusUnauthorized, "not_authenticated", "login required")
			return
		}
		h.log.Error("api.me.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, toMemberResponse(m))
}

func (h *Handler) handleMyStats(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	stats, err := h.deliveries.Stats(r.Context(), memberID)
	if err != nil {
		h.log.Error("api.me.stats.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		RequestsCreated:     stats.RequestsCreated,
		DeliveriesCompleted: stats.DeliveriesCompleted,
	})
}

// ---- request lifecycle ----

func (h *Handler) handleRequestCreate(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	var body createRequestBody
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(body.RequesterPhone) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "requester phone is required")
		return
	}

	ctx := r.Context()

	req, err := h.deliveries.Create(ctx, delivery.CreateInput{
		RequesterID:      memberID,
		ItemDescription:  body.ItemDescription,
		Category:         body.Category,
		PaymentStatus:    body.PaymentStatus,
		PickupLocation:   body.PickupLocation,
		DeliveryLocation: body.DeliveryLocation,
		Note:             body.Note,
	})
	h.metrics.observe("create", err)
	if err != nil {
		if delivery.IsInvalidInput(err) {
			writeDomainError(w, err)
			return
		}
		h.log.Error("api.request.create.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	// The phone travels with the member, not the request, so deliverers can
	// always reach the requester of whatever they are carrying. Recorded only
	// after the request passed validation; a rejected create must not mutate
	// the member.
	if err := h.members.RecordPhone(ctx, memberID, body.RequesterPhone); err != nil {
		h.log.Error("api.request.create.phone.fail", "err", err, "request_id", req.ID)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.log.Info("api.request.create.ok", "request_id", req.ID, "member_id", memberID)
	writeJSON(w, http.StatusCreated, toRequestResponse(req))
}

func (h *Handler) handleRequestsOpen(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	open, err := h.deliveries.ListOpen(r.Context(), memberID)
	if err != nil {
		h.log.Error("api.request.list_open.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	resp := make([]openRequestResponse, 0, len(open))
	for _, o := range open {
		resp = append(resp, openRequestResponse{
			ID:               o.ID,
			ItemDescription:  o.ItemDescription,
			Category:         o.Category,
			PaymentStatus:    o.PaymentStatus,
			PickupLocation:   o.PickupLocation,
			DeliveryLocation: o.DeliveryLocation,
			Note:             o.Note,
			RequesterName:    o.RequesterName,
			CreatedAt:        o.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRequestAccept(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	req, err := h.deliveries.Accept(r.Context(), r.PathValue("id"), memberID)
	h.metrics.observe("accept", err)
	if err != nil {
		h.writeTransitionError(w, "api.request.accept.fail", err)
		return
	}

	h.log.Info("api.request.accept.ok", "request_id", req.ID, "member_id", memberID)

	// The deliverer never sees the code over the API. The requester reads it
	// out in person at handoff; that is the whole verification scheme.
	resp := toRequestResponse(req)
	resp.Code = nil
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRequestComplete(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	var body completeRequestBody
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	req, err := h.deliveries.Complete(r.Context(), r.PathValue("id"), memberID, body.Code)
	h.metrics.observe("complete", err)
	if err != nil {
		if delivery.IsInvalidCode(err) {
			h.metrics.observeRejectedCode()
		}
		h.writeTransitionError(w, "api.request.complete.fail", err)
		return
	}

	h.log.Info("api.request.complete.ok", "request_id", req.ID, "member_id", memberID)
	writeJSON(w, http.StatusOK, toRequestResponse(req))
}

func (h *Handler) handleRequestCancel(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	req, err := h.deliveries.Cancel(r.Context(), r.PathValue("id"), memberID)
	h.metrics.observe("cancel", err)
	if err != nil {
		h.writeTransitionError(w, "api.request.cancel.fail", err)
		return
	}

	h.log.Info("api.request.cancel.ok", "request_id", req.ID, "member_id", memberID)
	writeJSON(w, http.StatusOK, toRequestResponse(req))
}

// ---- personal views ----

func (h *Handler) handleMyRequests(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	own, err := h.deliveries.ListByRequester(r.Context(), memberID)
	if err != nil {
		h.log.Error("api.my_requests.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	resp := make([]ownRequestResponse, 0, len(own))
	for _, o := range own {
		resp = append(resp, ownRequestResponse{
			ID:               o.ID,
			ItemDescription:  o.ItemDescription,
			Status:           string(o.Status),
			Code:             o.Code,
			DeliveryLocation: o.DeliveryLocation,
			DelivererName:    o.DelivererName,
			CreatedAt:        o.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleMyDeliveries(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	active, err := h.deliveries.ListActiveDeliveries(r.Context(), memberID)
	if err != nil {
		h.log.Error("api.my_deliveries.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	resp := make([]activeDeliveryResponse, 0, len(active))
	for _, a := range active {
		resp = append(resp, activeDeliveryResponse{
			ID:               a.ID,
			ItemDescription:  a.ItemDescription,
			PickupLocation:   a.PickupLocation,
			DeliveryLocation: a.DeliveryLocation,
			Note:             a.Note,
			RequesterName:    a.RequesterName,
			RequesterPhone:   a.RequesterPhone,
			CreatedAt:        a.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleMyActiveOrder(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	req, err := h.deliveries.ActiveOrder(r.Context(), memberID)
	if err != nil {
		if delivery.IsNotFound(err) {
			// No active order is an ordinary state, not an error.
			writeJSON(w, http.StatusOK, nil)
			return
		}
		h.log.Error("api.my_active_order.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	resp := toRequestResponse(req)
	if req.RequesterID != memberID {
		// Viewing as deliverer; the code stays with the requester.
		resp.Code = nil
	}
	writeJSON(w, http.StatusOK, resp)
}

// ---- helpers ----

func (h *Handler) requireMember(w http.ResponseWriter, r *http.Request) (string, bool) {
	c, err := r.Cookie(h.sessions.Config().CookieName)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "not_authenticated", "login required")
		return "", false
	}

	memberID, err := h.sessions.Validate(r.Context(), c.Value, time.Now().UTC())
	if err != nil {
		if errors.Is(err, session.ErrNotActive) {
			h.clearSessionCookie(w)
			writeError(w, http.StatusUnauthorized, "not_authenticated", "login required")
			return "", false
		}
		h.log.Error("api.session.validate.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return "", false
	}
	return memberID, true
}

// writeTransitionError logs unexpected failures and maps the rest onto the
// error taxonomy. Guard denials and lost races are expected traffic, so only
// unclassified errors hit the error log.
func (h *Handler) writeTransitionError(w http.ResponseWriter, event string, err error) {
	switch {
	case delivery.IsInvalidInput(err), delivery.IsNotFound(err), delivery.IsForbidden(err),
		delivery.IsConflict(err), delivery.IsInvalidCode(err):
		writeDomainError(w, err)
	default:
		h.log.Error(event, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	cfg := h.sessions.Config()
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	cfg := h.sessions.Config()
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/auth/google",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.sessions.Config().CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) stateValid(r *http.Request, got string) bool {
	c, err := r.Cookie(stateCookieName)
	if err != nil || c.Value == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.Value), []byte(got)) == 1
}

func (h *Handler) redirectLoginError(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r, h.cfg.FrontendURL+"/login-error?reason="+url.QueryEscape(reason), http.StatusFound)
}

func newState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
