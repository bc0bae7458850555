package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"unidash/cmd/internal/delivery"
	"unidash/cmd/internal/member"
	"unidash/cmd/internal/session"
)

type stubProvider struct {
	profile member.Profile
	err     error
}

func (p stubProvider) AuthCodeURL(state string) string {
	return "https://accounts.example/consent?state=" + state
}

func (p stubProvider) ResolveCode(_ context.Context, _ string) (member.Profile, error) {
	return p.profile, p.err
}

type testEnv struct {
	mux      *http.ServeMux
	members  *member.Service
	memStore *member.MemoryStore
	sessions *session.Service
}

func newTestEnv(t *testing.T, provider member.IdentityProvider) *testEnv {
	t.Helper()

	memStore := member.NewMemoryStore()
	members, err := member.NewService(provider, memStore, member.WithAllowedDomain("vitstudent.ac.in"))
	if err != nil {
		t.Fatalf("member.NewService: %v", err)
	}

	sessCfg := session.Config{
		CookieName: "unidash_session",
		TTL:        168 * time.Hour,
		TokenBytes: 32,
	}
	sessions, err := session.NewService(sessCfg, session.NewMemoryStore())
	if err != nil {
		t.Fatalf("session.NewService: %v", err)
	}

	lookup := func(ctx context.Context, id string) (string, *string, error) {
		m, err := memStore.GetByID(ctx, id)
		if err != nil {
			return "", nil, err
		}
		return m.Name, m.Phone, nil
	}
	deliveries, err := delivery.NewService(delivery.NewMemoryStore(lookup))
	if err != nil {
		t.Fatalf("delivery.NewService: %v", err)
	}

	cfg := Config{
		MaxBodyBytes: 1 << 16,
		FrontendURL:  "http://front.example",
	}
	h, err := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), cfg, members, sessions, deliveries, NewMetrics(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)
	return &testEnv{mux: mux, members: members, memStore: memStore, sessions: sessions}
}

// loginDirect seeds a member and issues a session, bypassing the OAuth dance.
func (e *testEnv) loginDirect(t *testing.T, googleID, email, name string) (memberID string, cookie *http.Cookie) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	m, err := e.memStore.Create(ctx, member.CreateRecord{
		ID:        "mem-" + googleID,
		GoogleID:  googleID,
		Email:     email,
		Name:      name,
		CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("seed member: %v", err)
	}

	issued, err := e.sessions.Issue(ctx, m.ID, now)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return m.ID, &http.Cookie{Name: "unidash_session", Value: issued.Token}
}

func (e *testEnv) do(t *testing.T, method, target string, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	for _, c := range cookies {
		if c != nil {
			req.AddCookie(c)
		}
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[errorResponse](t, rec).Error.Code
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, stubProvider{})

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/me"},
		{http.MethodGet, "/me/stats"},
		{http.MethodPost, "/api/requests"},
		{http.MethodGet, "/api/requests"},
		{http.MethodPatch, "/api/requests/r1/accept"},
		{http.MethodPost, "/api/requests/r1/complete"},
		{http.MethodPatch, "/api/requests/r1/cancel"},
		{http.MethodGet, "/api/my-requests"},
		{http.MethodGet, "/api/my-deliveries"},
		{http.MethodGet, "/api/my-active-order"},
	} {
		rec := env.do(t, tc.method, tc.path, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status=%d want 401", tc.method, tc.path, rec.Code)
			continue
		}
		if code := errorCode(t, rec); code != "not_authenticated" {
			t.Errorf("%s %s: code=%q", tc.method, tc.path, code)
		}
	}
}

func TestLoginFlow(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, stubProvider{profile: member.Profile{
		GoogleID: "g-1",
		Email:    "asha@vitstudent.ac.in",
		Name:     "Asha",
	}})

	start := env.do(t, http.MethodGet, "/auth/google", "")
	if start.Code != http.StatusFound {
		t.Fatalf("login start status=%d", start.Code)
	}
	var stateCookie *http.Cookie
	for _, c := range start.Result().Cookies() {
		if c.Name == stateCookieName {
			stateCookie = c
		}
	}
	if stateCookie == nil || stateCookie.Value == "" {
		t.Fatal("no state cookie set")
	}
	loc := start.Header().Get("Location")
	if !strings.Contains(loc, "state="+stateCookie.Value) {
		t.Fatalf("consent URL %q missing state", loc)
	}

	cb := env.do(t, http.MethodGet,
		"/auth/google/callback?code=abc&state="+stateCookie.Value, "", stateCookie)
	if cb.Code != http.StatusFound {
		t.Fatalf("callback status=%d body=%s", cb.Code, cb.Body.String())
	}
	if loc := cb.Header().Get("Location"); loc != "http://front.example/dashboard" {
		t.Fatalf("callback redirect=%q", loc)
	}

	var sessCookie *http.Cookie
	for _, c := range cb.Result().Cookies() {
		if c.Name == "unidash_session" && c.Value != "" {
			sessCookie = c
		}
	}
	if sessCookie == nil {
		t.Fatal("no session cookie issued")
	}
	if !sessCookie.HttpOnly {
		t.Error("session cookie not HttpOnly")
	}

	me := env.do(t, http.MethodGet, "/me", "", sessCookie)
	if me.Code != http.StatusOK {
		t.Fatalf("/me status=%d", me.Code)
	}
	resp := decodeBody[memberResponse](t, me)
	if resp.Email != "asha@vitstudent.ac.in" || resp.Name != "Asha" {
		t.Fatalf("/me=%+v", resp)
	}
}

func TestLoginCallback_StateMismatch(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, stubProvider{profile: member.Profile{
		GoogleID: "g-1",
		Email:    "asha@vitstudent.ac.in",
		Name:     "Asha",
	}})

	cookie := &http.Cookie{Name: stateCookieName, Value: "expected"}
	rec := env.do(t, http.MethodGet, "/auth/google/callback?code=abc&state=tampered", "", cookie)
	if rec.Code != http.StatusFound {
		t.Fatalf("status=%d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); !strings.Contains(loc, "reason=state_mismatch") {
		t.Fatalf("redirect=%q", loc)
	}
}

func TestLoginCallback_DomainMismatch(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, stubProvider{profile: member.Profile{
		GoogleID: "g-2",
		Email:    "outsider@gmail.com",
		Name:     "Outsider",
	}})

	cookie := &http.Cookie{Name: stateCookieName, Value: "st"}
	rec := env.do(t, http.MethodGet, "/auth/google/callback?code=abc&state=st", "", cookie)
	if rec.Code != http.StatusFound {
		t.Fatalf("status=%d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); !strings.Contains(loc, "reason=domain_mismatch") {
		t.Fatalf("redirect=%q", loc)
	}
}

func TestLogout(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, stubProvider{})
	_, cookie := env.loginDirect(t, "g-1", "asha@vitstudent.ac.in", "Asha")

	out := env.do(t, http.MethodPost, "/auth/logout", "", cookie)
	if out.Code != http.StatusNoContent {
		t.Fatalf("logout status=%d", out.Code)
	}

	me := env.do(t, http.MethodGet, "/me", "", cookie)
	if me.Code != http.StatusUnauthorized {
		t.Fatalf("/me after logout status=%d", me.Code)
	}
}

const createBody = `{
	"item_description": "parcel from main gate",
	"category": "parcel",
	"payment_status": "prepaid",
	"pickup_location": "Main Gate",
	"delivery_location": "Block K, Room 402",
	"note": "fragile",
	"requester_phone": "+91 98765 43210"
}`

func TestLifecycleOverHTTP(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, stubProvider{})
	requesterID, reqCookie := env.loginDirect(t, "g-req", "asha@vitstudent.ac.in", "Asha")
	_, delCookie := env.loginDirect(t, "g-del", "binil@vitstudent.ac.in", "Binil")

	created := env.do(t, http.MethodPost, "/api/requests", createBody, reqCookie)
	if created.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", created.Code, created.Body.String())
	}
	cr := decodeBody[requestResponse](t, created)
	if cr.Status != "pending" || cr.RequesterID != requesterID || cr.Code != nil {
		t.Fatalf("created=%+v", cr)
	}

	// The requester's phone was recorded alongside the request.
	me := decodeBody[memberResponse](t, env.do(t, http.MethodGet, "/me", "", reqCookie))
	if me.Phone == nil || *me.Phone != "+91 98765 43210" {
		t.Fatalf("phone not recorded: %+v", me)
	}

	// The requester does not see their own request in the open list.
	ownView := decodeBody[[]openRequestResponse](t, env.do(t, http.MethodGet, "/api/requests", "", reqCookie))
	if len(ownView) != 0 {
		t.Fatalf("requester sees own request in open list: %+v", ownView)
	}
	otherView := decodeBody[[]openRequestResponse](t, env.do(t, http.MethodGet, "/api/requests", "", delCookie))
	if len(otherView) != 1 || otherView[0].RequesterName != "Asha" {
		t.Fatalf("open list=%+v", otherView)
	}

	accepted := env.do(t, http.MethodPatch, "/api/requests/"+cr.ID+"/accept", "", delCookie)
	if accepted.Code != http.StatusOK {
		t.Fatalf("accept status=%d body=%s", accepted.Code, accepted.Body.String())
	}
	ar := decodeBody[requestResponse](t, accepted)
	if ar.Status != "in_progress" {
		t.Fatalf("accepted=%+v", ar)
	}
	if ar.Code != nil {
		t.Fatal("verification code leaked to deliverer on accept")
	}

	// Only the requester's own-requests view carries the code.
	mine := decodeBody[[]ownRequestResponse](t, env.do(t, http.MethodGet, "/api/my-requests", "", reqCookie))
	if len(mine) != 1 || mine[0].Code == nil {
		t.Fatalf("my-requests=%+v", mine)
	}
	code := *mine[0].Code
	if len(code) != 4 {
		t.Fatalf("code=%q", code)
	}
	if mine[0].DelivererName == nil || *mine[0].DelivererName != "Binil" {
		t.Fatalf("deliverer name missing: %+v", mine[0])
	}

	// The deliverer sees the requester's phone on their active delivery.
	carrying := decodeBody[[]activeDeliveryResponse](t, env.do(t, http.MethodGet, "/api/my-deliveries", "", delCookie))
	if len(carrying) != 1 || carrying[0].RequesterPhone == nil {
		t.Fatalf("my-deliveries=%+v", carrying)
	}

	// Active order for the deliverer must not expose the code either.
	active := env.do(t, http.MethodGet, "/api/my-active-order", "", delCookie)
	if active.Code != http.StatusOK {
		t.Fatalf("active order status=%d", active.Code)
	}
	ao := decodeBody[requestResponse](t, active)
	if ao.ID != cr.ID || ao.Code != nil {
		t.Fatalf("active order=%+v", ao)
	}

	wrong := env.do(t, http.MethodPost, "/api/requests/"+cr.ID+"/complete", `{"code":"0000"}`, delCookie)
	if wrong.Code != http.StatusBadRequest || errorCode(t, wrong) != "invalid_code" {
		t.Fatalf("wrong code: status=%d body=%s", wrong.Code, wrong.Body.String())
	}

	done := env.do(t, http.MethodPost, "/api/requests/"+cr.ID+"/complete", `{"code":"`+code+`"}`, delCookie)
	if done.Code != http.StatusOK {
		t.Fatalf("complete status=%d body=%s", done.Code, done.Body.String())
	}
	if dr := decodeBody[requestResponse](t, done); dr.Status != "completed" {
		t.Fatalf("completed=%+v", dr)
	}

	// No active order remains on either side.
	after := env.do(t, http.MethodGet, "/api/my-active-order", "", delCookie)
	if after.Code != http.StatusOK || strings.TrimSpace(after.Body.String()) != "null" {
		t.Fatalf("active order after completion: status=%d body=%q", after.Code, after.Body.String())
	}

	// Stats reflect one creation and one completion.
	reqStats := decodeBody[statsResponse](t, env.do(t, http.MethodGet, "/me/stats", "", reqCookie))
	if reqStats.RequestsCreated != 1 || reqStats.DeliveriesCompleted != 0 {
		t.Fatalf("requester stats=%+v", reqStats)
	}
	delStats := decodeBody[statsResponse](t, env.do(t, http.MethodGet, "/me/stats", "", delCookie))
	if delStats.RequestsCreated != 0 || delStats.DeliveriesCompleted != 1 {
		t.Fatalf("deliverer stats=%+v", delStats)
	}
}

func TestCreateRequest_Validation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, stubProvider{})
	_, cookie := env.loginDirect(t, "g-1", "asha@vitstudent.ac.in", "Asha")

	for name, body := range map[string]string{
		"missing phone":  `{"item_description":"x","category":"c","payment_status":"p","pickup_location":"a","delivery_location":"b"}`,
		"missing fields": `{"requester_phone":"123"}`,
		"bad json":       `{`,
		"unknown field":  `{"requester_phone":"123","surprise":true}`,
	} {
		rec := env.do(t, http.MethodPost, "/api/requests", body, cookie)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status=%d body=%s", name, rec.Code, rec.Body.String())
		}
	}
}

func TestCreateRequest_RejectedCreateLeavesPhoneUntouched(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, stubProvider{})
	_, cookie := env.loginDirect(t, "g-1", "asha@vitstudent.ac.in", "Asha")

	// Phone present but the item description is blank, so the create fails
	// validation. The member's phone must not be written as a side effect.
	body := `{
		"item_description": "",
		"category": "parcel",
		"payment_status": "prepaid",
		"pickup_location": "Main Gate",
		"delivery_location": "Block K",
		"requester_phone": "+91 98765 43210"
	}`
	rec := env.do(t, http.MethodPost, "/api/requests", body, cookie)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	me := decodeBody[memberResponse](t, env.do(t, http.MethodGet, "/me", "", cookie))
	if me.Phone != nil {
		t.Fatalf("phone recorded for rejected create: %q", *me.Phone)
	}
}

func TestAccept_Denials(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, stubProvider{})
	_, reqCookie := env.loginDirect(t, "g-req", "asha@vitstudent.ac.in", "Asha")
	_, delCookie := env.loginDirect(t, "g-del", "binil@vitstudent.ac.in", "Binil")
	_, lateCookie := env.loginDirect(t, "g-late", "chitra@vitstudent.ac.in", "Chitra")

	created := decodeBody[requestResponse](t,
		env.do(t, http.MethodPost, "/api/requests", createBody, reqCookie))

	// Self-acceptance is forbidden.
	self := env.do(t, http.MethodPatch, "/api/requests/"+created.ID+"/accept", "", reqCookie)
	if self.Code != http.StatusForbidden || errorCode(t, self) != "forbidden" {
		t.Fatalf("self accept: status=%d body=%s", self.Code, self.Body.String())
	}

	if rec := env.do(t, http.MethodPatch, "/api/requests/"+created.ID+"/accept", "", delCookie); rec.Code != http.StatusOK {
		t.Fatalf("accept status=%d", rec.Code)
	}

	// A second acceptance loses to the first.
	late := env.do(t, http.MethodPatch, "/api/requests/"+created.ID+"/accept", "", lateCookie)
	if late.Code != http.StatusConflict || errorCode(t, late) != "conflict" {
		t.Fatalf("late accept: status=%d body=%s", late.Code, late.Body.String())
	}

	// Cancellation is closed once a deliverer is on the way.
	cancel := env.do(t, http.MethodPatch, "/api/requests/"+created.ID+"/cancel", "", reqCookie)
	if cancel.Code != http.StatusConflict {
		t.Fatalf("cancel after accept: status=%d body=%s", cancel.Code, cancel.Body.String())
	}

	missing := env.do(t, http.MethodPatch, "/api/requests/no-such-id/accept", "", delCookie)
	if missing.Code != http.StatusNotFound {
		t.Fatalf("missing request: status=%d", missing.Code)
	}
}

func TestCancelPending(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, stubProvider{})
	_, reqCookie := env.loginDirect(t, "g-req", "asha@vitstudent.ac.in", "Asha")
	_, otherCookie := env.loginDirect(t, "g-other", "binil@vitstudent.ac.in", "Binil")

	created := decodeBody[requestResponse](t,
		env.do(t, http.MethodPost, "/api/requests", createBody, reqCookie))

	// Only the requester may cancel.
	foreign := env.do(t, http.MethodPatch, "/api/requests/"+created.ID+"/cancel", "", otherCookie)
	if foreign.Code != http.StatusForbidden {
		t.Fatalf("foreign cancel: status=%d", foreign.Code)
	}

	ok := env.do(t, http.MethodPatch, "/api/requests/"+created.ID+"/cancel", "", reqCookie)
	if ok.Code != http.StatusOK {
		t.Fatalf("cancel status=%d body=%s", ok.Code, ok.Body.String())
	}
	if cr := decodeBody[requestResponse](t, ok); cr.Status != "cancelled" {
		t.Fatalf("cancelled=%+v", cr)
	}

	// Cancelled requests leave the open list.
	open := decodeBody[[]openRequestResponse](t, env.do(t, http.MethodGet, "/api/requests", "", otherCookie))
	if len(open) != 0 {
		t.Fatalf("open list after cancel=%+v", open)
	}
}
