package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"unidash/cmd/internal/delivery"
	"unidash/cmd/internal/member"
	"unidash/cmd/internal/session"
)

func TestRuntimeBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "explicit localhost", in: "127.0.0.1:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v4", in: "0.0.0.0:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v6", in: "[::]:9090", want: "http://127.0.0.1:9090"},
		{name: "hostname", in: "unidash.internal:9090", want: "http://unidash.internal:9090"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := runtimeBaseURL(tc.in)
			if got != tc.want {
				t.Fatalf("runtimeBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNewStores_MemoryModeResolvesNames(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, pool, dbEnabled, err := newStores(context.Background(), Config{}, log)
	if err != nil {
		t.Fatalf("newStores: %v", err)
	}
	if pool != nil || dbEnabled {
		t.Fatalf("memory mode: pool=%v dbEnabled=%v", pool, dbEnabled)
	}

	// The delivery store's name lookup must be wired to the member store.
	ctx := context.Background()
	memStore, ok := st.members.(*member.MemoryStore)
	if !ok {
		t.Fatalf("members store type %T", st.members)
	}
	if _, err := memStore.Create(ctx, member.CreateRecord{
		ID:       "m1",
		GoogleID: "g1",
		Email:    "asha@vitstudent.ac.in",
		Name:     "Asha",
	}); err != nil {
		t.Fatalf("seed member: %v", err)
	}

	if _, err := st.deliveries.Insert(ctx, delivery.InsertRecord{
		ID:               "r1",
		RequesterID:      "m1",
		ItemDescription:  "books",
		Category:         "stationery",
		PaymentStatus:    "prepaid",
		PickupLocation:   "library",
		DeliveryLocation: "hostel",
	}); err != nil {
		t.Fatalf("seed request: %v", err)
	}
	open, err := st.deliveries.ListOpen(ctx, "someone-else")
	if err != nil {
		t.Fatalf("ListOpen: %v", err)
	}
	if len(open) != 1 || open[0].RequesterName != "Asha" {
		t.Fatalf("open=%+v", open)
	}
}

func sessionConfig(hmacKey string) session.Config {
	return session.Config{
		CookieName: "unidash_session",
		TTL:        time.Hour,
		TokenBytes: 32,
		HMACKey:    hmacKey,
	}
}

func TestValidateSecurityConfig(t *testing.T) {
	t.Parallel()

	key32 := "0123456789abcdef0123456789abcdef"

	if err := ValidateSecurityConfig(Config{}, sessionConfig("")); err != nil {
		t.Fatalf("policy off: %v", err)
	}
	if err := ValidateSecurityConfig(Config{RequireTokenHMAC: true}, sessionConfig("")); err == nil {
		t.Fatal("missing key accepted")
	}
	if err := ValidateSecurityConfig(Config{RequireTokenHMAC: true}, sessionConfig("short")); err == nil {
		t.Fatal("short key accepted")
	}
	if err := ValidateSecurityConfig(Config{RequireTokenHMAC: true}, sessionConfig(key32)); err != nil {
		t.Fatalf("valid key rejected: %v", err)
	}
}

func TestDisabledProviderRejectsLogins(t *testing.T) {
	t.Parallel()

	p := disabledProvider{}
	if url := p.AuthCodeURL("state"); url != "" {
		t.Fatalf("AuthCodeURL=%q", url)
	}
	if _, err := p.ResolveCode(context.Background(), "code"); err == nil {
		t.Fatal("expected provider error")
	}
}
