package delivery

import (
	"context"
	"sync"
	"testing"
	"time"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()

	names := map[string]string{
		"A": "Alice",
		"B": "Bala",
		"C": "Chitra",
	}
	store := NewMemoryStore(func(_ context.Context, id string) (string, *string, error) {
		return names[id], nil, nil
	})
	svc, err := NewService(store)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store
}

func mustCreate(t *testing.T, svc *Service, requester string) Request {
	t.Helper()

	req, err := svc.Create(context.Background(), CreateInput{
		RequesterID:      requester,
		ItemDescription:  "Textbook",
		Category:         "Paperwork",
		PaymentStatus:    "Paid",
		PickupLocation:   "Library",
		DeliveryLocation: "Hostel B",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return req
}

func TestCreate_Validation(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	base := CreateInput{
		RequesterID:      "A",
		ItemDescription:  "Textbook",
		Category:         "Paperwork",
		PaymentStatus:    "Paid",
		PickupLocation:   "Library",
		DeliveryLocation: "Hostel B",
	}

	cases := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"missing requester", func(in *CreateInput) { in.RequesterID = "" }},
		{"missing description", func(in *CreateInput) { in.ItemDescription = "  " }},
		{"missing category", func(in *CreateInput) { in.Category = "" }},
		{"missing payment status", func(in *CreateInput) { in.PaymentStatus = "" }},
		{"missing pickup", func(in *CreateInput) { in.PickupLocation = "" }},
		{"missing delivery", func(in *CreateInput) { in.DeliveryLocation = "\t" }},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			in := base
			tc.mutate(&in)
			if _, err := svc.Create(ctx, in); !IsInvalidInput(err) {
				t.Fatalf("Create err=%v want invalid input", err)
			}
		})
	}

	req, err := svc.Create(ctx, base)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if req.Status != StatusPending || req.DelivererID != nil || req.Code != nil {
		t.Fatalf("new request not pristine pending: %+v", req)
	}
	if req.ID == "" {
		t.Fatal("missing request id")
	}
}

func TestLifecycle_Scenario(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	req := mustCreate(t, svc, "A")

	accepted, err := svc.Accept(ctx, req.ID, "B")
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if accepted.Status != StatusInProgress {
		t.Fatalf("status=%s want in_progress", accepted.Status)
	}
	if accepted.DelivererID == nil || *accepted.DelivererID != "B" {
		t.Fatalf("deliverer=%v want B", accepted.DelivererID)
	}
	if accepted.Code == nil || !ValidCodeFormat(*accepted.Code) {
		t.Fatalf("code=%v want 4-digit code", accepted.Code)
	}

	// A second acceptor after B's success loses.
	if _, err := svc.Accept(ctx, req.ID, "C"); !IsConflict(err) {
		t.Fatalf("second Accept err=%v want conflict", err)
	}

	// Wrong guess is rejected without side effects and can be retried.
	wrong := "0000"
	if *accepted.Code == wrong {
		wrong = "0001"
	}
	if _, err := svc.Complete(ctx, req.ID, "B", wrong); !IsInvalidCode(err) {
		t.Fatalf("Complete wrong code err=%v want invalid code", err)
	}
	cur, err := svc.ActiveOrder(ctx, "B")
	if err != nil {
		t.Fatalf("ActiveOrder: %v", err)
	}
	if cur.Status != StatusInProgress || cur.Code == nil || *cur.Code != *accepted.Code {
		t.Fatalf("state mutated by rejected guess: %+v", cur)
	}

	done, err := svc.Complete(ctx, req.ID, "B", *accepted.Code)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Fatalf("status=%s want completed", done.Status)
	}

	// Terminal states are sinks.
	if _, err := svc.Cancel(ctx, req.ID, "A"); !IsConflict(err) {
		t.Fatalf("Cancel after completion err=%v want conflict", err)
	}
	if _, err := svc.Accept(ctx, req.ID, "C"); !IsConflict(err) {
		t.Fatalf("Accept after completion err=%v want conflict", err)
	}
	if _, err := svc.Complete(ctx, req.ID, "B", *accepted.Code); !IsConflict(err) {
		t.Fatalf("Complete after completion err=%v want conflict", err)
	}
}

func TestAccept_SelfDealingForbidden(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	req := mustCreate(t, svc, "A")
	if _, err := svc.Accept(ctx, req.ID, "A"); !IsForbidden(err) {
		t.Fatalf("self Accept err=%v want forbidden", err)
	}

	// Still forbidden, not conflict, after the request leaves pending.
	if _, err := svc.Accept(ctx, req.ID, "B"); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if _, err := svc.Accept(ctx, req.ID, "A"); !IsForbidden(err) {
		t.Fatalf("self Accept on in_progress err=%v want forbidden", err)
	}
}

func TestAccept_MissingRequest(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	if _, err := svc.Accept(context.Background(), "01JUNKNOWN0000000000000000", "B"); !IsNotFound(err) {
		t.Fatalf("Accept err=%v want not found", err)
	}
}

func TestAccept_SingleAcceptanceUnderConcurrency(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	req := mustCreate(t, svc, "A")

	const n = 32
	var wg sync.WaitGroup
	errs := make([]error, n)
	results := make([]Request, n)

	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			actor := string(rune('a' + i%26))
			results[i], errs[i] = svc.Accept(ctx, req.ID, actor)
		}()
	}
	wg.Wait()

	var wins, conflicts int
	var winner Request
	for i := 0; i < n; i++ {
		switch {
		case errs[i] == nil:
			wins++
			winner = results[i]
		case IsConflict(errs[i]):
			conflicts++
		default:
			t.Fatalf("unexpected error kind: %v", errs[i])
		}
	}
	if wins != 1 || conflicts != n-1 {
		t.Fatalf("wins=%d conflicts=%d want 1/%d", wins, conflicts, n-1)
	}
	if winner.DelivererID == nil || winner.Code == nil {
		t.Fatalf("winner missing deliverer or code: %+v", winner)
	}

	final, err := svc.ActiveOrder(ctx, *winner.DelivererID)
	if err != nil {
		t.Fatalf("ActiveOrder: %v", err)
	}
	if final.Status != StatusInProgress || *final.DelivererID != *winner.DelivererID || *final.Code != *winner.Code {
		t.Fatalf("final row disagrees with winner: %+v vs %+v", final, winner)
	}
}

func TestCancel_RolesAndStates(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	req := mustCreate(t, svc, "A")

	if _, err := svc.Cancel(ctx, req.ID, "B"); !IsForbidden(err) {
		t.Fatalf("Cancel by stranger err=%v want forbidden", err)
	}

	cancelled, err := svc.Cancel(ctx, req.ID, "A")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("status=%s want cancelled", cancelled.Status)
	}

	// Cancelled is terminal.
	if _, err := svc.Accept(ctx, req.ID, "B"); !IsConflict(err) {
		t.Fatalf("Accept after cancel err=%v want conflict", err)
	}
	if _, err := svc.Cancel(ctx, req.ID, "A"); !IsConflict(err) {
		t.Fatalf("second Cancel err=%v want conflict", err)
	}
}

func TestListOpen_ExcludesOwn(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	mine := mustCreate(t, svc, "A")
	theirs := mustCreate(t, svc, "B")

	open, err := svc.ListOpen(ctx, "A")
	if err != nil {
		t.Fatalf("ListOpen: %v", err)
	}
	if len(open) != 1 || open[0].ID != theirs.ID {
		t.Fatalf("ListOpen=%+v want only %s", open, theirs.ID)
	}
	if open[0].RequesterName != "Bala" {
		t.Fatalf("requester name=%q want Bala", open[0].RequesterName)
	}
	for _, r := range open {
		if r.ID == mine.ID {
			t.Fatal("ListOpen included the viewer's own request")
		}
	}

	// Accepted requests drop out of the open list.
	if _, err := svc.Accept(ctx, theirs.ID, "C"); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	open, err = svc.ListOpen(ctx, "A")
	if err != nil {
		t.Fatalf("ListOpen: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("ListOpen=%+v want empty", open)
	}
}

func TestListByRequester_NewestFirstWithCode(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()

	old, err := svc.Create(ctx, CreateInput{
		RequesterID:      "A",
		ItemDescription:  "Old parcel",
		Category:         "Parcel",
		PaymentStatus:    "Unpaid",
		PickupLocation:   "Main Gate",
		DeliveryLocation: "Hostel A",
		Now:              time.Now().UTC().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	recent := mustCreate(t, svc, "A")

	accepted, err := svc.Accept(ctx, recent.ID, "B")
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}

	list, err := svc.ListByRequester(ctx, "A")
	if err != nil {
		t.Fatalf("ListByRequester: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len=%d want 2", len(list))
	}
	if list[0].ID != recent.ID || list[1].ID != old.ID {
		t.Fatalf("order=[%s %s] want newest first", list[0].ID, list[1].ID)
	}
	if list[0].Code == nil || *list[0].Code != *accepted.Code {
		t.Fatalf("requester cannot read the verification code: %+v", list[0])
	}
	if list[0].DelivererName == nil || *list[0].DelivererName != "Bala" {
		t.Fatalf("deliverer name=%v want Bala", list[0].DelivererName)
	}

	// Sanity: the stored row still holds the same code.
	row, err := store.GetByID(ctx, recent.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if row.Code == nil || *row.Code != *accepted.Code {
		t.Fatalf("stored code=%v want %q", row.Code, *accepted.Code)
	}
}

func TestActiveOrder_DelivererRoleWins(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	// B is simultaneously an active requester and an active deliverer.
	own := mustCreate(t, svc, "B")
	other := mustCreate(t, svc, "A")
	if _, err := svc.Accept(ctx, other.ID, "B"); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	active, err := svc.ActiveOrder(ctx, "B")
	if err != nil {
		t.Fatalf("ActiveOrder: %v", err)
	}
	if active.ID != other.ID {
		t.Fatalf("ActiveOrder=%s want deliverer-role order %s (not %s)", active.ID, other.ID, own.ID)
	}

	// No active order at all -> not found.
	if _, err := svc.ActiveOrder(ctx, "C"); !IsNotFound(err) {
		t.Fatalf("ActiveOrder err=%v want not found", err)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	first := mustCreate(t, svc, "A")
	mustCreate(t, svc, "A")

	accepted, err := svc.Accept(ctx, first.ID, "B")
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if _, err := svc.Complete(ctx, first.ID, "B", *accepted.Code); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	aStats, err := svc.Stats(ctx, "A")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if aStats.RequestsCreated != 2 || aStats.DeliveriesCompleted != 0 {
		t.Fatalf("A stats=%+v want {2 0}", aStats)
	}

	bStats, err := svc.Stats(ctx, "B")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if bStats.RequestsCreated != 0 || bStats.DeliveriesCompleted != 1 {
		t.Fatalf("B stats=%+v want {0 1}", bStats)
	}
}
