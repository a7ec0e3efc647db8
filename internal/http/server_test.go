package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"splitledger/internal/service"
	"splitledger/internal/storage"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	repo, err := storage.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	ledger := service.NewLedger(repo, nil, nil)
	t.Cleanup(func() { ledger.Close() })

	srv := NewServer(":0", ledger)
	ts := httptest.NewServer(srv.Server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response of %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

type testFixture struct {
	ts    *httptest.Server
	group groupDTO
	alice memberDTO
	bob   memberDTO
}

func seedFixture(t *testing.T) testFixture {
	t.Helper()
	ts := testServer(t)

	var f testFixture
	f.ts = ts
	if code := doJSON(t, ts, "POST", "/groups", map[string]string{"name": "Trip"}, &f.group); code != http.StatusCreated {
		t.Fatalf("create group: status %d", code)
	}
	if code := doJSON(t, ts, "POST", "/members", map[string]string{"name": "Alice"}, &f.alice); code != http.StatusCreated {
		t.Fatalf("create member: status %d", code)
	}
	if code := doJSON(t, ts, "POST", "/members", map[string]string{"name": "Bob"}, &f.bob); code != http.StatusCreated {
		t.Fatalf("create member: status %d", code)
	}
	for _, id := range []string{f.alice.ID, f.bob.ID} {
		if code := doJSON(t, ts, "POST", "/groups/"+f.group.ID+"/members",
			map[string]string{"member_id": id}, nil); code != http.StatusOK {
			t.Fatalf("add member: status %d", code)
		}
	}
	return f
}

func TestHealthEndpoints(t *testing.T) {
	ts := testServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := ts.Client().Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s: status %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestExpenseLifecycle(t *testing.T) {
	f := seedFixture(t)

	var created expenseDTO
	code := doJSON(t, f.ts, "POST", "/expenses", map[string]string{
		"group_id": f.group.ID,
		"payer_id": f.alice.ID,
		"name":     "Dinner",
		"amount":   "30.00",
		"category": "food",
		"spent_at": "2026-05-20T19:00:00Z",
	}, &created)
	if code != http.StatusCreated {
		t.Fatalf("create expense: status %d", code)
	}
	if created.AmountCents != 3000 || created.Amount != "30.00" {
		t.Errorf("amount = %s (%d cents), want 30.00 (3000)", created.Amount, created.AmountCents)
	}

	var fetched expenseDTO
	if code := doJSON(t, f.ts, "GET", "/expenses/"+created.ID, nil, &fetched); code != http.StatusOK {
		t.Fatalf("get expense: status %d", code)
	}
	if fetched.Name != "Dinner" || fetched.Category != "food" {
		t.Errorf("fetched = %+v", fetched)
	}

	var updated expenseDTO
	if code := doJSON(t, f.ts, "PUT", "/expenses/"+created.ID,
		map[string]string{"amount": "45,50"}, &updated); code != http.StatusOK {
		t.Fatalf("update expense: status %d", code)
	}
	if updated.AmountCents != 4550 {
		t.Errorf("updated amount = %d cents, want 4550", updated.AmountCents)
	}

	if code := doJSON(t, f.ts, "DELETE", "/expenses/"+created.ID, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete expense: status %d", code)
	}
	if code := doJSON(t, f.ts, "GET", "/expenses/"+created.ID, nil, nil); code != http.StatusNotFound {
		t.Errorf("get deleted expense: status %d, want 404", code)
	}
}

func TestCreateExpenseValidation(t *testing.T) {
	f := seedFixture(t)

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{
			name: "negative amount",
			body: map[string]string{
				"group_id": f.group.ID, "payer_id": f.alice.ID, "name": "Bad",
				"amount": "-5.00", "category": "food", "spent_at": "2026-05-20T19:00:00Z",
			},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "malformed date",
			body: map[string]string{
				"group_id": f.group.ID, "payer_id": f.alice.ID, "name": "Bad",
				"amount": "5.00", "category": "food", "spent_at": "yesterday",
			},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "empty name",
			body: map[string]string{
				"group_id": f.group.ID, "payer_id": f.alice.ID, "name": "",
				"amount": "5.00", "category": "food", "spent_at": "2026-05-20T19:00:00Z",
			},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "payer outside group",
			body: map[string]string{
				"group_id": f.group.ID, "payer_id": "nobody", "name": "Bad",
				"amount": "5.00", "category": "food", "spent_at": "2026-05-20T19:00:00Z",
			},
			want: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := doJSON(t, f.ts, "POST", "/expenses", tt.body, nil); code != tt.want {
				t.Errorf("status = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestBalancesEndpoint(t *testing.T) {
	f := seedFixture(t)

	if code := doJSON(t, f.ts, "POST", "/expenses", map[string]string{
		"group_id": f.group.ID, "payer_id": f.alice.ID, "name": "Hotel",
		"amount": "30.00", "category": "other", "spent_at": "2026-05-20T19:00:00Z",
	}, nil); code != http.StatusCreated {
		t.Fatalf("create expense: status %d", code)
	}

	var view balancesDTO
	if code := doJSON(t, f.ts, "GET", "/groups/"+f.group.ID+"/balances", nil, &view); code != http.StatusOK {
		t.Fatalf("balances: status %d", code)
	}
	if len(view.Balances) != 2 {
		t.Fatalf("got %d balances, want 2", len(view.Balances))
	}

	want := map[string]int64{f.alice.ID: 1500, f.bob.ID: -1500}
	var sum int64
	for _, b := range view.Balances {
		if b.AmountCents != want[b.MemberID] {
			t.Errorf("%s balance = %d, want %d", b.Name, b.AmountCents, want[b.MemberID])
		}
		sum += b.AmountCents
	}
	if sum != 0 {
		t.Errorf("balances sum to %d, want 0", sum)
	}
}

func TestCategorySummaryEndpoint(t *testing.T) {
	f := seedFixture(t)

	for i, e := range []map[string]string{
		{"amount": "30.00", "category": "food"},
		{"amount": "10.00", "category": "food"},
		{"amount": "5.00", "category": "transport"},
	} {
		e["group_id"] = f.group.ID
		e["payer_id"] = f.alice.ID
		e["name"] = fmt.Sprintf("Item %d", i)
		e["spent_at"] = "2026-05-20T19:00:00Z"
		if code := doJSON(t, f.ts, "POST", "/expenses", e, nil); code != http.StatusCreated {
			t.Fatalf("create expense: status %d", code)
		}
	}

	var totals []categoryTotalDTO
	if code := doJSON(t, f.ts, "GET", "/categories/summary?group_id="+f.group.ID, nil, &totals); code != http.StatusOK {
		t.Fatalf("category summary: status %d", code)
	}

	got := map[string]int64{}
	for _, ct := range totals {
		got[ct.Category] = ct.TotalCents
	}
	if got["food"] != 4000 {
		t.Errorf("food total = %d, want 4000", got["food"])
	}
	if got["transport"] != 500 {
		t.Errorf("transport total = %d, want 500", got["transport"])
	}
}

func TestGroupMembershipConflicts(t *testing.T) {
	f := seedFixture(t)

	// Adding the same member twice conflicts.
	if code := doJSON(t, f.ts, "POST", "/groups/"+f.group.ID+"/members",
		map[string]string{"member_id": f.alice.ID}, nil); code != http.StatusConflict {
		t.Errorf("duplicate add: status %d, want 409", code)
	}

	// Removing a non-member is a 404.
	if code := doJSON(t, f.ts, "DELETE", "/groups/"+f.group.ID+"/members/ghost", nil, nil); code != http.StatusNotFound {
		t.Errorf("remove non-member: status %d, want 404", code)
	}
}

func TestDeleteGroupCascades(t *testing.T) {
	f := seedFixture(t)

	var e expenseDTO
	if code := doJSON(t, f.ts, "POST", "/expenses", map[string]string{
		"group_id": f.group.ID, "payer_id": f.alice.ID, "name": "Dinner",
		"amount": "10.00", "category": "food", "spent_at": "2026-05-20T19:00:00Z",
	}, &e); code != http.StatusCreated {
		t.Fatalf("create expense: status %d", code)
	}

	if code := doJSON(t, f.ts, "DELETE", "/groups/"+f.group.ID, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete group: status %d", code)
	}
	if code := doJSON(t, f.ts, "GET", "/expenses/"+e.ID, nil, nil); code != http.StatusNotFound {
		t.Errorf("expense after group delete: status %d, want 404", code)
	}
}

func TestSyncStatusWithoutEngine(t *testing.T) {
	ts := testServer(t)

	var status syncStatusDTO
	if code := doJSON(t, ts, "GET", "/sync/status", nil, &status); code != http.StatusOK {
		t.Fatalf("sync status: status %d", code)
	}
	if status.State != "idle" {
		t.Errorf("state = %q, want idle", status.State)
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	ts := testServer(t)
	resp, err := ts.Client().Get(ts.URL + "/nope")
	if err != nil {
		t.Fatalf("GET /nope: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
