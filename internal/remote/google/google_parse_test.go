package google

import (
	"reflect"
	"testing"

	"splitledger/internal/remote"
)

func TestParseRow(t *testing.T) {
	tests := []struct {
		name   string
		raw    []any
		want   remote.Record
		wantOK bool
	}{
		{
			name: "full row",
			raw:  []any{"m1", "7", "false", `{"name":"Alice"}`},
			want: remote.Record{
				Kind:   remote.KindMember,
				ID:     "m1",
				Rev:    7,
				Fields: map[string]string{"name": "Alice"},
			},
			wantOK: true,
		},
		{
			name: "tombstone row",
			raw:  []any{"m2", "9", "TRUE", `{}`},
			want: remote.Record{
				Kind:    remote.KindMember,
				ID:      "m2",
				Rev:     9,
				Deleted: true,
				Fields:  map[string]string{},
			},
			wantOK: true,
		},
		{
			name: "numeric rev from sheets API",
			raw:  []any{"m3", 12, "false", ""},
			want: remote.Record{
				Kind:   remote.KindMember,
				ID:     "m3",
				Rev:    12,
				Fields: map[string]string{},
			},
			wantOK: true,
		},
		{
			name:   "empty id skipped",
			raw:    []any{"", "1", "false", "{}"},
			wantOK: false,
		},
		{
			name:   "non-numeric rev skipped",
			raw:    []any{"m4", "rev", "false", "{}"},
			wantOK: false,
		},
		{
			name:   "malformed fields JSON skipped",
			raw:    []any{"m5", "3", "false", "not json"},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseRow(remote.KindMember, tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("parseRow() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseRow() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRecordRowRoundTrip(t *testing.T) {
	rec := remote.Record{
		Kind: remote.KindExpense,
		ID:   "e1",
		Rev:  42,
		Fields: map[string]string{
			"name":         "Dinner",
			"amount_cents": "3000",
		},
	}

	row, err := recordRow(rec)
	if err != nil {
		t.Fatalf("recordRow() error: %v", err)
	}

	got, ok := parseRow(remote.KindExpense, row)
	if !ok {
		t.Fatal("parseRow() rejected a row produced by recordRow()")
	}
	if !reflect.DeepEqual(got, rec) {
		t.Errorf("round trip = %+v, want %+v", got, rec)
	}
}

func TestSheetName(t *testing.T) {
	if got := sheetName(remote.KindMember); got != "Members" {
		t.Errorf("sheetName(member) = %q", got)
	}
	if got := sheetName(remote.KindGroup); got != "Groups" {
		t.Errorf("sheetName(group) = %q", got)
	}
	if got := sheetName(remote.KindExpense); got != "Expenses" {
		t.Errorf("sheetName(expense) = %q", got)
	}
}
