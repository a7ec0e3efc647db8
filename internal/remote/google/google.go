// Package google implements the remote store on a Google Sheets
// spreadsheet. Each record kind gets its own worksheet with the columns
// id, rev, deleted, fields (JSON). Revisions are allocated from a single
// counter spanning all worksheets, so a pull cursor is one integer.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"splitledger/internal/remote"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Store struct {
	svc           *gsheet.Service
	spreadsheetID string
}

var _ remote.Store = (*Store)(nil)

// Options configure the Sheets store. CredentialsJSON takes precedence
// over CredentialsFile.
type Options struct {
	SpreadsheetID   string
	CredentialsJSON string
	CredentialsFile string
}

// New creates a Sheets-backed store from explicit options.
func New(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet ID")
	}

	var credentialsJSON []byte
	switch {
	case strings.TrimSpace(opts.CredentialsJSON) != "":
		credentialsJSON = []byte(opts.CredentialsJSON)
	case strings.TrimSpace(opts.CredentialsFile) != "":
		data, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
		credentialsJSON = data
	default:
		return nil, errors.New("missing Google credentials")
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Store{svc: svc, spreadsheetID: opts.SpreadsheetID}, nil
}

// NewFromEnv creates a Sheets store using environment variables.
// Required: GOOGLE_SPREADSHEET_ID. Credentials come from
// GOOGLE_CREDENTIALS_JSON, GOOGLE_CREDENTIALS_FILE, or
// GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*Store, error) {
	file := strings.TrimSpace(os.Getenv("GOOGLE_CREDENTIALS_FILE"))
	if file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	return New(ctx, Options{
		SpreadsheetID:   strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID")),
		CredentialsJSON: strings.TrimSpace(os.Getenv("GOOGLE_CREDENTIALS_JSON")),
		CredentialsFile: file,
	})
}

func sheetName(kind remote.Kind) string {
	switch kind {
	case remote.KindMember:
		return "Members"
	case remote.KindGroup:
		return "Groups"
	case remote.KindExpense:
		return "Expenses"
	}
	return string(kind)
}

// Setup ensures one worksheet per record kind exists, each with a header
// row. Safe to call repeatedly.
func (s *Store) Setup(ctx context.Context) error {
	spreadsheet, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}

	existing := map[string]bool{}
	for _, sh := range spreadsheet.Sheets {
		if sh.Properties != nil {
			existing[sh.Properties.Title] = true
		}
	}

	var requests []*gsheet.Request
	var created []string
	for _, kind := range remote.Kinds {
		name := sheetName(kind)
		if existing[name] {
			continue
		}
		requests = append(requests, &gsheet.Request{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: name},
			},
		})
		created = append(created, name)
	}

	if len(requests) > 0 {
		_, err = s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{
			Requests: requests,
		}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("add sheets: %w", err)
		}

		header := &gsheet.ValueRange{Values: [][]any{{"id", "rev", "deleted", "fields"}}}
		for _, name := range created {
			rng := fmt.Sprintf("%s!A1:D1", name)
			_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng, header).
				ValueInputOption("RAW").Context(ctx).Do()
			if err != nil {
				return fmt.Errorf("write header for %s: %w", name, err)
			}
		}
	}

	return nil
}

// Pull returns every record whose revision is greater than cursor,
// ordered by revision, along with the new cursor.
func (s *Store) Pull(ctx context.Context, cursor int64) ([]remote.Record, int64, error) {
	var out []remote.Record
	maxRev := cursor

	for _, kind := range remote.Kinds {
		rows, _, err := s.readSheet(ctx, kind)
		if err != nil {
			return nil, 0, err
		}
		for _, row := range rows {
			if row.record.Rev <= cursor {
				continue
			}
			out = append(out, row.record)
			if row.record.Rev > maxRev {
				maxRev = row.record.Rev
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Rev < out[j].Rev })
	return out, maxRev, nil
}

// Push writes the given records, assigning each a fresh revision above
// everything already stored. Existing rows with the same id are
// overwritten in place.
func (s *Store) Push(ctx context.Context, records []remote.Record) error {
	if len(records) == 0 {
		return nil
	}

	nextRev, err := s.maxRevision(ctx)
	if err != nil {
		return err
	}

	byKind := map[remote.Kind][]remote.Record{}
	for _, rec := range records {
		byKind[rec.Kind] = append(byKind[rec.Kind], rec)
	}

	for _, kind := range remote.Kinds {
		batch := byKind[kind]
		if len(batch) == 0 {
			continue
		}
		rows, rowIndex, err := s.readSheet(ctx, kind)
		if err != nil {
			return err
		}
		appendRow := len(rows) + 2 // header occupies row 1

		for _, rec := range batch {
			nextRev++
			rec.Rev = nextRev

			row, err := recordRow(rec)
			if err != nil {
				return err
			}

			target, exists := rowIndex[rec.ID]
			if !exists {
				target = appendRow
				appendRow++
			}
			rng := fmt.Sprintf("%s!A%d:D%d", sheetName(kind), target, target)
			vr := &gsheet.ValueRange{Values: [][]any{row}}
			_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng, vr).
				ValueInputOption("RAW").Context(ctx).Do()
			if err != nil {
				return fmt.Errorf("write %s row %d: %w", sheetName(kind), target, err)
			}
		}
	}

	return nil
}

type sheetRow struct {
	record remote.Record
	row    int
}

// readSheet parses one worksheet into records. It returns the parsed rows
// and an index from record ID to 1-based sheet row.
func (s *Store) readSheet(ctx context.Context, kind remote.Kind) ([]sheetRow, map[string]int, error) {
	rng := fmt.Sprintf("%s!A2:D", sheetName(kind))
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", rng, err)
	}

	var rows []sheetRow
	index := map[string]int{}
	for i, raw := range resp.Values {
		rec, ok := parseRow(kind, raw)
		if !ok {
			continue
		}
		rowNum := i + 2
		rows = append(rows, sheetRow{record: rec, row: rowNum})
		index[rec.ID] = rowNum
	}
	return rows, index, nil
}

func (s *Store) maxRevision(ctx context.Context) (int64, error) {
	var max int64
	for _, kind := range remote.Kinds {
		rows, _, err := s.readSheet(ctx, kind)
		if err != nil {
			return 0, err
		}
		for _, row := range rows {
			if row.record.Rev > max {
				max = row.record.Rev
			}
		}
	}
	return max, nil
}

func recordRow(rec remote.Record) ([]any, error) {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields for %s/%s: %w", rec.Kind, rec.ID, err)
	}
	deleted := "false"
	if rec.Deleted {
		deleted = "true"
	}
	return []any{rec.ID, strconv.FormatInt(rec.Rev, 10), deleted, string(fields)}, nil
}

func parseRow(kind remote.Kind, raw []any) (remote.Record, bool) {
	cols := make([]string, 4)
	for i := 0; i < len(raw) && i < 4; i++ {
		cols[i] = strings.TrimSpace(fmt.Sprint(raw[i]))
	}

	id := cols[0]
	if id == "" {
		return remote.Record{}, false
	}
	rev, err := strconv.ParseInt(cols[1], 10, 64)
	if err != nil {
		return remote.Record{}, false
	}

	rec := remote.Record{
		Kind:    kind,
		ID:      id,
		Rev:     rev,
		Deleted: strings.EqualFold(cols[2], "true"),
		Fields:  map[string]string{},
	}
	if cols[3] != "" {
		if err := json.Unmarshal([]byte(cols[3]), &rec.Fields); err != nil {
			return remote.Record{}, false
		}
	}
	return rec, true
}
