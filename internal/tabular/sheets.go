package tabular

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/api/sheets/v4"
)

const valueInputRaw = "RAW"

// Sheets is a Table backed by one tab of a Google spreadsheet. The tab is
// created on first use when it does not exist.
type Sheets struct {
	svc           *sheets.Service
	spreadsheetID string
	title         string

	mu      sync.Mutex
	ensured bool
}

func NewSheets(svc *sheets.Service, spreadsheetID, title string) *Sheets {
	return &Sheets{svc: svc, spreadsheetID: spreadsheetID, title: title}
}

func (s *Sheets) Values(ctx context.Context) ([][]string, error) {
	if err := s.ensureSheet(ctx); err != nil {
		return nil, err
	}
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.quotedTitle()).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", s.title, err)
	}
	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = fmt.Sprint(v)
		}
		out[i] = cells
	}
	return out, nil
}

func (s *Sheets) Append(ctx context.Context, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.ensureSheet(ctx); err != nil {
		return err
	}
	_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, s.quotedTitle(), &sheets.ValueRange{Values: toCells(rows)}).
		ValueInputOption(valueInputRaw).
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append %d rows to sheet %q: %w", len(rows), s.title, err)
	}
	return nil
}

func (s *Sheets) WriteColumn(ctx context.Context, col int, values []string) error {
	if len(values) == 0 {
		return nil
	}
	rows := make([][]string, len(values))
	for i, v := range values {
		rows[i] = []string{v}
	}
	letter := ColumnLetter(col)
	rng := fmt.Sprintf("%s!%s1:%s%d", s.quotedTitle(), letter, letter, len(values))
	return s.update(ctx, rng, rows)
}

func (s *Sheets) UpdateCell(ctx context.Context, row, col int, value string) error {
	rng := fmt.Sprintf("%s!%s%d", s.quotedTitle(), ColumnLetter(col), row+1)
	return s.update(ctx, rng, [][]string{{value}})
}

func (s *Sheets) update(ctx context.Context, rng string, rows [][]string) error {
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng, &sheets.ValueRange{Values: toCells(rows)}).
		ValueInputOption(valueInputRaw).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

func (s *Sheets) ensureSheet(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}

	ss, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet %s: %w", s.spreadsheetID, err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == s.title {
			s.ensured = true
			return nil
		}
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{Requests: []*sheets.Request{{
		AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: s.title}},
	}}}
	if _, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("create sheet %q: %w", s.title, err)
	}
	s.ensured = true
	return nil
}

func (s *Sheets) quotedTitle() string {
	return "'" + strings.ReplaceAll(s.title, "'", "''") + "'"
}

func toCells(rows [][]string) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
		}
		out[i] = cells
	}
	return out
}
