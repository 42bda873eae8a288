package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Lllllllleong/bolledger/internal/models"
)

var testLogger = zerolog.Nop()

func strPtr(s string) *string { return &s }

// memTable is an in-memory tabular.Table.
type memTable struct {
	mu          sync.Mutex
	rows        [][]string
	valuesCalls int
	appendCalls int
	valuesErr   error
	appendErr   error
	writeErr    error
}

func (m *memTable) Values(context.Context) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.valuesCalls++
	if m.valuesErr != nil {
		return nil, m.valuesErr
	}
	out := make([][]string, len(m.rows))
	for i, r := range m.rows {
		out[i] = append([]string(nil), r...)
	}
	return out, nil
}

func (m *memTable) Append(_ context.Context, rows [][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendCalls++
	if m.appendErr != nil {
		return m.appendErr
	}
	for _, r := range rows {
		m.rows = append(m.rows, append([]string(nil), r...))
	}
	return nil
}

func (m *memTable) WriteColumn(ctx context.Context, col int, values []string) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	for i, v := range values {
		if err := m.UpdateCell(ctx, i, col, v); err != nil {
			return err
		}
	}
	return nil
}

func (m *memTable) UpdateCell(_ context.Context, row, col int, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	for len(m.rows) <= row {
		m.rows = append(m.rows, nil)
	}
	for len(m.rows[row]) <= col {
		m.rows[row] = append(m.rows[row], "")
	}
	m.rows[row][col] = value
	return nil
}

// cell reads a data row's column by header name.
func (m *memTable) cell(row int, column string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, h := range m.rows[0] {
		if h == column {
			if i < len(m.rows[row]) {
				return m.rows[row][i]
			}
			return ""
		}
	}
	return ""
}

// ledgerWith builds a ledger with the standard header and the given rows.
func ledgerWith(rows ...map[string]string) *memTable {
	t := &memTable{rows: [][]string{append([]string(nil), models.LedgerColumns...)}}
	for _, r := range rows {
		t.rows = append(t.rows, models.LedgerRow{Fields: r}.Values(models.LedgerColumns))
	}
	return t
}

// memStore is an in-memory blobstore.Store.
type memStore struct {
	mu          sync.Mutex
	objects     map[string][]byte
	uploads     []string
	uploadErr   error
	downloadErr error
	panicOn     string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (s *memStore) Upload(_ context.Context, data []byte, name, parentID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	link := "https://blob.test/" + parentID + "/" + name
	s.objects[link] = append([]byte(nil), data...)
	s.uploads = append(s.uploads, name)
	return link, nil
}

func (s *memStore) Download(_ context.Context, link string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicOn != "" && strings.Contains(link, s.panicOn) {
		panic("corrupt blob " + link)
	}
	if s.downloadErr != nil {
		return nil, s.downloadErr
	}
	data, ok := s.objects[link]
	if !ok {
		return nil, fmt.Errorf("no object at %s", link)
	}
	return data, nil
}

type uploadCall struct {
	OrderID  string
	Content  string
	FileName string
}

// fakeOrders is an in-memory order system.
type fakeOrders struct {
	mu       sync.Mutex
	orders   []models.ExternalOrder
	tokenErr error
	listErr  error
	codes    map[string]int
	calls    []uploadCall
}

func (f *fakeOrders) Token(context.Context) (string, error) {
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	return "tok", nil
}

func (f *fakeOrders) ListOrders(_ context.Context, token string) ([]models.ExternalOrder, error) {
	if token != "tok" {
		return nil, errors.New("bad token")
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.orders, nil
}

func (f *fakeOrders) UploadDocument(_ context.Context, _, orderID, content, fileName string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, uploadCall{OrderID: orderID, Content: content, FileName: fileName})
	if code, ok := f.codes[orderID]; ok {
		return code, nil
	}
	return 200, nil
}

// fakeModel answers per page image.
type fakeModel struct {
	answer func(ctx context.Context, image []byte) (string, error)
}

func (f fakeModel) ExtractShipmentJSON(ctx context.Context, image []byte, _ string) (string, error) {
	return f.answer(ctx, image)
}

type fakeSource struct {
	docs []models.RawDocument
	err  error
}

func (f fakeSource) Fetch(context.Context) ([]models.RawDocument, error) {
	return f.docs, f.err
}

// fakeSplitter returns one page per line of the document body.
type fakeSplitter struct{}

func (fakeSplitter) Split(_ context.Context, doc models.RawDocument) (*PageSequence, error) {
	if !strings.HasPrefix(string(doc.Data), "%PDF") {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPDF, doc.FileName)
	}
	var pages []models.PageUnit
	for i, line := range strings.Split(strings.TrimPrefix(string(doc.Data), "%PDF\n"), "\n") {
		pages = append(pages, models.PageUnit{
			Index:         i + 1,
			PDF:           []byte("pdf:" + line),
			Image:         []byte(line),
			ImageMIMEType: "image/png",
		})
	}
	return &PageSequence{pages: pages}, nil
}

func shipmentJSON(order, shipment, phone string) string {
	return fmt.Sprintf(`{
		"ship_from": {"company_name": "Acme", "contact_person": null, "contact_number": %q, "address": "1 Main St"},
		"ship_to": {"company_name": "Widgets Inc", "contact_person": "Bo", "contact_number": null, "address": "2 Side St"},
		"carrier_info": {"carrier_name": "XPO", "scac": "XPOL", "pro_number": "P-1"},
		"customer_order_information": {"order_number": %q, "shipment_id": %q, "pallets": 2, "cartons": null, "weight": 410.5}
	}`, phone, order, shipment)
}
