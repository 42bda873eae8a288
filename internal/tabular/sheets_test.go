package tabular

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

type sheetsServer struct {
	mu        sync.Mutex
	hasTab    bool
	addSheets int
	updates   []sheets.ValueRange
	appends   []sheets.ValueRange
	values    [][]interface{}
}

func (s *sheetsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	path := r.URL.Path
	switch {
	case strings.HasSuffix(path, ":batchUpdate"):
		s.addSheets++
		s.hasTab = true
		_ = json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": "sheet-abc"})
	case strings.Contains(path, "/values/") && strings.HasSuffix(path, ":append"):
		var vr sheets.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		s.appends = append(s.appends, vr)
		_ = json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": "sheet-abc"})
	case strings.Contains(path, "/values/") && r.Method == http.MethodPut:
		var vr sheets.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		vr.Range = r.URL.Path[strings.Index(r.URL.Path, "/values/")+len("/values/"):]
		s.updates = append(s.updates, vr)
		_ = json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": "sheet-abc"})
	case strings.Contains(path, "/values/"):
		_ = json.NewEncoder(w).Encode(map[string]any{"values": s.values})
	default:
		var tabs []map[string]any
		if s.hasTab {
			tabs = append(tabs, map[string]any{"properties": map[string]any{"title": "BOL"}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sheets": tabs})
	}
}

func newTestSheets(t *testing.T, srv *sheetsServer) *Sheets {
	t.Helper()
	hs := httptest.NewServer(srv)
	t.Cleanup(hs.Close)

	svc, err := sheets.NewService(context.Background(),
		option.WithEndpoint(hs.URL+"/"),
		option.WithHTTPClient(hs.Client()),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return NewSheets(svc, "sheet-abc", "BOL")
}

func TestSheetsCreatesMissingTabOnce(t *testing.T) {
	srv := &sheetsServer{values: [][]interface{}{{"order_number"}, {"A1"}}}
	table := newTestSheets(t, srv)

	got, err := table.Values(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"order_number"}, {"A1"}}, got)

	_, err = table.Values(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, srv.addSheets)
}

func TestSheetsValuesExistingTab(t *testing.T) {
	srv := &sheetsServer{hasTab: true, values: [][]interface{}{{"a", "b"}, {"1"}}}
	table := newTestSheets(t, srv)

	got, err := table.Values(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"1"}}, got)
	assert.Zero(t, srv.addSheets)
}

func TestSheetsAppendAndUpdates(t *testing.T) {
	srv := &sheetsServer{hasTab: true}
	table := newTestSheets(t, srv)
	ctx := context.Background()

	require.NoError(t, table.Append(ctx, nil))
	assert.Empty(t, srv.appends)

	require.NoError(t, table.Append(ctx, [][]string{{"A1", "x"}}))
	require.Len(t, srv.appends, 1)
	assert.Equal(t, [][]interface{}{{"A1", "x"}}, srv.appends[0].Values)

	require.NoError(t, table.UpdateCell(ctx, 2, 20, "Uploaded"))
	require.NoError(t, table.WriteColumn(ctx, 1, []string{"status", "Unmatched"}))
	require.Len(t, srv.updates, 2)
	assert.Equal(t, "'BOL'!U3", srv.updates[0].Range)
	assert.Equal(t, [][]interface{}{{"Uploaded"}}, srv.updates[0].Values)
	assert.Equal(t, "'BOL'!B1:B2", srv.updates[1].Range)
	assert.Equal(t, [][]interface{}{{"status"}, {"Unmatched"}}, srv.updates[1].Values)
}
