package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"housequant/db"
	"housequant/predict"
)

type fakeModel struct {
	price float64
	err   error
}

func (f *fakeModel) Predict(features []float64) (float64, error) {
	return f.price, f.err
}

func newTestAPI(t *testing.T, model *fakeModel) (*API, *http.ServeMux) {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	api := &API{
		Service: predict.NewService(store, model),
		Store:   store,
		Hub:     NewHub(),
	}
	mux := http.NewServeMux()
	api.Register(mux)
	return api, mux
}

func TestHealthHandler(t *testing.T) {
	_, mux := newTestAPI(t, &fakeModel{price: 1})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestHandlePredict(t *testing.T) {
	api, mux := newTestAPI(t, &fakeModel{price: 350000.123456})

	body := strings.NewReader(`{"area": 120.5, "rooms": 3, "distance": 4.2}`)
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var payload map[string]float64
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	// Response is rounded to two decimals.
	if payload["predicted_price"] != 350000.12 {
		t.Fatalf("expected rounded price 350000.12, got %v", payload["predicted_price"])
	}

	// Exactly one history row, stored at full precision.
	records, err := api.Store.Query(100, 0, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 history row, got %d", len(records))
	}
	if records[0].PredictedPrice != 350000.123456 {
		t.Fatalf("stored price rounded: %v", records[0].PredictedPrice)
	}
}

func TestHandlePredictValidation(t *testing.T) {
	api, mux := newTestAPI(t, &fakeModel{price: 1})

	cases := []string{
		`{"area": -1, "rooms": 3, "distance": 4}`,
		`{"area": 100, "rooms": 0, "distance": 4}`,
		`{"area": 100, "rooms": 3, "distance": -4}`,
		`{"area": "big", "rooms": 3, "distance": 4}`,
		`not json`,
	}
	for _, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body))
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, w.Code)
		}
	}

	// Rejected requests leave no side effect.
	records, err := api.Store.Query(100, 0, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty history, got %d rows", len(records))
	}
}

func TestHandleHistory(t *testing.T) {
	api, mux := newTestAPI(t, &fakeModel{price: 100})

	for i := 0; i < 5; i++ {
		if _, err := api.Service.PredictOne(100, 3, 5); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/history?limit=2&offset=1", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var records []db.PredictionRecord
	if err := json.Unmarshal(w.Body.Bytes(), &records); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != 4 || records[1].ID != 3 {
		t.Fatalf("expected ids 4,3 (newest first, offset 1), got %d,%d", records[0].ID, records[1].ID)
	}
}

func TestHandleHistoryInvalidParams(t *testing.T) {
	_, mux := newTestAPI(t, &fakeModel{price: 1})

	for _, target := range []string{
		"/history?limit=0",
		"/history?limit=1001",
		"/history?offset=-1",
		"/history?limit=abc",
		"/history?date_from=01-05-2024",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s: expected 422, got %d", target, w.Code)
		}
	}
}

func TestHandleHistoryRecord(t *testing.T) {
	api, mux := newTestAPI(t, &fakeModel{price: 77000.5})

	rec, err := api.Service.PredictOne(90, 2, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/history/1", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got db.PredictionRecord
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got != *rec {
		t.Fatalf("record mismatch: got %+v want %+v", got, *rec)
	}
}

func TestHandleHistoryRecordNotFound(t *testing.T) {
	_, mux := newTestAPI(t, &fakeModel{price: 1})

	req := httptest.NewRequest(http.MethodGet, "/history/999", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandleClearHistory(t *testing.T) {
	api, mux := newTestAPI(t, &fakeModel{price: 1})

	for i := 0; i < 3; i++ {
		if _, err := api.Service.PredictOne(100, 3, 5); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// Without confirm=true nothing is deleted.
	req := httptest.NewRequest(http.MethodDelete, "/history", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	records, _ := api.Store.Query(100, 0, "", "")
	if len(records) != 3 {
		t.Fatalf("unconfirmed delete removed rows, have %d", len(records))
	}

	req = httptest.NewRequest(http.MethodDelete, "/history?confirm=true", nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var payload map[string]int64
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload["deleted_rows"] != 3 {
		t.Fatalf("expected 3 deleted rows, got %d", payload["deleted_rows"])
	}
	records, _ = api.Store.Query(100, 0, "", "")
	if len(records) != 0 {
		t.Fatalf("expected empty history, have %d rows", len(records))
	}
}
