package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"housequant/db"
	"housequant/llm"
	"housequant/predict"
)

// API holds the process-scoped dependencies the handlers use. Everything is
// injected once at startup; handlers keep no state of their own.
type API struct {
	Service   *predict.Service
	Store     *db.Store
	Explainer llm.Explainer
	Hub       *Hub
}

// Register wires all routes onto mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /predict", a.handlePredict)
	mux.HandleFunc("POST /predict_csv", a.handlePredictCSV)
	mux.HandleFunc("GET /history", a.handleHistory)
	mux.HandleFunc("GET /history/{id}", a.handleHistoryRecord)
	mux.HandleFunc("DELETE /history", a.handleClearHistory)
	mux.HandleFunc("POST /predict_with_explanation", a.handleExplainedPredict)
	mux.HandleFunc("GET /ws/history", a.handleHistoryFeed)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

type houseRequest struct {
	Area     float64 `json:"area"`
	Rooms    int     `json:"rooms"`
	Distance float64 `json:"distance"`
}

func (h houseRequest) validate() string {
	switch {
	case h.Area <= 0:
		return "area must be a positive number"
	case h.Rooms <= 0:
		return "rooms must be a positive integer"
	case h.Distance < 0:
		return "distance must not be negative"
	}
	return ""
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeHouseRequest(w, r)
	if !ok {
		return
	}

	rec, err := a.Service.PredictOne(req.Area, req.Rooms, req.Distance)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.broadcast("prediction", rec)

	respondJSON(w, map[string]float64{"predicted_price": roundPrice(rec.PredictedPrice)})
}

func (a *API) handlePredictCSV(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file upload is required")
		return
	}
	defer file.Close()

	name := strings.ToLower(header.Filename)
	if !strings.HasSuffix(name, ".csv") && !strings.HasSuffix(name, ".txt") {
		respondError(w, http.StatusBadRequest, "please upload a CSV file (extension .csv)")
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	result, err := a.Service.PredictCSV(content)
	if err != nil {
		respondError(w, batchErrorStatus(err), err.Error())
		return
	}
	a.broadcast("batch", map[string]any{"rows": result.Rows, "timestamp": result.Timestamp})

	filename := fmt.Sprintf("predictions_%s.csv", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))
	w.Write(result.CSV)
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusUnprocessableEntity, "limit must be an integer")
			return
		}
		limit = parsed
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusUnprocessableEntity, "offset must be an integer")
			return
		}
		offset = parsed
	}

	records, err := a.Store.Query(limit, offset,
		r.URL.Query().Get("date_from"), r.URL.Query().Get("date_to"))
	if err != nil {
		var queryErr *db.InvalidQueryError
		if errors.As(err, &queryErr) {
			respondError(w, http.StatusUnprocessableEntity, queryErr.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, records)
}

func (a *API) handleHistoryRecord(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "id must be an integer")
		return
	}

	rec, err := a.Store.GetByID(id)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, rec)
}

func (a *API) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	confirmed := r.URL.Query().Get("confirm") == "true"

	deleted, err := a.Store.DeleteAll(confirmed)
	if errors.Is(err, db.ErrConfirmationRequired) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, map[string]int64{"deleted_rows": deleted})
}

func (a *API) handleExplainedPredict(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeHouseRequest(w, r)
	if !ok {
		return
	}

	rec, err := a.Service.PredictOne(req.Area, req.Rooms, req.Distance)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.broadcast("prediction", rec)

	response := struct {
		PredictedPrice   float64 `json:"predicted_price"`
		Explanation      string  `json:"explanation"`
		ExplanationError string  `json:"explanation_error,omitempty"`
	}{PredictedPrice: roundPrice(rec.PredictedPrice)}

	// The prediction is already persisted; a narration failure must not
	// undo it, so it is reported alongside the price instead.
	if a.Explainer == nil {
		response.ExplanationError = "explanation service not configured"
	} else if text, err := a.Explainer.Explain(r.Context(), req.Area, req.Rooms, req.Distance, rec.PredictedPrice); err != nil {
		zap.S().Warnw("explanation failed", "record_id", rec.ID, "error", err)
		response.ExplanationError = err.Error()
	} else {
		response.Explanation = text
	}

	respondJSON(w, response)
}

func decodeHouseRequest(w http.ResponseWriter, r *http.Request) (houseRequest, bool) {
	var req houseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return req, false
	}
	if msg := req.validate(); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return req, false
	}
	return req, true
}

func (a *API) broadcast(msgType string, data any) {
	if a.Hub != nil {
		a.Hub.Broadcast(msgType, data)
	}
}

// batchErrorStatus maps batch-ingestion failures to 400 and everything else
// (inference, storage) to 500.
func batchErrorStatus(err error) int {
	var parseErr *predict.ParseError
	var schemaErr *predict.SchemaError
	var typeErr *predict.ColumnTypeError
	if errors.Is(err, predict.ErrDecode) ||
		errors.As(err, &parseErr) ||
		errors.As(err, &schemaErr) ||
		errors.As(err, &typeErr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// roundPrice rounds to two decimals for presentation. Stored rows keep full
// precision.
func roundPrice(price float64) float64 {
	return math.Round(price*100) / 100
}

// respondJSON writes data as a JSON response.
func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.S().Errorw("failed to encode JSON response", "error", err)
	}
}

func respondError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
