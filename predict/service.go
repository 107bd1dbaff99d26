// Package predict orchestrates single and batch predictions: it runs the
// model over the fixed [area, rooms, distance] feature order and persists
// every result to the history store.
package predict

import (
	"fmt"
	"time"

	"housequant/db"
	"housequant/ml"
)

// HistoryStore is the write surface of db.Store the service needs.
type HistoryStore interface {
	Insert(rec db.PredictionRecord) (int64, error)
	InsertBatch(recs []db.PredictionRecord) (int, error)
}

// Service validates inputs, invokes the model and persists results. It keeps
// no per-request state; the store and model are process-scoped dependencies
// injected at startup.
type Service struct {
	store HistoryStore
	model ml.Model
	now   func() time.Time
}

// NewService wires the service to its store and model.
func NewService(store HistoryStore, model ml.Model) *Service {
	return &Service{store: store, model: model, now: time.Now}
}

// PredictOne runs one prediction and persists it with a service-assigned
// timestamp. The returned record carries the full-precision price; rounding
// for presentation is the caller's concern.
func (s *Service) PredictOne(area float64, rooms int, distance float64) (*db.PredictionRecord, error) {
	price, err := s.model.Predict([]float64{area, float64(rooms), distance})
	if err != nil {
		return nil, err
	}

	rec := db.PredictionRecord{
		Timestamp:      s.now().Format(db.TimeLayout),
		Area:           area,
		Rooms:          rooms,
		Distance:       distance,
		PredictedPrice: price,
	}
	id, err := s.store.Insert(rec)
	if err != nil {
		return nil, fmt.Errorf("persist prediction: %w", err)
	}
	rec.ID = id
	return &rec, nil
}
