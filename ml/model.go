package ml

import "errors"

// Feature order consumed by every model: [area, rooms, distance].
const FeatureCount = 3

// ErrFeatureVector is returned when the input vector has the wrong shape.
var ErrFeatureVector = errors.New("feature vector must be [area, rooms, distance]")

// Model maps a fixed-order numeric feature vector to a predicted price.
type Model interface {
	Predict(features []float64) (float64, error)
}
