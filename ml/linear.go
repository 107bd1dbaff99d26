package ml

import (
	"encoding/json"
	"errors"
	"math"
	"os"
)

// LinearModel is a least-squares linear regression over the fixed feature
// set. Weights are persisted as JSON alongside the intercept.
type LinearModel struct {
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
}

// Predict returns the price for one feature vector.
func (m *LinearModel) Predict(features []float64) (float64, error) {
	if len(m.Weights) == 0 {
		return 0, errors.New("model not trained")
	}
	if len(features) != len(m.Weights) {
		return 0, ErrFeatureVector
	}
	price := m.Intercept
	for i, w := range m.Weights {
		price += w * features[i]
	}
	return price, nil
}

// Train fits the weights by ordinary least squares via the normal equations.
func (m *LinearModel) Train(features [][]float64, prices []float64) error {
	if len(features) == 0 || len(prices) == 0 {
		return errors.New("features or prices empty")
	}
	if len(features) != len(prices) {
		return errors.New("features and prices size mismatch")
	}

	width := len(features[0])
	for _, row := range features {
		if len(row) != width {
			return errors.New("inconsistent feature width")
		}
	}

	// Augment with a bias column, then solve (X^T X) w = X^T y.
	n := width + 1
	xtx := make([][]float64, n)
	for i := range xtx {
		xtx[i] = make([]float64, n)
	}
	xty := make([]float64, n)

	for r, row := range features {
		aug := make([]float64, n)
		aug[0] = 1
		copy(aug[1:], row)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				xtx[i][j] += aug[i] * aug[j]
			}
			xty[i] += aug[i] * prices[r]
		}
	}

	solution, err := solveLinearSystem(xtx, xty)
	if err != nil {
		return err
	}

	m.Intercept = solution[0]
	m.Weights = solution[1:]
	return nil
}

// solveLinearSystem solves Ax = b with Gaussian elimination and partial
// pivoting. A and b are modified in place.
func solveLinearSystem(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, errors.New("singular design matrix, need more varied training data")
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for row := col + 1; row < n; row++ {
			factor := a[row][col] / a[col][col]
			for k := col; k < n; k++ {
				a[row][k] -= factor * a[col][k]
			}
			b[row] -= factor * b[col]
		}
	}

	x := make([]float64, n)
	for row := n - 1; row >= 0; row-- {
		sum := b[row]
		for k := row + 1; k < n; k++ {
			sum -= a[row][k] * x[k]
		}
		x[row] = sum / a[row][row]
	}
	return x, nil
}

// Save writes the model weights to path as JSON.
func (m *LinearModel) Save(path string) error {
	if len(m.Weights) == 0 {
		return errors.New("model not trained")
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

// Load reads the model weights from path.
func (m *LinearModel) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var loaded LinearModel
	if err := json.Unmarshal(payload, &loaded); err != nil {
		return err
	}
	if len(loaded.Weights) == 0 {
		return errors.New("model file has no weights")
	}
	m.Weights = loaded.Weights
	m.Intercept = loaded.Intercept
	return nil
}
