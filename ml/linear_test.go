package ml

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
)

// rows generated from price = 1000*area + 5000*rooms - 200*distance + 20000
func trainingData() ([][]float64, []float64) {
	features := [][]float64{
		{50, 1, 10},
		{80, 2, 5},
		{120, 3, 2},
		{200, 4, 8},
		{65, 2, 12},
		{150, 3, 1},
	}
	prices := make([]float64, len(features))
	for i, f := range features {
		prices[i] = 1000*f[0] + 5000*f[1] - 200*f[2] + 20000
	}
	return features, prices
}

func TestLinearModelTrainPredict(t *testing.T) {
	features, prices := trainingData()

	model := &LinearModel{}
	if err := model.Train(features, prices); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := model.Predict([]float64{100, 3, 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 1000*100.0 + 5000*3.0 - 200*4.0 + 20000
	if math.Abs(got-want) > 1 {
		t.Fatalf("expected ~%.2f, got %.2f", want, got)
	}
}

func TestLinearModelPredictWrongShape(t *testing.T) {
	features, prices := trainingData()
	model := &LinearModel{}
	if err := model.Train(features, prices); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := model.Predict([]float64{1, 2}); !errors.Is(err, ErrFeatureVector) {
		t.Fatalf("expected ErrFeatureVector, got %v", err)
	}
}

func TestLinearModelUntrained(t *testing.T) {
	model := &LinearModel{}
	if _, err := model.Predict([]float64{1, 2, 3}); err == nil {
		t.Fatal("expected error from untrained model")
	}
}

func TestLinearModelSaveLoad(t *testing.T) {
	features, prices := trainingData()
	model := &LinearModel{}
	if err := model.Train(features, prices); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "model.json")
	if err := model.Save(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := LoadModel("linear", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	input := []float64{90, 2, 6}
	want, _ := model.Predict(input)
	got, err := loaded.Predict(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("loaded model disagrees: got %v want %v", got, want)
	}
}

func TestLoadModelUnsupportedType(t *testing.T) {
	if _, err := LoadModel("decision_tree", "nope.json"); err == nil {
		t.Fatal("expected error for unsupported model type")
	}
}

func TestTrainSingularData(t *testing.T) {
	// Every row identical: the design matrix cannot be solved.
	features := [][]float64{{1, 1, 1}, {1, 1, 1}, {1, 1, 1}}
	prices := []float64{1, 2, 3}
	model := &LinearModel{}
	if err := model.Train(features, prices); err == nil {
		t.Fatal("expected error for singular training data")
	}
}
