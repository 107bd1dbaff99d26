// Command train_model fits the linear house-price model on a CSV of
// area,rooms,distance,price rows and writes the JSON artifact the server
// loads at startup.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"housequant/ml"
)

func main() {
	dataPath := flag.String("data", "", "training data CSV with area,rooms,distance,price columns")
	modelPath := flag.String("model_path", "./models/house_price.json", "model output path")
	flag.Parse()

	if *dataPath == "" {
		log.Fatal("data is required")
	}

	features, prices, err := loadTrainingData(*dataPath)
	if err != nil {
		log.Fatalf("failed to load training data: %v", err)
	}

	model := &ml.LinearModel{}
	if err := model.Train(features, prices); err != nil {
		log.Fatalf("failed to train model: %v", err)
	}

	rmse := evaluateModel(model, features, prices)
	log.Printf("trained on %d rows, rmse=%.4f", len(prices), rmse)
	log.Printf("weights=%v intercept=%.6f", model.Weights, model.Intercept)

	if err := os.MkdirAll(filepath.Dir(*modelPath), 0o755); err != nil {
		log.Fatalf("failed to create model directory: %v", err)
	}
	if err := model.Save(*modelPath); err != nil {
		log.Fatalf("failed to save model: %v", err)
	}
	log.Printf("model saved to %s", *modelPath)
}

func loadTrainingData(path string) ([][]float64, []float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(rows) < 2 {
		return nil, nil, fmt.Errorf("need a header and at least one data row")
	}

	colIdx := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		colIdx[strings.TrimSpace(name)] = i
	}
	columns := []string{"area", "rooms", "distance", "price"}
	for _, name := range columns {
		if _, ok := colIdx[name]; !ok {
			return nil, nil, fmt.Errorf("missing column %q", name)
		}
	}

	var features [][]float64
	var prices []float64
	for r, row := range rows[1:] {
		values := make([]float64, len(columns))
		for i, name := range columns {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[colIdx[name]]), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("row %d: column %q is not numeric", r+1, name)
			}
			values[i] = v
		}
		features = append(features, values[:3])
		prices = append(prices, values[3])
	}
	return features, prices, nil
}

func evaluateModel(model *ml.LinearModel, features [][]float64, prices []float64) float64 {
	var sum float64
	for i, vec := range features {
		predicted, err := model.Predict(vec)
		if err != nil {
			continue
		}
		diff := predicted - prices[i]
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(prices)))
}
