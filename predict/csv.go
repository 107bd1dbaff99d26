package predict

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"housequant/db"
)

// RequiredColumns are the feature columns a batch upload must carry, in
// model order.
var RequiredColumns = []string{"area", "rooms", "distance"}

// ErrDecode means the upload is neither valid UTF-8 nor Windows-1252.
var ErrDecode = errors.New("unable to decode the uploaded file, use UTF-8 encoded CSV")

// ParseError means the upload could not be read as CSV.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("error reading CSV file: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SchemaError lists the required columns absent from the upload header.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return "missing columns in CSV: " + strings.Join(e.Missing, ", ")
}

// ColumnTypeError names the first required column holding a non-numeric
// value. Row is 1-based over the data rows.
type ColumnTypeError struct {
	Column string
	Row    int
	Value  string
}

func (e *ColumnTypeError) Error() string {
	return fmt.Sprintf("CSV column %q must be numeric: row %d has %q", e.Column, e.Row, e.Value)
}

// BatchResult is the outcome of a CSV batch prediction.
type BatchResult struct {
	CSV       []byte // augmented table: header + all input columns + predicted_price
	Rows      int    // records inserted into history
	Timestamp string // batch timestamp shared by every inserted row
}

// PredictCSV runs one prediction per data row of a CSV upload. Structural
// problems (decode, parse, schema, non-numeric columns) fail before any row
// is inserted. On success every input column and the row order are
// preserved, a predicted_price column is appended at full precision, all
// rows share one batch timestamp, and one history record is inserted per
// row. A storage failure after insertion has begun can leave a prefix of
// the batch committed, which the wrapped error reports.
func (s *Service) PredictCSV(content []byte) (*BatchResult, error) {
	text, err := decodeUpload(content)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(text))
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	if len(rows) < 2 {
		return nil, &ParseError{Err: errors.New("file has no data rows")}
	}

	header := rows[0]
	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[strings.TrimSpace(name)] = i
	}
	var missing []string
	for _, name := range RequiredColumns {
		if _, ok := colIdx[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}

	data := rows[1:]
	features := make([][]float64, len(data))
	for i, row := range data {
		vec := make([]float64, len(RequiredColumns))
		for j, name := range RequiredColumns {
			raw := row[colIdx[name]]
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, &ColumnTypeError{Column: name, Row: i + 1, Value: raw}
			}
			vec[j] = v
		}
		features[i] = vec
	}

	prices := make([]float64, len(data))
	for i, vec := range features {
		price, err := s.model.Predict(vec)
		if err != nil {
			return nil, err
		}
		prices[i] = price
	}

	ts := s.now().Format(db.TimeLayout)
	recs := make([]db.PredictionRecord, len(data))
	for i := range data {
		recs[i] = db.PredictionRecord{
			Timestamp:      ts,
			Area:           features[i][0],
			Rooms:          int(features[i][1]),
			Distance:       features[i][2],
			PredictedPrice: prices[i],
		}
	}
	inserted, err := s.store.InsertBatch(recs)
	if err != nil {
		return nil, fmt.Errorf("persist batch (%d of %d rows committed): %w", inserted, len(recs), err)
	}

	out, err := encodeAugmented(header, data, prices)
	if err != nil {
		return nil, err
	}
	return &BatchResult{CSV: out, Rows: len(recs), Timestamp: ts}, nil
}

// decodeUpload returns the upload as UTF-8 text, falling back to
// Windows-1252 for legacy exports.
func decodeUpload(content []byte) (string, error) {
	if utf8.Valid(content) {
		return string(content), nil
	}
	decoded, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), content)
	if err != nil {
		return "", ErrDecode
	}
	return string(decoded), nil
}

// encodeAugmented re-encodes the table with a predicted_price column
// appended to the header and every data row.
func encodeAugmented(header []string, data [][]string, prices []float64) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(append(append([]string{}, header...), "predicted_price")); err != nil {
		return nil, err
	}
	for i, row := range data {
		price := strconv.FormatFloat(prices[i], 'g', -1, 64)
		if err := writer.Write(append(append([]string{}, row...), price)); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
