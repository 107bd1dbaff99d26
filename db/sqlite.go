package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// TimeLayout is the second-resolution format of the timestamp column.
const TimeLayout = "2006-01-02 15:04:05"

// DateLayout is the format of the date_from/date_to query bounds.
const DateLayout = "2006-01-02"

// Query limit bounds.
const (
	MinLimit = 1
	MaxLimit = 1000
)

var (
	// ErrNotFound is returned when no row has the requested id.
	ErrNotFound = errors.New("record not found")
	// ErrConfirmationRequired gates the destructive delete-all operation.
	ErrConfirmationRequired = errors.New("set confirm=true to clear history")
)

// InvalidQueryError reports a history query parameter outside its valid range.
type InvalidQueryError struct {
	Param  string
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid query parameter %s: %s", e.Param, e.Reason)
}

// PredictionRecord is one persisted prediction row. Rows are inserted once
// and never updated; predicted_price always belongs to the feature values
// stored on the same row.
type PredictionRecord struct {
	ID             int64   `json:"id"`
	Timestamp      string  `json:"timestamp"`
	Area           float64 `json:"area"`
	Rooms          int     `json:"rooms"`
	Distance       float64 `json:"distance"`
	PredictedPrice float64 `json:"predicted_price"`
}

// Store owns the predictions table and its schema lifecycle.
type Store struct {
	conn *sql.DB
}

// Open opens the SQLite database at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	store := &Store{conn: conn}
	if err := store.Init(); err != nil {
		conn.Close()
		return nil, err
	}
	return store, nil
}

// Init creates the predictions table if it does not exist. Calling it again
// against a populated database is a no-op; existing rows are never touched.
func (s *Store) Init() error {
	query := `
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        timestamp TEXT,
        area REAL,
        rooms INTEGER,
        distance REAL,
        predicted_price REAL
    );
    `
	if _, err := s.conn.Exec(query); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Insert appends one record and returns the assigned id.
func (s *Store) Insert(rec PredictionRecord) (int64, error) {
	res, err := s.conn.Exec(`
        INSERT INTO predictions (timestamp, area, rooms, distance, predicted_price)
        VALUES (?, ?, ?, ?, ?)`,
		rec.Timestamp, rec.Area, rec.Rooms, rec.Distance, rec.PredictedPrice)
	if err != nil {
		return 0, fmt.Errorf("insert prediction: %w", err)
	}
	return res.LastInsertId()
}

// InsertBatch appends records with a prepared statement, one row per record.
// A failure partway through leaves the already-inserted prefix committed;
// the returned count tells the caller how many rows made it in.
func (s *Store) InsertBatch(recs []PredictionRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	stmt, err := s.conn.Prepare(`
        INSERT INTO predictions (timestamp, area, rooms, distance, predicted_price)
        VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare batch insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range recs {
		if _, err := stmt.Exec(rec.Timestamp, rec.Area, rec.Rooms, rec.Distance, rec.PredictedPrice); err != nil {
			return i, fmt.Errorf("insert batch row %d: %w", i, err)
		}
	}
	return len(recs), nil
}

// Query returns records ordered by id descending (most recent first).
// limit must be within [MinLimit, MaxLimit] and offset non-negative.
// dateFrom/dateTo, when non-empty, are inclusive YYYY-MM-DD bounds applied
// to the date portion of the timestamp.
func (s *Store) Query(limit, offset int, dateFrom, dateTo string) ([]PredictionRecord, error) {
	if limit < MinLimit || limit > MaxLimit {
		return nil, &InvalidQueryError{Param: "limit", Reason: fmt.Sprintf("must be between %d and %d", MinLimit, MaxLimit)}
	}
	if offset < 0 {
		return nil, &InvalidQueryError{Param: "offset", Reason: "must not be negative"}
	}

	query := "SELECT id, timestamp, area, rooms, distance, predicted_price FROM predictions"
	var where []string
	var params []any

	if dateFrom != "" {
		if _, err := time.Parse(DateLayout, dateFrom); err != nil {
			return nil, &InvalidQueryError{Param: "date_from", Reason: "must be YYYY-MM-DD"}
		}
		where = append(where, "date(timestamp) >= date(?)")
		params = append(params, dateFrom)
	}
	if dateTo != "" {
		if _, err := time.Parse(DateLayout, dateTo); err != nil {
			return nil, &InvalidQueryError{Param: "date_to", Reason: "must be YYYY-MM-DD"}
		}
		where = append(where, "date(timestamp) <= date(?)")
		params = append(params, dateTo)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	params = append(params, limit, offset)

	rows, err := s.conn.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0)
	for rows.Next() {
		var rec PredictionRecord
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Area, &rec.Rooms, &rec.Distance, &rec.PredictedPrice); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetByID returns the record with the given id, or ErrNotFound.
func (s *Store) GetByID(id int64) (*PredictionRecord, error) {
	var rec PredictionRecord
	err := s.conn.QueryRow(`
        SELECT id, timestamp, area, rooms, distance, predicted_price
        FROM predictions
        WHERE id = ?`, id).
		Scan(&rec.ID, &rec.Timestamp, &rec.Area, &rec.Rooms, &rec.Distance, &rec.PredictedPrice)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get prediction %d: %w", id, err)
	}
	return &rec, nil
}

// DeleteAll removes every row and returns the count removed. It refuses to
// run unless confirmed is explicitly true.
func (s *Store) DeleteAll(confirmed bool) (int64, error) {
	if !confirmed {
		return 0, ErrConfirmationRequired
	}
	res, err := s.conn.Exec("DELETE FROM predictions")
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	return res.RowsAffected()
}
