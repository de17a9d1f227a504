package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists bookings in a local SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			customer_name TEXT NOT NULL,
			customer_phone TEXT NOT NULL,
			customer_email TEXT,
			service_type TEXT NOT NULL,
			ac_type TEXT NOT NULL,
			address TEXT NOT NULL,
			preferred_date TEXT NOT NULL,
			preferred_time TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			notes TEXT,
			user_id TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_created_at ON bookings(created_at)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Create(ctx context.Context, nb NewBooking) (int64, error) {
	rec := newRecord(nb, 0, s.now())
	res, err := s.db.ExecContext(ctx, `INSERT INTO bookings
		(customer_name, customer_phone, customer_email, service_type, ac_type, address,
		 preferred_date, preferred_time, status, notes, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.CustomerName, rec.CustomerPhone, rec.CustomerEmail, rec.ServiceType, rec.ACType,
		rec.Address, rec.PreferredDate, rec.PreferredTime, string(rec.Status), rec.Notes,
		rec.UserID, rec.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert booking: %w", err)
	}
	return res.LastInsertId()
}

const selectColumns = `SELECT id, customer_name, customer_phone, customer_email, service_type,
	ac_type, address, preferred_date, preferred_time, status, notes, user_id, created_at, updated_at
	FROM bookings`

func (s *SQLiteStore) List(ctx context.Context) ([]Booking, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	out := []Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, id int64) (Booking, error) {
	b, err := scanBooking(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Booking{}, ErrNotFound
	}
	return b, err
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id int64, status Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), s.now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanBooking(sc scanner) (Booking, error) {
	var (
		b                    Booking
		status               string
		email, notes, userID sql.NullString
		updatedAt            sql.NullTime
	)
	err := sc.Scan(&b.ID, &b.CustomerName, &b.CustomerPhone, &email, &b.ServiceType,
		&b.ACType, &b.Address, &b.PreferredDate, &b.PreferredTime, &status, &notes,
		&userID, &b.CreatedAt, &updatedAt)
	if err != nil {
		return Booking{}, err
	}
	b.Status = Status(status)
	b.CustomerEmail = nullable(email)
	b.Notes = nullable(notes)
	b.UserID = nullable(userID)
	if updatedAt.Valid {
		t := updatedAt.Time
		b.UpdatedAt = &t
	}
	return b, nil
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
