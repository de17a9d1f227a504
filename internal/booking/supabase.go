package booking

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	postgrest "github.com/supabase-community/postgrest-go"
)

// SupabaseStore talks to the Supabase REST (PostgREST) endpoint of the
// bookings table with the service role key.
type SupabaseStore struct {
	client *postgrest.Client
	table  string
	now    func() time.Time
}

func NewSupabaseStore(baseURL, serviceKey string) *SupabaseStore {
	rest := strings.TrimRight(baseURL, "/") + "/rest/v1"
	return &SupabaseStore{
		client: postgrest.NewClient(rest, "public", map[string]string{
			"apikey":        serviceKey,
			"Authorization": "Bearer " + serviceKey,
		}),
		table: "bookings",
		now:   time.Now,
	}
}

type supabaseInsert struct {
	CustomerName  string  `json:"customer_name"`
	CustomerPhone string  `json:"customer_phone"`
	CustomerEmail *string `json:"customer_email"`
	ServiceType   string  `json:"service_type"`
	ACType        string  `json:"ac_type"`
	Address       string  `json:"address"`
	PreferredDate string  `json:"preferred_date"`
	PreferredTime string  `json:"preferred_time"`
	Notes         *string `json:"notes"`
	Status        Status  `json:"status"`
	UserID        *string `json:"user_id,omitempty"`
}

type idRow struct {
	ID int64 `json:"id"`
}

func (s *SupabaseStore) Create(ctx context.Context, nb NewBooking) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	rec := newRecord(nb, 0, s.now())
	row := supabaseInsert{
		CustomerName:  rec.CustomerName,
		CustomerPhone: rec.CustomerPhone,
		CustomerEmail: rec.CustomerEmail,
		ServiceType:   rec.ServiceType,
		ACType:        rec.ACType,
		Address:       rec.Address,
		PreferredDate: rec.PreferredDate,
		PreferredTime: rec.PreferredTime,
		Notes:         rec.Notes,
		Status:        rec.Status,
		UserID:        rec.UserID,
	}

	var rows []idRow
	q := s.client.From(s.table).Insert(row, false, "", "representation", "")
	if _, err := q.ExecuteTo(&rows); err != nil {
		return 0, s.wrap("insert", err)
	}
	if len(rows) != 1 {
		return 0, fmt.Errorf("supabase: insert returned %d rows", len(rows))
	}
	return rows[0].ID, nil
}

func (s *SupabaseStore) List(ctx context.Context) ([]Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows := []Booking{}
	q := s.client.From(s.table).Select("*", "", false).
		Order("created_at", &postgrest.OrderOpts{Ascending: false})
	if _, err := q.ExecuteTo(&rows); err != nil {
		return nil, s.wrap("list", err)
	}
	return rows, nil
}

func (s *SupabaseStore) Get(ctx context.Context, id int64) (Booking, error) {
	if err := ctx.Err(); err != nil {
		return Booking{}, err
	}
	var rows []Booking
	q := s.client.From(s.table).Select("*", "", false).Eq("id", strconv.FormatInt(id, 10))
	if _, err := q.ExecuteTo(&rows); err != nil {
		return Booking{}, s.wrap("get", err)
	}
	if len(rows) == 0 {
		return Booking{}, ErrNotFound
	}
	return rows[0], nil
}

// UpdateStatus asks for the updated rows back so a missing id is reported as
// ErrNotFound rather than a silent no-op.
func (s *SupabaseStore) UpdateStatus(ctx context.Context, id int64, status Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	patch := map[string]any{
		"status":     status,
		"updated_at": s.now().UTC().Format(time.RFC3339Nano),
	}
	var rows []idRow
	q := s.client.From(s.table).Update(patch, "representation", "").Eq("id", strconv.FormatInt(id, 10))
	if _, err := q.ExecuteTo(&rows); err != nil {
		return s.wrap("update", err)
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SupabaseStore) Close() error { return nil }

func (s *SupabaseStore) wrap(op string, err error) error {
	return fmt.Errorf("supabase: %s %s: %w", op, s.table, err)
}
