package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/AdmitFlow/internal/model"
)

// WindowRepository stores one admission window per academic year.
type WindowRepository struct {
	pool *pgxpool.Pool
}

// NewWindowRepository constructs a repository.
func NewWindowRepository(pool *pgxpool.Pool) *WindowRepository {
	return &WindowRepository{pool: pool}
}

const windowColumns = `admission_code, academic_year, is_open, opening_date, closing_date`

func scanWindow(row rowScanner) (model.AdmissionWindow, error) {
	var w model.AdmissionWindow
	if err := row.Scan(&w.AdmissionCode, &w.AcademicYear, &w.IsOpen, &w.OpeningDate, &w.ClosingDate); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AdmissionWindow{}, ErrNotFound
		}
		return model.AdmissionWindow{}, fmt.Errorf("select window: %w", err)
	}
	return w, nil
}

// ForYear returns the window of academicYear, or the most recent window
// when academicYear is empty.
func (r *WindowRepository) ForYear(ctx context.Context, academicYear string) (model.AdmissionWindow, error) {
	if academicYear == "" {
		return scanWindow(r.pool.QueryRow(ctx, `SELECT `+windowColumns+` FROM admission_windows ORDER BY opening_date DESC LIMIT 1`))
	}
	return scanWindow(r.pool.QueryRow(ctx, `SELECT `+windowColumns+` FROM admission_windows WHERE academic_year=$1`, academicYear))
}

// Get returns a window by admission code.
func (r *WindowRepository) Get(ctx context.Context, code string) (model.AdmissionWindow, error) {
	return scanWindow(r.pool.QueryRow(ctx, `SELECT `+windowColumns+` FROM admission_windows WHERE admission_code=$1`, code))
}

// Save creates or replaces the window identified by its admission code.
func (r *WindowRepository) Save(ctx context.Context, w model.AdmissionWindow) (model.AdmissionWindow, error) {
	return scanWindow(r.pool.QueryRow(ctx, `
		INSERT INTO admission_windows (admission_code, academic_year, is_open, opening_date, closing_date)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (admission_code) DO UPDATE SET
			academic_year = EXCLUDED.academic_year,
			is_open = EXCLUDED.is_open,
			opening_date = EXCLUDED.opening_date,
			closing_date = EXCLUDED.closing_date,
			updated_at = now()
		RETURNING `+windowColumns, w.AdmissionCode, w.AcademicYear, w.IsOpen, w.OpeningDate, w.ClosingDate))
}

// SetOpen flips the admin switch.
func (r *WindowRepository) SetOpen(ctx context.Context, code string, open bool) (model.AdmissionWindow, error) {
	return scanWindow(r.pool.QueryRow(ctx, `
		UPDATE admission_windows SET is_open=$1, updated_at=now() WHERE admission_code=$2
		RETURNING `+windowColumns, open, code))
}
