package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/AdmitFlow/internal/model"
)

// ApplicationRepository stores applications and their per-stage fields.
type ApplicationRepository struct {
	pool *pgxpool.Pool
}

// NewApplicationRepository constructs a repository.
func NewApplicationRepository(pool *pgxpool.Pool) *ApplicationRepository {
	return &ApplicationRepository{pool: pool}
}

const applicationColumns = `id, applicant_id, academic_year, stage, status, fields, lsc_code, lsc_name, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (*model.Application, error) {
	var (
		app     model.Application
		fields  []byte
		lscCode sql.NullString
		lscName sql.NullString
	)
	if err := row.Scan(&app.ID, &app.ApplicantID, &app.AcademicYear, &app.Stage, &app.Status, &fields, &lscCode, &lscName, &app.CreatedAt, &app.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select application: %w", err)
	}
	if err := json.Unmarshal(fields, &app.Fields); err != nil {
		return nil, fmt.Errorf("decode fields of %s: %w", app.ID, err)
	}
	if app.Fields == nil {
		app.Fields = make(map[model.Stage]model.Fields)
	}
	if lscCode.Valid {
		app.Referral = &model.Referral{Code: lscCode.String, Name: lscName.String}
	}
	return &app, nil
}

// Get returns an application by id.
func (r *ApplicationRepository) Get(ctx context.Context, id string) (*model.Application, error) {
	return scanApplication(r.pool.QueryRow(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id=$1`, id))
}

// ForApplicant returns the applicant's application of one academic year.
func (r *ApplicationRepository) ForApplicant(ctx context.Context, applicantID, academicYear string) (*model.Application, error) {
	return scanApplication(r.pool.QueryRow(ctx, `
		SELECT `+applicationColumns+` FROM applications
		WHERE applicant_id=$1 AND academic_year=$2
	`, applicantID, academicYear))
}

// StageSave is one validated stage save.
type StageSave struct {
	ApplicantID  string
	AcademicYear string
	// ApplicationID is empty until BasicInfo has been saved once.
	ApplicationID string
	Stage         model.Stage
	Fields        model.Fields
	// Referral is recorded when the application is created and never changed.
	Referral *model.Referral
}

// SaveStage overwrites the fields of one stage and moves the furthest stage
// forward. The first BasicInfo save creates the application and assigns its
// id.
func (r *ApplicationRepository) SaveStage(ctx context.Context, s StageSave) (*model.Application, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var app *model.Application
	if s.ApplicationID != "" {
		app, err = scanApplication(tx.QueryRow(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id=$1 FOR UPDATE`, s.ApplicationID))
	} else {
		app, err = scanApplication(tx.QueryRow(ctx, `
			SELECT `+applicationColumns+` FROM applications
			WHERE applicant_id=$1 AND academic_year=$2 FOR UPDATE
		`, s.ApplicantID, s.AcademicYear))
	}
	switch {
	case errors.Is(err, ErrNotFound) && s.ApplicationID == "":
		app, err = r.create(ctx, tx, s)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if err := r.update(ctx, tx, app, s); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return app, nil
}

func (r *ApplicationRepository) create(ctx context.Context, tx pgx.Tx, s StageSave) (*model.Application, error) {
	if s.Stage != model.StageBasicInfo {
		return nil, fmt.Errorf("%w: %s before %s", ErrStageSkipped, s.Stage, model.StageBasicInfo)
	}
	var lscCode, lscName *string
	if s.Referral != nil {
		lscCode, lscName = &s.Referral.Code, &s.Referral.Name
	}
	prefix := idPrefix(s.Fields.Get(model.FieldModeOfStudy), deref(lscCode), s.AcademicYear)
	var serial int64
	err := tx.QueryRow(ctx, `
		INSERT INTO application_sequences (prefix, last_value) VALUES ($1, 1)
		ON CONFLICT (prefix) DO UPDATE SET last_value = application_sequences.last_value + 1
		RETURNING last_value
	`, prefix).Scan(&serial)
	if err != nil {
		return nil, fmt.Errorf("next application serial: %w", err)
	}

	now := time.Now().UTC()
	next, _ := model.StageBasicInfo.Next()
	app := &model.Application{
		ID:           applicationID(prefix, serial),
		ApplicantID:  s.ApplicantID,
		AcademicYear: s.AcademicYear,
		Stage:        next,
		Status:       model.StatusInProgress,
		Fields:       map[model.Stage]model.Fields{s.Stage: s.Fields.Clone()},
		Referral:     s.Referral,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	fields, err := json.Marshal(app.Fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO applications (`+applicationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, app.ID, app.ApplicantID, app.AcademicYear, app.Stage, app.Status, fields, lscCode, lscName, app.CreatedAt, app.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert application: %w", err)
	}
	return app, nil
}

func (r *ApplicationRepository) update(ctx context.Context, tx pgx.Tx, app *model.Application, s StageSave) error {
	if app.ApplicantID != s.ApplicantID {
		return ErrNotOwner
	}
	if app.Status == model.StatusSubmitted {
		return ErrSubmitted
	}
	if app.Stage.Before(s.Stage) {
		return fmt.Errorf("%w: %s is past %s", ErrStageSkipped, s.Stage, app.Stage)
	}
	app.Fields[s.Stage] = s.Fields.Clone()
	if next, ok := s.Stage.Next(); ok {
		app.Stage = model.Later(app.Stage, next)
	}
	app.UpdatedAt = time.Now().UTC()
	fields, err := json.Marshal(app.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE applications SET fields=$1, stage=$2, updated_at=$3 WHERE id=$4
	`, fields, app.Stage, app.UpdatedAt, app.ID)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
