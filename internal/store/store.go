package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"argus/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional update's predicate no longer
	// holds at write time, e.g. the mandate was assigned by a concurrent caller.
	ErrConflict = errors.New("conflict")
)

type Store struct {
	DB  *sql.DB
	Now func() time.Time
}

func (s Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Store) stamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

// MandatePatch describes a partial mandate update. Empty Status means
// unchanged; AssignedTo nil means unchanged unless ClearAssignee is set.
type MandatePatch struct {
	Status        string
	AssignedTo    *string
	ClearAssignee bool
}

// MandatePredicate guards a mandate update. The update only applies while
// assigned_to is NULL or equals UnassignedOr.
type MandatePredicate struct {
	UnassignedOr string
}

// CandidaturePatch describes a partial candidature update.
type CandidaturePatch struct {
	Status string
}

const mandateColumns = `id,agency_id,assigned_to,status,assignment_type,title,description,city,date_required,created_at,updated_at`

func scanMandate(scan func(dest ...any) error) (domain.Mandate, error) {
	var m domain.Mandate
	var assignedTo, description, city, dateRequired sql.NullString
	err := scan(&m.ID, &m.AgencyID, &assignedTo, &m.Status, &m.AssignmentType, &m.Title, &description, &city, &dateRequired, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if assignedTo.Valid {
		m.AssignedTo = &assignedTo.String
	}
	if description.Valid {
		m.Description = description.String
	}
	if city.Valid {
		m.City = city.String
	}
	if dateRequired.Valid {
		m.DateRequired = dateRequired.String
	}
	return m, nil
}

func (s Store) InsertMandate(ctx context.Context, m domain.Mandate) error {
	if m.CreatedAt == "" {
		m.CreatedAt = s.stamp()
	}
	if m.UpdatedAt == "" {
		m.UpdatedAt = m.CreatedAt
	}
	if m.Status == "" {
		m.Status = domain.MandateOpen
	}
	if m.AssignmentType == "" {
		m.AssignmentType = domain.AssignmentPublic
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO mandates(`+mandateColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.AgencyID, nullableStringPtr(m.AssignedTo), m.Status, m.AssignmentType, m.Title,
		nullable(m.Description), nullable(m.City), nullable(m.DateRequired), m.CreatedAt, m.UpdatedAt)
	return err
}

func (s Store) GetMandate(ctx context.Context, id string) (domain.Mandate, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+mandateColumns+` FROM mandates WHERE id=?`, id)
	return scanMandate(row.Scan)
}

// UpdateMandate applies a partial update, optionally guarded by a predicate on
// the current assignee. A failed predicate returns ErrConflict so callers can
// distinguish a lost race from a missing row.
func (s Store) UpdateMandate(ctx context.Context, id string, patch MandatePatch, pred *MandatePredicate) error {
	fields := []string{"updated_at=?"}
	args := []any{s.stamp()}
	if patch.Status != "" {
		fields = append(fields, "status=?")
		args = append(args, patch.Status)
	}
	if patch.ClearAssignee {
		fields = append(fields, "assigned_to=NULL")
	} else if patch.AssignedTo != nil {
		fields = append(fields, "assigned_to=?")
		args = append(args, *patch.AssignedTo)
	}
	query := `UPDATE mandates SET ` + strings.Join(fields, ",") + ` WHERE id=?`
	args = append(args, id)
	if pred != nil {
		query += ` AND (assigned_to IS NULL OR assigned_to=?)`
		args = append(args, pred.UnassignedOr)
	}
	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected > 0 {
		return nil
	}
	var one int
	err = s.DB.QueryRowContext(ctx, `SELECT 1 FROM mandates WHERE id=?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrConflict
}

type MandateFilters struct {
	AgencyID   string
	Status     string
	AssignedTo string
	Limit      int
}

func (s Store) ListMandates(ctx context.Context, f MandateFilters) ([]domain.Mandate, error) {
	var clauses []string
	var args []any
	if f.AgencyID != "" {
		clauses = append(clauses, "agency_id=?")
		args = append(args, f.AgencyID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.AssignedTo != "" {
		clauses = append(clauses, "assigned_to=?")
		args = append(args, f.AssignedTo)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + mandateColumns + ` FROM mandates ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Mandate
	for rows.Next() {
		m, err := scanMandate(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// ExpireOverdue marks still-open mandates whose required date has passed.
// Expiry is an external lifecycle concern; the workflow never sets it.
func (s Store) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.UTC().Format(time.RFC3339)
	res, err := s.DB.ExecContext(ctx,
		`UPDATE mandates SET status=?, updated_at=? WHERE status=? AND date_required IS NOT NULL AND date_required < ? AND assigned_to IS NULL`,
		domain.MandateExpired, cutoff, domain.MandateOpen, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const candidatureColumns = `id,mandate_id,investigator_id,status,message,created_at,updated_at`

func scanCandidature(scan func(dest ...any) error) (domain.Candidature, error) {
	var c domain.Candidature
	var message sql.NullString
	err := scan(&c.ID, &c.MandateID, &c.InvestigatorID, &c.Status, &message, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if message.Valid {
		c.Message = message.String
	}
	return c, nil
}

func (s Store) InsertCandidature(ctx context.Context, c domain.Candidature) error {
	if c.CreatedAt == "" {
		c.CreatedAt = s.stamp()
	}
	if c.UpdatedAt == "" {
		c.UpdatedAt = c.CreatedAt
	}
	if c.Status == "" {
		c.Status = domain.CandidatureInterested
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO candidatures(`+candidatureColumns+`) VALUES (?,?,?,?,?,?,?)`,
		c.ID, c.MandateID, c.InvestigatorID, c.Status, nullable(c.Message), c.CreatedAt, c.UpdatedAt)
	return err
}

func (s Store) GetCandidature(ctx context.Context, id string) (domain.Candidature, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+candidatureColumns+` FROM candidatures WHERE id=?`, id)
	return scanCandidature(row.Scan)
}

func (s Store) UpdateCandidature(ctx context.Context, id string, patch CandidaturePatch) error {
	if patch.Status == "" {
		return nil
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE candidatures SET status=?, updated_at=? WHERE id=?`,
		patch.Status, s.stamp(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetMandateWithCandidature performs the joined read used by candidature
// operations, returning both rows as typed structs.
func (s Store) GetMandateWithCandidature(ctx context.Context, candidatureID string) (domain.MandateWithCandidature, error) {
	var out domain.MandateWithCandidature
	var cMessage, mAssignedTo, mDescription, mCity, mDateRequired sql.NullString
	row := s.DB.QueryRowContext(ctx, `
SELECT c.id, c.mandate_id, c.investigator_id, c.status, c.message, c.created_at, c.updated_at,
       m.id, m.agency_id, m.assigned_to, m.status, m.assignment_type, m.title, m.description, m.city, m.date_required, m.created_at, m.updated_at
FROM candidatures c
JOIN mandates m ON m.id = c.mandate_id
WHERE c.id=?`, candidatureID)
	err := row.Scan(
		&out.Candidature.ID, &out.Candidature.MandateID, &out.Candidature.InvestigatorID, &out.Candidature.Status, &cMessage, &out.Candidature.CreatedAt, &out.Candidature.UpdatedAt,
		&out.Mandate.ID, &out.Mandate.AgencyID, &mAssignedTo, &out.Mandate.Status, &out.Mandate.AssignmentType, &out.Mandate.Title, &mDescription, &mCity, &mDateRequired, &out.Mandate.CreatedAt, &out.Mandate.UpdatedAt)
	if err == sql.ErrNoRows {
		return out, ErrNotFound
	}
	if err != nil {
		return out, err
	}
	if cMessage.Valid {
		out.Candidature.Message = cMessage.String
	}
	if mAssignedTo.Valid {
		out.Mandate.AssignedTo = &mAssignedTo.String
	}
	if mDescription.Valid {
		out.Mandate.Description = mDescription.String
	}
	if mCity.Valid {
		out.Mandate.City = mCity.String
	}
	if mDateRequired.Valid {
		out.Mandate.DateRequired = mDateRequired.String
	}
	return out, nil
}

// AcceptedCandidature returns the single accepted candidature for a mandate,
// or ErrNotFound when none exists.
func (s Store) AcceptedCandidature(ctx context.Context, mandateID string) (domain.Candidature, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+candidatureColumns+` FROM candidatures WHERE mandate_id=? AND status=? LIMIT 1`,
		mandateID, domain.CandidatureAccepted)
	return scanCandidature(row.Scan)
}

func (s Store) ListCandidatures(ctx context.Context, mandateID string) ([]domain.Candidature, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+candidatureColumns+` FROM candidatures WHERE mandate_id=? ORDER BY created_at ASC, id ASC`, mandateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Candidature
	for rows.Next() {
		c, err := scanCandidature(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
