package store

import (
	"context"
	"database/sql"

	"argus/internal/domain"
)

func (s Store) InsertAgency(ctx context.Context, a domain.Agency) error {
	if a.CreatedAt == "" {
		a.CreatedAt = s.stamp()
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO agencies(id,owner_user_id,name,license_number,verified,created_at) VALUES (?,?,?,?,?,?)`,
		a.ID, a.OwnerUserID, a.Name, nullable(a.LicenseNumber), boolInt(a.Verified), a.CreatedAt)
	return err
}

func (s Store) GetAgency(ctx context.Context, id string) (domain.Agency, error) {
	var a domain.Agency
	var license sql.NullString
	var verified int
	err := s.DB.QueryRowContext(ctx, `SELECT id,owner_user_id,name,license_number,verified,created_at FROM agencies WHERE id=?`, id).
		Scan(&a.ID, &a.OwnerUserID, &a.Name, &license, &verified, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if license.Valid {
		a.LicenseNumber = license.String
	}
	a.Verified = verified != 0
	return a, nil
}

// IsOwner reports whether the user is the registered owner of the agency.
func (s Store) IsOwner(ctx context.Context, userID, agencyID string) (bool, error) {
	var one int
	err := s.DB.QueryRowContext(ctx, `SELECT 1 FROM agencies WHERE id=? AND owner_user_id=? LIMIT 1`, agencyID, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s Store) SetAgencyVerified(ctx context.Context, id string, verified bool) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE agencies SET verified=? WHERE id=?`, boolInt(verified), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s Store) InsertInvestigator(ctx context.Context, inv domain.Investigator) error {
	if inv.CreatedAt == "" {
		inv.CreatedAt = s.stamp()
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO investigators(id,user_id,name,license_number,verified,suspended,created_at) VALUES (?,?,?,?,?,?,?)`,
		inv.ID, inv.UserID, inv.Name, nullable(inv.LicenseNumber), boolInt(inv.Verified), boolInt(inv.Suspended), inv.CreatedAt)
	return err
}

func (s Store) GetInvestigator(ctx context.Context, id string) (domain.Investigator, error) {
	var inv domain.Investigator
	var license sql.NullString
	var verified, suspended int
	err := s.DB.QueryRowContext(ctx, `SELECT id,user_id,name,license_number,verified,suspended,created_at FROM investigators WHERE id=?`, id).
		Scan(&inv.ID, &inv.UserID, &inv.Name, &license, &verified, &suspended, &inv.CreatedAt)
	if err == sql.ErrNoRows {
		return inv, ErrNotFound
	}
	if err != nil {
		return inv, err
	}
	if license.Valid {
		inv.LicenseNumber = license.String
	}
	inv.Verified = verified != 0
	inv.Suspended = suspended != 0
	return inv, nil
}

func (s Store) SetInvestigatorVerified(ctx context.Context, id string, verified bool) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE investigators SET verified=? WHERE id=?`, boolInt(verified), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s Store) SetInvestigatorSuspended(ctx context.Context, id string, suspended bool) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE investigators SET suspended=? WHERE id=?`, boolInt(suspended), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AgencyForOwner returns the agency owned by the given user, if any.
func (s Store) AgencyForOwner(ctx context.Context, userID string) (domain.Agency, error) {
	var a domain.Agency
	var license sql.NullString
	var verified int
	err := s.DB.QueryRowContext(ctx, `SELECT id,owner_user_id,name,license_number,verified,created_at FROM agencies WHERE owner_user_id=? LIMIT 1`, userID).
		Scan(&a.ID, &a.OwnerUserID, &a.Name, &license, &verified, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if license.Valid {
		a.LicenseNumber = license.String
	}
	a.Verified = verified != 0
	return a, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
