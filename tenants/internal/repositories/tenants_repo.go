package repositories

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"time"

	"github.com/google/uuid"

	"epos/pkg/tenancy"
	"epos/tenants/internal/models"
)

//go:embed migrations/*.sql
var Migrations embed.FS

var (
	ErrNotFound        = errors.New("tenant not found")
	ErrRequestNotOpen  = errors.New("tenant request not found or already decided")
	ErrEmailRegistered = errors.New("email already registered")
)

const (
	tenantColumns  = `id, naziv, kontakt_email, kontakt_telefon, adresa, status, datum_kreiranja, datum_aktivacije, api_key`
	requestColumns = `id, naziv_kompanije, kontakt_osoba, email, telefon, adresa, opis_poslovanja, status, datum_zahtjeva, napomene`
)

type TenantRepository struct {
	db *sql.DB
}

func NewTenantRepository(db *sql.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// SubmitRequest stores a registration request unless the email is already
// used by another request or a tenant.
func (r *TenantRepository) SubmitRequest(ctx context.Context, req *models.TenantRequest) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var taken bool
	err = tx.QueryRowContext(ctx, `
        SELECT EXISTS (SELECT 1 FROM tenant_requests WHERE email = ?)
            OR EXISTS (SELECT 1 FROM tenants WHERE kontakt_email = ?)
    `, req.Email, req.Email).Scan(&taken)
	if err != nil {
		return err
	}
	if taken {
		return ErrEmailRegistered
	}

	req.ID = uuid.NewString()
	req.Status = models.RequestStatusSubmitted
	req.DatumZahtjeva = now()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO tenant_requests (`+requestColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `,
		req.ID,
		req.NazivKompanije,
		req.KontaktOsoba,
		req.Email,
		req.Telefon,
		req.Adresa,
		req.OpisPoslovanja,
		req.Status,
		req.DatumZahtjeva,
		req.Napomene,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Requests returns every registration request, newest first.
func (r *TenantRepository) Requests(ctx context.Context) ([]models.TenantRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM tenant_requests ORDER BY datum_zahtjeva DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := []models.TenantRequest{}
	for rows.Next() {
		var req models.TenantRequest
		err := rows.Scan(
			&req.ID,
			&req.NazivKompanije,
			&req.KontaktOsoba,
			&req.Email,
			&req.Telefon,
			&req.Adresa,
			&req.OpisPoslovanja,
			&req.Status,
			&req.DatumZahtjeva,
			&req.Napomene,
		)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// Approve turns an open request into an active tenant with a fresh API key.
func (r *TenantRepository) Approve(ctx context.Context, requestID, napomene string) (*models.Tenant, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var req models.TenantRequest
	err = tx.QueryRowContext(ctx, `
        SELECT naziv_kompanije, email, telefon, adresa
        FROM tenant_requests
        WHERE id = ? AND status = ?
    `, requestID, models.RequestStatusSubmitted).Scan(&req.NazivKompanije, &req.Email, &req.Telefon, &req.Adresa)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequestNotOpen
	}
	if err != nil {
		return nil, err
	}

	activated := now()
	tenant := &models.Tenant{
		Tenant: tenancy.Tenant{
			ID:              uuid.NewString(),
			Naziv:           req.NazivKompanije,
			KontaktEmail:    req.Email,
			KontaktTelefon:  req.Telefon,
			Adresa:          req.Adresa,
			Status:          tenancy.StatusActive,
			DatumKreiranja:  activated,
			DatumAktivacije: activated,
		},
		APIKey: uuid.NewString(),
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO tenants (`+tenantColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `,
		tenant.ID,
		tenant.Naziv,
		tenant.KontaktEmail,
		tenant.KontaktTelefon,
		tenant.Adresa,
		tenant.Status,
		tenant.DatumKreiranja,
		tenant.DatumAktivacije,
		tenant.APIKey,
	)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE tenant_requests SET status = ?, napomene = ? WHERE id = ?`,
		models.RequestStatusApproved, napomene, requestID,
	)
	if err != nil {
		return nil, err
	}

	return tenant, tx.Commit()
}

func (r *TenantRepository) Reject(ctx context.Context, requestID, napomene string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tenant_requests SET status = ?, napomene = ? WHERE id = ? AND status = ?`,
		models.RequestStatusRejected, napomene, requestID, models.RequestStatusSubmitted,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRequestNotOpen
	}
	return nil
}

// Tenants returns every tenant with its key, newest first.
func (r *TenantRepository) Tenants(ctx context.Context) ([]models.Tenant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants ORDER BY datum_kreiranja DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tenants := []models.Tenant{}
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, *tenant)
	}
	return tenants, rows.Err()
}

func (r *TenantRepository) SetStatus(ctx context.Context, tenantID, status string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE tenants SET status = ? WHERE id = ?`, status, tenantID)
	if err != nil {
		return err
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

// ByAPIKey returns the tenant owning apiKey, whatever its status.
func (r *TenantRepository) ByAPIKey(ctx context.Context, apiKey string) (*models.Tenant, error) {
	tenant, err := scanTenant(r.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE api_key = ?`, apiKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return tenant, err
}

func (r *TenantRepository) RecordUsage(ctx context.Context, tenantID string, usage tenancy.Usage) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO api_usage (id, tenant_id, endpoint, method, timestamp, cost)
        VALUES (?, ?, ?, ?, ?, ?)
    `, uuid.NewString(), tenantID, usage.Endpoint, usage.Method, now(), usage.Cost)
	return err
}

func (r *TenantRepository) UsageSummary(ctx context.Context, tenantID string) (*models.UsageSummary, error) {
	var summary models.UsageSummary
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(cost), 0) FROM api_usage WHERE tenant_id = ?`, tenantID,
	).Scan(&summary.BrojPoziva, &summary.UkupniTrosak)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTenant(row scanner) (*models.Tenant, error) {
	var (
		tenant    models.Tenant
		activated sql.NullString
	)
	err := row.Scan(
		&tenant.ID,
		&tenant.Naziv,
		&tenant.KontaktEmail,
		&tenant.KontaktTelefon,
		&tenant.Adresa,
		&tenant.Status,
		&tenant.DatumKreiranja,
		&activated,
		&tenant.APIKey,
	)
	if err != nil {
		return nil, err
	}
	tenant.DatumAktivacije = activated.String
	return &tenant, nil
}

func now() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000000Z07:00")
}
