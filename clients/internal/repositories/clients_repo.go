package repositories

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"epos/clients/internal/models"
)

//go:embed migrations/*.sql
var Migrations embed.FS

var (
	ErrNotFound       = errors.New("client not found")
	ErrDuplicateEmail = errors.New("client email already registered")
)

type ClientRepository struct {
	db *sql.DB
}

func NewClientRepository(db *sql.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

// Create inserts an active client, assigning its id and creation time.
func (r *ClientRepository) Create(ctx context.Context, client *models.Client) error {
	client.ID = uuid.NewString()
	client.DatumKreiranja = time.Now().Format(time.RFC3339)
	client.Aktivan = true

	query := `
        INSERT INTO klijenti (id, tenant_id, naziv, email, telefon, adresa, datum_kreiranja, aktivan)
        VALUES (?, ?, ?, ?, ?, ?, ?, 1)
    `

	_, err := r.db.ExecContext(ctx, query,
		client.ID,
		client.TenantID,
		client.Naziv,
		client.Email,
		client.Telefon,
		client.Adresa,
		client.DatumKreiranja,
	)
	return translate(err)
}

// EmailTaken reports whether the tenant already has a client, active or not,
// with this email.
func (r *ClientRepository) EmailTaken(ctx context.Context, tenantID, email string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM klijenti WHERE tenant_id = ? AND email = ?`,
		tenantID, email,
	).Scan(&n)
	return n > 0, err
}

func (r *ClientRepository) GetByID(ctx context.Context, tenantID, id string) (*models.Client, error) {
	query := `
        SELECT id, tenant_id, naziv, email, telefon, adresa, datum_kreiranja, aktivan
        FROM klijenti
        WHERE id = ? AND tenant_id = ? AND aktivan = 1
    `

	client, err := scanClient(r.db.QueryRowContext(ctx, query, id, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return client, err
}

// List returns the tenant's active clients ordered by name.
func (r *ClientRepository) List(ctx context.Context, tenantID string) ([]models.Client, error) {
	query := `
        SELECT id, tenant_id, naziv, email, telefon, adresa, datum_kreiranja, aktivan
        FROM klijenti
        WHERE tenant_id = ? AND aktivan = 1
        ORDER BY naziv
    `

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := []models.Client{}
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, *client)
	}

	return clients, rows.Err()
}

// Update writes the set fields of req. It returns ErrNotFound when no active
// client matched.
func (r *ClientRepository) Update(ctx context.Context, req models.UpdateClientRequest) error {
	var (
		sets []string
		args []interface{}
	)
	set := func(column string, value *string) {
		if value != nil {
			sets = append(sets, column+" = ?")
			args = append(args, *value)
		}
	}
	set("naziv", req.Naziv)
	set("email", req.Email)
	set("telefon", req.Telefon)
	set("adresa", req.Adresa)
	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE klijenti SET " + strings.Join(sets, ", ") + " WHERE id = ? AND tenant_id = ? AND aktivan = 1"
	args = append(args, req.KlijentID, req.TenantID)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return translate(err)
	}
	return affected(res)
}

// Deactivate soft deletes a client.
func (r *ClientRepository) Deactivate(ctx context.Context, tenantID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE klijenti SET aktivan = 0 WHERE id = ? AND tenant_id = ? AND aktivan = 1`,
		id, tenantID,
	)
	if err != nil {
		return err
	}
	return affected(res)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanClient(row scanner) (*models.Client, error) {
	var client models.Client
	err := row.Scan(
		&client.ID,
		&client.TenantID,
		&client.Naziv,
		&client.Email,
		&client.Telefon,
		&client.Adresa,
		&client.DatumKreiranja,
		&client.Aktivan,
	)
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func translate(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return ErrDuplicateEmail
	}
	return err
}
