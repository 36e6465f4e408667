package repositories

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"epos/invoices/internal/models"
)

//go:embed migrations/*.sql
var Migrations embed.FS

var ErrNotFound = errors.New("invoice not found")

// Timestamps are fixed width so that they sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

type InvoiceRepository struct {
	db *sql.DB
}

func NewInvoiceRepository(db *sql.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// Create stores the invoice and its items in one transaction. It assigns the
// ids, the date and the next invoice number.
func (r *InvoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var last int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(CAST(SUBSTR(broj_fakture, 5) AS INTEGER)), 0) FROM fakture`,
	).Scan(&last)
	if err != nil {
		return err
	}

	invoice.ID = uuid.NewString()
	invoice.BrojFakture = fmt.Sprintf("FAK-%06d", last+1)
	invoice.Datum = time.Now().UTC().Format(timestampLayout)

	_, err = tx.ExecContext(ctx, `
        INSERT INTO fakture (id, tenant_id, klijent_id, broj_fakture, datum, iznos, status)
        VALUES (?, ?, ?, ?, ?, ?, ?)
    `,
		invoice.ID,
		invoice.TenantID,
		invoice.KlijentID,
		invoice.BrojFakture,
		invoice.Datum,
		invoice.Iznos,
		invoice.Status,
	)
	if err != nil {
		return err
	}

	for i := range invoice.Stavke {
		item := &invoice.Stavke[i]
		item.ID = uuid.NewString()
		item.FakturaID = invoice.ID

		_, err = tx.ExecContext(ctx, `
            INSERT INTO stavke (id, faktura_id, naziv, kolicina, cijena, ukupno)
            VALUES (?, ?, ?, ?, ?, ?)
        `,
			item.ID,
			item.FakturaID,
			item.Naziv,
			item.Kolicina,
			item.Cijena,
			item.Ukupno,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetByID returns the invoice with its items.
func (r *InvoiceRepository) GetByID(ctx context.Context, tenantID, id string) (*models.Invoice, error) {
	query := `
        SELECT id, tenant_id, klijent_id, broj_fakture, datum, iznos, status
        FROM fakture
        WHERE id = ? AND tenant_id = ?
    `

	invoice, err := scanInvoice(r.db.QueryRowContext(ctx, query, id, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
        SELECT id, faktura_id, naziv, kolicina, cijena, ukupno
        FROM stavke
        WHERE faktura_id = ?
    `, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoice.Stavke = []models.Item{}
	for rows.Next() {
		var item models.Item
		err := rows.Scan(
			&item.ID,
			&item.FakturaID,
			&item.Naziv,
			&item.Kolicina,
			&item.Cijena,
			&item.Ukupno,
		)
		if err != nil {
			return nil, err
		}
		invoice.Stavke = append(invoice.Stavke, item)
	}

	return invoice, rows.Err()
}

// List returns the tenant's invoices, newest first.
func (r *InvoiceRepository) List(ctx context.Context, tenantID string) ([]models.Invoice, error) {
	return r.list(ctx, `
        SELECT id, tenant_id, klijent_id, broj_fakture, datum, iznos, status
        FROM fakture
        WHERE tenant_id = ?
        ORDER BY datum DESC
    `, tenantID)
}

// ListByClient returns one client's invoices, newest first.
func (r *InvoiceRepository) ListByClient(ctx context.Context, tenantID, klijentID string) ([]models.Invoice, error) {
	return r.list(ctx, `
        SELECT id, tenant_id, klijent_id, broj_fakture, datum, iznos, status
        FROM fakture
        WHERE tenant_id = ? AND klijent_id = ?
        ORDER BY datum DESC
    `, tenantID, klijentID)
}

func (r *InvoiceRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.Invoice, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := []models.Invoice{}
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *invoice)
	}

	return invoices, rows.Err()
}

// Update writes the set fields of req.
func (r *InvoiceRepository) Update(ctx context.Context, req models.UpdateInvoiceRequest) error {
	var (
		sets []string
		args []interface{}
	)
	if req.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *req.Status)
	}
	if req.Iznos != nil {
		sets = append(sets, "iznos = ?")
		args = append(args, *req.Iznos)
	}
	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE fakture SET " + strings.Join(sets, ", ") + " WHERE id = ? AND tenant_id = ?"
	args = append(args, req.FakturaID, req.TenantID)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return affected(res)
}

// Delete removes the invoice and its items.
func (r *InvoiceRepository) Delete(ctx context.Context, tenantID, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
        DELETE FROM stavke
        WHERE faktura_id IN (SELECT id FROM fakture WHERE id = ? AND tenant_id = ?)
    `, id, tenantID)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM fakture WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		return err
	}
	if err := affected(res); err != nil {
		return err
	}

	return tx.Commit()
}

// CancelForClient cancels every unpaid invoice of the client and reports how
// many changed.
func (r *InvoiceRepository) CancelForClient(ctx context.Context, tenantID, klijentID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
        UPDATE fakture
        SET status = ?
        WHERE tenant_id = ? AND klijent_id = ? AND status NOT IN (?, ?)
    `, models.InvoiceStatusCancelled, tenantID, klijentID, models.InvoiceStatusPaid, models.InvoiceStatusCancelled)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanInvoice(row scanner) (*models.Invoice, error) {
	var invoice models.Invoice
	err := row.Scan(
		&invoice.ID,
		&invoice.TenantID,
		&invoice.KlijentID,
		&invoice.BrojFakture,
		&invoice.Datum,
		&invoice.Iznos,
		&invoice.Status,
	)
	if err != nil {
		return nil, err
	}
	return &invoice, nil
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
