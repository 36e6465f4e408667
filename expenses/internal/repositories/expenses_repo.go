package repositories

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"epos/expenses/internal/models"
)

//go:embed migrations/*.sql
var Migrations embed.FS

var ErrNotFound = errors.New("expense not found")

const expenseColumns = `id, tenant_id, naziv, kategorija, iznos, datum, opis, status, povezano_sa, datum_kreiranja`

type ExpenseRepository struct {
	db *sql.DB
}

func NewExpenseRepository(db *sql.DB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

func (r *ExpenseRepository) Create(ctx context.Context, expense *models.Expense) error {
	expense.ID = uuid.NewString()
	expense.DatumKreiranja = time.Now().UTC().Format(time.RFC3339)

	_, err := r.db.ExecContext(ctx, `
        INSERT INTO troskovi (`+expenseColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `,
		expense.ID,
		expense.TenantID,
		expense.Naziv,
		expense.Kategorija,
		expense.Iznos,
		expense.Datum,
		expense.Opis,
		expense.Status,
		expense.PovezanoSa,
		expense.DatumKreiranja,
	)
	return err
}

func (r *ExpenseRepository) GetByID(ctx context.Context, tenantID, id string) (*models.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM troskovi WHERE id = ? AND tenant_id = ?`, id, tenantID)

	expense, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return expense, err
}

// List returns the tenant's expenses matching filter, newest date first.
func (r *ExpenseRepository) List(ctx context.Context, tenantID string, filter models.Filter) ([]models.Expense, error) {
	where, args := conditions(tenantID, filter.DatumOd, filter.DatumDo)
	if filter.Kategorija != "" {
		where = append(where, "kategorija = ?")
		args = append(args, filter.Kategorija)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + expenseColumns + ` FROM troskovi WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY datum DESC, datum_kreiranja DESC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := []models.Expense{}
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, *expense)
	}
	return expenses, rows.Err()
}

// Update writes the set fields of req.
func (r *ExpenseRepository) Update(ctx context.Context, req models.UpdateExpenseRequest) error {
	var (
		sets []string
		args []interface{}
	)
	add := func(column string, value interface{}) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if req.Naziv != nil {
		add("naziv", *req.Naziv)
	}
	if req.Kategorija != nil {
		add("kategorija", *req.Kategorija)
	}
	if req.Iznos != nil {
		add("iznos", *req.Iznos)
	}
	if req.Datum != nil {
		add("datum", *req.Datum)
	}
	if req.Opis != nil {
		add("opis", *req.Opis)
	}
	if req.Status != nil {
		add("status", *req.Status)
	}
	if req.PovezanoSa != nil {
		add("povezano_sa", *req.PovezanoSa)
	}
	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE troskovi SET " + strings.Join(sets, ", ") + " WHERE id = ? AND tenant_id = ?"
	args = append(args, req.TrosakID, req.TenantID)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return affected(res)
}

func (r *ExpenseRepository) Delete(ctx context.Context, tenantID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM troskovi WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		return err
	}
	return affected(res)
}

func (r *ExpenseRepository) CategoryExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM kategorije_troskova WHERE id = ?)`, id,
	).Scan(&exists)
	return exists, err
}

func (r *ExpenseRepository) Categories(ctx context.Context) ([]models.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, naziv, opis FROM kategorije_troskova ORDER BY naziv`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Naziv, &c.Opis); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// Statistics sums the tenant's expenses in the optional date range.
func (r *ExpenseRepository) Statistics(ctx context.Context, tenantID, datumOd, datumDo string) (*models.Statistics, error) {
	where, args := conditions(tenantID, datumOd, datumDo)
	clause := " FROM troskovi WHERE " + strings.Join(where, " AND ")

	stats := &models.Statistics{
		PoKategorijama: []models.CategoryTotal{},
		PoStatusu:      []models.StatusTotal{},
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT kategorija, SUM(iznos), COUNT(*)`+clause+` GROUP BY kategorija ORDER BY kategorija`, args...)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var t models.CategoryTotal
		if err := rows.Scan(&t.Kategorija, &t.Ukupno, &t.Broj); err != nil {
			rows.Close()
			return nil, err
		}
		stats.PoKategorijama = append(stats.PoKategorijama, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.QueryContext(ctx,
		`SELECT status, SUM(iznos), COUNT(*)`+clause+` GROUP BY status ORDER BY status`, args...)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var t models.StatusTotal
		if err := rows.Scan(&t.Status, &t.Ukupno, &t.Broj); err != nil {
			rows.Close()
			return nil, err
		}
		stats.PoStatusu = append(stats.PoStatusu, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(iznos), 0), COUNT(*)`+clause, args...).
		Scan(&stats.Ukupno.Ukupno, &stats.Ukupno.Broj)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func conditions(tenantID, datumOd, datumDo string) ([]string, []interface{}) {
	where := []string{"tenant_id = ?"}
	args := []interface{}{tenantID}
	if datumOd != "" {
		where = append(where, "datum >= ?")
		args = append(args, datumOd)
	}
	if datumDo != "" {
		where = append(where, "datum <= ?")
		args = append(args, datumDo)
	}
	return where, args
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanExpense(row scanner) (*models.Expense, error) {
	var (
		expense    models.Expense
		povezanoSa sql.NullString
	)
	err := row.Scan(
		&expense.ID,
		&expense.TenantID,
		&expense.Naziv,
		&expense.Kategorija,
		&expense.Iznos,
		&expense.Datum,
		&expense.Opis,
		&expense.Status,
		&povezanoSa,
		&expense.DatumKreiranja,
	)
	if err != nil {
		return nil, err
	}
	if povezanoSa.Valid {
		expense.PovezanoSa = &povezanoSa.String
	}
	return &expense, nil
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
