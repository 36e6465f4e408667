package models

type ExpenseStatus string

const (
	ExpenseStatusPlanned   ExpenseStatus = "planiran"
	ExpenseStatusDone      ExpenseStatus = "izvršen"
	ExpenseStatusCancelled ExpenseStatus = "otkazan"
)

func (s ExpenseStatus) Valid() bool {
	switch s {
	case ExpenseStatusPlanned, ExpenseStatusDone, ExpenseStatusCancelled:
		return true
	}
	return false
}

// DateLayout is the format of expense dates and date filters.
const DateLayout = "2006-01-02"

type Expense struct {
	ID             string        `json:"id"`
	TenantID       string        `json:"-"`
	Naziv          string        `json:"naziv"`
	Kategorija     string        `json:"kategorija"`
	Iznos          float64       `json:"iznos"`
	Datum          string        `json:"datum"`
	Opis           string        `json:"opis"`
	Status         ExpenseStatus `json:"status"`
	PovezanoSa     *string       `json:"povezano_sa"`
	DatumKreiranja string        `json:"datum_kreiranja"`
}

type Category struct {
	ID    string `json:"id"`
	Naziv string `json:"naziv"`
	Opis  string `json:"opis"`
}

type CreateExpenseRequest struct {
	TenantID   string   `json:"tenant_id"`
	Naziv      string   `json:"naziv"`
	Kategorija string   `json:"kategorija"`
	Iznos      *float64 `json:"iznos"`
	Datum      string   `json:"datum"`
	Opis       string   `json:"opis"`
	PovezanoSa string   `json:"povezano_sa"`
}

type UpdateExpenseRequest struct {
	TenantID   string         `json:"tenant_id"`
	TrosakID   string         `json:"trosak_id"`
	Naziv      *string        `json:"naziv"`
	Kategorija *string        `json:"kategorija"`
	Iznos      *float64       `json:"iznos"`
	Datum      *string        `json:"datum"`
	Opis       *string        `json:"opis"`
	Status     *ExpenseStatus `json:"status"`
	PovezanoSa *string        `json:"povezano_sa"`
}

func (r UpdateExpenseRequest) Empty() bool {
	return r.Naziv == nil && r.Kategorija == nil && r.Iznos == nil && r.Datum == nil &&
		r.Opis == nil && r.Status == nil && r.PovezanoSa == nil
}

type DeleteExpenseRequest struct {
	TenantID string `json:"tenant_id"`
	TrosakID string `json:"trosak_id"`
}

// Filter narrows an expense listing. Empty fields do not filter.
type Filter struct {
	Kategorija string
	Status     string
	DatumOd    string
	DatumDo    string
}

type CategoryTotal struct {
	Kategorija string  `json:"kategorija"`
	Ukupno     float64 `json:"ukupno"`
	Broj       int     `json:"broj"`
}

type StatusTotal struct {
	Status string  `json:"status"`
	Ukupno float64 `json:"ukupno"`
	Broj   int     `json:"broj"`
}

type Total struct {
	Ukupno float64 `json:"ukupno"`
	Broj   int     `json:"broj"`
}

type Statistics struct {
	PoKategorijama []CategoryTotal `json:"po_kategorijama"`
	PoStatusu      []StatusTotal   `json:"po_statusu"`
	Ukupno         Total           `json:"ukupno"`
}

// InvoiceCreated is consumed from the invoice service.
type InvoiceCreated struct {
	TenantID    string  `json:"tenant_id"`
	FakturaID   string  `json:"faktura_id"`
	BrojFakture string  `json:"broj_fakture"`
	KlijentID   string  `json:"klijent_id"`
	Iznos       float64 `json:"iznos"`
}
