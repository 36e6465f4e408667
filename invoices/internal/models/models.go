package models

type InvoiceStatus string

const (
	InvoiceStatusCreated   InvoiceStatus = "kreirana"
	InvoiceStatusSent      InvoiceStatus = "poslana"
	InvoiceStatusPaid      InvoiceStatus = "placena"
	InvoiceStatusCancelled InvoiceStatus = "otkazana"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusCreated, InvoiceStatusSent, InvoiceStatusPaid, InvoiceStatusCancelled:
		return true
	}
	return false
}

type Invoice struct {
	ID          string        `json:"id"`
	TenantID    string        `json:"-"`
	KlijentID   string        `json:"klijent_id"`
	BrojFakture string        `json:"broj_fakture"`
	Datum       string        `json:"datum"`
	Iznos       float64       `json:"iznos"`
	Status      InvoiceStatus `json:"status"`
	Stavke      []Item        `json:"stavke,omitempty"`
}

type Item struct {
	ID        string  `json:"id"`
	FakturaID string  `json:"faktura_id"`
	Naziv     string  `json:"naziv"`
	Kolicina  float64 `json:"kolicina"`
	Cijena    float64 `json:"cijena"`
	Ukupno    float64 `json:"ukupno"`
}

type ItemRequest struct {
	Naziv    string  `json:"naziv"`
	Kolicina float64 `json:"kolicina"`
	Cijena   float64 `json:"cijena"`
}

type CreateInvoiceRequest struct {
	TenantID  string        `json:"tenant_id"`
	KlijentID string        `json:"klijent_id"`
	Stavke    []ItemRequest `json:"stavke"`
}

type UpdateInvoiceRequest struct {
	TenantID  string         `json:"tenant_id"`
	FakturaID string         `json:"faktura_id"`
	Status    *InvoiceStatus `json:"status"`
	Iznos     *float64       `json:"iznos"`
}

type DeleteInvoiceRequest struct {
	TenantID  string `json:"tenant_id"`
	FakturaID string `json:"faktura_id"`
}

// InvoiceCreated is published after an invoice is stored.
type InvoiceCreated struct {
	TenantID    string  `json:"tenant_id"`
	FakturaID   string  `json:"faktura_id"`
	BrojFakture string  `json:"broj_fakture"`
	KlijentID   string  `json:"klijent_id"`
	Iznos       float64 `json:"iznos"`
}

// ClientDeleted is consumed from the client service.
type ClientDeleted struct {
	TenantID  string `json:"tenant_id"`
	KlijentID string `json:"klijent_id"`
}

// CreateExpense is the derived material cost sent to the expense service.
type CreateExpense struct {
	TenantID   string  `json:"tenant_id"`
	Naziv      string  `json:"naziv"`
	Kategorija string  `json:"kategorija"`
	Iznos      float64 `json:"iznos"`
	Datum      string  `json:"datum"`
	Opis       string  `json:"opis"`
	PovezanoSa string  `json:"povezano_sa"`
}
