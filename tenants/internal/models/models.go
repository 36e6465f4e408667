package models

import "epos/pkg/tenancy"

type RequestStatus string

const (
	RequestStatusSubmitted RequestStatus = "submitted"
	RequestStatusApproved  RequestStatus = "approved"
	RequestStatusRejected  RequestStatus = "rejected"
)

// Tenant is the stored tenant record, including its API key. It is only
// shown to administrators; tenants see tenancy.Tenant.
type Tenant struct {
	tenancy.Tenant
	APIKey string `json:"api_key"`
}

type TenantRequest struct {
	ID             string        `json:"id"`
	NazivKompanije string        `json:"naziv_kompanije"`
	KontaktOsoba   string        `json:"kontakt_osoba"`
	Email          string        `json:"email"`
	Telefon        string        `json:"telefon"`
	Adresa         string        `json:"adresa"`
	OpisPoslovanja string        `json:"opis_poslovanja"`
	Status         RequestStatus `json:"status"`
	DatumZahtjeva  string        `json:"datum_zahtjeva"`
	Napomene       string        `json:"napomene"`
}

type SubmitRequest struct {
	NazivKompanije string `json:"naziv_kompanije"`
	KontaktOsoba   string `json:"kontakt_osoba"`
	Email          string `json:"email"`
	Telefon        string `json:"telefon"`
	Adresa         string `json:"adresa"`
	OpisPoslovanja string `json:"opis_poslovanja"`
}

// Missing lists the required fields left empty, in form order.
func (r SubmitRequest) Missing() []string {
	fields := []struct {
		name  string
		value string
	}{
		{"naziv_kompanije", r.NazivKompanije},
		{"kontakt_osoba", r.KontaktOsoba},
		{"email", r.Email},
		{"telefon", r.Telefon},
		{"adresa", r.Adresa},
		{"opis_poslovanja", r.OpisPoslovanja},
	}

	var missing []string
	for _, f := range fields {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// Decision carries the administrator's notes on approve, reject and suspend.
type Decision struct {
	Napomene string `json:"napomene"`
	Razlog   string `json:"razlog"`
}

type UsageSummary struct {
	BrojPoziva   int     `json:"broj_poziva"`
	UkupniTrosak float64 `json:"ukupni_trosak"`
}

// TenantActivated is published after a request is approved.
type TenantActivated struct {
	TenantID string `json:"tenant_id"`
	Naziv    string `json:"naziv"`
}
