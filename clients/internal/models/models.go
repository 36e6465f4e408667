package models

type Client struct {
	ID             string `json:"id"`
	TenantID       string `json:"-"`
	Naziv          string `json:"naziv"`
	Email          string `json:"email"`
	Telefon        string `json:"telefon"`
	Adresa         string `json:"adresa"`
	DatumKreiranja string `json:"datum_kreiranja"`
	Aktivan        bool   `json:"aktivan"`
}

type CreateClientRequest struct {
	TenantID string `json:"tenant_id"`
	Naziv    string `json:"naziv"`
	Email    string `json:"email"`
	Telefon  string `json:"telefon"`
	Adresa   string `json:"adresa"`
}

// UpdateClientRequest changes only the fields that are set.
type UpdateClientRequest struct {
	TenantID  string  `json:"tenant_id"`
	KlijentID string  `json:"klijent_id"`
	Naziv     *string `json:"naziv"`
	Email     *string `json:"email"`
	Telefon   *string `json:"telefon"`
	Adresa    *string `json:"adresa"`
}

func (r UpdateClientRequest) Empty() bool {
	return r.Naziv == nil && r.Email == nil && r.Telefon == nil && r.Adresa == nil
}

type DeleteClientRequest struct {
	TenantID  string `json:"tenant_id"`
	KlijentID string `json:"klijent_id"`
}

// ClientDeleted is published after a client is deactivated.
type ClientDeleted struct {
	TenantID  string `json:"tenant_id"`
	KlijentID string `json:"klijent_id"`
}
