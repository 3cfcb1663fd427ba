// internal/membership/domain.go
package membership

// LedgerHeader is the first line of a freshly created ledger.
const LedgerHeader = "Anrede,Name,Vorname,Adresse,PLZ,Ort,Email,Tel.,Status,Betrag,Beitritt,Referenz:\n"

// DefaultLedgerPath is where the ledger lives inside the target repository.
const DefaultLedgerPath = "members.csv"

// MemberRecord is one membership registration. Field order matches the ledger columns.
type MemberRecord struct {
	Salutation string  `json:"anrede"`
	LastName   string  `json:"name"`
	FirstName  string  `json:"vorname"`
	Address    string  `json:"adresse"`
	PostalCode string  `json:"plz"`
	City       string  `json:"ort"`
	Email      string  `json:"email"`
	Phone      *string `json:"tel,omitempty"`
	Status     string  `json:"status"`
	Amount     string  `json:"betrag"`
	JoinYear   string  `json:"beitritt"`
	Reference  *string `json:"referenz,omitempty"`
}

// Fields returns the record's values in ledger column order. Absent optional
// fields become empty strings.
func (r MemberRecord) Fields() []string {
	return []string{
		r.Salutation,
		r.LastName,
		r.FirstName,
		r.Address,
		r.PostalCode,
		r.City,
		r.Email,
		optional(r.Phone),
		r.Status,
		r.Amount,
		r.JoinYear,
		optional(r.Reference),
	}
}

// ChangeMessage describes the ledger revision that adds this member.
func (r MemberRecord) ChangeMessage() string {
	return "Add new member: " + r.FirstName + " " + r.LastName
}

func optional(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Ack acknowledges a committed append.
type Ack struct {
	Path    string `json:"path"`
	Version string `json:"version"`
	Row     string `json:"row"`
	Created bool   `json:"created"`
}
