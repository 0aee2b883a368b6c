package models

import (
	"strings"
	"time"
)

type Kind string

const (
	KindPerson       Kind = "person"
	KindOrganization Kind = "organization"
)

// Contact is the canonical record being deduplicated.
// Field order matches schema: id, kind, first_name, last_name, org_name, email, ...
type Contact struct {
	ID           int64     `json:"id" db:"id"`
	Kind         Kind      `json:"kind" db:"kind"`
	FirstName    string    `json:"first_name" db:"first_name"`
	LastName     string    `json:"last_name" db:"last_name"`
	OrgName      string    `json:"org_name" db:"org_name"`
	Email        string    `json:"email" db:"email"`
	Phone        string    `json:"phone" db:"phone"`
	AddressLine1 string    `json:"address_line1" db:"address_line1"`
	AddressLine2 string    `json:"address_line2" db:"address_line2"`
	City         string    `json:"city" db:"city"`
	State        string    `json:"state" db:"state"`
	PostalCode   string    `json:"postal_code" db:"postal_code"`
	Office       string    `json:"office" db:"office"`
	Notes        string    `json:"notes" db:"notes"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// ContactFields lists the scalar columns the merge rules may touch, in
// schema order. The updatable column set in the contact repository is
// derived from this list.
var ContactFields = []string{
	"first_name",
	"last_name",
	"org_name",
	"email",
	"phone",
	"address_line1",
	"address_line2",
	"city",
	"state",
	"postal_code",
	"office",
	"notes",
}

// Field returns the named scalar attribute. The bool reports whether the
// name is known.
func (c *Contact) Field(name string) (string, bool) {
	switch name {
	case "first_name":
		return c.FirstName, true
	case "last_name":
		return c.LastName, true
	case "org_name":
		return c.OrgName, true
	case "email":
		return c.Email, true
	case "phone":
		return c.Phone, true
	case "address_line1":
		return c.AddressLine1, true
	case "address_line2":
		return c.AddressLine2, true
	case "city":
		return c.City, true
	case "state":
		return c.State, true
	case "postal_code":
		return c.PostalCode, true
	case "office":
		return c.Office, true
	case "notes":
		return c.Notes, true
	}
	return "", false
}

// SetField assigns the named scalar attribute. The bool reports whether
// the name is known.
func (c *Contact) SetField(name, value string) bool {
	switch name {
	case "first_name":
		c.FirstName = value
	case "last_name":
		c.LastName = value
	case "org_name":
		c.OrgName = value
	case "email":
		c.Email = value
	case "phone":
		c.Phone = value
	case "address_line1":
		c.AddressLine1 = value
	case "address_line2":
		c.AddressLine2 = value
	case "city":
		c.City = value
	case "state":
		c.State = value
	case "postal_code":
		c.PostalCode = value
	case "office":
		c.Office = value
	case "notes":
		c.Notes = value
	default:
		return false
	}
	return true
}

// DisplayName is the human-facing name for reports and the gap audit join.
func (c *Contact) DisplayName() string {
	if c.Kind == KindOrganization {
		return strings.TrimSpace(c.OrgName)
	}
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}
