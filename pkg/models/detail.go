package models

import (
	"strconv"
	"time"
)

// Detail is the kind-specific 1:1 extension of a Contact. Its key always
// holds the owning contact's id. Attribute access goes through the named
// field methods so merge behavior stays a stated configuration.
type Detail interface {
	OwnerID() int64
	SetOwnerID(id int64)
	DetailKind() Kind
	Field(name string) (string, bool)
	SetField(name, value string) bool
}

// PersonDetail extends a person contact.
// Field order matches schema: contact_id, birthday, spouse_name, home_church, marital_status
type PersonDetail struct {
	ContactID     int64      `json:"contact_id" db:"contact_id"`
	Birthday      *time.Time `json:"birthday,omitempty" db:"birthday"`
	SpouseName    string     `json:"spouse_name" db:"spouse_name"`
	HomeChurch    string     `json:"home_church" db:"home_church"`
	MaritalStatus string     `json:"marital_status" db:"marital_status"`
}

var PersonDetailFields = []string{"birthday", "spouse_name", "home_church", "marital_status"}

func (d *PersonDetail) OwnerID() int64      { return d.ContactID }
func (d *PersonDetail) SetOwnerID(id int64) { d.ContactID = id }
func (d *PersonDetail) DetailKind() Kind    { return KindPerson }

func (d *PersonDetail) Field(name string) (string, bool) {
	switch name {
	case "birthday":
		if d.Birthday == nil {
			return "", true
		}
		return d.Birthday.Format("2006-01-02"), true
	case "spouse_name":
		return d.SpouseName, true
	case "home_church":
		return d.HomeChurch, true
	case "marital_status":
		return d.MaritalStatus, true
	}
	return "", false
}

func (d *PersonDetail) SetField(name, value string) bool {
	switch name {
	case "birthday":
		if value == "" {
			d.Birthday = nil
			return true
		}
		t, err := time.Parse("2006-01-02", value)
		if err != nil {
			return false
		}
		d.Birthday = &t
	case "spouse_name":
		d.SpouseName = value
	case "home_church":
		d.HomeChurch = value
	case "marital_status":
		d.MaritalStatus = value
	default:
		return false
	}
	return true
}

// OrgDetail extends an organization contact.
// Field order matches schema: contact_id, denomination, congregation_size, pastor_name, pastor_email, website
type OrgDetail struct {
	ContactID        int64  `json:"contact_id" db:"contact_id"`
	Denomination     string `json:"denomination" db:"denomination"`
	CongregationSize *int   `json:"congregation_size,omitempty" db:"congregation_size"`
	PastorName       string `json:"pastor_name" db:"pastor_name"`
	PastorEmail      string `json:"pastor_email" db:"pastor_email"`
	Website          string `json:"website" db:"website"`
}

var OrgDetailFields = []string{"denomination", "congregation_size", "pastor_name", "pastor_email", "website"}

func (d *OrgDetail) OwnerID() int64      { return d.ContactID }
func (d *OrgDetail) SetOwnerID(id int64) { d.ContactID = id }
func (d *OrgDetail) DetailKind() Kind    { return KindOrganization }

func (d *OrgDetail) Field(name string) (string, bool) {
	switch name {
	case "denomination":
		return d.Denomination, true
	case "congregation_size":
		if d.CongregationSize == nil {
			return "", true
		}
		return strconv.Itoa(*d.CongregationSize), true
	case "pastor_name":
		return d.PastorName, true
	case "pastor_email":
		return d.PastorEmail, true
	case "website":
		return d.Website, true
	}
	return "", false
}

func (d *OrgDetail) SetField(name, value string) bool {
	switch name {
	case "denomination":
		d.Denomination = value
	case "congregation_size":
		if value == "" {
			d.CongregationSize = nil
			return true
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return false
		}
		d.CongregationSize = &n
	case "pastor_name":
		d.PastorName = value
	case "pastor_email":
		d.PastorEmail = value
	case "website":
		d.Website = value
	default:
		return false
	}
	return true
}

// NewDetail returns an empty Detail of the given kind keyed to the owner.
func NewDetail(kind Kind, ownerID int64) Detail {
	switch kind {
	case KindOrganization:
		return &OrgDetail{ContactID: ownerID}
	default:
		return &PersonDetail{ContactID: ownerID}
	}
}

// DetailFieldsFor lists the kind-specific attribute names in schema order.
func DetailFieldsFor(kind Kind) []string {
	if kind == KindOrganization {
		return OrgDetailFields
	}
	return PersonDetailFields
}
