package models

import "time"

// Ordinance is one building-code requirement row in the ordinance table.
// Jurisdiction and zone are mandatory; everything else is optional
// descriptive detail carried over from the source document.
type Ordinance struct {
	ID          string    `db:"id" json:"id"`
	Jurisdiction string   `db:"jurisdiction" json:"jurisdiction"`
	Zone        string    `db:"zone" json:"zone"`
	Category    string    `db:"category" json:"category,omitempty"`
	SectionCode string    `db:"section_code" json:"section_code,omitempty"`
	Title       string    `db:"title" json:"title,omitempty"`
	Summary     string    `db:"summary" json:"summary,omitempty"`
	Requirement string    `db:"requirement" json:"requirement,omitempty"`
	SourceURL   string    `db:"source_url" json:"source_url,omitempty"`
	ImportedBy  string    `db:"imported_by" json:"imported_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// OrdinanceColumns are the destination columns accepted by the
// ingestion pipeline, keyed by their case-sensitive names.
var OrdinanceColumns = map[string]struct{}{
	"jurisdiction": {},
	"zone":         {},
	"category":     {},
	"section_code": {},
	"title":        {},
	"summary":      {},
	"requirement":  {},
	"source_url":   {},
}

// OrdinanceFilter captures filtering criteria for listing ordinances.
type OrdinanceFilter struct {
	Jurisdiction string
	Zone         string
	Category     string
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// UpdateOrdinanceRequest carries the mutable ordinance fields.
type UpdateOrdinanceRequest struct {
	Jurisdiction string `json:"jurisdiction" validate:"required"`
	Zone         string `json:"zone" validate:"required"`
	Category     string `json:"category"`
	SectionCode  string `json:"section_code"`
	Title        string `json:"title"`
	Summary      string `json:"summary"`
	Requirement  string `json:"requirement"`
	SourceURL    string `json:"source_url" validate:"omitempty,url"`
}
