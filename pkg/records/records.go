// Package records defines the Airtable tables served by the proxy and the
// projection from a raw upstream record to the simplified output shape.
package records

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Record is a single upstream Airtable record.
type Record struct {
	// ID is the Airtable record identifier (e.g. "recXXXXXXXXXXXXXX")
	ID string `json:"id"`

	// Fields maps Airtable field names to their decoded JSON values.
	// Empty cells are omitted by Airtable, so any field may be absent.
	Fields map[string]any `json:"fields"`
}

// Get returns the value of a field, or nil when the field is absent.
func (r Record) Get(field string) any {
	if r.Fields == nil {
		return nil
	}
	return r.Fields[field]
}

// Projected is one simplified output record.
type Projected map[string]any

// ResultSet is one page of projected records in upstream order.
type ResultSet []Projected

// MarshalJSON encodes an empty or nil set as [] rather than null.
// HTML characters are left unescaped so URLs round-trip byte for byte.
func (rs ResultSet) MarshalJSON() ([]byte, error) {
	if len(rs) == 0 {
		return []byte("[]"), nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode([]Projected(rs)); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Table is one of the Airtable tables the proxy knows how to project.
// The zero value is not a valid table; use Milkspots, Reviews or Amenities.
type Table struct {
	name    string
	project func(Record) Projected
}

var (
	// Milkspots holds the locations themselves.
	Milkspots = Table{name: "Milkspots", project: projectMilkspot}

	// Reviews holds visitor reviews linked to a milkspot.
	Reviews = Table{name: "Reviews", project: projectReview}

	// Amenities holds the amenity catalogue referenced by milkspots.
	Amenities = Table{name: "Amenities", project: projectAmenity}
)

// Tables lists every known table.
func Tables() []Table {
	return []Table{Milkspots, Reviews, Amenities}
}

// ParseTable resolves an Airtable table name (case-insensitive).
func ParseTable(name string) (Table, error) {
	for _, t := range Tables() {
		if strings.EqualFold(t.name, name) {
			return t, nil
		}
	}
	return Table{}, fmt.Errorf("unsupported table %q", name)
}

// Name returns the Airtable table name.
func (t Table) Name() string {
	return t.name
}

// String implements fmt.Stringer.
func (t Table) String() string {
	return t.name
}

// Valid reports whether t is one of the known tables.
func (t Table) Valid() bool {
	return t.project != nil
}

// Project maps one upstream record to the table's output shape.
func (t Table) Project(r Record) Projected {
	return t.project(r)
}

// ProjectAll maps a page of upstream records in order.
func (t Table) ProjectAll(page []Record) ResultSet {
	rs := make(ResultSet, 0, len(page))
	for _, r := range page {
		rs = append(rs, t.project(r))
	}
	return rs
}

func projectMilkspot(r Record) Projected {
	return Projected{
		"id":               r.ID,
		"name":             r.Get("name"),
		"address":          r.Get("address"),
		"lat":              r.Get("lat"),
		"lng":              r.Get("lng"),
		"directions":       r.Get("directions"),
		"cross_streets":    r.Get("cross_streets"),
		"website":          r.Get("website"),
		"location_details": r.Get("location_details"),
		"category":         r.Get("category"),
		"amenities":        r.Get("Amenities"),
		"area":             r.Get("area"),
		"verified":         r.Get("verified"),
		"reviews":          r.Get("Reviews"),
	}
}

func projectReview(r Record) Projected {
	return Projected{
		"id":          r.ID,
		"timestamp":   r.Get("Timestamp"),
		"milkspot_id": r.Get("Milkspot"),
		"recommend":   r.Get("Recommend?"),
	}
}

func projectAmenity(r Record) Projected {
	return Projected{
		"id":    r.ID,
		"name":  r.Get("Name"),
		"image": r.Get("Glitch Image URL"),
	}
}
