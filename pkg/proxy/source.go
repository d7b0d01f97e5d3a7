package proxy

import (
	"github.com/Sternrassler/milkspot-proxy/pkg/airtable"
	"github.com/Sternrassler/milkspot-proxy/pkg/pagination"
	"github.com/Sternrassler/milkspot-proxy/pkg/records"
)

// Source opens a fresh page iterator over a table listing.
type Source interface {
	Open(table records.Table, view string) pagination.PageIterator
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(table records.Table, view string) pagination.PageIterator

// Open calls f(table, view).
func (f SourceFunc) Open(table records.Table, view string) pagination.PageIterator {
	return f(table, view)
}

// AirtableSource lists pages through an Airtable client. A pageSize <= 0
// uses the client default.
func AirtableSource(client *airtable.Client, pageSize int) Source {
	return SourceFunc(func(table records.Table, view string) pagination.PageIterator {
		return client.Pages(table.Name(), airtable.ListOptions{View: view, PageSize: pageSize})
	})
}
