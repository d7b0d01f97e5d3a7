// Package pagination walks an upstream page sequence to one target page.
//
// Airtable pages are reached only by following continuation offsets, so
// page N costs N+1 sequential requests. The walker requests pages strictly
// in order and stops as soon as the target page has arrived:
//
//	it := airtableClient.Pages("Milkspots", airtable.ListOptions{View: "Grid view"})
//	result := pagination.Walk(ctx, it, records.Milkspots, 3)
//	switch result.Outcome {
//	case pagination.Found:     // result.Records holds page 3
//	case pagination.Exhausted: // fewer than 4 pages exist; result.Records is empty
//	case pagination.Failed:    // result.Err says why
//	}
//
// Page indices are zero-based and counted in arrival order.
package pagination
