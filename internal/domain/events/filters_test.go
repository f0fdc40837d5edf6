package events

import (
	"net/url"
	"testing"
)

func TestParseFiltersDefaults(t *testing.T) {
	f, errs := ParseFilters(url.Values{})
	if errs != nil {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if f.SortBy != "dateTime" || f.SortColumn() != "start_time" {
		t.Errorf("default sort = %s (%s)", f.SortBy, f.SortColumn())
	}
}

func TestParseFiltersDateRange(t *testing.T) {
	q := url.Values{"from": {"2026-09-01T00:00:00Z"}, "to": {"2026-09-30T00:00:00Z"}}
	f, errs := ParseFilters(q)
	if errs != nil {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if f.From == nil || f.To == nil {
		t.Fatal("range not parsed")
	}

	inverted := url.Values{"from": {"2026-09-30T00:00:00Z"}, "to": {"2026-09-01T00:00:00Z"}}
	if _, errs := ParseFilters(inverted); len(errs) != 1 {
		t.Errorf("inverted range should be rejected, got %v", errs)
	}
	if _, errs := ParseFilters(url.Values{"from": {"next tuesday"}}); len(errs) != 1 {
		t.Errorf("non-RFC3339 should be rejected, got %v", errs)
	}
}

func TestParseFiltersCollectsAllErrors(t *testing.T) {
	q := url.Values{
		"category": {"circus"},
		"upcoming": {"maybe"},
		"sortBy":   {"capacity"},
	}
	_, errs := ParseFilters(q)
	if len(errs) != 3 {
		t.Fatalf("got %d errors, want 3: %v", len(errs), errs)
	}
}
