package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/TanWaiKen/invoice-ai-excel/internal/models"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/logger"
)

func TestRatio(t *testing.T) {
	pairs := [][2]string{
		{"ahmad", "ahmad bin ali"},
		{"kebun ali", "kebun abu"},
		{"syarikat abc", "xyz"},
		{"lain lain", "lain-lain"},
	}

	if Ratio("ahmad", "ahmad") != 1 {
		t.Error("identical strings must score 1")
	}
	if Ratio("", "ahmad") != 0 || Ratio("ahmad", "") != 0 {
		t.Error("empty strings must score 0")
	}

	for _, p := range pairs {
		score := Ratio(p[0], p[1])
		if score < 0 || score > 1 {
			t.Errorf("Ratio(%q, %q) = %f out of range", p[0], p[1], score)
		}
		if score != Ratio(p[1], p[0]) {
			t.Errorf("Ratio(%q, %q) is not symmetric", p[0], p[1])
		}
	}

	if Ratio("kebun ali", "kebun abu") <= Ratio("kebun ali", "xyz") {
		t.Error("closer strings must score higher")
	}
}

func TestFuzzySearch_TopK(t *testing.T) {
	_, search := newTestCatalog(t,
		models.NewCustomer("Ahmad Sdn Bhd", decimal.NewFromInt(100)),
		models.NewCustomer("Ahmad Bin Ali", decimal.NewFromInt(90)),
		models.NewCustomer("Kebun Ali", decimal.NewFromInt(80)),
		models.NewCustomer("Syarikat Lim", decimal.NewFromInt(70)),
	)

	results, err := search.TopK(context.Background(), "En. Ahmad", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Customer.Name != "Ahmad Sdn Bhd" || results[0].Score != 1 {
		t.Errorf("expected exact normalized hit first, got %s (%f)", results[0].Customer.Name, results[0].Score)
	}
	if results[1].Score > results[0].Score {
		t.Error("results must be sorted descending")
	}

	none, _ := search.TopK(context.Background(), "   ", 5)
	if len(none) != 0 {
		t.Errorf("expected no results for blank query, got %d", len(none))
	}
}

func TestFuzzySearch_RebuiltOnAppend(t *testing.T) {
	cat, search := newTestCatalog(t, models.NewCustomer("Kebun Ali", decimal.NewFromInt(80)))

	before, _ := search.TopK(context.Background(), "Syarikat Baru", 10)
	for _, r := range before {
		if r.Score == 1 {
			t.Fatal("unexpected perfect hit before append")
		}
	}

	cat.Append(context.Background(), models.NewCustomer("Syarikat Baru", decimal.NewFromInt(120)))

	after, _ := search.TopK(context.Background(), "Syarikat Baru", 10)
	if len(after) != 2 || after[0].Customer.Name != "Syarikat Baru" {
		t.Errorf("expected appended customer to be searchable, got %v", after)
	}
}

type probedSearch struct {
	staticSearch
	available bool
	probed    int
}

func (p *probedSearch) Available(context.Context) bool {
	p.probed++
	return p.available
}

func TestCompositeSearch(t *testing.T) {
	primary := staticSearch{hits: []ScoredCustomer{
		hit("Ahmad Sdn Bhd", 100, 0.6),
		hit("Kebun Ali", 80, 0.5),
	}}

	t.Run("scores stay with the baseline", func(t *testing.T) {
		semantic := &probedSearch{available: true, staticSearch: staticSearch{hits: []ScoredCustomer{
			hit("ahmad sdn bhd", 100, 0.9),
			hit("Syarikat Lim", 70, 0.7),
			hit("Kebun Ali", 80, 0.1),
		}}}

		results, err := NewCompositeSearch(logger.NewNopLogger(), primary, semantic).TopK(context.Background(), "ahmad", 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// staticSearch cannot score Syarikat Lim, so it is not added
		if len(results) != 2 {
			t.Fatalf("expected 2 results, got %v", results)
		}
		if results[0].Customer.Name != "Ahmad Sdn Bhd" || results[0].Score != 0.6 {
			t.Errorf("expected Ahmad to keep 0.6, got %s %f", results[0].Customer.Name, results[0].Score)
		}
		if results[1].Customer.Name != "Kebun Ali" || results[1].Score != 0.5 {
			t.Errorf("expected Kebun Ali to keep 0.5, got %s %f", results[1].Customer.Name, results[1].Score)
		}
	})

	t.Run("semantic support breaks ties", func(t *testing.T) {
		tied := staticSearch{hits: []ScoredCustomer{
			hit("Kebun Ali", 80, 0.5),
			hit("Kebun Abu", 90, 0.5),
		}}
		semantic := staticSearch{hits: []ScoredCustomer{hit("Kebun Abu", 90, 0.8)}}

		results, _ := NewCompositeSearch(logger.NewNopLogger(), tied, semantic).TopK(context.Background(), "kebun", 10)
		if len(results) != 2 || results[0].Customer.Name != "Kebun Abu" {
			t.Errorf("expected semantic support to lift Kebun Abu, got %v", results)
		}
	})

	t.Run("extra customers are scored by name", func(t *testing.T) {
		fuzzy := NewFuzzySearch(logger.NewNopLogger())
		customers := []models.Customer{
			models.NewCustomer("Ahmad Sdn Bhd", decimal.NewFromInt(100)),
			models.NewCustomer("Zulkifli Transport", decimal.NewFromInt(90)),
		}
		if err := fuzzy.Rebuild(context.Background(), customers); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		semantic := staticSearch{hits: []ScoredCustomer{{Customer: customers[1], Score: 0.99}}}

		results, _ := NewCompositeSearch(logger.NewNopLogger(), fuzzy, semantic).TopK(context.Background(), "ahmad", 1)
		if len(results) != 1 || results[0].Customer.Name != "Ahmad Sdn Bhd" {
			t.Fatalf("expected the name match first, got %v", results)
		}

		all, _ := NewCompositeSearch(logger.NewNopLogger(), fuzzy, semantic).TopK(context.Background(), "ahmad", 10)
		for _, r := range all {
			if r.Customer.Name == "Zulkifli Transport" && r.Score != fuzzy.Score("ahmad", r.Customer) {
				t.Errorf("expected name ratio for Zulkifli, got %f", r.Score)
			}
			if r.Score > 0.857 && r.Customer.Name != "Ahmad Sdn Bhd" {
				t.Errorf("semantic hit %s passed the name-only gate with %f", r.Customer.Name, r.Score)
			}
		}
	})

	t.Run("skips unavailable strategy", func(t *testing.T) {
		semantic := &probedSearch{available: false, staticSearch: staticSearch{hits: []ScoredCustomer{hit("Other", 1, 1)}}}

		results, _ := NewCompositeSearch(logger.NewNopLogger(), primary, semantic).TopK(context.Background(), "ahmad", 10)
		if semantic.probed != 1 {
			t.Errorf("expected capability probe, got %d", semantic.probed)
		}
		if len(results) != 2 {
			t.Errorf("expected primary results only, got %d", len(results))
		}
	})

	t.Run("survives failing strategy", func(t *testing.T) {
		failing := staticSearch{err: errors.New("connection refused")}

		results, err := NewCompositeSearch(logger.NewNopLogger(), primary, failing).TopK(context.Background(), "ahmad", 1)
		if err != nil {
			t.Fatalf("optional failure must not surface: %v", err)
		}
		if len(results) != 1 || results[0].Customer.Name != "Ahmad Sdn Bhd" {
			t.Errorf("expected truncated primary results, got %v", results)
		}
	})

	t.Run("primary failure surfaces", func(t *testing.T) {
		_, err := NewCompositeSearch(logger.NewNopLogger(), staticSearch{err: errors.New("boom")}).TopK(context.Background(), "ahmad", 3)
		if err == nil {
			t.Error("expected primary error")
		}
	})
}
