package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseFormulaType(t *testing.T) {
	tests := []struct {
		input    string
		expected FormulaType
	}{
		{"", FormulaWeightPrice},
		{"WEIGHT_PRICE", FormulaWeightPrice},
		{"Weight x Price per ton/1000kg", FormulaWeightPrice},
		{"lain lain", FormulaLainLain},
		{"Lain Lain (Bayaran Gredir)", FormulaBayaranGredir},
		{"=Upah", FormulaUpah},
		{"memotong_pelepah_t", FormulaMemotongPelepahT},
		{"Tebas rumput", FormulaType("Tebas rumput")},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseFormulaType(tt.input); got != tt.expected {
				t.Errorf("ParseFormulaType(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFormulaType_Display(t *testing.T) {
	tests := []struct {
		formula  FormulaType
		expected string
	}{
		{FormulaWeightPrice, "Weight x Price per ton/1000kg"},
		{"", "Weight x Price per ton/1000kg"},
		{FormulaMemotongPelepahT, "Memotong pelepah sawit"},
		{FormulaPayToGreder, "Pay to Greder"},
		{FormulaType("=custom"), "custom"},
	}

	for _, tt := range tests {
		t.Run(string(tt.formula), func(t *testing.T) {
			if got := tt.formula.Display(); got != tt.expected {
				t.Errorf("Display() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestCustomer_DeriveWorkerAmount(t *testing.T) {
	c := NewCustomer("  Ahmad Sdn Bhd ", decimal.NewFromFloat(103.5)).
		WithSplit(NullAmount(decimal.NewFromFloat(60.333)), decimal.NullDecimal{})

	if c.Name != "Ahmad Sdn Bhd" {
		t.Errorf("expected trimmed name, got %q", c.Name)
	}
	if !c.WorkerAmount.Valid {
		t.Fatal("expected worker amount to be derived")
	}
	if !c.WorkerAmount.Decimal.Equal(decimal.RequireFromString("43.17")) {
		t.Errorf("expected worker amount 43.17, got %s", c.WorkerAmount.Decimal)
	}
	if !c.SplitConsistent(decimal.NewFromFloat(0.01)) {
		t.Error("expected derived split to be consistent")
	}
}

func TestCustomer_KeepsExplicitWorkerAmount(t *testing.T) {
	c := NewCustomer("Kebun Ali", decimal.NewFromInt(100)).
		WithSplit(NullAmount(decimal.NewFromInt(30)), NullAmount(decimal.NewFromInt(50)))

	if !c.WorkerAmount.Decimal.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected explicit worker amount to be kept, got %s", c.WorkerAmount.Decimal)
	}
	if c.SplitConsistent(decimal.NewFromFloat(0.01)) {
		t.Error("expected 30 + 50 != 100 to be inconsistent")
	}
}

func TestCustomer_Validate(t *testing.T) {
	tests := []struct {
		name      string
		customer  Customer
		wantError bool
	}{
		{"valid", NewCustomer("Ahmad", decimal.NewFromInt(100)), false},
		{"blank name", NewCustomer("  ", decimal.NewFromInt(100)), true},
		{"zero price", NewCustomer("Ahmad", decimal.Zero), true},
		{"negative price", NewCustomer("Ahmad", decimal.NewFromInt(-5)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.customer.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input     string
		expected  string
		wantError bool
	}{
		{"103", "103", false},
		{"RM 1,030.50", "1030.5", false},
		{"rm10", "10", false},
		{" 4 270 ", "4270", false},
		{"", "", true},
		{"abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if (err != nil) != tt.wantError {
				t.Fatalf("ParseAmount(%q) error = %v, wantError %v", tt.input, err, tt.wantError)
			}
			if !tt.wantError && !got.Equal(decimal.RequireFromString(tt.expected)) {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.input, got, tt.expected)
			}
		})
	}
}

func TestPricesMatch(t *testing.T) {
	tol := decimal.NewFromFloat(0.01)
	tests := []struct {
		name      string
		extracted decimal.NullDecimal
		catalog   decimal.Decimal
		expected  bool
	}{
		{"equal", NullAmount(decimal.NewFromInt(100)), decimal.NewFromInt(100), true},
		{"within tolerance", NullAmount(decimal.NewFromFloat(100.005)), decimal.NewFromInt(100), true},
		{"at tolerance", NullAmount(decimal.NewFromFloat(100.01)), decimal.NewFromInt(100), false},
		{"absent", decimal.NullDecimal{}, decimal.NewFromInt(100), false},
		{"zero extracted", NullAmount(decimal.Zero), decimal.Zero, false},
		{"zero catalog", NullAmount(decimal.NewFromInt(5)), decimal.Zero, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PricesMatch(tt.extracted, tt.catalog, tol); got != tt.expected {
				t.Errorf("PricesMatch() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsCountService(t *testing.T) {
	tests := []struct {
		service string
		isCount bool
	}{
		{"Memetik Tandan Sawit", false},
		{"Pengangkutan Lori", false},
		{"Sewa lori", false},
		{"Meracun", true},
		{"Membaja", true},
		{"Lain-lain", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.service, func(t *testing.T) {
			if got := IsCountService(tt.service); got != tt.isCount {
				t.Errorf("IsCountService(%q) = %v, want %v", tt.service, got, tt.isCount)
			}
		})
	}
}

func TestIsLainLain(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"Lain-lain", true},
		{"LAIN LAIN (Bayaran Gredir)", true},
		{"En Sebin lain2", true},
		{"Blaine Trading", false},
		{"Ahmad", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := IsLainLain(tt.input); got != tt.expected {
				t.Errorf("IsLainLain(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestMatchedDecision(t *testing.T) {
	c := MatchCandidate{
		CustomerName:       "Ahmad Sdn Bhd",
		SimilarityScore:    1,
		CustomerPrice:      decimal.NewFromInt(100),
		ExtractedPrice:     NullAmount(decimal.NewFromInt(100)),
		ExactPriceMatch:    true,
		CombinedConfidence: 0.95,
	}

	d := MatchedDecision(c)
	if !d.IsMatch() || d.MatchedCustomerName != "Ahmad Sdn Bhd" || !d.PriceMatch {
		t.Errorf("unexpected decision %+v", d)
	}
	if !d.CustomerPrice.Valid || !d.CustomerPrice.Decimal.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected customer price 100, got %+v", d.CustomerPrice)
	}

	if NewCustomerDecision(decimal.NullDecimal{}).ConfidenceScore != 0 {
		t.Error("new customer decisions carry zero confidence")
	}
	if !NoNameDecision().Status.IsValid() || MatchStatus("other").IsValid() {
		t.Error("status validity mismatch")
	}
}
