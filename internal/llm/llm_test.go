package llm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TanWaiKen/invoice-ai-excel/internal/matcher"
	"github.com/TanWaiKen/invoice-ai-excel/internal/models"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/errors"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/logger"
)

type fakeModel struct {
	answer string
	err    error
	last   Request
}

func (f *fakeModel) Generate(_ context.Context, req Request) (string, error) {
	f.last = req
	return f.answer, f.err
}

func dec(s string) decimal.NullDecimal {
	return models.NullAmount(decimal.RequireFromString(s))
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"fenced block", "Here you go:\n```json\n[{\"a\": 1}]\n```\nDone.", `[{"a": 1}]`},
		{"bare array with chatter", `The records are [{"a": 1}, {"a": 2}] as requested`, `[{"a": 1}, {"a": 2}]`},
		{"bare object", `Result: {"a": 1}`, `{"a": 1}`},
		{"nothing", "I cannot read this image", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractJSON(tt.input))
		})
	}
}

func TestParseRecords(t *testing.T) {
	schema, err := CompileRecordSchema()
	require.NoError(t, err)

	answer := "```json\n" + `[
		{"date": "14/12/2023", "invoice_no": 5354, "customer_name": "En Sebin", "service_type": "Memetik Tandan Sawit", "weight_kg": "4,270", "price_per_ton": "RM 103.00", "total": 439.81},
		{"date": "14/12/2023", "invoice_no": "5351", "customer_name": "En MDAJI", "service_type": "Lain-lain", "is_count": true, "weight_kg": 10},
		"stray text",
		{"customer_name": "Bad", "weight_kg": -5},
		{"customer_name": "Worse", "price_per_ton": "abc"}
	]` + "\n```"

	records, skipped, err := ParseRecords(answer, "inv-001.jpg", schema)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 3, skipped.Count())

	first := records[0]
	assert.Equal(t, "5354", first.InvoiceNo)
	assert.False(t, first.IsCount, "derived from service type")
	assert.True(t, first.WeightKG.Decimal.Equal(decimal.NewFromInt(4270)))
	assert.True(t, first.PricePerTon.Decimal.Equal(decimal.NewFromInt(103)))
	assert.True(t, first.Total.Decimal.Equal(decimal.RequireFromString("439.81")))

	lain := records[1]
	assert.True(t, lain.IsCount)
	assert.True(t, lain.WeightKG.Decimal.Equal(decimal.NewFromInt(1)))
	assert.True(t, lain.PricePerTon.Decimal.Equal(decimal.NewFromInt(10)))
	assert.True(t, lain.Total.Decimal.Equal(decimal.NewFromInt(10)))
}

func TestParseRecords_BareObjectIsWrapped(t *testing.T) {
	records, _, err := ParseRecords(`{"customer_name": "Ahmad", "price_per_ton": 100, "weight_kg": 500, "is_count": false}`, "x.png", nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Ahmad", records[0].CustomerName)
	assert.False(t, records[0].Total.Valid)
}

func TestParseRecords_InvalidAnswer(t *testing.T) {
	for _, answer := range []string{"no json here", "[1, 2", `"just a string"`} {
		_, _, err := ParseRecords(answer, "x.png", nil)
		assert.True(t, errors.HasCode(err, errors.CodeInvalidResponse), "answer %q: %v", answer, err)
	}
}

func TestCoerce(t *testing.T) {
	out, err := Coerce(map[string]interface{}{
		"is_count":      "false",
		"total":         "",
		"customer_name": "  Ali  ",
		"date":          nil,
	})
	require.NoError(t, err)
	assert.Equal(t, false, out["is_count"])
	assert.Nil(t, out["total"])
	assert.Equal(t, "Ali", out["customer_name"])
	_, hasDate := out["date"]
	assert.False(t, hasDate)

	_, err = Coerce(map[string]interface{}{"is_count": "maybe"})
	assert.Error(t, err)
}

func TestFixLainLain(t *testing.T) {
	tests := []struct {
		name   string
		in     models.ExtractionRecord
		weight string
		price  string
		total  string
	}{
		{
			name:   "price read as weight",
			in:     models.ExtractionRecord{ServiceType: "Lain-lain", WeightKG: dec("10")},
			weight: "1", price: "10", total: "10",
		},
		{
			name:   "price present keeps price",
			in:     models.ExtractionRecord{ServiceType: "LAIN LAIN", WeightKG: dec("3"), PricePerTon: dec("25"), Total: dec("75")},
			weight: "1", price: "25", total: "25",
		},
		{
			name:   "already correct",
			in:     models.ExtractionRecord{ServiceType: "Lain-lain", WeightKG: dec("1"), PricePerTon: dec("15"), Total: dec("15")},
			weight: "1", price: "15", total: "15",
		},
		{
			name:   "other service untouched",
			in:     models.ExtractionRecord{ServiceType: "Meracun", WeightKG: dec("3"), PricePerTon: dec("25"), Total: dec("75")},
			weight: "3", price: "25", total: "75",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FixLainLain(tt.in)
			assert.Equal(t, tt.weight, got.WeightKG.Decimal.String())
			assert.Equal(t, tt.price, got.PricePerTon.Decimal.String())
			assert.Equal(t, tt.total, got.Total.Decimal.String())
		})
	}
}

func TestExtractor(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "invoice.JPG")
	require.NoError(t, os.WriteFile(image, []byte("fake-jpeg"), 0644))

	t.Run("extracts records", func(t *testing.T) {
		model := &fakeModel{answer: `[{"customer_name": "ahmad", "price_per_ton": 100, "weight_kg": 500, "is_count": false}]`}
		ex, err := NewExtractor(model, logger.NewNopLogger())
		require.NoError(t, err)

		records, err := ex.ExtractRecords(context.Background(), image)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "image/jpeg", model.last.MIMEType)
		assert.Equal(t, []byte("fake-jpeg"), model.last.Image)
		assert.True(t, model.last.JSON)
	})

	t.Run("empty answer", func(t *testing.T) {
		ex, _ := NewExtractor(&fakeModel{answer: "[]"}, logger.NewNopLogger())
		_, err := ex.ExtractRecords(context.Background(), image)
		assert.True(t, errors.HasCode(err, errors.CodeExtractionEmpty))
	})

	t.Run("model failure", func(t *testing.T) {
		ex, _ := NewExtractor(&fakeModel{err: fmt.Errorf("quota")}, logger.NewNopLogger())
		_, err := ex.ExtractRecords(context.Background(), image)
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.CodeInvalidResponse))
	})

	t.Run("missing image", func(t *testing.T) {
		ex, _ := NewExtractor(&fakeModel{}, logger.NewNopLogger())
		_, err := ex.ExtractRecords(context.Background(), filepath.Join(dir, "nope.png"))
		assert.True(t, errors.HasCode(err, errors.CodeInputNotFound))
	})
}

func candidates() []models.MatchCandidate {
	return []models.MatchCandidate{
		{CustomerName: "Ahmad", SimilarityScore: 0.9, CustomerPrice: decimal.NewFromInt(100), ExactPriceMatch: true, CombinedConfidence: 0.855},
		{CustomerName: "Ahmad Bin Ali", SimilarityScore: 0.8, CustomerPrice: decimal.NewFromInt(90), CombinedConfidence: 0.56},
	}
}

func TestParseChoice(t *testing.T) {
	tests := []struct {
		answer   string
		expected string
		wantErr  bool
	}{
		{"NONE", matcher.NoneChoice, false},
		{" none. ", matcher.NoneChoice, false},
		{"Ahmad", "Ahmad", false},
		{"The best match is **Ahmad Bin Ali**", "Ahmad Bin Ali", false},
		{"I am not sure", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			got, err := ParseChoice(tt.answer, candidates())
			if tt.wantErr {
				assert.True(t, errors.HasCode(err, errors.CodeInvalidResponse))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestArbiter_Prompt(t *testing.T) {
	model := &fakeModel{answer: "Ahmad"}
	arb := NewArbiter(model, logger.NewNopLogger())

	got, err := arb.Choose(context.Background(), "ahmad", dec("100"), candidates())
	require.NoError(t, err)
	assert.Equal(t, "Ahmad", got)

	prompt := model.last.Prompt
	assert.Contains(t, prompt, `Query: "ahmad" with extracted price RM100`)
	assert.Contains(t, prompt, "1. Ahmad | Name similarity: 0.90 | EXACT PRICE: RM100")
	assert.Contains(t, prompt, "2. Ahmad Bin Ali | Name similarity: 0.80 | PRICE MISMATCH: RM90")
	assert.True(t, strings.HasSuffix(prompt, "or NONE."))
	assert.Empty(t, model.last.Image)
}

func TestConfigValidate(t *testing.T) {
	c := DefaultConfig()
	assert.Error(t, c.Validate(), "api key is required")

	c.APIKey = "key"
	assert.NoError(t, c.Validate())

	c.RequestsPerMinute = 0
	assert.Error(t, c.Validate())
}
