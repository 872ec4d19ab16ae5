package seed

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orti/internal/core"
	"orti/internal/store/memory"
)

const sampleChart = `
company:
  code: acme
  name: Acme Srl
categories:
  - name: Hotel
    kind: revenue
    subcategories: [Rooms, Spa]
  - name: Totale
    kind: Revenue
    calculated: true
  - name: Payroll
    kind: expense
  - name: Bank
    kind: balance
`

func TestParseChart(t *testing.T) {
	chart, err := ParseChart(strings.NewReader(sampleChart))
	require.NoError(t, err)
	assert.Equal(t, "acme", chart.Company.Code)
	require.Len(t, chart.Categories, 4)
	assert.Equal(t, []string{"Rooms", "Spa"}, chart.Categories[0].Subcategories)
	assert.True(t, chart.Categories[1].Calculated)
}

func TestParseChart_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"empty", "", "empty document"},
		{"unknown key", "company: {code: a}\ncolour: red\n", "colour"},
		{"missing company", "categories: []\n", "company code is required"},
		{"bad kind", "company: {code: a}\ncategories:\n  - {name: X, kind: asset}\n", "invalid category kind"},
		{"duplicate category", "company: {code: a}\ncategories:\n  - {name: X, kind: revenue}\n  - {name: x, kind: expense}\n", "duplicate"},
		{"duplicate subcategory", "company: {code: a}\ncategories:\n  - {name: X, kind: revenue, subcategories: [A, a]}\n", "duplicate"},
		{"blank name", "company: {code: a}\ncategories:\n  - {name: ' ', kind: revenue}\n", "empty name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseChart(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestApply_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	chart, err := ParseChart(strings.NewReader(sampleChart))
	require.NoError(t, err)

	company, res, err := Apply(ctx, st, chart, nil)
	require.NoError(t, err)
	assert.True(t, res.CompanyCreated)
	assert.Equal(t, 4, res.CategoriesCreated)
	assert.Equal(t, 2, res.SubcategoriesCreated)

	cats, err := st.ListCategories(ctx, company.ID)
	require.NoError(t, err)
	require.Len(t, cats, 4)
	for _, c := range cats {
		_, ok := c.Main()
		assert.True(t, ok, "%s has a Main subcategory", c.Name)
		if c.Name == "Totale" {
			assert.True(t, c.IsCalculated)
		}
	}

	again, res, err := Apply(ctx, st, chart, nil)
	require.NoError(t, err)
	assert.Equal(t, company.ID, again.ID)
	assert.Equal(t, Result{}, res)

	chart.Categories[0].Subcategories = append(chart.Categories[0].Subcategories, "Bar")
	_, res, err = Apply(ctx, st, chart, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SubcategoriesCreated)

	var hotel core.Category
	for _, c := range cats {
		if c.Name == "Hotel" {
			hotel, err = st.GetCategory(ctx, c.ID)
			require.NoError(t, err)
		}
	}
	names := make([]string, 0, len(hotel.Subcategories))
	for _, s := range hotel.Subcategories {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{core.MainSubcategoryName, "Rooms", "Spa", "Bar"}, names)
}

func TestLoadChart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chart.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleChart), 0o644))

	chart, err := LoadChart(path)
	require.NoError(t, err)
	assert.Len(t, chart.Categories, 4)

	_, err = LoadChart(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
