// Package seed loads a chart of accounts from YAML and applies it to a store.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"orti/internal/core"
	"orti/internal/log"
	"orti/internal/store"
)

// Chart is the seed file layout.
type Chart struct {
	Company    ChartCompany    `yaml:"company"`
	Categories []ChartCategory `yaml:"categories"`
}

type ChartCompany struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

type ChartCategory struct {
	Name          string   `yaml:"name"`
	Kind          string   `yaml:"kind"`
	Calculated    bool     `yaml:"calculated,omitempty"`
	Subcategories []string `yaml:"subcategories,omitempty"`
}

// Result counts what Apply created.
type Result struct {
	CompanyCreated       bool
	CategoriesCreated    int
	SubcategoriesCreated int
}

// LoadChart reads and validates a chart file.
func LoadChart(path string) (*Chart, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chart: %w", err)
	}
	return ParseChart(bytes.NewReader(data))
}

// ParseChart decodes a chart, rejecting unknown keys.
func ParseChart(r io.Reader) (*Chart, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var chart Chart
	if err := dec.Decode(&chart); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse chart: empty document")
		}
		return nil, fmt.Errorf("parse chart: %w", err)
	}
	if err := chart.Validate(); err != nil {
		return nil, err
	}
	return &chart, nil
}

// Validate checks kinds and names, and that names are unique where the
// store requires them to be.
func (c *Chart) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Company.Code) == "" {
		problems = append(problems, "company code is required")
	}

	seen := make(map[string]bool)
	for i, cat := range c.Categories {
		name, err := core.ValidateName(cat.Name)
		if err != nil {
			problems = append(problems, fmt.Sprintf("category #%d: %v", i+1, err))
			continue
		}
		if _, err := core.ParseKind(cat.Kind); err != nil {
			problems = append(problems, fmt.Sprintf("category %q: %v", name, err))
		}
		key := strings.ToLower(name)
		if seen[key] {
			problems = append(problems, fmt.Sprintf("category %q: %v", name, core.ErrDuplicateName))
		}
		seen[key] = true

		subs := make(map[string]bool)
		for _, sub := range cat.Subcategories {
			subName, err := core.ValidateName(sub)
			if err != nil {
				problems = append(problems, fmt.Sprintf("category %q subcategory: %v", name, err))
				continue
			}
			subKey := strings.ToLower(subName)
			if subs[subKey] {
				problems = append(problems, fmt.Sprintf("category %q subcategory %q: %v", name, subName, core.ErrDuplicateName))
			}
			subs[subKey] = true
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("chart validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// Apply creates whatever the chart names and the store lacks. Existing
// records are matched by name, case-insensitively, and left alone, so running
// it twice is harmless. Categories without a Main subcategory get one.
func Apply(ctx context.Context, st store.EntryStore, chart *Chart, logger *log.Logger) (core.Company, Result, error) {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentSeed)
	var res Result

	company, err := st.GetCompanyByCode(ctx, chart.Company.Code)
	if errors.Is(err, core.ErrNotFound) {
		company, err = st.CreateCompany(ctx, chart.Company.Code, chart.Company.Name)
		res.CompanyCreated = err == nil
	}
	if err != nil {
		return core.Company{}, res, fmt.Errorf("company %q: %w", chart.Company.Code, err)
	}

	existing, err := st.ListCategories(ctx, company.ID)
	if err != nil {
		return company, res, fmt.Errorf("list categories: %w", err)
	}
	byName := make(map[string]core.Category, len(existing))
	lastOrder := make(map[core.Kind]int)
	for _, c := range existing {
		byName[strings.ToLower(c.Name)] = c
		if c.SortOrder > lastOrder[c.Kind] {
			lastOrder[c.Kind] = c.SortOrder
		}
	}

	for _, def := range chart.Categories {
		kind, _ := core.ParseKind(def.Kind)
		name, _ := core.ValidateName(def.Name)

		cat, ok := byName[strings.ToLower(name)]
		if !ok {
			lastOrder[kind]++
			cat, err = st.CreateCategory(ctx, store.CategoryInput{
				CompanyID:    company.ID,
				Name:         name,
				Kind:         kind,
				SortOrder:    lastOrder[kind],
				IsCalculated: def.Calculated,
			})
			if err != nil {
				return company, res, fmt.Errorf("create category %q: %w", name, err)
			}
			res.CategoriesCreated++
			logger.InfoContext(ctx, "Category created", log.FieldCategoryID, cat.ID, "name", name, "kind", kind)
		}

		n, err := ensureSubcategories(ctx, st, cat, def.Subcategories)
		res.SubcategoriesCreated += n
		if err != nil {
			return company, res, err
		}
	}

	logger.InfoContext(ctx, "Chart applied",
		log.FieldCompany, company.Code,
		"company_created", res.CompanyCreated,
		"categories_created", res.CategoriesCreated,
		"subcategories_created", res.SubcategoriesCreated)
	return company, res, nil
}

func ensureSubcategories(ctx context.Context, st store.StructureWriter, cat core.Category, names []string) (int, error) {
	have := make(map[string]bool, len(cat.Subcategories))
	last := 0
	for _, sub := range cat.Subcategories {
		have[strings.ToLower(sub.Name)] = true
		if sub.SortOrder > last {
			last = sub.SortOrder
		}
	}

	created := 0
	if !have[strings.ToLower(core.MainSubcategoryName)] {
		if _, err := st.CreateSubcategory(ctx, cat.ID, core.MainSubcategoryName, 0); err != nil {
			return created, fmt.Errorf("create %s/%s: %w", cat.Name, core.MainSubcategoryName, err)
		}
		have[strings.ToLower(core.MainSubcategoryName)] = true
		created++
	}
	for _, raw := range names {
		name, _ := core.ValidateName(raw)
		if have[strings.ToLower(name)] {
			continue
		}
		last++
		if _, err := st.CreateSubcategory(ctx, cat.ID, name, last); err != nil {
			return created, fmt.Errorf("create %s/%s: %w", cat.Name, name, err)
		}
		have[strings.ToLower(name)] = true
		created++
	}
	return created, nil
}
