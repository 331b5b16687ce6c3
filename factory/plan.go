/*
Package factory provides YAML/JSON to Go plan-definition conversion.

PURPOSE:
  Converts plan-definition documents into ready-to-initialize plan
  processors with their rate tables. This enables rate configuration
  without code changes - benefits administrators publish a new tax year's
  table in YAML, and the factory builds the immutable registry entries.

WHY DOCUMENTS?
  - Non-developers can publish rate tables
  - Version control for regulatory changes
  - Historical tables stay in the file forever (append-only), so any
    prior period can be recomputed exactly

DOCUMENT SCHEMA (YAML; JSON is accepted with the same field names):
  plans:
    - type: flat_rate
      name: National Pension Plan
      rates:
        - tax_year: 2025
          employee_rate: "0.0595"
          employer_rate: "0.0595"
          yearly_max_pensionable_earnings: "71300"
          basic_exempt_amount: "3500"
          yearly_max_contribution: "4034.10"
          effective_date: 2025-01-01
    - type: tiered
      name: Provincial Teachers Plan
      jurisdiction: ON
      rates:
        - tax_year: 2025
          yearly_max_contribution: "30000"
          effective_date: 2025-01-01
          tiers:
            - threshold: "68500"
              employee_rate: "0.106"
              employer_rate: "0.146"
            - employee_rate: "0.138"   # no threshold: unbounded final tier
              employer_rate: "0.176"

  Monetary values and rates are strings so they parse into exact decimals,
  never through binary floating point.

USAGE:
  processors, err := factory.ParsePlans(yamlBytes)
  for _, p := range processors {
      p.Initialize(cfg)
  }

SEE ALSO:
  - pension/rates.go: Table validation on registry load
  - cmd/server: Loads a definition file at startup
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/pension-engine/flatrate"
	"github.com/warp/pension-engine/pension"
	"github.com/warp/pension-engine/tiered"
)

// =============================================================================
// DOCUMENT SCHEMA TYPES
// =============================================================================

// Document is the top-level plan-definition file.
type Document struct {
	Plans []PlanDefinition `json:"plans" yaml:"plans"`
}

// PlanDefinition declares one plan and its published rate tables.
type PlanDefinition struct {
	Type         string           `json:"type" yaml:"type"` // flat_rate | tiered
	Name         string           `json:"name" yaml:"name"`
	Jurisdiction string           `json:"jurisdiction,omitempty" yaml:"jurisdiction,omitempty"` // tiered only
	Rates        []RateDefinition `json:"rates" yaml:"rates"`
}

// RateDefinition is one tax year's table. Monetary fields are decimal
// strings; zero-value fields are omitted.
type RateDefinition struct {
	TaxYear                      int              `json:"tax_year" yaml:"tax_year"`
	EmployeeRate                 string           `json:"employee_rate,omitempty" yaml:"employee_rate,omitempty"`
	EmployerRate                 string           `json:"employer_rate,omitempty" yaml:"employer_rate,omitempty"`
	YearlyMaxPensionableEarnings string           `json:"yearly_max_pensionable_earnings,omitempty" yaml:"yearly_max_pensionable_earnings,omitempty"`
	BasicExemptAmount            string           `json:"basic_exempt_amount,omitempty" yaml:"basic_exempt_amount,omitempty"`
	YearlyMaxContribution        string           `json:"yearly_max_contribution,omitempty" yaml:"yearly_max_contribution,omitempty"`
	EffectiveDate                string           `json:"effective_date" yaml:"effective_date"`
	ExpiryDate                   string           `json:"expiry_date,omitempty" yaml:"expiry_date,omitempty"`
	Tiers                        []TierDefinition `json:"tiers,omitempty" yaml:"tiers,omitempty"`
}

// TierDefinition is one progressive bracket. An empty threshold marks the
// unbounded final tier.
type TierDefinition struct {
	Threshold    string `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	EmployeeRate string `json:"employee_rate" yaml:"employee_rate"`
	EmployerRate string `json:"employer_rate" yaml:"employer_rate"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParsePlans parses a YAML document (JSON is valid YAML) and builds one
// processor per plan definition. Processors still need Initialize.
func ParsePlans(data []byte) ([]pension.PlanProcessor, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse plan document: %w", err)
	}
	return buildAll(doc)
}

// ParsePlansJSON parses an explicit JSON document.
func ParsePlansJSON(data []byte) ([]pension.PlanProcessor, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse plan document: %w", err)
	}
	return buildAll(doc)
}

// LoadFile reads and parses a plan-definition file.
func LoadFile(path string) ([]pension.PlanProcessor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	if strings.HasSuffix(path, ".json") {
		return ParsePlansJSON(data)
	}
	return ParsePlans(data)
}

func buildAll(doc Document) ([]pension.PlanProcessor, error) {
	if len(doc.Plans) == 0 {
		return nil, fmt.Errorf("plan document declares no plans")
	}
	processors := make([]pension.PlanProcessor, 0, len(doc.Plans))
	for i, def := range doc.Plans {
		p, err := Build(def)
		if err != nil {
			return nil, fmt.Errorf("plan %d (%s): %w", i, def.Type, err)
		}
		processors = append(processors, p)
	}
	return processors, nil
}

// Build constructs a single processor from its definition.
func Build(def PlanDefinition) (pension.PlanProcessor, error) {
	switch pension.PlanType(def.Type) {
	case pension.PlanFlatRate:
		tables, err := buildTables(pension.PlanFlatRate, def.Rates)
		if err != nil {
			return nil, err
		}
		return flatrate.New(tables...), nil

	case pension.PlanTiered:
		if def.Jurisdiction == "" {
			return nil, fmt.Errorf("tiered plan requires a jurisdiction")
		}
		tables, err := buildTables(pension.PlanTiered, def.Rates)
		if err != nil {
			return nil, err
		}
		return tiered.New(def.Jurisdiction, tables...), nil

	default:
		return nil, fmt.Errorf("unknown plan type %q", def.Type)
	}
}

func buildTables(plan pension.PlanType, defs []RateDefinition) ([]*pension.ContributionRates, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("plan declares no rate tables")
	}

	tables := make([]*pension.ContributionRates, 0, len(defs))
	for _, rd := range defs {
		table, err := buildTable(plan, rd)
		if err != nil {
			return nil, fmt.Errorf("tax year %d: %w", rd.TaxYear, err)
		}
		tables = append(tables, table)
	}
	return tables, nil
}

func buildTable(plan pension.PlanType, rd RateDefinition) (*pension.ContributionRates, error) {
	table := &pension.ContributionRates{
		PlanType: plan,
		TaxYear:  rd.TaxYear,
	}

	var err error
	if table.EmployeeRate, err = parseDecimal(rd.EmployeeRate, "employee_rate"); err != nil {
		return nil, err
	}
	if table.EmployerRate, err = parseDecimal(rd.EmployerRate, "employer_rate"); err != nil {
		return nil, err
	}
	if table.YearlyMaxPensionableEarnings, err = parseDecimal(rd.YearlyMaxPensionableEarnings, "yearly_max_pensionable_earnings"); err != nil {
		return nil, err
	}
	if table.BasicExemptAmount, err = parseDecimal(rd.BasicExemptAmount, "basic_exempt_amount"); err != nil {
		return nil, err
	}
	if table.YearlyMaxContribution, err = parseDecimal(rd.YearlyMaxContribution, "yearly_max_contribution"); err != nil {
		return nil, err
	}

	if table.EffectiveDate, err = parseDate(rd.EffectiveDate, "effective_date"); err != nil {
		return nil, err
	}
	if rd.ExpiryDate != "" {
		expiry, err := parseDate(rd.ExpiryDate, "expiry_date")
		if err != nil {
			return nil, err
		}
		table.ExpiryDate = &expiry
	}

	for i, td := range rd.Tiers {
		tier := pension.EarningsTier{}
		if tier.Threshold, err = parseDecimal(td.Threshold, fmt.Sprintf("tiers[%d].threshold", i)); err != nil {
			return nil, err
		}
		if tier.EmployeeRate, err = parseDecimal(td.EmployeeRate, fmt.Sprintf("tiers[%d].employee_rate", i)); err != nil {
			return nil, err
		}
		if tier.EmployerRate, err = parseDecimal(td.EmployerRate, fmt.Sprintf("tiers[%d].employer_rate", i)); err != nil {
			return nil, err
		}
		table.Tiers = append(table.Tiers, tier)
	}

	return table, nil
}

func parseDecimal(s, field string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid decimal %q", field, s)
	}
	return d, nil
}

func parseDate(s, field string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("%s: required", field)
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: invalid date %q (use YYYY-MM-DD)", field, s)
	}
	return t, nil
}
