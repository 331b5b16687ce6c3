package factory

import "github.com/warp/pension-engine/pension"

// =============================================================================
// SEED DEFINITIONS - Ready-to-use plan documents
// =============================================================================

// DefaultPlansYAML returns a seed document with a national flat-rate plan
// (2024 and 2025 tables) and an Ontario tiered plan. Used by the server
// when no plan file is supplied, and by demos/tests.
func DefaultPlansYAML() string {
	return `plans:
  - type: flat_rate
    name: National Pension Plan
    rates:
      - tax_year: 2024
        employee_rate: "0.0595"
        employer_rate: "0.0595"
        yearly_max_pensionable_earnings: "68500"
        basic_exempt_amount: "3500"
        yearly_max_contribution: "3867.50"
        effective_date: 2024-01-01
        expiry_date: 2024-12-31
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
      - tax_year: 2024
        yearly_max_contribution: "30000"
        effective_date: 2024-01-01
        expiry_date: 2024-12-31
        tiers:
          - threshold: "68500"
            employee_rate: "0.106"
            employer_rate: "0.146"
          - employee_rate: "0.138"
            employer_rate: "0.176"
      - tax_year: 2025
        yearly_max_contribution: "31000"
        effective_date: 2025-01-01
        tiers:
          - threshold: "71300"
            employee_rate: "0.106"
            employer_rate: "0.146"
          - employee_rate: "0.138"
            employer_rate: "0.176"
`
}

// DefaultPlans builds processors from the seed document.
func DefaultPlans() ([]pension.PlanProcessor, error) {
	return ParsePlans([]byte(DefaultPlansYAML()))
}
