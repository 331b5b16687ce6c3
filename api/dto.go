/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY ENCODING:
  Monetary fields cross the wire as decimal strings ("140.76"), never as
  JSON numbers. Clients that parse them as float64 lose exactness; that
  is their choice, not the API's.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - pension/types.go: Domain model
*/
package api

import (
	"time"

	"github.com/warp/pension-engine/pension"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// MemberDTO represents a pension member in API responses.
type MemberDTO struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	DateOfBirth      string `json:"date_of_birth"`
	Jurisdiction     string `json:"jurisdiction,omitempty"`
	EmploymentStatus string `json:"employment_status,omitempty"`
	CreatedAt        string `json:"created_at,omitempty"`
}

// CreateMemberRequest is the request to create a member.
type CreateMemberRequest struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	DateOfBirth      string `json:"date_of_birth"`
	Jurisdiction     string `json:"jurisdiction,omitempty"`
	EmploymentStatus string `json:"employment_status,omitempty"`
}

// PlanDTO describes a registered plan and its capabilities.
type PlanDTO struct {
	PlanType     string          `json:"plan_type"`
	Years        []int           `json:"years,omitempty"`
	Capabilities CapabilitiesDTO `json:"capabilities"`
}

// CapabilitiesDTO mirrors pension.Capabilities for JSON.
type CapabilitiesDTO struct {
	SupportsElectronicRemittance bool `json:"supports_electronic_remittance"`
	SupportsServiceBuyback       bool `json:"supports_service_buyback"`
	SupportsEarlyRetirement      bool `json:"supports_early_retirement"`
	MinimumAge                   *int `json:"minimum_age,omitempty"`
	MaximumAge                   *int `json:"maximum_age,omitempty"`
}

// RatesDTO represents one plan's rate table for a tax year.
type RatesDTO struct {
	PlanType                     string    `json:"plan_type"`
	TaxYear                      int       `json:"tax_year"`
	EmployeeRate                 string    `json:"employee_rate,omitempty"`
	EmployerRate                 string    `json:"employer_rate,omitempty"`
	YearlyMaxPensionableEarnings string    `json:"yearly_max_pensionable_earnings,omitempty"`
	BasicExemptAmount            string    `json:"basic_exempt_amount,omitempty"`
	YearlyMaxContribution        string    `json:"yearly_max_contribution,omitempty"`
	Tiers                        []TierDTO `json:"tiers,omitempty"`
	EffectiveDate                string    `json:"effective_date"`
	ExpiryDate                   string    `json:"expiry_date,omitempty"`
}

// TierDTO is one progressive bracket. A missing threshold marks the
// final, unbounded tier.
type TierDTO struct {
	Threshold    string `json:"threshold,omitempty"`
	EmployeeRate string `json:"employee_rate"`
	EmployerRate string `json:"employer_rate"`
}

// CalculateRequest is the request for a single pay-period calculation.
type CalculateRequest struct {
	Member   CalculateMember   `json:"member"`
	Earnings CalculateEarnings `json:"earnings"`
	YTD      YTDDTO            `json:"ytd"`

	// Persist controls whether the result is appended to the
	// contribution ledger. Defaults to true.
	Persist *bool `json:"persist,omitempty"`
}

// CalculateMember carries the member fields a calculation needs. When ID
// matches a stored member, stored fields fill any blanks.
type CalculateMember struct {
	ID               string `json:"id"`
	Name             string `json:"name,omitempty"`
	DateOfBirth      string `json:"date_of_birth,omitempty"`
	Jurisdiction     string `json:"jurisdiction,omitempty"`
	EmploymentStatus string `json:"employment_status,omitempty"`
}

// CalculateEarnings carries one pay period's earnings.
type CalculateEarnings struct {
	GrossEarnings       string `json:"gross_earnings"`
	PensionableEarnings string `json:"pensionable_earnings,omitempty"`
	PeriodStart         string `json:"period_start"`
	PeriodEnd           string `json:"period_end"`
}

// YTDDTO carries year-to-date accumulators.
type YTDDTO struct {
	PensionableEarnings   string `json:"pensionable_earnings"`
	EmployeeContributions string `json:"employee_contributions"`
	EmployerContributions string `json:"employer_contributions"`
}

// CalculationDTO is the response for a calculation.
type CalculationDTO struct {
	PlanType string `json:"plan_type"`
	MemberID string `json:"member_id"`
	TaxYear  int    `json:"tax_year"`

	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`

	PensionableEarnings  string `json:"pensionable_earnings"`
	BasicExemption       string `json:"basic_exemption"`
	EmployeeContribution string `json:"employee_contribution"`
	EmployerContribution string `json:"employer_contribution"`
	TotalContribution    string `json:"total_contribution"`
	EffectiveRate        string `json:"effective_rate"`

	YTDAfter YTDDTO `json:"ytd_after"`

	CalculatedAt string `json:"calculated_at"`
}

// CreateRemittanceRequest aggregates the ledger over a period into a
// draft remittance.
type CreateRemittanceRequest struct {
	PlanType    string `json:"plan_type"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

// RemittanceDTO represents a remittance record.
type RemittanceDTO struct {
	ID       string `json:"id"`
	PlanType string `json:"plan_type"`

	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`

	TotalEmployeeContributions string   `json:"total_employee_contributions"`
	TotalEmployerContributions string   `json:"total_employer_contributions"`
	TotalContributions         string   `json:"total_contributions"`
	MemberIDs                  []string `json:"member_ids"`

	Status             string `json:"status"`
	ConfirmationNumber string `json:"confirmation_number,omitempty"`

	CreatedAt   string `json:"created_at"`
	SubmittedAt string `json:"submitted_at,omitempty"`
	ConfirmedAt string `json:"confirmed_at,omitempty"`
}

// StatementDTO represents an annual contribution statement.
type StatementDTO struct {
	MemberID string `json:"member_id"`
	PlanType string `json:"plan_type"`
	TaxYear  int    `json:"tax_year"`

	TotalPensionableEarnings   string `json:"total_pensionable_earnings"`
	TotalEmployeeContributions string `json:"total_employee_contributions"`
	TotalEmployerContributions string `json:"total_employer_contributions"`
	TotalContributions         string `json:"total_contributions"`

	ContributionMonths int    `json:"contribution_months"`
	CalculationCount   int    `json:"calculation_count"`
	GeneratedAt        string `json:"generated_at"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toCalculationDTO(c *pension.ContributionCalculation) CalculationDTO {
	return CalculationDTO{
		PlanType:             string(c.PlanType),
		MemberID:             string(c.MemberID),
		TaxYear:              c.TaxYear,
		PeriodStart:          c.PeriodStart.Format("2006-01-02"),
		PeriodEnd:            c.PeriodEnd.Format("2006-01-02"),
		PensionableEarnings:  c.PensionableEarnings.String(),
		BasicExemption:       c.BasicExemption.String(),
		EmployeeContribution: c.EmployeeContribution.String(),
		EmployerContribution: c.EmployerContribution.String(),
		TotalContribution:    c.TotalContribution.String(),
		EffectiveRate:        c.EffectiveRate.String(),
		YTDAfter: YTDDTO{
			PensionableEarnings:   c.YTDAfter.PensionableEarnings.String(),
			EmployeeContributions: c.YTDAfter.EmployeeContributions.String(),
			EmployerContributions: c.YTDAfter.EmployerContributions.String(),
		},
		CalculatedAt: c.CalculatedAt.UTC().Format(time.RFC3339),
	}
}

func toRemittanceDTO(rem *pension.ContributionRemittance) RemittanceDTO {
	dto := RemittanceDTO{
		ID:                         string(rem.ID),
		PlanType:                   string(rem.PlanType),
		PeriodStart:                rem.PeriodStart.Format("2006-01-02"),
		PeriodEnd:                  rem.PeriodEnd.Format("2006-01-02"),
		TotalEmployeeContributions: rem.TotalEmployeeContributions.String(),
		TotalEmployerContributions: rem.TotalEmployerContributions.String(),
		TotalContributions:         rem.TotalContributions.String(),
		Status:                     string(rem.Status),
		ConfirmationNumber:         rem.ConfirmationNumber,
		CreatedAt:                  rem.CreatedAt.UTC().Format(time.RFC3339),
	}
	dto.MemberIDs = make([]string, len(rem.MemberIDs))
	for i, id := range rem.MemberIDs {
		dto.MemberIDs[i] = string(id)
	}
	if rem.SubmittedAt != nil {
		dto.SubmittedAt = rem.SubmittedAt.UTC().Format(time.RFC3339)
	}
	if rem.ConfirmedAt != nil {
		dto.ConfirmedAt = rem.ConfirmedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func toStatementDTO(st *pension.AnnualPensionStatement) StatementDTO {
	return StatementDTO{
		MemberID:                   string(st.MemberID),
		PlanType:                   string(st.PlanType),
		TaxYear:                    st.TaxYear,
		TotalPensionableEarnings:   st.TotalPensionableEarnings.String(),
		TotalEmployeeContributions: st.TotalEmployeeContributions.String(),
		TotalEmployerContributions: st.TotalEmployerContributions.String(),
		TotalContributions:         st.TotalContributions.String(),
		ContributionMonths:         st.ContributionMonths,
		CalculationCount:           st.CalculationCount,
		GeneratedAt:                st.GeneratedAt.UTC().Format(time.RFC3339),
	}
}

func toRatesDTO(r *pension.ContributionRates) RatesDTO {
	dto := RatesDTO{
		PlanType:      string(r.PlanType),
		TaxYear:       r.TaxYear,
		EffectiveDate: r.EffectiveDate.Format("2006-01-02"),
	}
	if r.ExpiryDate != nil {
		dto.ExpiryDate = r.ExpiryDate.Format("2006-01-02")
	}
	if r.Tiered() {
		dto.Tiers = make([]TierDTO, len(r.Tiers))
		for i, t := range r.Tiers {
			td := TierDTO{
				EmployeeRate: t.EmployeeRate.String(),
				EmployerRate: t.EmployerRate.String(),
			}
			if !t.Unbounded() {
				td.Threshold = t.Threshold.String()
			}
			dto.Tiers[i] = td
		}
	} else {
		dto.EmployeeRate = r.EmployeeRate.String()
		dto.EmployerRate = r.EmployerRate.String()
	}
	if !r.YearlyMaxPensionableEarnings.IsZero() {
		dto.YearlyMaxPensionableEarnings = r.YearlyMaxPensionableEarnings.String()
	}
	if !r.BasicExemptAmount.IsZero() {
		dto.BasicExemptAmount = r.BasicExemptAmount.String()
	}
	if !r.YearlyMaxContribution.IsZero() {
		dto.YearlyMaxContribution = r.YearlyMaxContribution.String()
	}
	return dto
}

func toCapabilitiesDTO(c pension.Capabilities) CapabilitiesDTO {
	return CapabilitiesDTO{
		SupportsElectronicRemittance: c.SupportsElectronicRemittance,
		SupportsServiceBuyback:       c.SupportsBuyBack,
		SupportsEarlyRetirement:      c.SupportsEarlyRetirement,
		MinimumAge:                   c.MinimumAge,
		MaximumAge:                   c.MaximumAge,
	}
}
