/*
handlers.go - HTTP API handlers for the pension contribution engine

PURPOSE:
  Exposes the contribution engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Plans:
    GET    /api/plans                       List registered plans
    GET    /api/plans/{plan}/rates          Rate table (query: year)
    POST   /api/plans/{plan}/calculate      One pay-period calculation

  Remittances:
    POST   /api/remittances                 Build a draft from the ledger
    GET    /api/remittances/{id}            Get a remittance
    POST   /api/remittances/{id}/submit     Drive the submission lifecycle

  Members:
    GET    /api/members                     List members
    POST   /api/members                     Create member
    GET    /api/members/{id}                Get member
    GET    /api/members/{id}/statements/{year}  Annual statement (query: plan)

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (processor, remittance service)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Domain errors map to HTTP status by error code:
  - RATES_NOT_FOUND        404
  - INVALID_PROVINCE       422
  - MISSING_ACCOUNT_NUMBER 409
  - NOT_IMPLEMENTED        501
  - INVALID_PERIOD         400
  - SUBMISSION_FAILED      502 (retryable; remittance stays submitted)
  Plus 400 for malformed input, 404 for missing records, 409 for
  illegal remittance transitions, 500 for everything else.

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/pension-engine/pension"
	"github.com/warp/pension-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// remittanceBuilder is satisfied by plan processors that expose their
// remittance service for draft creation.
type remittanceBuilder interface {
	Remittance() *pension.RemittanceService
}

// yearLister is satisfied by plan processors that report which tax years
// have loaded rate tables.
type yearLister interface {
	Years() []int
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Processors map[pension.PlanType]pension.PlanProcessor
	Store      *sqlite.Store
	Logger     pension.Logger
}

// NewHandler creates a new handler over initialized processors.
func NewHandler(processors []pension.PlanProcessor, store *sqlite.Store, logger pension.Logger) *Handler {
	if logger == nil {
		logger = pension.NopLogger{}
	}
	byType := make(map[pension.PlanType]pension.PlanProcessor, len(processors))
	for _, p := range processors {
		byType[p.Type()] = p
	}
	return &Handler{Processors: byType, Store: store, Logger: logger}
}

func (h *Handler) processor(w http.ResponseWriter, r *http.Request) (pension.PlanProcessor, bool) {
	plan := pension.PlanType(chi.URLParam(r, "plan"))
	p, ok := h.Processors[plan]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown plan type", nil)
		return nil, false
	}
	return p, true
}

// =============================================================================
// PLAN ENDPOINTS
// =============================================================================

// ListPlans returns all registered plans with their capabilities.
// GET /api/plans
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans := make([]PlanDTO, 0, len(h.Processors))
	for planType, p := range h.Processors {
		dto := PlanDTO{
			PlanType:     string(planType),
			Capabilities: toCapabilitiesDTO(p.Capabilities()),
		}
		if yl, ok := p.(yearLister); ok {
			dto.Years = yl.Years()
		}
		plans = append(plans, dto)
	}
	writeJSON(w, http.StatusOK, plans)
}

// GetRates returns a plan's rate table for a tax year.
// GET /api/plans/{plan}/rates?year=2024
func (h *Handler) GetRates(w http.ResponseWriter, r *http.Request) {
	p, ok := h.processor(w, r)
	if !ok {
		return
	}

	year := 0
	if raw := r.URL.Query().Get("year"); raw != "" {
		var err error
		if year, err = strconv.Atoi(raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid year", err)
			return
		}
	}

	rates, err := p.ContributionRates(year)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRatesDTO(rates))
}

// Calculate computes one pay period's contributions and, unless the
// request opts out, appends the result to the contribution ledger.
// POST /api/plans/{plan}/calculate
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	p, ok := h.processor(w, r)
	if !ok {
		return
	}

	var req CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	member, err := h.resolveMember(r, req.Member)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid member", err)
		return
	}

	earnings, err := parseEarnings(req.Earnings)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid earnings", err)
		return
	}

	ytd, err := parseYTD(req.YTD)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ytd", err)
		return
	}

	calc, err := p.CalculateContribution(member, earnings, ytd)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if req.Persist == nil || *req.Persist {
		if err := h.Store.Append(r.Context(), *calc); err != nil {
			h.Logger.Error("failed to persist calculation",
				"member_id", string(calc.MemberID), "error", err.Error())
			writeError(w, http.StatusInternalServerError, "failed to persist calculation", err)
			return
		}
	}

	writeJSON(w, http.StatusOK, toCalculationDTO(calc))
}

// resolveMember merges the request member with the stored record when an
// ID matches. Request fields win so payroll can override without a
// member update.
func (h *Handler) resolveMember(r *http.Request, in CalculateMember) (pension.PensionMember, error) {
	member := pension.PensionMember{
		ID:               pension.MemberID(in.ID),
		Name:             in.Name,
		Jurisdiction:     in.Jurisdiction,
		EmploymentStatus: in.EmploymentStatus,
	}
	if in.DateOfBirth != "" {
		dob, err := time.Parse("2006-01-02", in.DateOfBirth)
		if err != nil {
			return member, err
		}
		member.DateOfBirth = dob
	}

	if in.ID == "" {
		return member, nil
	}
	stored, err := h.Store.GetMember(r.Context(), in.ID)
	if err != nil || stored == nil {
		return member, nil
	}
	if member.Name == "" {
		member.Name = stored.Name
	}
	if member.DateOfBirth.IsZero() {
		member.DateOfBirth = stored.DateOfBirth
	}
	if member.Jurisdiction == "" {
		member.Jurisdiction = stored.Jurisdiction
	}
	if member.EmploymentStatus == "" {
		member.EmploymentStatus = stored.EmploymentStatus
	}
	return member, nil
}

// =============================================================================
// REMITTANCE ENDPOINTS
// =============================================================================

// CreateRemittance aggregates persisted calculations over a period into
// a draft remittance.
// POST /api/remittances
func (h *Handler) CreateRemittance(w http.ResponseWriter, r *http.Request) {
	var req CreateRemittanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	p, ok := h.Processors[pension.PlanType(req.PlanType)]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown plan type", nil)
		return
	}
	rb, ok := p.(remittanceBuilder)
	if !ok {
		writeError(w, http.StatusNotImplemented, "plan does not support remittances", nil)
		return
	}

	periodStart, err := time.Parse("2006-01-02", req.PeriodStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid period_start", err)
		return
	}
	periodEnd, err := time.Parse("2006-01-02", req.PeriodEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid period_end", err)
		return
	}

	calcs, err := h.Store.ListByPeriod(r.Context(), p.Type(), periodStart, periodEnd)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read ledger", err)
		return
	}

	rem, err := rb.Remittance().CreateRemittance(r.Context(), periodStart, periodEnd, calcs)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRemittanceDTO(rem))
}

// GetRemittance returns a remittance record.
// GET /api/remittances/{id}
func (h *Handler) GetRemittance(w http.ResponseWriter, r *http.Request) {
	id := pension.RemittanceID(chi.URLParam(r, "id"))
	rem, err := h.Store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read remittance", err)
		return
	}
	if rem == nil {
		writeError(w, http.StatusNotFound, "remittance not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toRemittanceDTO(rem))
}

// SubmitRemittance drives a remittance through the submission state
// machine. Re-submitting a confirmed remittance returns the existing
// confirmation; a failed remittance cannot be resurrected.
// POST /api/remittances/{id}/submit
func (h *Handler) SubmitRemittance(w http.ResponseWriter, r *http.Request) {
	id := pension.RemittanceID(chi.URLParam(r, "id"))

	// The owning processor is not in the URL; any processor sharing the
	// remittance store can drive the lifecycle, so pick by stored plan.
	rem, err := h.Store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read remittance", err)
		return
	}
	if rem == nil {
		writeError(w, http.StatusNotFound, "remittance not found", nil)
		return
	}

	p, ok := h.Processors[rem.PlanType]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown plan type", nil)
		return
	}

	updated, err := p.SubmitRemittance(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRemittanceDTO(updated))
}

// =============================================================================
// MEMBER ENDPOINTS
// =============================================================================

// ListMembers returns all members.
// GET /api/members
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Store.ListMembers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list members", err)
		return
	}
	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = toMemberDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateMember creates a member record.
// POST /api/members
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}
	dob, err := time.Parse("2006-01-02", req.DateOfBirth)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date_of_birth", err)
		return
	}

	m := sqlite.Member{
		ID:               req.ID,
		Name:             req.Name,
		DateOfBirth:      dob,
		Jurisdiction:     req.Jurisdiction,
		EmploymentStatus: req.EmploymentStatus,
		CreatedAt:        time.Now().UTC(),
	}
	if err := h.Store.CreateMember(r.Context(), m); err != nil {
		writeError(w, http.StatusConflict, "failed to create member", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberDTO(m))
}

// GetMember returns a member record.
// GET /api/members/{id}
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m, err := h.Store.GetMember(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read member", err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "member not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(*m))
}

// GetStatement returns a member's annual contribution statement.
// GET /api/members/{id}/statements/{year}?plan=flat_rate
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	memberID := pension.MemberID(chi.URLParam(r, "id"))
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid year", err)
		return
	}

	plan := pension.PlanType(r.URL.Query().Get("plan"))
	if plan == "" {
		plan = pension.PlanFlatRate
	}
	p, ok := h.Processors[plan]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown plan type", nil)
		return
	}

	st, err := p.GenerateAnnualStatement(r.Context(), memberID, year)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTO(st))
}

// =============================================================================
// HELPERS
// =============================================================================

func toMemberDTO(m sqlite.Member) MemberDTO {
	dto := MemberDTO{
		ID:               m.ID,
		Name:             m.Name,
		DateOfBirth:      m.DateOfBirth.Format("2006-01-02"),
		Jurisdiction:     m.Jurisdiction,
		EmploymentStatus: m.EmploymentStatus,
	}
	if !m.CreatedAt.IsZero() {
		dto.CreatedAt = m.CreatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func parseEarnings(in CalculateEarnings) (pension.PensionableEarnings, error) {
	var out pension.PensionableEarnings
	var err error

	if out.GrossEarnings, err = decimal.NewFromString(in.GrossEarnings); err != nil {
		return out, err
	}
	if in.PensionableEarnings != "" {
		if out.PensionableEarnings, err = decimal.NewFromString(in.PensionableEarnings); err != nil {
			return out, err
		}
	} else {
		out.PensionableEarnings = out.GrossEarnings
	}
	if out.PeriodStart, err = time.Parse("2006-01-02", in.PeriodStart); err != nil {
		return out, err
	}
	if out.PeriodEnd, err = time.Parse("2006-01-02", in.PeriodEnd); err != nil {
		return out, err
	}
	return out, nil
}

func parseYTD(in YTDDTO) (pension.YTD, error) {
	var out pension.YTD
	var err error

	if out.PensionableEarnings, err = parseDecimalOrZero(in.PensionableEarnings); err != nil {
		return out, err
	}
	if out.EmployeeContributions, err = parseDecimalOrZero(in.EmployeeContributions); err != nil {
		return out, err
	}
	if out.EmployerContributions, err = parseDecimalOrZero(in.EmployerContributions); err != nil {
		return out, err
	}
	return out, nil
}

func parseDecimalOrZero(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// writeDomainError maps engine errors to HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := ""

	var perr *pension.ProcessorError
	switch {
	case errors.Is(err, pension.ErrRemittanceNotFound):
		if errors.As(err, &perr) {
			code = string(perr.Code)
		}
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: code})
		return
	case errors.Is(err, pension.ErrInvalidTransition):
		if errors.As(err, &perr) {
			code = string(perr.Code)
		}
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	if errors.As(err, &perr) {
		code = string(perr.Code)
		switch perr.Code {
		case pension.CodeRatesNotFound:
			status = http.StatusNotFound
		case pension.CodeInvalidProvince:
			status = http.StatusUnprocessableEntity
		case pension.CodeMissingAccountNumber:
			status = http.StatusConflict
		case pension.CodeNotImplemented:
			status = http.StatusNotImplemented
		case pension.CodeInvalidPeriod:
			status = http.StatusBadRequest
		case pension.CodeSubmissionFailed:
			status = http.StatusBadGateway
		}
	} else if errors.Is(err, pension.ErrInvalidPeriod) {
		status = http.StatusBadRequest
	}

	if status >= 500 {
		h.Logger.Error("request failed", "error", err.Error())
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
