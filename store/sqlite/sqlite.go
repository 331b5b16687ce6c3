/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements the persistence interfaces the contribution lifecycle depends
  on using SQLite. In production, the same patterns apply to PostgreSQL -
  only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  pension.CalculationStore: Contribution calculation ledger (append-only)
  pension.RemittanceStore:  Remittance records with forward-only status

APPEND-ONLY ENFORCEMENT:
  The calculation ledger is append-only:
  - No UPDATE statements on contribution_calculations
  - No DELETE statements on contribution_calculations
  - Corrections are new records

  Remittances ARE updated, but only along legal status transitions;
  Update rejects anything the state machine forbids, so a buggy caller
  cannot reopen a confirmed remittance through the store.

KEY TABLES:
  contribution_calculations: Every calculation with its YTD snapshot
  remittances:               Aggregated submissions (member ids as JSON)
  members:                   Member records for the API layer

INDEXES:
  - idx_calculations_member_year: Annual statement aggregation (hot path)
  - idx_calculations_period_end:  Remittance building by period
  - idx_remittances_plan_status:  Pending-remittance listing

DECIMAL STORAGE:
  Monetary values are stored as TEXT and parsed back through
  decimal.NewFromString, never through float64.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/pension.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - pension/remittance.go: Interface definitions
  - pension/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/pension-engine/pension"
)

// Store implements pension.CalculationStore and pension.RemittanceStore,
// plus member CRUD for the API layer.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Contribution calculations (append-only ledger)
	CREATE TABLE IF NOT EXISTS contribution_calculations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		plan_type TEXT NOT NULL,
		member_id TEXT NOT NULL,
		tax_year INTEGER NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		pensionable_earnings TEXT NOT NULL,
		basic_exemption TEXT NOT NULL,
		employee_contribution TEXT NOT NULL,
		employer_contribution TEXT NOT NULL,
		total_contribution TEXT NOT NULL,
		effective_rate TEXT NOT NULL,
		ytd_pensionable_earnings TEXT NOT NULL,
		ytd_employee_contributions TEXT NOT NULL,
		ytd_employer_contributions TEXT NOT NULL,
		calculated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_calculations_member_year
		ON contribution_calculations(plan_type, member_id, tax_year, period_end);

	CREATE INDEX IF NOT EXISTS idx_calculations_period_end
		ON contribution_calculations(plan_type, period_end);

	-- Remittances
	CREATE TABLE IF NOT EXISTS remittances (
		id TEXT PRIMARY KEY,
		plan_type TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		total_employee_contributions TEXT NOT NULL,
		total_employer_contributions TEXT NOT NULL,
		total_contributions TEXT NOT NULL,
		member_ids_json TEXT NOT NULL,
		status TEXT NOT NULL,
		confirmation_number TEXT,
		created_at TEXT NOT NULL,
		submitted_at TEXT,
		confirmed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_remittances_plan_status
		ON remittances(plan_type, status);

	-- Members
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		date_of_birth TEXT NOT NULL,
		jurisdiction TEXT NOT NULL,
		employment_status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CALCULATION STORE (append-only)
// =============================================================================

// Append records a calculation. There is no update or delete path;
// corrections are new records.
func (s *Store) Append(ctx context.Context, calc pension.ContributionCalculation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contribution_calculations (
			plan_type, member_id, tax_year, period_start, period_end,
			pensionable_earnings, basic_exemption,
			employee_contribution, employer_contribution, total_contribution,
			effective_rate,
			ytd_pensionable_earnings, ytd_employee_contributions, ytd_employer_contributions,
			calculated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(calc.PlanType), string(calc.MemberID), calc.TaxYear,
		formatDate(calc.PeriodStart), formatDate(calc.PeriodEnd),
		calc.PensionableEarnings.String(), calc.BasicExemption.String(),
		calc.EmployeeContribution.String(), calc.EmployerContribution.String(), calc.TotalContribution.String(),
		calc.EffectiveRate.String(),
		calc.YTDAfter.PensionableEarnings.String(), calc.YTDAfter.EmployeeContributions.String(), calc.YTDAfter.EmployerContributions.String(),
		calc.CalculatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert calculation: %w", err)
	}
	return nil
}

// ListByMemberYear returns a member's calculations for a tax year,
// ordered by period end.
func (s *Store) ListByMemberYear(ctx context.Context, plan pension.PlanType, memberID pension.MemberID, taxYear int) ([]pension.ContributionCalculation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT plan_type, member_id, tax_year, period_start, period_end,
		       pensionable_earnings, basic_exemption,
		       employee_contribution, employer_contribution, total_contribution,
		       effective_rate,
		       ytd_pensionable_earnings, ytd_employee_contributions, ytd_employer_contributions,
		       calculated_at
		FROM contribution_calculations
		WHERE plan_type = ? AND member_id = ? AND tax_year = ?
		ORDER BY period_end ASC`,
		string(plan), string(memberID), taxYear)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCalculations(rows)
}

// ListByPeriod returns every calculation whose period end falls inside
// [from, to], ordered by period end then member.
func (s *Store) ListByPeriod(ctx context.Context, plan pension.PlanType, from, to time.Time) ([]pension.ContributionCalculation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT plan_type, member_id, tax_year, period_start, period_end,
		       pensionable_earnings, basic_exemption,
		       employee_contribution, employer_contribution, total_contribution,
		       effective_rate,
		       ytd_pensionable_earnings, ytd_employee_contributions, ytd_employer_contributions,
		       calculated_at
		FROM contribution_calculations
		WHERE plan_type = ? AND period_end >= ? AND period_end <= ?
		ORDER BY period_end ASC, member_id ASC`,
		string(plan), formatDate(from), formatDate(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCalculations(rows)
}

func scanCalculations(rows *sql.Rows) ([]pension.ContributionCalculation, error) {
	var result []pension.ContributionCalculation
	for rows.Next() {
		var (
			c                                          pension.ContributionCalculation
			planType, memberID, periodStart, periodEnd string
			pensionable, exemption, employee, employer string
			total, rate, ytdEarn, ytdEE, ytdER         string
			calculatedAt                               string
		)
		if err := rows.Scan(&planType, &memberID, &c.TaxYear, &periodStart, &periodEnd,
			&pensionable, &exemption, &employee, &employer, &total, &rate,
			&ytdEarn, &ytdEE, &ytdER, &calculatedAt); err != nil {
			return nil, err
		}

		c.PlanType = pension.PlanType(planType)
		c.MemberID = pension.MemberID(memberID)

		var err error
		if c.PeriodStart, err = parseDate(periodStart); err != nil {
			return nil, err
		}
		if c.PeriodEnd, err = parseDate(periodEnd); err != nil {
			return nil, err
		}
		if c.CalculatedAt, err = time.Parse(time.RFC3339, calculatedAt); err != nil {
			return nil, err
		}

		for _, p := range []struct {
			dst *decimal.Decimal
			src string
		}{
			{&c.PensionableEarnings, pensionable},
			{&c.BasicExemption, exemption},
			{&c.EmployeeContribution, employee},
			{&c.EmployerContribution, employer},
			{&c.TotalContribution, total},
			{&c.EffectiveRate, rate},
			{&c.YTDAfter.PensionableEarnings, ytdEarn},
			{&c.YTDAfter.EmployeeContributions, ytdEE},
			{&c.YTDAfter.EmployerContributions, ytdER},
		} {
			if *p.dst, err = decimal.NewFromString(p.src); err != nil {
				return nil, fmt.Errorf("corrupt decimal %q: %w", p.src, err)
			}
		}

		result = append(result, c)
	}
	return result, rows.Err()
}

// =============================================================================
// REMITTANCE STORE
// =============================================================================

// Create persists a new remittance record.
func (s *Store) Create(ctx context.Context, rem *pension.ContributionRemittance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	memberIDs, err := json.Marshal(rem.MemberIDs)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO remittances (
			id, plan_type, period_start, period_end,
			total_employee_contributions, total_employer_contributions, total_contributions,
			member_ids_json, status, confirmation_number,
			created_at, submitted_at, confirmed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(rem.ID), string(rem.PlanType),
		formatDate(rem.PeriodStart), formatDate(rem.PeriodEnd),
		rem.TotalEmployeeContributions.String(), rem.TotalEmployerContributions.String(), rem.TotalContributions.String(),
		string(memberIDs), string(rem.Status), rem.ConfirmationNumber,
		rem.CreatedAt.UTC().Format(time.RFC3339),
		formatNullableTime(rem.SubmittedAt), formatNullableTime(rem.ConfirmedAt),
	)
	if err != nil {
		return fmt.Errorf("insert remittance: %w", err)
	}
	return nil
}

// Get returns the remittance with the given id, or nil if none exists.
func (s *Store) Get(ctx context.Context, id pension.RemittanceID) (*pension.ContributionRemittance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, plan_type, period_start, period_end,
		       total_employee_contributions, total_employer_contributions, total_contributions,
		       member_ids_json, status, confirmation_number,
		       created_at, submitted_at, confirmed_at
		FROM remittances WHERE id = ?`, string(id))

	rem, err := scanRemittance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rem, err
}

// Update persists a remittance's new state, enforcing forward-only
// status transitions against what is currently stored.
func (s *Store) Update(ctx context.Context, rem *pension.ContributionRemittance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM remittances WHERE id = ?`, string(rem.ID)).Scan(&current)
	if err == sql.ErrNoRows {
		return pension.ErrRemittanceNotFound
	}
	if err != nil {
		return err
	}
	from := pension.RemittanceStatus(current)
	if from != rem.Status && !from.CanTransition(rem.Status) {
		// A sandbox Submit moves draft to confirmed in one write; accept
		// it as the composition of two legal steps.
		if !(from == pension.RemittanceDraft && rem.Status == pension.RemittanceConfirmed) {
			return pension.ErrInvalidTransition
		}
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE remittances
		SET status = ?, confirmation_number = ?, submitted_at = ?, confirmed_at = ?
		WHERE id = ?`,
		string(rem.Status), rem.ConfirmationNumber,
		formatNullableTime(rem.SubmittedAt), formatNullableTime(rem.ConfirmedAt),
		string(rem.ID))
	if err != nil {
		return fmt.Errorf("update remittance: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRemittance(row rowScanner) (*pension.ContributionRemittance, error) {
	var (
		rem                                 pension.ContributionRemittance
		id, planType, pStart, pEnd          string
		totalEE, totalER, total             string
		memberIDs, status                   string
		confirmation                        sql.NullString
		createdAt, submittedAt, confirmedAt sql.NullString
	)
	if err := row.Scan(&id, &planType, &pStart, &pEnd,
		&totalEE, &totalER, &total,
		&memberIDs, &status, &confirmation,
		&createdAt, &submittedAt, &confirmedAt); err != nil {
		return nil, err
	}

	rem.ID = pension.RemittanceID(id)
	rem.PlanType = pension.PlanType(planType)
	rem.Status = pension.RemittanceStatus(status)
	rem.ConfirmationNumber = confirmation.String

	var err error
	if rem.PeriodStart, err = parseDate(pStart); err != nil {
		return nil, err
	}
	if rem.PeriodEnd, err = parseDate(pEnd); err != nil {
		return nil, err
	}
	if rem.TotalEmployeeContributions, err = decimal.NewFromString(totalEE); err != nil {
		return nil, err
	}
	if rem.TotalEmployerContributions, err = decimal.NewFromString(totalER); err != nil {
		return nil, err
	}
	if rem.TotalContributions, err = decimal.NewFromString(total); err != nil {
		return nil, err
	}
	if err = json.Unmarshal([]byte(memberIDs), &rem.MemberIDs); err != nil {
		return nil, fmt.Errorf("corrupt member ids: %w", err)
	}
	if createdAt.Valid {
		if rem.CreatedAt, err = time.Parse(time.RFC3339, createdAt.String); err != nil {
			return nil, err
		}
	}
	if rem.SubmittedAt, err = parseNullableTime(submittedAt); err != nil {
		return nil, err
	}
	if rem.ConfirmedAt, err = parseNullableTime(confirmedAt); err != nil {
		return nil, err
	}
	return &rem, nil
}

// =============================================================================
// MEMBERS
// =============================================================================

// Member is the persistence shape of a pension member.
type Member struct {
	ID               string
	Name             string
	DateOfBirth      time.Time
	Jurisdiction     string
	EmploymentStatus string
	CreatedAt        time.Time
}

// CreateMember inserts a member record.
func (s *Store) CreateMember(ctx context.Context, m Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (id, name, date_of_birth, jurisdiction, employment_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, formatDate(m.DateOfBirth), m.Jurisdiction, m.EmploymentStatus,
		m.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

// GetMember returns the member with the given id, or nil if none exists.
func (s *Store) GetMember(ctx context.Context, id string) (*Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		m              Member
		dob, createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, date_of_birth, jurisdiction, employment_status, created_at
		FROM members WHERE id = ?`, id).
		Scan(&m.ID, &m.Name, &dob, &m.Jurisdiction, &m.EmploymentStatus, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if m.DateOfBirth, err = parseDate(dob); err != nil {
		return nil, err
	}
	if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMembers returns all members ordered by id.
func (s *Store) ListMembers(ctx context.Context) ([]Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, date_of_birth, jurisdiction, employment_status, created_at
		FROM members ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Member
	for rows.Next() {
		var (
			m              Member
			dob, createdAt string
		)
		if err := rows.Scan(&m.ID, &m.Name, &dob, &m.Jurisdiction, &m.EmploymentStatus, &createdAt); err != nil {
			return nil, err
		}
		if m.DateOfBirth, err = parseDate(dob); err != nil {
			return nil, err
		}
		if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func formatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullableTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
