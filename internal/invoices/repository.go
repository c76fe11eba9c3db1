package invoices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veris-bms/veris/internal/platform/db"
	"github.com/veris-bms/veris/internal/shared"
)

// ErrNotFound covers both an absent invoice and one outside the caller's
// scope. The two cases are indistinguishable on purpose.
var ErrNotFound = fmt.Errorf("invoices: %w", shared.ErrNotFound)

// ErrDuplicateCode signals an invoiceCode collision.
var ErrDuplicateCode = errors.New("invoices: invoice code already exists")

// ListFilters narrows invoice listings. Zero values mean "no filter".
type ListFilters struct {
	Code          string
	ClientID      int64
	DistributorID int64
	CompanyID     int64
	Unsettled     PaymentStage
	DateFrom      *time.Time
	DateTo        *time.Time
	Limit         int
	Offset        int
}

// Summary carries the dashboard aggregates.
type Summary struct {
	TotalInvoices     int64                  `json:"totalInvoices"`
	FullyPaid         int64                  `json:"fullyPaid"`
	PendingByStage    map[PaymentStage]int64 `json:"pendingByStage"`
	TotalAmount       float64                `json:"totalAmount"`
	ClientCommission  float64                `json:"clientCommission"`
	DistribCommission float64                `json:"distributorCommission"`
	CompanyCommission float64                `json:"companyCommission"`
}

// Repository defines invoice data access.
type Repository interface {
	Get(ctx context.Context, id int64, scope Scope) (*Invoice, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, inv *Invoice) (int64, error)
	Update(ctx context.Context, inv *Invoice) error
	Approve(ctx context.Context, id, approvedBy int64, at time.Time) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, scope Scope, filters ListFilters) ([]Invoice, int64, error)
	SetStage(ctx context.Context, id int64, stage PaymentStage, state StageState) error

	ListUnsettledByClient(ctx context.Context, clientID, distributorID int64) ([]Invoice, error)
	ListUnsettledByDistributor(ctx context.Context, distributorID, createdBy int64) ([]Invoice, error)
	ListUnsettledByCompany(ctx context.Context, companyID, createdBy int64) ([]Invoice, error)
	ListAssignedByDistributor(ctx context.Context, distributorID, createdBy int64) ([]Invoice, error)

	CountByStage(ctx context.Context, scope Scope) (map[PaymentStage]int64, int64, int64, error)
	SumAmounts(ctx context.Context, scope Scope) (total, clientComm, distribComm, companyComm float64, err error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed invoice repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const invoiceColumns = `i.id, i.invoice_code, i.client_id, i.file_id, f.company_id, i.assigned_distributor, i.created_by,
i.invoice_date, i.status,
i.total, i.tax_percentage, i.tax_amount, i.management_tax_percentage, i.management_tax_amount,
i.corporate_tax_percentage, i.corporate_tax_amount, i.profit_percentage, i.profit_amount,
i.final_amount, i.discount_amount,
i.client_commission_rate, i.distributor_commission_rate, i.company_commission_rate,
i.custom_client_commission_rate, i.custom_distributor_commission_rate,
i.is_approved, i.approved_at, i.approved_by,
i.ctd_paid, i.ctd_marked_by, i.ctd_paid_at,
i.dta_paid, i.dta_marked_by, i.dta_paid_at,
i.atc_paid, i.atc_marked_by, i.atc_paid_at,
i.created_at, i.updated_at`

const invoiceFrom = ` FROM invoices i JOIN files f ON f.id = i.file_id`

// scopeClause appends the visibility predicate for scope and returns the
// updated args slice.
func scopeClause(where []string, args []any, scope Scope) ([]string, []any) {
	if scope.ViewAll {
		return where, args
	}
	args = append(args, scope.DistributorID)
	where = append(where, fmt.Sprintf("i.assigned_distributor = $%d", len(args)))
	if len(scope.ExcludeAuthorIDs) > 0 {
		args = append(args, scope.ExcludeAuthorIDs)
		where = append(where, fmt.Sprintf("i.created_by != ALL($%d)", len(args)))
	}
	return where, args
}

func (r *repository) Get(ctx context.Context, id int64, scope Scope) (*Invoice, error) {
	where := []string{"i.id = $1"}
	args := []any{id}
	where, args = scopeClause(where, args, scope)

	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+invoiceFrom+` WHERE `+strings.Join(where, " AND "), args...)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return inv, nil
}

func (r *repository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE invoice_code = $1)`, code).Scan(&exists)
	return exists, err
}

func (r *repository) Create(ctx context.Context, inv *Invoice) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO invoices (
invoice_code, client_id, file_id, assigned_distributor, created_by, invoice_date, status,
total, tax_percentage, tax_amount, management_tax_percentage, management_tax_amount,
corporate_tax_percentage, corporate_tax_amount, profit_percentage, profit_amount,
final_amount, discount_amount,
client_commission_rate, distributor_commission_rate, company_commission_rate,
custom_client_commission_rate, custom_distributor_commission_rate)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
RETURNING id`,
		inv.InvoiceCode, inv.ClientID, inv.FileID, inv.AssignedDistributor, inv.CreatedBy, inv.InvoiceDate, inv.Status,
		inv.Total, inv.TaxPercentage, inv.TaxAmount, inv.ManagementTaxPercentage, inv.ManagementTaxAmount,
		inv.CorporateTaxPercentage, inv.CorporateTaxAmount, inv.ProfitPercentage, inv.ProfitAmount,
		inv.FinalAmount, inv.DiscountAmount,
		inv.ClientCommissionRate, inv.DistributorCommissionRate, inv.CompanyCommissionRate,
		inv.CustomClientCommissionRate, inv.CustomDistributorCommissionRate,
	).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, ErrDuplicateCode
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, inv *Invoice) error {
	tag, err := r.pool.Exec(ctx, `UPDATE invoices SET
invoice_code = $1, client_id = $2, file_id = $3, assigned_distributor = $4, invoice_date = $5, status = $6,
total = $7, tax_percentage = $8, tax_amount = $9, management_tax_percentage = $10, management_tax_amount = $11,
corporate_tax_percentage = $12, corporate_tax_amount = $13, profit_percentage = $14, profit_amount = $15,
final_amount = $16, discount_amount = $17,
client_commission_rate = $18, distributor_commission_rate = $19, company_commission_rate = $20,
custom_client_commission_rate = $21, custom_distributor_commission_rate = $22,
is_approved = $23, approved_at = $24, approved_by = $25,
updated_at = NOW()
WHERE id = $26`,
		inv.InvoiceCode, inv.ClientID, inv.FileID, inv.AssignedDistributor, inv.InvoiceDate, inv.Status,
		inv.Total, inv.TaxPercentage, inv.TaxAmount, inv.ManagementTaxPercentage, inv.ManagementTaxAmount,
		inv.CorporateTaxPercentage, inv.CorporateTaxAmount, inv.ProfitPercentage, inv.ProfitAmount,
		inv.FinalAmount, inv.DiscountAmount,
		inv.ClientCommissionRate, inv.DistributorCommissionRate, inv.CompanyCommissionRate,
		inv.CustomClientCommissionRate, inv.CustomDistributorCommissionRate,
		inv.IsApproved, inv.ApprovedAt, inv.ApprovedBy,
		inv.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateCode
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Approve engages the approval lock inside a transaction. The row lock
// serializes concurrent approvals so exactly one caller wins.
func (r *repository) Approve(ctx context.Context, id, approvedBy int64, at time.Time) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var approved bool
		err := tx.QueryRow(ctx, `SELECT is_approved FROM invoices WHERE id = $1 FOR UPDATE`, id).Scan(&approved)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if approved {
			return ErrAlreadyApproved
		}
		_, err = tx.Exec(ctx,
			`UPDATE invoices SET is_approved = TRUE, approved_at = $2, approved_by = $3, updated_at = NOW() WHERE id = $1`,
			id, at, approvedBy)
		return err
	})
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func stageColumns(stage PaymentStage) (paid, markedBy, paidAt string) {
	switch stage {
	case StageClientToDistributor:
		return "ctd_paid", "ctd_marked_by", "ctd_paid_at"
	case StageDistributorToAdmin:
		return "dta_paid", "dta_marked_by", "dta_paid_at"
	case StageAdminToCompany:
		return "atc_paid", "atc_marked_by", "atc_paid_at"
	}
	return "", "", ""
}

func (r *repository) SetStage(ctx context.Context, id int64, stage PaymentStage, state StageState) error {
	paid, markedBy, paidAt := stageColumns(stage)
	if paid == "" {
		return fmt.Errorf("invoices: unknown stage %q", stage)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE invoices SET `+paid+` = $1, `+markedBy+` = $2, `+paidAt+` = $3, updated_at = NOW() WHERE id = $4`,
		state.IsPaid, state.MarkedBy, state.PaidAt, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) List(ctx context.Context, scope Scope, filters ListFilters) ([]Invoice, int64, error) {
	where := []string{"TRUE"}
	var args []any
	where, args = scopeClause(where, args, scope)

	if filters.Code != "" {
		args = append(args, "%"+filters.Code+"%")
		where = append(where, fmt.Sprintf("i.invoice_code ILIKE $%d", len(args)))
	}
	if filters.ClientID != 0 {
		args = append(args, filters.ClientID)
		where = append(where, fmt.Sprintf("i.client_id = $%d", len(args)))
	}
	if filters.DistributorID != 0 {
		args = append(args, filters.DistributorID)
		where = append(where, fmt.Sprintf("i.assigned_distributor = $%d", len(args)))
	}
	if filters.CompanyID != 0 {
		args = append(args, filters.CompanyID)
		where = append(where, fmt.Sprintf("f.company_id = $%d", len(args)))
	}
	if paid, _, _ := stageColumns(filters.Unsettled); paid != "" {
		where = append(where, "i."+paid+" = FALSE")
	}
	if filters.DateFrom != nil {
		args = append(args, *filters.DateFrom)
		where = append(where, fmt.Sprintf("i.invoice_date >= $%d", len(args)))
	}
	if filters.DateTo != nil {
		args = append(args, *filters.DateTo)
		where = append(where, fmt.Sprintf("i.invoice_date <= $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+invoiceFrom+` WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	args = append(args, limit, filters.Offset)
	query := fmt.Sprintf(`SELECT %s%s WHERE %s ORDER BY i.invoice_date DESC, i.id DESC LIMIT $%d OFFSET $%d`,
		invoiceColumns, invoiceFrom, clause, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items, err := collectInvoices(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repository) ListUnsettledByClient(ctx context.Context, clientID, distributorID int64) ([]Invoice, error) {
	return r.queryInvoices(ctx, `SELECT `+invoiceColumns+invoiceFrom+`
WHERE i.client_id = $1 AND i.assigned_distributor = $2 AND i.ctd_paid = FALSE ORDER BY i.id`, clientID, distributorID)
}

func (r *repository) ListUnsettledByDistributor(ctx context.Context, distributorID, createdBy int64) ([]Invoice, error) {
	return r.queryInvoices(ctx, `SELECT `+invoiceColumns+invoiceFrom+`
WHERE i.assigned_distributor = $1 AND i.created_by = $2 AND i.dta_paid = FALSE ORDER BY i.id`, distributorID, createdBy)
}

func (r *repository) ListUnsettledByCompany(ctx context.Context, companyID, createdBy int64) ([]Invoice, error) {
	return r.queryInvoices(ctx, `SELECT `+invoiceColumns+invoiceFrom+`
WHERE f.company_id = $1 AND i.created_by = $2 AND i.atc_paid = FALSE ORDER BY i.id`, companyID, createdBy)
}

// ListAssignedByDistributor returns every invoice assigned to the distributor
// and created by createdBy where at least one of the first two legs is
// unpaid. The mass settlement path walks both legs.
func (r *repository) ListAssignedByDistributor(ctx context.Context, distributorID, createdBy int64) ([]Invoice, error) {
	return r.queryInvoices(ctx, `SELECT `+invoiceColumns+invoiceFrom+`
WHERE i.assigned_distributor = $1 AND i.created_by = $2 AND (i.ctd_paid = FALSE OR i.dta_paid = FALSE)
ORDER BY i.id`, distributorID, createdBy)
}

func (r *repository) CountByStage(ctx context.Context, scope Scope) (map[PaymentStage]int64, int64, int64, error) {
	where := []string{"TRUE"}
	var args []any
	where, args = scopeClause(where, args, scope)

	var total, fullyPaid, ctd, dta, atc int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*),
COUNT(*) FILTER (WHERE i.ctd_paid AND i.dta_paid AND i.atc_paid),
COUNT(*) FILTER (WHERE NOT i.ctd_paid),
COUNT(*) FILTER (WHERE NOT i.dta_paid),
COUNT(*) FILTER (WHERE NOT i.atc_paid)`+invoiceFrom+` WHERE `+strings.Join(where, " AND "), args...).
		Scan(&total, &fullyPaid, &ctd, &dta, &atc)
	if err != nil {
		return nil, 0, 0, err
	}
	return map[PaymentStage]int64{
		StageClientToDistributor: ctd,
		StageDistributorToAdmin:  dta,
		StageAdminToCompany:      atc,
	}, total, fullyPaid, nil
}

func (r *repository) SumAmounts(ctx context.Context, scope Scope) (float64, float64, float64, float64, error) {
	where := []string{"TRUE"}
	var args []any
	where, args = scopeClause(where, args, scope)

	var total, clientComm, distribComm, companyComm float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(i.total), 0),
COALESCE(SUM(i.total * i.client_commission_rate / 100), 0),
COALESCE(SUM(i.total * i.distributor_commission_rate / 100), 0),
COALESCE(SUM(i.total * i.company_commission_rate / 100), 0)`+invoiceFrom+` WHERE `+strings.Join(where, " AND "), args...).
		Scan(&total, &clientComm, &distribComm, &companyComm)
	return total, clientComm, distribComm, companyComm, err
}

func (r *repository) queryInvoices(ctx context.Context, query string, args ...any) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInvoices(rows)
}

func collectInvoices(rows pgx.Rows) ([]Invoice, error) {
	var items []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *inv)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.ID, &inv.InvoiceCode, &inv.ClientID, &inv.FileID, &inv.CompanyID, &inv.AssignedDistributor, &inv.CreatedBy,
		&inv.InvoiceDate, &inv.Status,
		&inv.Total, &inv.TaxPercentage, &inv.TaxAmount, &inv.ManagementTaxPercentage, &inv.ManagementTaxAmount,
		&inv.CorporateTaxPercentage, &inv.CorporateTaxAmount, &inv.ProfitPercentage, &inv.ProfitAmount,
		&inv.FinalAmount, &inv.DiscountAmount,
		&inv.ClientCommissionRate, &inv.DistributorCommissionRate, &inv.CompanyCommissionRate,
		&inv.CustomClientCommissionRate, &inv.CustomDistributorCommissionRate,
		&inv.IsApproved, &inv.ApprovedAt, &inv.ApprovedBy,
		&inv.Payment.ClientToDistributor.IsPaid, &inv.Payment.ClientToDistributor.MarkedBy, &inv.Payment.ClientToDistributor.PaidAt,
		&inv.Payment.DistributorToAdmin.IsPaid, &inv.Payment.DistributorToAdmin.MarkedBy, &inv.Payment.DistributorToAdmin.PaidAt,
		&inv.Payment.AdminToCompany.IsPaid, &inv.Payment.AdminToCompany.MarkedBy, &inv.Payment.AdminToCompany.PaidAt,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
