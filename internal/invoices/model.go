package invoices

import (
	"time"

	"github.com/veris-bms/veris/internal/shared"
)

// PaymentStage names one leg of the settlement pipeline.
type PaymentStage string

const (
	StageClientToDistributor PaymentStage = "clientToDistributor"
	StageDistributorToAdmin  PaymentStage = "distributorToAdmin"
	StageAdminToCompany      PaymentStage = "adminToCompany"
)

func (s PaymentStage) Valid() bool {
	switch s {
	case StageClientToDistributor, StageDistributorToAdmin, StageAdminToCompany:
		return true
	}
	return false
}

// StageState is the last-writer-wins record of one payment leg.
type StageState struct {
	IsPaid   bool       `json:"isPaid"`
	MarkedBy *int64     `json:"markedBy"`
	PaidAt   *time.Time `json:"paidAt"`
}

// PaymentStatus holds the three independent stages. Stages are not ordered;
// any one may be marked on its own.
type PaymentStatus struct {
	ClientToDistributor StageState `json:"clientToDistributor"`
	DistributorToAdmin  StageState `json:"distributorToAdmin"`
	AdminToCompany      StageState `json:"adminToCompany"`
}

func (p *PaymentStatus) Stage(stage PaymentStage) *StageState {
	switch stage {
	case StageClientToDistributor:
		return &p.ClientToDistributor
	case StageDistributorToAdmin:
		return &p.DistributorToAdmin
	case StageAdminToCompany:
		return &p.AdminToCompany
	}
	return nil
}

// Invoice is one invoice with its computed monetary fields and payment
// pipeline.
type Invoice struct {
	ID                   int64      `json:"id"`
	InvoiceCode          string     `json:"invoiceCode"`
	ClientID             int64      `json:"client"`
	FileID               int64      `json:"file"`
	CompanyID            int64      `json:"company"`
	AssignedDistributor  int64      `json:"assignedDistributor"`
	CreatedBy            int64      `json:"createdBy"`
	InvoiceDate          time.Time  `json:"invoiceDate"`
	Status               string     `json:"status"`

	Total                   float64 `json:"total"`
	TaxPercentage           float64 `json:"taxPercentage"`
	TaxAmount               float64 `json:"taxAmount"`
	ManagementTaxPercentage float64 `json:"managementTaxPercentage"`
	ManagementTaxAmount     float64 `json:"managementTaxAmount"`
	CorporateTaxPercentage  float64 `json:"corporateTaxPercentage"`
	CorporateTaxAmount      float64 `json:"corporateTaxAmount"`
	ProfitPercentage        float64 `json:"profitPercentage"`
	ProfitAmount            float64 `json:"profitAmount"`
	FinalAmount             float64 `json:"finalAmount"`
	DiscountAmount          float64 `json:"discountAmount"`

	ClientCommissionRate            float64  `json:"clientCommissionRate"`
	DistributorCommissionRate       float64  `json:"distributorCommissionRate"`
	CompanyCommissionRate           float64  `json:"companyCommissionRate"`
	CustomClientCommissionRate      *float64 `json:"customClientCommissionRate"`
	CustomDistributorCommissionRate *float64 `json:"customDistributorCommissionRate"`

	IsApproved bool       `json:"isApproved"`
	ApprovedAt *time.Time `json:"approvedAt"`
	ApprovedBy *int64     `json:"approvedBy"`

	Payment PaymentStatus `json:"paymentStatus"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DisplayStatus is "Paid" only when all three stages are paid. Otherwise
// "Pending" with the blocking stage picked in priority order
// adminToCompany, distributorToAdmin, clientToDistributor.
func (inv *Invoice) DisplayStatus() (status string, blocking PaymentStage) {
	p := inv.Payment
	if p.ClientToDistributor.IsPaid && p.DistributorToAdmin.IsPaid && p.AdminToCompany.IsPaid {
		return "Paid", ""
	}
	switch {
	case !p.AdminToCompany.IsPaid:
		return "Pending", StageAdminToCompany
	case !p.DistributorToAdmin.IsPaid:
		return "Pending", StageDistributorToAdmin
	default:
		return "Pending", StageClientToDistributor
	}
}

// CanMarkPayment decides whether actor may mark stage on this invoice.
// Distributors settle the client leg on invoices assigned to them; admins
// settle the two downstream legs on invoices they created.
func (inv *Invoice) CanMarkPayment(actor shared.Actor, stage PaymentStage) bool {
	switch stage {
	case StageClientToDistributor:
		return actor.IsDistributor() && inv.AssignedDistributor == actor.ID
	case StageDistributorToAdmin, StageAdminToCompany:
		return actor.IsAdmin() && inv.CreatedBy == actor.ID
	}
	return false
}
