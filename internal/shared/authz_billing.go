package shared

// Billing permissions declared for RBAC.
const (
	PermInvoiceView    = "billing.invoice.view"
	PermInvoiceViewAll = "billing.invoice.view_all"
	PermInvoiceCreate  = "billing.invoice.create"
	PermInvoiceEdit    = "billing.invoice.edit"
	PermInvoiceApprove = "billing.invoice.approve"
	PermInvoiceDelete  = "billing.invoice.delete"

	PermPaymentMark   = "billing.payment.mark"
	PermPaymentUnmark = "billing.payment.unmark"

	PermTierManage = "billing.tier.manage"

	PermMasterDataView = "masterdata.view"
	PermMasterDataEdit = "masterdata.edit"

	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermAuditView = "audit.view"
)

// BillingScopes lists all permissions related to the billing module.
func BillingScopes() []string {
	return []string{
		PermInvoiceView,
		PermInvoiceViewAll,
		PermInvoiceCreate,
		PermInvoiceEdit,
		PermInvoiceApprove,
		PermInvoiceDelete,
		PermPaymentMark,
		PermPaymentUnmark,
		PermTierManage,
	}
}
