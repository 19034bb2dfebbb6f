package enums

// CreditReason tags a credit transaction with why it was written. Callers may
// supply their own reason strings; these are the ones the core itself writes.
type CreditReason string

const (
	CreditReasonMonthlyGrant CreditReason = "monthly_grant"
	CreditReasonUsageCharge  CreditReason = "usage_charge"
	CreditReasonManualGrant  CreditReason = "manual_grant"
)

// String implements fmt.Stringer.
func (r CreditReason) String() string {
	return string(r)
}
