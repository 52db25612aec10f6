package enums

// RefundAction is the structured outcome of a refund/void resolution.
type RefundAction string

const (
	RefundActionNotFound        RefundAction = "not_found"
	RefundActionNotRefundable   RefundAction = "not_refundable"
	RefundActionAlreadyRefunded RefundAction = "already_refunded"
	RefundActionRefundPending   RefundAction = "refund_pending"
	RefundActionRefunded        RefundAction = "refunded"
	RefundActionRefundFailed    RefundAction = "refund_failed"
	RefundActionVoided          RefundAction = "voided"
)

var validRefundActions = []RefundAction{
	RefundActionNotFound,
	RefundActionNotRefundable,
	RefundActionAlreadyRefunded,
	RefundActionRefundPending,
	RefundActionRefunded,
	RefundActionRefundFailed,
	RefundActionVoided,
}

// String implements fmt.Stringer.
func (a RefundAction) String() string {
	return string(a)
}

// IsValid reports whether the value is a known RefundAction.
func (a RefundAction) IsValid() bool {
	for _, candidate := range validRefundActions {
		if candidate == a {
			return true
		}
	}
	return false
}
