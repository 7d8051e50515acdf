package enums

import "fmt"

// VoucherStatus tracks a voucher through its terminal-state lifecycle.
type VoucherStatus string

const (
	VoucherStatusIssued      VoucherStatus = "issued"
	VoucherStatusRedeemed    VoucherStatus = "redeemed"
	VoucherStatusExpired     VoucherStatus = "expired"
	VoucherStatusUnfulfilled VoucherStatus = "unfulfilled"
)

var validVoucherStatuses = []VoucherStatus{
	VoucherStatusIssued,
	VoucherStatusRedeemed,
	VoucherStatusExpired,
	VoucherStatusUnfulfilled,
}

// String implements fmt.Stringer.
func (s VoucherStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s VoucherStatus) IsValid() bool {
	for _, candidate := range validVoucherStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s VoucherStatus) IsTerminal() bool {
	return s != VoucherStatusIssued
}

// ParseVoucherStatus converts raw input into a VoucherStatus.
func ParseVoucherStatus(value string) (VoucherStatus, error) {
	for _, candidate := range validVoucherStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid voucher status %q", value)
}
