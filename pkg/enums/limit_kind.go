package enums

import "fmt"

// LimitKind identifies a plan-gated resource.
type LimitKind string

const (
	LimitKindUser            LimitKind = "user"
	LimitKindAgency          LimitKind = "agency"
	LimitKindVoucherPerMonth LimitKind = "voucher_per_month"
)

var validLimitKinds = []LimitKind{
	LimitKindUser,
	LimitKindAgency,
	LimitKindVoucherPerMonth,
}

// String implements fmt.Stringer.
func (k LimitKind) String() string {
	return string(k)
}

// IsValid reports whether the value is known.
func (k LimitKind) IsValid() bool {
	for _, candidate := range validLimitKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseLimitKind converts raw input into a LimitKind.
func ParseLimitKind(value string) (LimitKind, error) {
	for _, candidate := range validLimitKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid limit kind %q", value)
}
