package campaign

import "crowdfund/internal/domain"

// IsCreator reports whether caller may run creator-only operations
// (disbursement and ending) on c.
func IsCreator(c domain.Campaign, caller domain.Address) bool {
	return c.Creator == caller
}

// IsDonor reports whether contrib belongs to caller and carries value.
func IsDonor(contrib *domain.Contribution, caller domain.Address) bool {
	return contrib != nil && contrib.Donor == caller && !contrib.Total.IsZero()
}
