package ads

import "slices"

// Eligible returns the feature week counts available at a price. Brackets
// are inclusive on the low side.
func Eligible(price int) []int {
	switch {
	case price <= 4_000_000:
		return []int{1, 2, 4}
	case price <= 8_000_000:
		return []int{2, 4}
	default:
		return []int{4, 6, 8}
	}
}

// ChooseWeeks honors an override only when it is eligible at the price,
// otherwise picks the maximum eligible value.
func ChooseWeeks(price, override int) int {
	eligible := Eligible(price)
	if override > 0 && slices.Contains(eligible, override) {
		return override
	}
	return slices.Max(eligible)
}
