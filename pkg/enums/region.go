package enums

import "fmt"

// Region identifies a subscriber's billing region. RegionGlobal doubles as
// the fallback price point when a plan has no region-specific price.
type Region string

const (
	RegionIndia  Region = "IN"
	RegionUS     Region = "US"
	RegionEU     Region = "EU"
	RegionGlobal Region = "GLOBAL"
)

var validRegions = []Region{
	RegionIndia,
	RegionUS,
	RegionEU,
	RegionGlobal,
}

// String implements fmt.Stringer.
func (r Region) String() string {
	return string(r)
}

// IsValid reports whether the region is recognized.
func (r Region) IsValid() bool {
	for _, candidate := range validRegions {
		if candidate == r {
			return true
		}
	}
	return false
}

// ExpectedCurrency maps a billing region to the currency charges are
// expected to arrive in. India bills in INR; every other region bills in
// the default currency.
func (r Region) ExpectedCurrency() Currency {
	if r == RegionIndia {
		return CurrencyINR
	}
	return CurrencyUSD
}

// ParseRegion converts raw input into a Region.
func ParseRegion(value string) (Region, error) {
	for _, candidate := range validRegions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid region %q", value)
}
