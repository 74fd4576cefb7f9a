package entity

import "fmt"

// MerchantCategory is the merchant classification attached to a transaction.
type MerchantCategory string

// Supported merchant categories.
const (
	MerchantCategoryElectronics MerchantCategory = "Electronics"
	MerchantCategoryTravel      MerchantCategory = "Travel"
	MerchantCategoryGrocery     MerchantCategory = "Grocery"
	MerchantCategoryFood        MerchantCategory = "Food"
	MerchantCategoryClothing    MerchantCategory = "Clothing"
)

// MerchantCategories lists every supported category in declaration order.
var MerchantCategories = []MerchantCategory{
	MerchantCategoryElectronics,
	MerchantCategoryTravel,
	MerchantCategoryGrocery,
	MerchantCategoryFood,
	MerchantCategoryClothing,
}

// ParseMerchantCategory converts a raw string into a MerchantCategory.
// Matching is exact; "travel" is rejected.
func ParseMerchantCategory(raw string) (MerchantCategory, error) {
	for _, c := range MerchantCategories {
		if string(c) == raw {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown merchant category %q", ErrValidation, raw)
}

// Valid reports whether c is one of the supported categories.
func (c MerchantCategory) Valid() bool {
	_, err := ParseMerchantCategory(string(c))
	return err == nil
}
