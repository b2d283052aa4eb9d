// internal/domain/category.go
package domain

type Category string

const (
	CategoryFood          Category = "Food"
	CategoryTravelling    Category = "Travelling"
	CategoryEntertainment Category = "Entertainment"
	CategoryShopping      Category = "Shopping"
	CategoryBills         Category = "Bills"
	CategoryOther         Category = "Other"

	// LegacyCategoryTransport was renamed to Travelling; it only survives in old data.
	LegacyCategoryTransport Category = "Transport"
)

var categories = []Category{
	CategoryFood,
	CategoryTravelling,
	CategoryEntertainment,
	CategoryShopping,
	CategoryBills,
	CategoryOther,
}

func Categories() []Category {
	return append([]Category(nil), categories...)
}

func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

func (c Category) String() string {
	return string(c)
}
