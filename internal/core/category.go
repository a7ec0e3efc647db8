package core

// Category is an enumerated expense tag. Values that arrive from the remote
// store or from clients and do not match a known tag fold into CategoryOther
// instead of being dropped.
type Category string

const (
	CategoryFood          Category = "food"
	CategoryTransport     Category = "transport"
	CategoryUtilities     Category = "utilities"
	CategoryEntertainment Category = "entertainment"
	CategoryShopping      Category = "shopping"
	CategoryHealth        Category = "health"
	CategoryOther         Category = "other"
)

// Categories lists all known tags in their canonical order.
var Categories = []Category{
	CategoryFood,
	CategoryTransport,
	CategoryUtilities,
	CategoryEntertainment,
	CategoryShopping,
	CategoryHealth,
	CategoryOther,
}

// ParseCategory maps a raw tag to a known Category, folding unknown or
// empty values to CategoryOther.
func ParseCategory(raw string) Category {
	c := Category(raw)
	for _, known := range Categories {
		if c == known {
			return c
		}
	}
	return CategoryOther
}
