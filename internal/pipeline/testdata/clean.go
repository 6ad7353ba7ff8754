// Package shop prices baskets.
package shop

import "fmt"

// Price returns the price of n items in cents.
//
//	>>> shop.Price(3)
//	150
func Price(n int) int { return n * UnitCents }

// UnitCents is the price of one item.
const UnitCents = 50

// Describe labels a basket.
//
//	>>> fmt.Println(shop.Describe(2))
//	2 items for 100 cents
//	>>> shop.Describe(1) + " " + CURRENCY
//	"1 items for 50 cents EUR"
func Describe(n int) string {
	return fmt.Sprintf("%d items for %d cents", n, Price(n))
}

// DoctestGlobals supplies the currency examples print.
func DoctestGlobals(pathToSelf string) map[string]any {
	return map[string]any{"CURRENCY": "EUR", "SELF": pathToSelf}
}
