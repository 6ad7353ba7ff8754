// Package counter keeps a running total.
package counter

import "fmt"

var total int

// Reset sets the total to zero.
//
//	>>> counter.Reset()
//	>>> counter.Add(2)
//	>>> counter.Total()
//	2
func Reset() { total = 0 }

// Add adds n to the total.
func Add(n int) { total += n }

// Total returns the total.
func Total() int { return total }

// Say prints the total.
//
//	>>> counter.Say()
//	total 2
func Say() { fmt.Println("total", total) }

// Pair returns the total and its double.
//
//	>>> counter.Pair()
//	2 4
//	>>> counter.Check(-1)
//	-1 "negative"
func Pair() (int, int) { return total, 2 * total }

// Check reports a problem with n, if any.
func Check(n int) (int, string) {
	if n < 0 {
		return n, "negative"
	}
	return n, ""
}
