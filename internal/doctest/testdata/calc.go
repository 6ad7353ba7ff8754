// Package calc is a target for doctest runner tests.
//
//	>>> calc.Add(2, 2)
//	4
package calc

import (
	"errors"
	"fmt"
)

// Add returns a + b.
//
//	>>> calc.Add(1, 2)
//	3
//	>>> x := calc.Add(2, 3)
//	>>> x * 2
//	10
func Add(a, b int) int { return a + b }

// Div divides a by b.
//
//	>>> q, _ := calc.Div(6, 3)
//	>>> q
//	2
//	>>> _, err := calc.Div(1, 0)
//	>>> err
//	division by zero
func Div(a, b int) (int, error) {
	if b == 0 {
		return 0, errors.New("division by zero")
	}
	return a / b, nil
}

// Label is the name examples print.
//
//	>>> fmt.Println(calc.Label, SCALE*2)
//	calc 6
//	>>> calc.Label
//	"calc"
var Label = "calc"

// Broken documents a wrong result.
//
//	>>> calc.Add(2, 2)
//	5
func Broken() {}

func ExampleAdd() {
	fmt.Println(Add(20, 22))
	// Output: 42
}

// DoctestGlobals supplies SCALE.
func DoctestGlobals(pathToSelf string) map[string]any {
	return map[string]any{"SCALE": 3}
}
