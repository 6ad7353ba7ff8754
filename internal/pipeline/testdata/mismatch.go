package arith

// Add returns a + b.
//
//	>>> arith.Add(2, 2)
//	5
func Add(a, b int) int { return a + b }
