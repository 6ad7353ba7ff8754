package rangeint

// Sum adds 0..n-1.
func Sum(n int) int {
	total := 0
	for i := range n {
		total += i
	}
	return total
}
