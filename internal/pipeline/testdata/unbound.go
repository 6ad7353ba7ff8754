package unbound

// Scale multiplies by the configured factor.
//
//	>>> unbound.Scale(2) * FACTOR
//	6
func Scale(n int) int { return n }

// DoctestGlobals supplies nothing.
func DoctestGlobals(pathToSelf string) map[string]any {
	return map[string]any{}
}
