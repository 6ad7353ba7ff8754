package badkey

// One returns 1.
//
//	>>> badkey.One()
//	1
func One() int { return 1 }

// DoctestGlobals returns a key that cannot be a Go name.
func DoctestGlobals(pathToSelf string) map[string]any {
	return map[string]any{"not-a-name": 1}
}
