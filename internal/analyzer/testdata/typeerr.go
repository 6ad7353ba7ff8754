package typeerr

// Count is declared as an int.
var Count int = 3

var Label int = "three"
