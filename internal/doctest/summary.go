package doctest

// FailureKind classifies why an example failed
type FailureKind string

const (
	// KindMismatch is output that differs from the expected output
	KindMismatch FailureKind = "mismatch"
	// KindFault is an example that panicked or failed to evaluate
	KindFault FailureKind = "fault"
	// KindUnboundName is a fault caused by an undefined name
	KindUnboundName FailureKind = "unbound-name"
	// KindMalformed is a docstring whose examples could not be parsed
	KindMalformed FailureKind = "malformed"
	// KindSetup is a docstring whose namespace could not be prepared
	KindSetup FailureKind = "setup"
)

// Failure is one failed example
type Failure struct {
	Docstring string      `json:"docstring" yaml:"docstring"`
	File      string      `json:"file" yaml:"file"`
	Line      int         `json:"line" yaml:"line"`
	Source    string      `json:"source,omitempty" yaml:"source,omitempty"`
	Want      string      `json:"want,omitempty" yaml:"want,omitempty"`
	Got       string      `json:"got,omitempty" yaml:"got,omitempty"`
	Kind      FailureKind `json:"kind" yaml:"kind"`
}

// Tally counts the examples tried and failed in one docstring
type Tally struct {
	Name   string `json:"name" yaml:"name"`
	Tried  int    `json:"tried" yaml:"tried"`
	Failed int    `json:"failed" yaml:"failed"`
}

// Summary is the outcome of a run over all docstrings
type Summary struct {
	Attempted  int       `json:"attempted" yaml:"attempted"`
	Failed     int       `json:"failed" yaml:"failed"`
	Docstrings []Tally   `json:"docstrings" yaml:"docstrings"`
	Failures   []Failure `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// Passed reports whether no example failed
func (s *Summary) Passed() bool {
	return s.Failed == 0
}
