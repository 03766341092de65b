package domain

// Outcome is one side of a binary question.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	return o == OutcomeYes || o == OutcomeNo
}

// Opposite returns the other side of the question.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// Mechanism identifies how a contract is priced. It is a closed enum:
// code that switches on it must handle every value.
type Mechanism int

const (
	// MechanismBinary is a single two-sided pool with weight p.
	MechanismBinary Mechanism = iota + 1
	// MechanismMultiSumToOne is a pool per answer, probabilities
	// constrained to sum to one.
	MechanismMultiSumToOne
	// MechanismMultiIndependent is a pool per answer with no
	// cross-answer constraint.
	MechanismMultiIndependent
)

// String returns the mechanism's wire tag.
func (m Mechanism) String() string {
	switch m {
	case MechanismBinary:
		return "cpmm-1"
	case MechanismMultiSumToOne:
		return "cpmm-multi-1"
	case MechanismMultiIndependent:
		return "cpmm-multi-indie"
	default:
		return "UNKNOWN"
	}
}

// ParseMechanism is the inverse of String.
func ParseMechanism(tag string) (Mechanism, error) {
	switch tag {
	case "cpmm-1":
		return MechanismBinary, nil
	case "cpmm-multi-1":
		return MechanismMultiSumToOne, nil
	case "cpmm-multi-indie":
		return MechanismMultiIndependent, nil
	default:
		return 0, &PreconditionError{Field: "mechanism", Err: ErrWrongMechanism}
	}
}
