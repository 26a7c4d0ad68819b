package metrics

// Policy defines how values reported for one metric are aggregated.
type Policy int

const (
	PolicyNone      Policy = iota // No specific policy specified
	PolicySet                     // Instantaneous value - last value wins (gauge)
	PolicySum                     // Sum of all values (counter)
	PolicyStopwatch               // Durations (histogram, seconds)
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case PolicySet:
		return "set"
	case PolicySum:
		return "sum"
	case PolicyStopwatch:
		return "stopwatch"
	default:
		return "none"
	}
}

// Value represents a metric value as a float64.
type Value float64

// Dimension represents metric dimensions as key-value pairs, e.g. the
// packet type of a connection or the reason of a drop.
type Dimension map[string]string
