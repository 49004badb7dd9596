package timestep

// Keys used in Info mappings
const (
	// TerminalObservationKey maps to the last observation of an
	// episode. Vectorized environments reset finished environments
	// immediately, so the observation returned by a step is the first
	// observation of the next episode and the true last observation is
	// reported here instead.
	TerminalObservationKey = "terminal_observation"

	// TruncatedKey maps to true when an episode was ended by a time
	// limit inside the environment rather than by a terminal state
	TruncatedKey = "TimeLimit.truncated"
)

// Info holds auxiliary per-environment information returned by a step
type Info map[string]interface{}

// TerminalObservation returns the terminal observation stored in the
// Info, if any, as a single row Observation
func (i Info) TerminalObservation() (Observation, bool) {
	v, ok := i[TerminalObservationKey]
	if !ok {
		return Observation{}, false
	}
	o, ok := v.(Observation)
	if !ok || o.IsZero() {
		return Observation{}, false
	}
	return o, true
}

// Truncated returns whether the Info reports that the episode was cut
// off by a time limit
func (i Info) Truncated() bool {
	v, ok := i[TruncatedKey]
	if !ok {
		return false
	}
	truncated, ok := v.(bool)
	return ok && truncated
}

// VecStep packages together one synchronous step of a set of
// environments. Index i of each field refers to environment i.
type VecStep struct {
	Observations Observation
	Rewards      []float64
	Dones        []bool
	Infos        []Info
}

// NumEnvs returns the number of environments in the step
func (v VecStep) NumEnvs() int {
	return len(v.Rewards)
}
