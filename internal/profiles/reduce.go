package profiles

// firstSuccess returns the config of the first successful outcome in slice
// order. Outcomes must be ordered by candidate priority; completion order
// plays no part.
func firstSuccess(outcomes []Outcome) Result {
	for _, o := range outcomes {
		if o.Status == OutcomeSuccess {
			return Result{Config: o.Config, Found: true}
		}
	}
	return Result{}
}
