package runtime

import "time"

// ShouldExecute reports whether a plug may run now given its run history.
// lastRun is nil for a plug that has never run.
func ShouldExecute(def *Definition, lastRun *time.Time, executionCount int) bool {
	return ShouldExecuteAt(def, lastRun, executionCount, time.Now())
}

// ShouldExecuteAt is ShouldExecute evaluated at a fixed instant.
//
// The run budget is checked first and wins over timing. A plug without
// history is always timing-eligible; otherwise it becomes eligible once
// lastRun+RunEvery is reached.
func ShouldExecuteAt(def *Definition, lastRun *time.Time, executionCount int, now time.Time) bool {
	if def == nil {
		return false
	}

	if def.totalRuns > 0 && executionCount >= def.totalRuns {
		return false
	}

	if lastRun == nil {
		return true
	}

	return !now.Before(NextEligible(def, *lastRun))
}

// NextEligible returns the earliest instant a plug that last ran at lastRun
// may run again, ignoring its run budget.
func NextEligible(def *Definition, lastRun time.Time) time.Time {
	return lastRun.Add(def.runEvery)
}
