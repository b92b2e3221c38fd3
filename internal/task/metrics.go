package task

// Metrics aggregates scheduler outcomes. Every field is recomputed
// from the task set so repeated reads with no state change agree.
type Metrics struct {
	TotalTasks            int   `json:"totalTasks"`
	CompletedTasks        int   `json:"completedTasks"`
	FailedTasks           int   `json:"failedTasks"`
	AverageDurationMillis int64 `json:"averageDurationMillis"`
	SuccessRatePercent    int   `json:"successRatePercent"`
}

func computeMetrics(total int, tasks map[string]*Task) Metrics {
	m := Metrics{TotalTasks: total}
	var durationSum int64
	for _, t := range tasks {
		switch t.Status {
		case StatusCompleted:
			m.CompletedTasks++
			durationSum += t.DurationMillis()
		case StatusFailed:
			m.FailedTasks++
		}
	}
	if m.CompletedTasks > 0 {
		m.AverageDurationMillis = durationSum / int64(m.CompletedTasks)
	}
	if m.TotalTasks > 0 {
		// Round to the nearest percent rather than truncating.
		m.SuccessRatePercent = (m.CompletedTasks*100 + m.TotalTasks/2) / m.TotalTasks
	}
	return m
}
