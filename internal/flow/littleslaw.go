package flow

// littlesLaw predicts cycle time as avg WIP over arrival rate and reports
// how far the measured cycle time deviates from it. Arrival rate follows the
// completion count, treating the system as balanced over the window.
func littlesLaw(completions int, series []WIPPoint, cycleDays []float64, win Window) LittlesLawMetrics {
	m := LittlesLawMetrics{}

	days := win.Days()
	if days <= 0 {
		return m
	}
	arrival := float64(completions) / float64(days)
	m.ArrivalRatePerDay = ptr(round2(arrival))

	avgWIP := -1.0
	if len(series) > 0 {
		total := 0
		for _, p := range series {
			total += p.Count
		}
		avgWIP = float64(total) / float64(len(series))
		m.AvgWIP = ptr(round2(avgWIP))
	}

	var measured float64
	if len(cycleDays) > 0 {
		measured = mean(cycleDays)
		m.AvgCycleTimeDays = round1Ptr(measured)
	}

	if arrival > 0 && avgWIP >= 0 {
		predicted := avgWIP / arrival
		m.PredictedCycleTimeDays = round1Ptr(predicted)
		if measured > 0 {
			m.DeviationPct = round1Ptr((predicted - measured) / measured * 100)
		}
	}
	return m
}
