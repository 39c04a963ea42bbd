package units

// Microseconds per second, the pivot for turning intervals into rates
const microsPerSecond = 1e6

// IntervalToHz returns the pulse rate implied by a mean interval in
// microseconds. Zero or negative intervals yield zero rather than +Inf.
func IntervalToHz(meanIntervalMicros float64) float64 {
	if meanIntervalMicros <= 0 {
		return 0
	}
	return microsPerSecond / meanIntervalMicros
}

// HzToCPM converts a rate in pulses per second to counts per minute
func HzToCPM(hz float64) float64 {
	return hz * 60
}

// CPMToHz converts counts per minute to pulses per second
func CPMToHz(cpm float64) float64 {
	return cpm / 60
}
