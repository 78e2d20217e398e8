package csi

// Report is what the pipeline hands to the result sink on every reporting
// tick. A nil field means no value is available; BreathingRate is always nil
// because no estimator exists.
type Report struct {
	Motion        *bool
	Metric        *float64
	BreathingRate *int
}

// ResultSink receives reports. OnResult must not block; a sink that cannot
// take the report drops it.
type ResultSink interface {
	OnResult(r Report)
}

// ReportFromResult wraps a classifier result for the sink.
func ReportFromResult(r *Result) Report {
	if r == nil {
		return Report{}
	}
	motion, metric := r.Motion, r.Metric
	return Report{Motion: &motion, Metric: &metric}
}
