package transcribe

// Progress is one decode progress notification.
type Progress struct {
	Processed float64 // seconds of audio decoded so far
	Total     float64 // total seconds of audio
}

// ProgressFunc receives progress notifications. It is invoked synchronously
// at decode-time checkpoints and must not block.
type ProgressFunc func(Progress)

// Reporter throttles engine progress callbacks to one notification per
// configured interval of processed audio. The processed measure it emits is
// monotonically non-decreasing; Finish emits the completion notification
// with Processed == Total. A job that fails before any progress emits
// nothing.
type Reporter struct {
	interval float64
	total    float64
	sink     ProgressFunc

	processed   float64
	lastEmitted float64
	started     bool
}

// NewReporter creates a reporter emitting to sink every interval seconds of
// processed audio. A nil sink disables reporting.
func NewReporter(interval, total float64, sink ProgressFunc) *Reporter {
	if interval <= 0 {
		interval = 10
	}
	return &Reporter{interval: interval, total: total, sink: sink}
}

// Update records that the engine has processed the given number of audio
// seconds. Regressing values are ignored.
func (r *Reporter) Update(processed float64) {
	if r.sink == nil || processed <= r.processed {
		return
	}
	if r.total > 0 && processed > r.total {
		processed = r.total
	}
	r.processed = processed

	if r.started && processed-r.lastEmitted < r.interval {
		return
	}
	r.started = true
	r.lastEmitted = processed
	r.sink(Progress{Processed: processed, Total: r.total})
}

// Finish emits the final notification (processed == total). Call only on
// successful decode completion.
func (r *Reporter) Finish() {
	if r.sink == nil {
		return
	}
	r.processed = r.total
	r.sink(Progress{Processed: r.total, Total: r.total})
}
