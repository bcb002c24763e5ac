package transcribe

import "testing"

func TestReporter_IntervalThrottle(t *testing.T) {
	var got []Progress
	r := NewReporter(10, 100, func(p Progress) { got = append(got, p) })

	r.Update(2)  // first update always emits
	r.Update(5)  // < 10s since last emit, suppressed
	r.Update(13) // >= 10s, emits
	r.Update(14) // suppressed
	r.Update(25) // emits

	if len(got) != 3 {
		t.Fatalf("emitted %d notifications, want 3 (%+v)", len(got), got)
	}
	if got[0].Processed != 2 || got[1].Processed != 13 || got[2].Processed != 25 {
		t.Errorf("got %+v", got)
	}
}

func TestReporter_Monotonic(t *testing.T) {
	var got []Progress
	r := NewReporter(1, 100, func(p Progress) { got = append(got, p) })

	r.Update(50)
	r.Update(30) // regression ignored
	r.Update(60)

	for i := 1; i < len(got); i++ {
		if got[i].Processed < got[i-1].Processed {
			t.Fatalf("processed regressed: %+v", got)
		}
	}
}

func TestReporter_ClampsToTotal(t *testing.T) {
	var last Progress
	r := NewReporter(1, 50, func(p Progress) { last = p })
	r.Update(80)
	if last.Processed != 50 {
		t.Errorf("processed = %g, want clamped to total 50", last.Processed)
	}
}

func TestReporter_Finish(t *testing.T) {
	var got []Progress
	r := NewReporter(10, 42, func(p Progress) { got = append(got, p) })
	r.Update(5)
	r.Finish()

	final := got[len(got)-1]
	if final.Processed != 42 || final.Total != 42 {
		t.Errorf("final = %+v, want processed == total == 42", final)
	}
}

func TestReporter_NilSink(t *testing.T) {
	r := NewReporter(10, 100, nil)
	// must not panic
	r.Update(5)
	r.Finish()
}
