package clusterserver

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeFDSource struct {
	open, limit int
	err         error
}

func (f *fakeFDSource) Descriptors() (int, int, error) {
	return f.open, f.limit, f.err
}

func TestFDMonitor_Transitions(t *testing.T) {
	src := &fakeFDSource{open: 10, limit: 100}

	type report struct {
		notEnough bool
		available int
	}
	var reports []report
	m := NewFDMonitor(src, 20, time.Hour, func(notEnough bool, avail int) {
		reports = append(reports, report{notEnough, avail})
	}, discardLogger())

	m.Check()
	src.open = 85
	m.Check()
	src.open = 90
	m.Check()
	src.err = errors.New("no proc")
	m.Check()
	src.err = nil
	src.open = 50
	m.Check()

	want := []report{{true, 15}, {false, 50}}
	if len(reports) != len(want) {
		t.Fatalf("reports = %+v, want %+v", reports, want)
	}
	for i := range want {
		if reports[i] != want[i] {
			t.Errorf("reports[%d] = %+v, want %+v", i, reports[i], want[i])
		}
	}
}

func TestFDMonitor_Run(t *testing.T) {
	src := &fakeFDSource{open: 99, limit: 100}
	got := make(chan int, 4)
	m := NewFDMonitor(src, 10, 10*time.Millisecond, func(_ bool, avail int) { got <- avail }, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	select {
	case avail := <-got:
		if avail != 1 {
			t.Errorf("available = %d, want 1", avail)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no report from Run")
	}
	cancel()
	<-done
}

func TestProcFDSource(t *testing.T) {
	open, limit, err := procFDSource{}.Descriptors()
	if err != nil {
		t.Skipf("procfs not available: %v", err)
	}
	if open <= 0 || limit < open {
		t.Errorf("Descriptors() = %d/%d", open, limit)
	}
}
