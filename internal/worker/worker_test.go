package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEffectiveWorkers(t *testing.T) {
	if got := EffectiveWorkers(8, true); got != 1 {
		t.Fatalf("file-parallel should force 1 worker, got %d", got)
	}
	if got := EffectiveWorkers(4, false); got != 4 {
		t.Fatalf("got %d, want 4", got)
	}
	if got := EffectiveWorkers(0, false); got != runtime.NumCPU() {
		t.Fatalf("got %d, want NumCPU %d", got, runtime.NumCPU())
	}
	if got := EffectiveWorkers(-1, false); got != runtime.NumCPU() {
		t.Fatalf("got %d, want NumCPU %d", got, runtime.NumCPU())
	}
}

func TestProcessRunsAllRows(t *testing.T) {
	var count int64
	errs := Process(context.Background(), 100, 4, func(i int) error {
		atomic.AddInt64(&count, 1)
		return nil
	})
	if count != 100 {
		t.Fatalf("ran %d rows, want 100", count)
	}
	for i, err := range errs {
		if err != nil {
			t.Fatalf("row %d: %v", i, err)
		}
	}
}

func TestProcessIsolatesRowErrors(t *testing.T) {
	boom := errors.New("boom")
	errs := Process(context.Background(), 10, 3, func(i int) error {
		if i == 4 {
			return boom
		}
		return nil
	})
	for i, err := range errs {
		if i == 4 {
			if !errors.Is(err, boom) {
				t.Fatalf("row 4: got %v", err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("row %d should have succeeded: %v", i, err)
		}
	}
}

func TestProcessRecoversPanics(t *testing.T) {
	errs := Process(context.Background(), 5, 2, func(i int) error {
		if i == 2 {
			panic(fmt.Sprintf("bad row %d", i))
		}
		return nil
	})
	if errs[2] == nil {
		t.Fatal("panic should surface as a row error")
	}
	for i, err := range errs {
		if i != 2 && err != nil {
			t.Fatalf("row %d: %v", i, err)
		}
	}
}

func TestProcessSingleWorkerIsSequential(t *testing.T) {
	order := make([]int, 0, 20)
	Process(context.Background(), 20, 1, func(i int) error {
		order = append(order, i)
		return nil
	})
	for i, v := range order {
		if v != i {
			t.Fatalf("single worker ran out of order: %v", order)
		}
	}
}

func TestProcessCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	errs := Process(ctx, 5, 2, func(i int) error { return nil })
	canceled := 0
	for _, err := range errs {
		if errors.Is(err, context.Canceled) {
			canceled++
		}
	}
	if canceled == 0 {
		t.Fatal("expected unstarted rows to carry the context error")
	}
}
