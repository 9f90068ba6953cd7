package history_test

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/torosent/crankbench/internal/history"
	"github.com/torosent/crankbench/internal/metrics"
)

func TestAppendAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "history.jsonl")
	store, err := history.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	first := history.NewRecord(metrics.Snapshot{Name: "api", Total: 10, AvgMs: 12}, "fixed-count/single", 1, 1)
	second := history.NewRecord(metrics.Snapshot{Name: "db", Total: 5, AvgMs: 3}, "duration/concurrent", 4, 2)
	if err := store.Append(first); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := store.Append(second); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	records, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if records[0].ID != first.ID || records[1].Result.Name != "db" {
		t.Errorf("records out of order: %+v", records)
	}
	if records[1].Strategy != "duration/concurrent" || records[1].Concurrency != 2 {
		t.Errorf("record = %+v", records[1])
	}
	if records[0].Result.AvgMs != 12 {
		t.Errorf("AvgMs = %v, want 12", records[0].Result.AvgMs)
	}
	if first.ID == "" || first.ID == second.ID {
		t.Errorf("IDs not unique: %q, %q", first.ID, second.ID)
	}
}

func TestLoadMissingFile(t *testing.T) {
	store, err := history.Open(filepath.Join(t.TempDir(), "none.jsonl"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	records, err := store.Load()
	if err != nil || records != nil {
		t.Fatalf("Load() = %v, %v; want nil, nil", records, err)
	}
}

func TestLoadCorruptLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	if err := os.WriteFile(path, []byte("{\"id\":\"a\"}\n\nnot json\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	store, _ := history.Open(path)
	_, err := store.Load()
	if err == nil || !strings.Contains(err.Error(), "line 3") {
		t.Fatalf("Load() error = %v, want error on line 3", err)
	}
}

func TestLatest(t *testing.T) {
	store, _ := history.Open(filepath.Join(t.TempDir(), "history.jsonl"))
	_ = store.Append(
		history.NewRecord(metrics.Snapshot{Name: "api", AvgMs: 10}, "", 1, 1),
		history.NewRecord(metrics.Snapshot{Name: "db", AvgMs: 1}, "", 1, 1),
		history.NewRecord(metrics.Snapshot{Name: "api", AvgMs: 8}, "", 1, 1),
	)

	rec, ok, err := store.Latest("api")
	if err != nil || !ok {
		t.Fatalf("Latest() = %v, %v", ok, err)
	}
	if rec.Result.AvgMs != 8 {
		t.Errorf("Latest AvgMs = %v, want 8", rec.Result.AvgMs)
	}
	if _, ok, _ := store.Latest("cache"); ok {
		t.Error("Latest() found a workload never recorded")
	}
}

func TestConcurrentAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store, err := history.Open(path)
			if err != nil {
				t.Error(err)
				return
			}
			if err := store.Append(history.NewRecord(metrics.Snapshot{Name: "api"}, "", 1, 1)); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	store, _ := history.Open(path)
	records, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(records) != 8 {
		t.Fatalf("len(records) = %d, want 8", len(records))
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := history.Open(""); err == nil {
		t.Fatal("Open(\"\") error = nil")
	}
}

func TestCompare(t *testing.T) {
	prev := metrics.Snapshot{AvgMs: 10, LowerCIMs: 9, UpperCIMs: 11}

	faster := history.Compare(prev, metrics.Snapshot{AvgMs: 5, LowerCIMs: 4.5, UpperCIMs: 5.5})
	if !faster.Faster || faster.Overlapped {
		t.Errorf("faster delta = %+v", faster)
	}
	if faster.AvgChange != -0.5 {
		t.Errorf("AvgChange = %v, want -0.5", faster.AvgChange)
	}
	if got := faster.String(); !strings.Contains(got, "-50.0%") || !strings.Contains(got, "faster") {
		t.Errorf("String() = %q", got)
	}

	noise := history.Compare(prev, metrics.Snapshot{AvgMs: 10.5, LowerCIMs: 9.5, UpperCIMs: 11.5})
	if noise.Faster || !noise.Overlapped {
		t.Errorf("noise delta = %+v", noise)
	}
	if got := noise.String(); !strings.Contains(got, "slower, within noise") {
		t.Errorf("String() = %q", got)
	}
}
