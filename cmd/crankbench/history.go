package main

import (
	"fmt"
	"io"

	"github.com/torosent/crankbench/internal/config"
	"github.com/torosent/crankbench/internal/history"
)

// recordHistory compares each result with the previous run of the same
// workload, then appends the results.
func recordHistory(cfg *config.Config, out outcome, stdout, stderr io.Writer) error {
	store, err := history.Open(cfg.HistoryFile)
	if err != nil {
		return err
	}

	w := stdout
	if !humanOutput(cfg) {
		w = stderr
	}

	records := make([]history.Record, 0, len(out.results))
	for _, s := range out.results {
		prev, ok, err := store.Latest(s.Name)
		if err != nil {
			return err
		}
		if ok && !s.Cancelled && s.Samples > 0 {
			fmt.Fprintf(w, "vs previous %s run: %s\n", s.Name, history.Compare(prev.Result, s))
		}
		records = append(records, history.NewRecord(s, out.strategy, cfg.Workers, cfg.Concurrency))
	}
	return store.Append(records...)
}
