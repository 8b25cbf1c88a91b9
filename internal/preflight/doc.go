// Package preflight checks that a searchsync deployment can run: the
// database is reachable, capture tables and triggers exist, and the index
// directory is usable.
//
//	checker := preflight.New(cfg, model, preflight.WithDatabase(db))
//	results := checker.RunAll(ctx)
//	if checker.HasCriticalFailures(results) {
//	    // refuse to start
//	}
package preflight
