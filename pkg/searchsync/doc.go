// Package searchsync keeps a search index in step with relational data.
//
// Database triggers record every insert, update and delete of a watched
// entity in a capture table. A poller drains the capture tables on a fixed
// delay, merges them into one ordered batch, and applies the batch to the
// index from fresh entity snapshots. Capture rows are consumed only after the
// batch is applied, so delivery is at-least-once.
//
// A Sync is the handle to one running instance:
//
//	s, err := searchsync.New(ctx, searchsync.Options{Config: cfg})
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//	if err := s.Start(ctx); err != nil {
//		return err
//	}
package searchsync
