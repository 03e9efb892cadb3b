package pagestore

// Close stops the background checkpointer and releases the WAL and every
// data file handle. Records not yet checkpointed stay in the WAL and are
// replayed by the next Open.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return translateError(s.mgr.Close())
}
