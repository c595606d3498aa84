package memory

// dropSettings leaves the store as a database would be before seeding.
func (s *Store) dropSettings() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = nil
}
