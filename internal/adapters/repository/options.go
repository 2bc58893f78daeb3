package repository

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithValues seeds the store.
func WithValues(values map[string]string) Option {
	return func(s *MemoryStore) {
		for k, v := range values {
			s.values[k] = v
		}
	}
}
