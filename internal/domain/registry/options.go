package registry

const defaultRefCacheSize = 4096

type hubConfig struct {
	refCacheSize int
}

// Option configures a Hub.
type Option func(*Hub)

// WithRefCacheSize sets the capacity of the shared formula reference
// cache. Sessions of all documents share one cache, so identical
// formulas are scanned once.
func WithRefCacheSize(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.config.refCacheSize = size
		}
	}
}
