package chunk

// Metadata describes one chunk known to a tier, as reported by the
// key-prefix introspection calls.
type Metadata struct {
	Key      Key
	NumBytes int64
}
