package registry

import "testing"

func TestMemoryRegistry(t *testing.T) {
	runConformance(t, func(*testing.T) Registry { return NewMemory() })
}
