package state

import "fmt"

// Open returns the Store for backend ("json" or "bolt") at path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "json":
		return NewFileStore(path), nil
	case "bolt":
		return OpenBoltStore(path)
	default:
		return nil, fmt.Errorf("unknown state backend %q", backend)
	}
}
