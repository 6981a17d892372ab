package codec

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Registry maps codec names and transfer syntax UIDs to codecs.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec // keyed by both name and UID
}

var defaultRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[string]Codec)}
}

// Register adds codec to the default registry.
func Register(codec Codec) {
	defaultRegistry.Register(codec)
}

// Get looks up a codec in the default registry by name or UID.
func Get(nameOrUID string) (Codec, error) {
	return defaultRegistry.Get(nameOrUID)
}

// List returns the codecs of the default registry ordered by UID.
func List() []Codec {
	return defaultRegistry.List()
}

// Register adds codec under its name and its UID, replacing any codec
// registered under either key.
func (r *Registry) Register(codec Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.codecs[codec.Name()] = codec
	r.codecs[codec.UID()] = codec
}

// Get looks up a codec by name or UID.
func (r *Registry) Get(nameOrUID string) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codec, ok := r.codecs[nameOrUID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCodecNotFound, nameOrUID)
	}
	return codec, nil
}

// List returns each registered codec once, ordered by UID.
func (r *Registry) List() []Codec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[Codec]bool)
	var codecs []Codec
	for _, codec := range r.codecs {
		if !seen[codec] {
			seen[codec] = true
			codecs = append(codecs, codec)
		}
	}
	slices.SortFunc(codecs, func(a, b Codec) int {
		return strings.Compare(a.UID(), b.UID())
	})
	return codecs
}
