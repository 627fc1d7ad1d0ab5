package bytestream

import (
	"fmt"
	"sync"

	"github.com/BaSui01/visionflow/types"
)

// Registry maps topics to stream handlers. One handler per topic.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds h to topic. Registering a topic twice is an error.
func (r *Registry) Register(topic string, h Handler) error {
	if topic == "" || h == nil {
		return types.NewError(types.ErrInvalidRequest, "topic and handler are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[topic]; exists {
		return types.NewError(types.ErrDuplicateHandler,
			fmt.Sprintf("byte stream handler already registered for topic %q", topic))
	}
	r.handlers[topic] = h
	return nil
}

// Unregister removes the handler of topic, if any.
func (r *Registry) Unregister(topic string) {
	r.mu.Lock()
	delete(r.handlers, topic)
	r.mu.Unlock()
}

// Lookup returns the handler bound to topic.
func (r *Registry) Lookup(topic string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[topic]
	return h, ok
}

// Dispatch hands reader to the topic handler. It reports false when no
// handler is registered, in which case the caller should discard the stream.
func (r *Registry) Dispatch(reader Reader, participantIdentity string) bool {
	h, ok := r.Lookup(reader.Info().Topic)
	if !ok {
		return false
	}
	h(reader, participantIdentity)
	return true
}
