package runtime

import "errors"

var (
	// ErrEmptyTopicName indicates a topic with no name.
	ErrEmptyTopicName = errors.New("runtime: topic name is empty")

	// ErrEmptyTopicType indicates a topic with no type identifier.
	ErrEmptyTopicType = errors.New("runtime: topic type is empty")

	// ErrUnknownDomain indicates a domain id the runtime is not attached to.
	ErrUnknownDomain = errors.New("runtime: unknown domain")

	// ErrClosed indicates an operation on a closed runtime or endpoint.
	ErrClosed = errors.New("runtime: closed")

	// ErrNilHandler indicates a subscription created without a handler.
	ErrNilHandler = errors.New("runtime: delivery handler is nil")
)
