package bridge

import (
	"errors"
	"fmt"

	"github.com/domainbridge/domainbridge-go/runtime"
)

var (
	// ErrSameDomain indicates a bridge request whose source and
	// destination domains are identical.
	ErrSameDomain = errors.New("bridge: source and destination domains are the same")

	// ErrRegistryClosed indicates a request against a closed registry.
	ErrRegistryClosed = errors.New("bridge: registry is closed")
)

// TypeMismatchError reports a discovered publisher whose declared message
// type disagrees with the type the bridge was requested for. The
// publisher is excluded from QoS matching and never relayed; the bridge
// keeps running for conforming publishers.
type TypeMismatchError struct {
	Topic      runtime.Topic
	EndpointID string
	Discovered string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("bridge: publisher %s on topic %q declares type %q, bridge requested %q",
		e.EndpointID, e.Topic.Name, e.Discovered, e.Topic.Type)
}

// EndpointCreationError reports a failed endpoint pair construction. The
// bridge stays in its previous state and the creation is retried on a
// bounded timer or the next discovery snapshot.
type EndpointCreationError struct {
	Topic       runtime.Topic
	Source      runtime.DomainID
	Destination runtime.DomainID
	Err         error
}

func (e *EndpointCreationError) Error() string {
	return fmt.Sprintf("bridge: creating endpoint pair for %q (%s -> %s): %v",
		e.Topic.Name, e.Source, e.Destination, e.Err)
}

func (e *EndpointCreationError) Unwrap() error {
	return e.Err
}
