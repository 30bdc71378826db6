package system

import "context"

// Service represents a lifecycle-managed component. Background collaborators
// implement this interface so the application can start and stop them
// deterministically.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
