package http

import (
	"context"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

// AllReady combines readiness checkers; the first failure wins.
type AllReady []sharedobs.ReadinessChecker

// CheckReadiness implements sharedobs.ReadinessChecker.
func (a AllReady) CheckReadiness(ctx context.Context) error {
	for _, c := range a {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}
