package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EventsChecker checks event pipeline availability.
type EventsChecker interface {
	HealthCheck(ctx context.Context) error
}
