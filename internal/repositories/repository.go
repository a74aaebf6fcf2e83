package repositories

import "context"

// Repository aggregates every repository the services depend on
type Repository interface {
	Test() TestRepository
	Question() QuestionRepository
	Group() GroupRepository
	User() UserRepository
	Attempt() AttemptRepository

	// WithTransaction runs fn against repositories bound to one transaction
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	Ping(ctx context.Context) error
	Close() error
}

// RepositoryManager owns the repository lifecycle
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
