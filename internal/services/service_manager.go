package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/qzplatform/qz-service/internal/events"
	"github.com/qzplatform/qz-service/internal/mailer"
	"github.com/qzplatform/qz-service/internal/repositories"
	"github.com/qzplatform/qz-service/internal/sharelink"
	"github.com/qzplatform/qz-service/internal/validator"
)

// ServiceManagerConfig holds the knobs the services read at construction
type ServiceManagerConfig struct {
	BaseURL           string
	AccessCodeLength  int
	PasswordLength    int
	SchedulerInterval time.Duration
}

func (c *ServiceManagerConfig) Validate() error {
	var problems []string
	if c.AccessCodeLength <= 0 {
		problems = append(problems, "access code length must be positive")
	}
	if c.PasswordLength < 8 {
		problems = append(problems, "generated password length must be at least 8")
	}
	if c.SchedulerInterval <= 0 {
		problems = append(problems, "scheduler interval must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Dependencies are the collaborators shared by every service
type Dependencies struct {
	DB        *gorm.DB
	Repo      repositories.Repository
	Logger    *slog.Logger
	Validator *validator.Validator
	Mailer    mailer.Mailer
	Codec     *sharelink.Codec
	Publisher events.EventPublisher
	// Clock defaults to time.Now in UTC
	Clock Clock
}

type serviceManager struct {
	deps   Dependencies
	config ServiceManagerConfig

	administerService AdministerService
	testService       TestService
	questionService   QuestionService
	groupService      GroupService
	userService       UserService
	attemptService    AttemptService
	resultsService    ResultsService
	scheduler         *Scheduler

	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

func NewServiceManager(deps Dependencies, config ServiceManagerConfig) ServiceManager {
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &serviceManager{deps: deps, config: config}
}

// Initialize wires every service. It is safe to call more than once.
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}
	if err := sm.config.Validate(); err != nil {
		return err
	}

	sm.deps.Logger.Info("Initializing service manager")

	d := sm.deps
	provisioner := &userProvisioner{
		passwordLength: sm.config.PasswordLength,
		loginURL:       strings.TrimRight(sm.config.BaseURL, "/") + "/login",
		mailer:         d.Mailer,
		publisher:      d.Publisher,
		logger:         d.Logger,
	}
	resolver := NewAssignmentResolver(d.Mailer, d.Codec, provisioner, d.Publisher, d.Logger)

	sm.administerService = NewAdministerService(d.Repo, d.DB, d.Logger, d.Validator, resolver, sm.config.AccessCodeLength, d.Clock)
	sm.testService = NewTestService(d.Repo, d.DB, d.Logger, d.Validator, d.Codec, sm.config.AccessCodeLength, d.Clock)
	sm.questionService = NewQuestionService(d.Repo, d.DB, d.Logger, d.Validator)
	sm.groupService = NewGroupService(d.Repo, d.DB, d.Logger, d.Validator, provisioner)
	sm.userService = NewUserService(d.Repo, d.DB, d.Logger, provisioner)
	sm.attemptService = NewAttemptService(d.Repo, d.DB, d.Logger, d.Validator, d.Publisher, d.Clock)
	sm.resultsService = NewResultsService(d.Repo, d.DB, d.Logger)
	sm.scheduler = NewScheduler(d.Repo, d.DB, resolver, d.Logger, sm.config.SchedulerInterval, d.Clock)

	sm.initialized = true
	sm.deps.Logger.Info("Service manager initialized successfully")
	return nil
}

func (sm *serviceManager) mustBeReady() {
	if !sm.initialized {
		panic("service manager not initialized")
	}
}

func (sm *serviceManager) Administer() AdministerService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeReady()
	return sm.administerService
}

func (sm *serviceManager) Test() TestService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeReady()
	return sm.testService
}

func (sm *serviceManager) Question() QuestionService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeReady()
	return sm.questionService
}

func (sm *serviceManager) Group() GroupService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeReady()
	return sm.groupService
}

func (sm *serviceManager) User() UserService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeReady()
	return sm.userService
}

func (sm *serviceManager) Attempt() AttemptService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeReady()
	return sm.attemptService
}

func (sm *serviceManager) Results() ResultsService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeReady()
	return sm.resultsService
}

func (sm *serviceManager) Scheduler() *Scheduler {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeReady()
	return sm.scheduler
}

// Health and lifecycle
func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	if err := sm.deps.Repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}
	return nil
}

// Shutdown stops the poller and waits for an in-flight tick
func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}
	sm.deps.Logger.Info("Shutting down service manager")

	if sm.scheduler != nil {
		if err := sm.scheduler.Stop(ctx); err != nil {
			sm.deps.Logger.Error("Failed to stop scheduler", "error", err)
		}
	}

	sm.shutdown = true
	sm.deps.Logger.Info("Service manager shut down completed")
	return nil
}
