// Package container provides dependency injection for all singleton services
package container

import (
	"fmt"

	"github.com/LinguaQuest/linguaquest-go/internal/application/services"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/caching/manager"
	tablecreator "github.com/LinguaQuest/linguaquest-go/internal/infrastructure/database"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/messaging"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/logging"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/monitoring"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/performance"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/persistence/database"
	queuerepo "github.com/LinguaQuest/linguaquest-go/internal/infrastructure/persistence/queue"
	rewardsrepo "github.com/LinguaQuest/linguaquest-go/internal/infrastructure/persistence/rewards"
	userrepo "github.com/LinguaQuest/linguaquest-go/internal/infrastructure/persistence/user"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/ratelimit"
	"github.com/LinguaQuest/linguaquest-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Application services (singletons)
	AuthService           *services.AuthService
	SessionService        *services.SessionService
	LedgerService         *services.LedgerService
	SyncService           *services.SyncService
	ReconciliationService *services.ReconciliationService
	AggregateService      *services.AggregateService
	DashboardService      *services.DashboardService

	// Infrastructure dependencies
	DB           *database.DB
	CacheManager *manager.Manager
	EventBus     *messaging.EventBus
	RateLimiter  *ratelimit.Limiter
	Monitor      *monitoring.SystemMonitor
	Logger       *logging.ChanneledLogger
	PerfTracker  *performance.Tracker
}

// NewContainer creates and wires all singleton services
func NewContainer() (*Container, error) {
	logger, err := logging.NewChanneledLogger(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	perfTracker := performance.NewTracker(performance.DefaultTrackerConfig())

	driver, dsn := config.DatabaseDSN()
	db, err := database.NewConnectionWithLogger(driver, dsn, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open durable store: %w", err)
	}
	if err := tablecreator.NewTableCreator().CreateSchema(db.DB); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	cacheManager := manager.NewManager(logger)
	eventBus := messaging.NewEventBus(logger)
	rateLimiter := ratelimit.NewLimiter(logger)

	grantRepo := rewardsrepo.NewSQLGrantRepository(db, logger)
	progressRepo := rewardsrepo.NewSQLProgressRepository(db, logger)
	queueRepo := queuerepo.NewSQLQueueRepository(db, logger)
	learnerRepo := userrepo.NewSQLLearnerRepository(db, logger)

	syncService := services.NewSyncService(queueRepo, grantRepo, progressRepo, learnerRepo, cacheManager, logger, perfTracker)
	aggregateService := services.NewAggregateService(grantRepo, progressRepo, cacheManager, eventBus, syncService, logger, perfTracker)
	ledgerService := services.NewLedgerService(cacheManager, eventBus, syncService, aggregateService, logger, perfTracker)
	reconciliationService := services.NewReconciliationService(grantRepo, cacheManager, logger, perfTracker)
	sessionService := services.NewSessionService(learnerRepo, grantRepo, progressRepo, cacheManager, eventBus, syncService, logger, perfTracker)
	authService := services.NewAuthService(learnerRepo, learnerRepo, logger, perfTracker)
	dashboardService := services.NewDashboardService(progressRepo, cacheManager, aggregateService, logger, perfTracker)
	monitor := monitoring.NewSystemMonitor(cacheManager, queueRepo, rateLimiter, perfTracker, logger)

	return &Container{
		AuthService:           authService,
		SessionService:        sessionService,
		LedgerService:         ledgerService,
		SyncService:           syncService,
		ReconciliationService: reconciliationService,
		AggregateService:      aggregateService,
		DashboardService:      dashboardService,

		DB:           db,
		CacheManager: cacheManager,
		EventBus:     eventBus,
		RateLimiter:  rateLimiter,
		Monitor:      monitor,
		Logger:       logger,
		PerfTracker:  perfTracker,
	}, nil
}

// Close releases the container's held resources.
func (c *Container) Close() error {
	c.SyncService.Wait()
	if err := c.DB.Close(); err != nil {
		return err
	}
	return c.Logger.Close()
}
