package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/Abraxas-365/chatflow/channels/bitrix"
	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/engine/delayscheduler"
	"github.com/Abraxas-365/chatflow/engine/engineinfra"
	"github.com/Abraxas-365/chatflow/engine/flowapi"
	"github.com/Abraxas-365/chatflow/engine/flowexec"
	"github.com/Abraxas-365/chatflow/engine/flowsrv"
	"github.com/Abraxas-365/chatflow/engine/nodeexec"
	"github.com/Abraxas-365/chatflow/engine/predicate"
	"github.com/Abraxas-365/chatflow/engine/triggerhandler"
	"github.com/Abraxas-365/chatflow/engine/webhookrouter"
	"github.com/Abraxas-365/chatflow/pkg/agent"
	"github.com/Abraxas-365/chatflow/pkg/auth"
	"github.com/Abraxas-365/chatflow/pkg/config"
	"github.com/Abraxas-365/chatflow/pkg/kernel"
	"github.com/Abraxas-365/chatflow/pkg/media"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
)

// schemaEnsurer is implemented by the SQL flow repositories.
type schemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

// Container contains all application dependencies
type Container struct {
	// =================================================================
	// CONFIGURATION & INFRASTRUCTURE
	// =================================================================
	Config      *config.Config
	DB          *sqlx.DB
	RedisClient *redis.Client

	// =================================================================
	// STORAGE & SUSPENSION
	// =================================================================
	FlowRepo       engine.FlowRepository
	DelayScheduler engine.DelayScheduler
	ReplyRegistry  engine.ReplyRegistry

	// =================================================================
	// GATEWAY & PROVIDERS
	// =================================================================
	Gateway       *bitrix.Client
	LanguageModel engine.LanguageModel
	MediaResolver engine.MediaResolver

	// =================================================================
	// ENGINE
	// =================================================================
	ExpressionEvaluator engine.ExpressionEvaluator
	Predicate           engine.PredicateEvaluator
	FlowValidator       *engine.FlowValidator
	FlowEngine          *flowexec.FlowEngine
	FlowService         *flowsrv.FlowService
	TriggerHandler      *triggerhandler.TriggerHandler
	WebhookRouter       *webhookrouter.Router

	// =================================================================
	// HTTP
	// =================================================================
	FlowHandler    *flowapi.FlowHandler
	FlowRoutes     *flowapi.FlowRoutes
	AuthMiddleware *auth.AuthMiddleware
}

// NewContainer creates and initializes the dependency container
func NewContainer(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client) (*Container, error) {
	c := &Container{
		Config:      cfg,
		DB:          db,
		RedisClient: redisClient,
	}

	log.Println("🔧 Initializing application components...")

	if err := c.initInfrastructure(); err != nil {
		return nil, err
	}
	c.initProviders()
	if err := c.initEngine(); err != nil {
		return nil, err
	}
	c.initHandlers()

	log.Println("✅ All components initialized successfully")
	return c, nil
}

// =================================================================
// INFRASTRUCTURE 🗄️
// =================================================================

func (c *Container) initInfrastructure() error {
	log.Println("  🗄️  Initializing storage...")

	switch c.Config.Database.Driver {
	case "sqlite":
		c.FlowRepo = engineinfra.NewSQLiteFlowRepository(c.DB)
	default:
		c.FlowRepo = engineinfra.NewPostgresFlowRepository(c.DB)
	}

	if ensurer, ok := c.FlowRepo.(schemaEnsurer); ok {
		if err := ensurer.EnsureSchema(context.Background()); err != nil {
			return fmt.Errorf("failed to prepare flows table: %w", err)
		}
	}
	log.Printf("    ✅ FlowRepo initialized (%s)", c.Config.Database.Driver)

	schedulerOpts := delayscheduler.Options{
		SyncThreshold: c.Config.Engine.SyncDelayThreshold,
		PollSchedule:  c.Config.Engine.PollSchedule,
	}

	if c.RedisClient != nil {
		c.DelayScheduler = delayscheduler.NewRedisDelayScheduler(c.RedisClient, schedulerOpts)
		c.ReplyRegistry = engineinfra.NewRedisReplyRegistry(c.RedisClient, engineinfra.DefaultReplyTTL)
		log.Println("    ✅ Redis delay scheduler and reply registry initialized")
	} else {
		c.DelayScheduler = delayscheduler.NewMemoryDelayScheduler(schedulerOpts)
		c.ReplyRegistry = engineinfra.NewMemoryReplyRegistry(engineinfra.DefaultReplyTTL)
		log.Println("    ⚠️  Redis disabled, suspended runs will not survive a restart")
	}

	return nil
}

// =================================================================
// PROVIDERS 🔌
// =================================================================

func (c *Container) initProviders() {
	log.Println("  🔌 Initializing providers...")

	c.Gateway = bitrix.NewClient(c.Config.Bitrix)
	if c.Config.Bitrix.WebhookURL == "" {
		log.Println("    ⚠️  BITRIX_WEBHOOK_URL not set, gateway calls will fail")
	} else {
		log.Println("    ✅ Bitrix gateway initialized")
	}

	c.LanguageModel = agent.NewReplier(nil, agent.Options{Model: c.Config.OpenAI.Model})
	log.Printf("    ✅ Language model initialized (default model: %s)", c.Config.OpenAI.Model)

	c.MediaResolver = media.NewS3Resolver(c.Config.Media)
	log.Println("    ✅ Media resolver initialized")
}

// =================================================================
// ENGINE ⚙️
// =================================================================

func (c *Container) initEngine() error {
	log.Println("  ⚙️  Initializing flow engine...")

	c.ExpressionEvaluator = engine.NewCelEvaluator()
	c.Predicate = predicate.NewCRMPredicate(c.Gateway, c.ExpressionEvaluator)

	validator, err := engine.NewFlowValidator()
	if err != nil {
		return fmt.Errorf("failed to compile flow schema: %w", err)
	}
	c.FlowValidator = validator

	executors := nodeexec.NewExecutors(nodeexec.Dependencies{
		Gateway:      c.Gateway,
		Predicate:    c.Predicate,
		Model:        c.LanguageModel,
		Media:        c.MediaResolver,
		Expr:         c.ExpressionEvaluator,
		HTTPClient:   &http.Client{},
		Delay:        c.DelayScheduler,
		APITimeout:   c.Config.Engine.APITimeout,
		DefaultModel: c.Config.OpenAI.Model,
	})

	c.FlowEngine, err = flowexec.NewFlowEngine(flowexec.Options{
		Scheduler:   c.DelayScheduler,
		Replies:     c.ReplyRegistry,
		NodeTimeout: c.Config.Engine.NodeTimeout,
	}, executors...)
	if err != nil {
		return fmt.Errorf("failed to build flow engine: %w", err)
	}
	log.Printf("    ✅ FlowEngine initialized with %d executors", len(executors))

	c.FlowService = flowsrv.NewFlowService(
		c.FlowRepo,
		c.FlowValidator,
		c.FlowEngine,
		c.ReplyRegistry,
		c.Config.Engine.FlowCacheTTL,
	)
	c.DelayScheduler.SetHandler(c.FlowService.ResumeContinuation)
	log.Println("    ✅ FlowService initialized")

	c.TriggerHandler = triggerhandler.NewTriggerHandler(c.FlowService, triggerhandler.Routes{
		MessageFlowID: kernel.NewFlowID(c.Config.Triggers.MessageFlowID),
		RecordFlowID:  kernel.NewFlowID(c.Config.Triggers.RecordFlowID),
	})
	c.WebhookRouter = webhookrouter.NewRouter(c.Config.Bitrix.ApplicationToken)
	log.Println("    ✅ Webhook routing initialized")

	return nil
}

// =================================================================
// HANDLERS 🌐
// =================================================================

func (c *Container) initHandlers() {
	log.Println("  🌐 Initializing HTTP handlers...")

	c.FlowHandler = flowapi.NewFlowHandler(c.FlowService, c.WebhookRouter, c.TriggerHandler)
	c.FlowRoutes = flowapi.NewFlowRoutes(c.FlowHandler)

	if c.Config.Auth.Enabled() {
		c.AuthMiddleware = auth.NewAuthMiddleware(auth.NewJWTService(c.Config.Auth))
		log.Println("    ✅ Bearer auth enabled for flow endpoints")
	} else {
		log.Println("    ⚠️  JWT_SECRET not set, flow endpoints are unauthenticated")
	}
}

// =================================================================
// LIFECYCLE
// =================================================================

// Start launches the delay scheduler worker.
func (c *Container) Start(ctx context.Context) {
	c.DelayScheduler.StartWorker(ctx)
	log.Println("⏰ Delay scheduler worker started")
}

// Cleanup stops background workers
func (c *Container) Cleanup() {
	log.Println("🧹 Cleaning up container resources...")
	if c.DelayScheduler != nil {
		c.DelayScheduler.StopWorker()
	}
	log.Println("✅ Container cleanup complete")
}

// HealthCheck reports the reachability of the backing services
func (c *Container) HealthCheck() map[string]bool {
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()

	health := map[string]bool{
		"database": c.DB != nil && c.DB.PingContext(ctx) == nil,
	}
	if c.RedisClient != nil {
		health["redis"] = c.RedisClient.Ping(ctx).Err() == nil
	}
	return health
}

// GetServiceNames returns the names of the wired components
func (c *Container) GetServiceNames() []string {
	names := []string{"FlowService", "FlowEngine", "TriggerHandler", "WebhookRouter", "BitrixGateway"}
	if c.RedisClient != nil {
		names = append(names, "RedisDelayScheduler", "RedisReplyRegistry")
	} else {
		names = append(names, "MemoryDelayScheduler", "MemoryReplyRegistry")
	}
	if c.AuthMiddleware != nil {
		names = append(names, "AuthMiddleware")
	}
	return names
}
