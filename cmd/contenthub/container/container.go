package container

import (
	"github.com/lyzr/contenthub/cmd/contenthub/guard"
	"github.com/lyzr/contenthub/cmd/contenthub/repository"
	"github.com/lyzr/contenthub/cmd/contenthub/service"
	"github.com/lyzr/contenthub/common/bootstrap"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components

	// Repositories
	VersionRepo *repository.VersionRepository

	// Services
	ResolverService   *service.ResolverService
	LifecycleService  *service.LifecycleService
	SuggestionService *service.SuggestionService
	VersionService    *service.VersionService
	Events            *service.EventPublisher
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	cfg := components.Config

	// Initialize repositories
	versionRepo := repository.NewVersionRepository(components.DB)

	// Initialize services (bottom-up: dependencies first)
	ids := service.NewIdentityAllocator()
	authz := service.AllowAll{}
	guardEval := guard.NewEvaluator()
	events := service.NewEventPublisher(components.Queue, cfg.Queue.Topic, components.Logger)

	resolverService := service.NewResolverService(versionRepo, components.Logger)
	versionService := service.NewVersionService(versionRepo, authz, components.Logger)
	lifecycleService := service.NewLifecycleService(
		versionRepo,
		ids,
		authz,
		guardEval,
		cfg.Guard.PublishExpression,
		events,
		components.Cache,
		cfg.Cache.DefaultTTL,
		components.Telemetry,
		components.Logger,
	)
	suggestionService := service.NewSuggestionService(
		versionRepo,
		ids,
		authz,
		lifecycleService,
		events,
		components.Logger,
	)

	return &Container{
		Components:        components,
		VersionRepo:       versionRepo,
		ResolverService:   resolverService,
		LifecycleService:  lifecycleService,
		SuggestionService: suggestionService,
		VersionService:    versionService,
		Events:            events,
	}, nil
}
