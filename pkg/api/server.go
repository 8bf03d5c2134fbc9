package api

import (
	"context"
	"net/http"
	"time"

	"github.com/cuemby/drover/pkg/driver"
	"github.com/cuemby/drover/pkg/log"
	"github.com/cuemby/drover/pkg/metrics"
	"github.com/cuemby/drover/pkg/storage"
	"github.com/cuemby/drover/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// VolumeDriver is the slice of the driver the API serves.
type VolumeDriver interface {
	// BackendHost reports this daemon's host@backend identifier; ok is
	// false until the service is registered.
	BackendHost() (string, bool)
	CreateVolume(ctx context.Context, volume *types.VolumeRecord) error
	DeleteVolume(ctx context.Context, volume *types.VolumeRecord) error
	ExtendVolume(ctx context.Context, volume *types.VolumeRecord, sizeGiB uint64) error
	RemoveExport(ctx context.Context, volume *types.VolumeRecord) error
	InitializeConnection(ctx context.Context, volume *types.VolumeRecord, conn *types.Connector) (*types.ConnectionInfo, error)
	TerminateConnection(ctx context.Context, volume *types.VolumeRecord, conn *types.Connector) error
	GetStats() driver.Stats
}

// Server is the daemon's HTTP surface: the peer volume-service API, the
// shared registry endpoints, health and metrics.
type Server struct {
	engine *gin.Engine
	server *http.Server
	store  storage.Store
	driver VolumeDriver
	logger zerolog.Logger
}

// New creates the API server listening on addr.
func New(addr string, store storage.Store, driver VolumeDriver) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine: engine,
		store:  store,
		driver: driver,
		logger: log.WithComponent("api"),
	}
	s.registerRoutes()

	s.server = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.healthz)
	s.engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := s.engine.Group("/v1")

	// Peer volume service.
	volumes := v1.Group("/volumes")
	volumes.GET("", s.listVolumes)
	volumes.POST("", s.createVolume)
	volumes.GET("/:id", s.getVolume)
	volumes.DELETE("/:id", s.deleteVolume)
	volumes.POST("/:id/provision", s.provisionVolume)
	volumes.POST("/:id/delete", s.deleteVolume)
	volumes.POST("/:id/remove-export", s.removeExport)
	volumes.POST("/:id/terminate", s.terminateConnection)
	volumes.POST("/:id/initialize", s.initializeConnection)
	volumes.POST("/:id/extend", s.extendVolume)

	v1.GET("/stats", s.stats)

	// Shared registry, served by the daemon owning the store.
	store := v1.Group("/store")
	store.POST("/volumes", s.storeCreateVolume)
	store.GET("/volumes", s.storeListVolumes)
	store.GET("/volumes/:id", s.storeGetVolume)
	store.PUT("/volumes/:id", s.storeUpdateVolume)
	store.DELETE("/volumes/:id", s.storeDeleteVolume)
	store.PUT("/services/:host", s.storeUpsertService)
	store.GET("/services", s.storeListServices)
	store.GET("/services/:host", s.storeGetServiceByHost)
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("api listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.driver.GetStats())
}
