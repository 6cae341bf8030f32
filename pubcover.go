// Package pubcover renders Open Graph covers for blog post titles and
// publishes them to an asset store, uploading each cover only when its
// content changed.
//
// The package holds the batch driver that turns titles into covers, the
// SQLite store shared with pubengine, and the asset server that serves and
// accepts covers over HTTP. Rendering lives in ogimage and the
// compare-then-upload protocol in publish.
package pubcover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eringen/pubcover/ogimage"
)

const (
	// historyRetention bounds how long run history is kept by the server.
	historyRetention = 90 * 24 * time.Hour

	previewCacheSize = 256
	previewCacheTTL  = 10 * time.Minute
)

// App is the asset server. It wires together the store, renderer,
// middleware and handlers.
type App struct {
	Config *Config
	Echo   *echo.Echo
	Store  *Store
	Logger *slog.Logger

	previews     *previewCache
	authLimiter  *AuthLimiter
	customRoutes []func(*App)
	ownsStore    bool
	stopCleanup  func()
}

// New creates an App. Call Init (or Start) before serving.
func New(cfg *Config, logger *slog.Logger, opts ...Option) *App {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	a := &App{
		Config: cfg,
		Echo:   e,
		Logger: logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Init opens the store and registers middleware and routes.
func (a *App) Init() error {
	if a.Config.Server.Token == "" {
		return errors.New("pubcover: server token is required")
	}

	if a.Store == nil {
		store, err := NewStore(a.Config.Server.DatabasePath)
		if err != nil {
			return fmt.Errorf("pubcover: init store: %w", err)
		}
		a.Store = store
		a.ownsStore = true
	}

	opts, err := a.Config.RendererOptions()
	if err != nil {
		return fmt.Errorf("pubcover: renderer options: %w", err)
	}
	renderer, err := ogimage.NewRenderer(opts)
	if err != nil {
		return fmt.Errorf("pubcover: init renderer: %w", err)
	}
	a.previews = newPreviewCache(renderer, previewCacheSize, previewCacheTTL)

	a.authLimiter = NewAuthLimiter(5, time.Minute)
	a.stopCleanup = a.Store.StartCleanupScheduler(historyRetention, 24*time.Hour, a.Logger)

	a.setupMiddleware()
	a.setupRoutes()
	for _, fn := range a.customRoutes {
		fn(a)
	}
	return nil
}

// Start initializes the app and serves until the server is shut down.
func (a *App) Start() error {
	if err := a.Init(); err != nil {
		return err
	}
	a.Logger.Info("asset server listening", "addr", a.Config.Server.Addr)
	if err := a.Echo.Start(a.Config.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Echo.Shutdown(ctx)
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.GET("/", a.handleIndex)
	e.GET("/healthz", handleHealth)

	api := e.Group("/api")
	api.GET("/assets", a.handleAssetList)
	api.GET("/assets/:id", a.handleAssetInfo)
	api.PUT("/assets/:id", a.handleAssetPut, a.requireToken)
	api.GET("/runs", a.handleRunList)

	e.GET("/assets/:id", a.handleAssetRaw)
	e.GET("/og/:slug", a.handleOGPreview)
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.stopCleanup != nil {
		a.stopCleanup()
	}
	if a.authLimiter != nil {
		a.authLimiter.Stop()
	}
	if a.Store != nil && a.ownsStore {
		return a.Store.Close()
	}
	return nil
}
