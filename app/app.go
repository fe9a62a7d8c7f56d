package snaptalk

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/cors"

	"github.com/piyawat22/snaptalk/core"
)

type App struct {
	config  *Config
	db      *core.SQLiteDB
	context context.Context
	server  *http.Server
	logger  *slog.Logger
	router  *Router

	registry *core.PresenceRegistry
	delivery *core.DeliveryEngine
	gateway  *core.Gateway

	exit chan int

	userStore    core.UserStore
	friendStore  core.FriendStore
	messageStore core.MessageStore
	authStore    core.AuthStore

	authHandler    *AuthHandler
	userHandler    *UserHandler
	friendHandler  *FriendHandler
	messageHandler *MessageHandler

	cleanupFuncs []func(context.Context)

	wg sync.WaitGroup
}

func New(ctx context.Context, config *Config) *App {
	var err error
	app := &App{
		exit: make(chan int),
	}
	if ctx == nil {
		ctx, _ = signal.NotifyContext(
			context.Background(),
			syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	}
	app.context = ctx

	if config == nil {
		config, err = LoadConfig()
		if err != nil {
			failed(1, "failed to load config: %v\n", err)
		}
	}
	if err := config.Validate(); err != nil {
		failed(1, FormatValidationErrors(err))
	}
	app.config = config

	app.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				source, _ := a.Value.Any().(*slog.Source)
				if source != nil {
					source.File = filepath.Base(source.File)
				}
			}
			return a
		},
	}))

	sqliteOptions := &core.SQLiteDBOption{
		Mode:        "rwc",
		Cache:       "shared",
		JournalMode: "WAL",
	}
	app.db, err = core.NewSQLiteDB(app.config.SQLite.File, app.config.SQLite.Migrations, sqliteOptions)
	if err != nil {
		failed(1, "failed to open database: %v\n", err)
	}
	app.AddCleanupFunc(func(ctx context.Context) {
		app.db.Close()
	})
	if err := app.db.Migrate(); err != nil {
		failed(1, "failed to migrate database: %v\n", err)
	}

	app.userStore = core.NewSQLiteUserStore(app.db.DB)
	app.friendStore = core.NewSQLiteFriendStore(app.db.DB, app.userStore)
	app.messageStore = core.NewSQLiteMessageStore(app.db.DB)
	app.authStore = core.NewTokenAuth(app.userStore, []byte(app.config.Auth.Secret))

	app.registry = core.NewPresenceRegistry()
	app.delivery = core.NewDeliveryEngine(app.messageStore, app.registry, app.logger)
	app.gateway = core.NewGateway(app.context, &app.wg, app.logger, app.registry, app.delivery)
	app.gateway.OnUserOnline(app.onUserOnline)
	app.gateway.OnUserOffline(app.onUserOffline)

	app.authHandler = NewAuthHandler(app.userStore, app.authStore)
	app.userHandler = NewUserHandler(app.userStore)
	app.friendHandler = NewFriendHandler(app.friendStore)
	app.messageHandler = NewMessageHandler(app.messageStore)
	authMiddleware := JWTMiddleware(app.authStore)

	app.router = NewRouter(WithRouterLogger(app.logger))

	app.router.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   app.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	app.router.With(authMiddleware).Get("/ws", func(w http.ResponseWriter, r *http.Request) error {
		session := SessionFromRequest(r)
		if err := app.gateway.Accept(session.Username, w, r); err != nil {
			return fmt.Errorf("accept connection: %w", err)
		}
		return nil
	})

	api := NewRouter(WithRouterLogger(app.logger))

	api.Route("/auth", func(r *Router) {
		r.Post("/register", app.authHandler.RegisterHandler)
		r.Post("/login", app.authHandler.LoginHandler)
	})

	api.Route("/users", func(r *Router) {
		r.Use(authMiddleware)
		r.Get("/me", app.userHandler.MeHandler)
		r.Get("/search", app.userHandler.SearchUsersHandler)
		r.Post("/send-friend-request", app.friendHandler.SendFriendRequestHandler)
		r.Get("/friend-requests", app.friendHandler.ListFriendRequestsHandler)
		r.Post("/accept-friend-request", app.friendHandler.AcceptFriendRequestHandler)
		r.Get("/friends", app.friendHandler.ListFriendsHandler)
	})

	api.Route("/messages", func(r *Router) {
		r.Use(authMiddleware)
		r.Get("/{userID}", app.messageHandler.ListHistoryForUserHandler)
		r.Post("/history", app.messageHandler.ListHistoryBetweenHandler)
	})

	app.router.Mount("/api", api)

	app.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", app.config.Hostname, app.config.Port),
		Handler: app.router.Router,
		BaseContext: func(listener net.Listener) context.Context {
			return app.context
		},
	}

	return app
}

func (app *App) Start() {
	// listen for shutdown signal
	go func() {
		<-app.context.Done()
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		var wg sync.WaitGroup

		for _, f := range app.cleanupFuncs {
			wg.Add(1)
			go func(f func(context.Context)) {
				defer wg.Done()
				f(closeCtx)
			}(f)
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			app.logger.Info("app shutdown gracefully")
			app.exit <- 0
		case <-closeCtx.Done():
			app.logger.Info("app shutdown timed out")
			app.exit <- 1
		}
	}()

	app.AddCleanupFunc(func(ctx context.Context) {
		app.server.Shutdown(ctx)
	})
	app.AddCleanupFunc(func(ctx context.Context) {
		// wait for connection loops to wind down
		done := make(chan struct{})
		go func() {
			app.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
		}
	})

	app.logger.Info(fmt.Sprintf("app running on %s:%d", app.config.Hostname, app.config.Port))

	err := app.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		failed(1, "server error: %v\n", err)
	}

	code := <-app.exit
	os.Exit(code)
}

func (app *App) AddCleanupFunc(f func(context.Context)) {
	app.cleanupFuncs = append(app.cleanupFuncs, f)
}

func failed(code int, s string, args ...interface{}) {
	fmt.Printf(s, args...)
	os.Exit(code)
}
