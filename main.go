// Command quizrooms starts the quiz room server.
//
// It supports two modes:
//  1. "serve" (default) – runs the HTTP server exposing the room WebSocket, the REST API, /metrics and an /mcp HTTP endpoint
//  2. "mcp" – runs an MCP stdio server against a running API, or an internal one if none is reachable
//
// Configuration comes from an optional YAML file, QUIZ_ environment variables
// and a .env file. Flags override the listen address, debug logging and the
// optional ngrok tunnel.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/quizrooms/api"
	"github.com/wricardo/quizrooms/config"
	"github.com/wricardo/quizrooms/game/catalog"
	"github.com/wricardo/quizrooms/game/directory"
	"github.com/wricardo/quizrooms/game/registry"
	"github.com/wricardo/quizrooms/game/results"
	"github.com/wricardo/quizrooms/game/service"
	"github.com/wricardo/quizrooms/observability"
	"github.com/wricardo/quizrooms/transport/mcp"
	"github.com/wricardo/quizrooms/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Quiz Rooms Server"
)

// main loads .env and runs the command line.
func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
	}

	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "quizrooms",
		Usage:   "real-time multiplayer quiz rooms",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML configuration file",
				Sources: cli.EnvVars("QUIZ_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "listen address as host:port, overrides server.host and server.port",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
			&cli.BoolFlag{
				Name:    "ngrok",
				Usage:   "expose the server through an ngrok tunnel",
				Sources: cli.EnvVars("NGROK_ENABLED"),
			},
		},
		Action: runServe,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP and WebSocket server (default)",
				Action: runServe,
			},
			{
				Name:  "mcp",
				Usage: "run an MCP stdio server over the REST API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "api-url",
						Usage:   "base URL of a running server",
						Value:   "http://localhost:8080",
						Sources: cli.EnvVars("QUIZ_API_URL"),
					},
				},
				Action: runMCP,
			},
		},
	}
}

// loadConfig reads the configuration and applies flag overrides.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return config.Config{}, err
	}

	if addr := cmd.String("addr"); addr != "" {
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			return config.Config{}, fmt.Errorf("invalid --addr %q: %w", addr, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return config.Config{}, fmt.Errorf("invalid --addr port %q: %w", portStr, err)
		}
		cfg.Server.Host = host
		cfg.Server.Port = port
	}
	if cmd.Bool("debug") {
		cfg.Logging.Level = "debug"
	}
	if cmd.Bool("ngrok") {
		cfg.Tunnel.Enabled = true
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// services is the wired server
type services struct {
	cfg     config.Config
	logger  *zap.Logger
	rooms   *registry.Registry
	router  *service.Router
	hub     *websocket.Hub
	handler http.Handler
}

// initializeServices wires the catalog, room registry, router, WebSocket hub
// and HTTP handlers. Nothing runs until start is called.
func initializeServices(cfg config.Config, logger *zap.Logger, reg *prometheus.Registry) (*services, error) {
	metrics, err := observability.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	rooms := registry.New(registry.Options{
		CodeLength:    cfg.Rooms.CodeLength,
		MaxRooms:      cfg.Rooms.MaxRooms,
		MaxPlayers:    cfg.Rooms.MaxPlayers,
		MailboxSize:   cfg.Rooms.MailboxSize,
		Logger:        logger,
		OnCountChange: metrics.SetRooms,
	})

	routerOpts := service.Options{
		Registry:        rooms,
		Directory:       directory.New(),
		DefaultGameType: cfg.Rooms.DefaultGameType,
		ScoreTimeout:    cfg.Scoring.Timeout,
		Logger:          logger,
		Metrics:         metrics,
	}
	apiOpts := api.Options{Logger: logger}

	if cfg.Catalog.Dir != "" {
		questions, err := catalog.NewManager(cfg.Catalog.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to load question catalog: %w", err)
		}
		routerOpts.Content = questions
		apiOpts.Catalog = questions
		if cfg.Scoring.Mode == config.ScoringServer {
			routerOpts.Scorer = catalog.NewScorer(questions)
		}
		logger.Info("question catalog loaded",
			zap.String("dir", cfg.Catalog.Dir),
			zap.Int("sets", len(questions.ListSets())))
	}

	if cfg.Results.Dir != "" {
		recorder, err := results.NewFileRecorder(cfg.Results.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to create results recorder: %w", err)
		}
		routerOpts.Results = recorder
		apiOpts.Results = recorder
	}

	router := service.NewRouter(routerOpts)
	hub := websocket.NewHub(router, websocket.Options{
		ReadLimit:      cfg.Websocket.ReadLimit,
		SendBuffer:     cfg.Websocket.SendBuffer,
		RatePerSecond:  cfg.Websocket.RatePerSecond,
		Burst:          cfg.Websocket.Burst,
		PongWait:       cfg.Websocket.PongWait,
		AllowedOrigins: cfg.Websocket.AllowedOrigins,
		Logger:         logger,
		OnCountChange:  metrics.SetConnections,
	})

	apiOpts.Rooms = router
	apiOpts.WebSocket = http.HandlerFunc(hub.ServeWS)
	apiOpts.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})

	return &services{
		cfg:     cfg,
		logger:  logger,
		rooms:   rooms,
		router:  router,
		hub:     hub,
		handler: api.NewServer(apiOpts),
	}, nil
}

// start runs the hub and the idle sweeper until ctx is done
func (s *services) start(ctx context.Context) {
	go s.hub.Run(ctx)
	if s.cfg.Rooms.IdleTimeout > 0 {
		go s.router.RunSweeper(ctx, s.cfg.Rooms.SweepInterval, s.cfg.Rooms.IdleTimeout)
	}
}

// stop closes every connection and dissolves every room
func (s *services) stop() {
	s.hub.Close()
	s.rooms.Close()
}

// mcpHandler serves MCP JSON-RPC messages over HTTP POST
func mcpHandler(mcpClient *mcp.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	}
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe starts the HTTP server and, when enabled, the ngrok tunnel. It
// returns after SIGINT or SIGTERM once everything is shut down.
func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting", zap.String("app", AppName), zap.String("version", Version))

	svc, err := initializeServices(cfg, logger, newRegistry())
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	svc.start(ctx)

	addr := cfg.Server.Addr()
	baseURL := fmt.Sprintf("http://%s", addr)
	if cfg.Server.Host == "" {
		baseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}

	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", svc.handler)
	mainRouter.HandleFunc("/mcp", mcpHandler(mcp.NewClient(baseURL)))

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mainRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var wg sync.WaitGroup
	serveErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()

		logger.Info("HTTP server listening",
			zap.String("addr", addr),
			zap.String("api", baseURL+"/api"),
			zap.String("websocket", strings.Replace(baseURL, "http://", "ws://", 1)+"/ws"),
			zap.String("mcp", baseURL+"/mcp"))

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			stop()
		}
	}()

	if cfg.Tunnel.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runTunnel(ctx, cfg.Tunnel, mainRouter, logger)
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", zap.Error(err))
	}
	svc.stop()

	wg.Wait()
	logger.Info("server stopped")

	select {
	case err := <-serveErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	default:
		return nil
	}
}

// runTunnel serves handler through ngrok until ctx is done
func runTunnel(ctx context.Context, cfg config.TunnelConfig, handler http.Handler, logger *zap.Logger) {
	tunnel := ngrokConfig.HTTPEndpoint()
	if cfg.Domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(cfg.Domain))
		logger.Info("using custom ngrok domain", zap.String("domain", cfg.Domain))
	}

	logger.Info("starting ngrok tunnel")
	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(cfg.AuthToken))
	if err != nil {
		logger.Error("failed to start ngrok tunnel", zap.Error(err))
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			logger.Warn("failed to close ngrok tunnel", zap.Error(err))
		}
	}()

	url := tun.URL()
	logger.Info("ngrok tunnel established",
		zap.String("url", url),
		zap.String("websocket", strings.Replace(url, "https://", "wss://", 1)+"/ws"))

	if err := http.Serve(tun, handler); err != nil && ctx.Err() == nil {
		logger.Warn("ngrok server error", zap.Error(err))
	}
	logger.Info("ngrok tunnel closed")
}

// runMCP runs an MCP stdio server. It uses the API at --api-url when it
// answers; otherwise it starts an internal server on a loopback port.
func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	baseURL := cmd.String("api-url")
	if !apiReachable(baseURL) {
		logger.Info("no API server found, starting internal HTTP server", zap.String("api_url", baseURL))

		internalURL, shutdown, err := startInternalServer(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer shutdown()
		baseURL = internalURL
	}

	logger.Info("MCP stdio server ready", zap.String("api_url", baseURL))
	if err := server.ServeStdio(mcp.NewClient(baseURL).GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}

func apiReachable(baseURL string) bool {
	testClient := &http.Client{Timeout: 2 * time.Second}
	resp, err := testClient.Get(baseURL + "/api/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

// startInternalServer serves a full room server on a random loopback port
func startInternalServer(ctx context.Context, cfg config.Config, logger *zap.Logger) (string, func(), error) {
	svc, err := initializeServices(cfg, logger, newRegistry())
	if err != nil {
		return "", nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("failed to get available port: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	svc.start(ctx)

	httpServer := &http.Server{Handler: svc.handler}
	go func() {
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Warn("internal HTTP server error", zap.Error(err))
		}
	}()

	shutdown := func() {
		cancel()
		httpServer.Close()
		svc.stop()
	}
	return "http://" + listener.Addr().String(), shutdown, nil
}
