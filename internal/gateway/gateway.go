// ABOUTME: Gateway wires store, providers, skills, rooms, orchestrator and transports
// ABOUTME: Owns the HTTP server lifecycle over TCP or a Tailscale node

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/coven-chat/internal/auth"
	"github.com/2389/coven-chat/internal/config"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/llm"
	"github.com/2389/coven-chat/internal/room"
	"github.com/2389/coven-chat/internal/skills"
	"github.com/2389/coven-chat/internal/socket"
	"github.com/2389/coven-chat/internal/store"
	"github.com/2389/coven-chat/internal/toolgw"
)

const defaultShutdownTimeout = 15 * time.Second

// Gateway owns every long-lived component of coven-chat.
type Gateway struct {
	config       *config.Config
	store        store.Store
	providers    *llm.Registry
	skills       *skills.Registry
	rooms        *room.Manager
	orchestrator *conversation.Orchestrator
	tools        *toolgw.Gateway
	socket       *socket.Server
	httpServer   *http.Server
	tsnetServer  *tsnet.Server
	logger       *slog.Logger
}

// apiKeyEnv names the environment fallback for each backend kind.
var apiKeyEnv = map[string]string{
	string(llm.KindOpenAI):    "OPENAI_API_KEY",
	string(llm.KindAnthropic): "ANTHROPIC_API_KEY",
	string(llm.KindGemini):    "GEMINI_API_KEY",
}

// initStore opens the SQLite store, honoring COVEN_CHAT_DB_PATH.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("COVEN_CHAT_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// backendConfig converts a provider section into a backend config. An
// empty api_key falls back to the vendor's usual environment variable.
func backendConfig(pc config.ProviderConfig) llm.Config {
	apiKey := pc.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(apiKeyEnv[pc.Kind])
	}
	return llm.Config{
		Kind:        llm.Kind(pc.Kind),
		Model:       pc.Model,
		Temperature: pc.Temperature,
		Streaming:   pc.Streaming,
		BaseURL:     pc.BaseURL,
		APIKey:      apiKey,
		MaxTokens:   pc.MaxTokens,
		HTTPClient:  &http.Client{Timeout: 5 * time.Minute},
	}
}

// buildProviders creates one backend per configured selection plus the
// critic. The critic is always low temperature and non-streaming, built
// from providers.critic when set and from primary otherwise.
func buildProviders(cfg config.ProvidersConfig) (*llm.Registry, error) {
	sections := map[llm.Selection]config.ProviderConfig{
		llm.Primary:   cfg.Primary,
		llm.Secondary: cfg.Secondary,
		llm.Tertiary:  cfg.Tertiary,
	}

	backends := make(map[llm.Selection]llm.Backend, len(sections))
	for sel, pc := range sections {
		if pc.IsZero() {
			continue
		}
		b, err := llm.New(backendConfig(pc))
		if err != nil {
			return nil, fmt.Errorf("creating %s provider: %w", sel, err)
		}
		backends[sel] = b
	}

	criticSection := cfg.Critic
	if criticSection.IsZero() {
		criticSection = cfg.Primary
	}
	critic, err := llm.New(llm.CriticConfig(backendConfig(criticSection)))
	if err != nil {
		return nil, fmt.Errorf("creating critic provider: %w", err)
	}

	return llm.NewRegistry(backends, critic)
}

// loadSkills reads the configured skills directory, if any.
func loadSkills(dir string, logger *slog.Logger) (*skills.Registry, error) {
	reg := skills.NewRegistry()
	if dir == "" {
		return reg, nil
	}
	n, err := reg.LoadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("loading skills from %s: %w", dir, err)
	}
	logger.Info("skills loaded", "dir", dir, "count", n)
	return reg, nil
}

// New creates a gateway from cfg. Nothing listens until Run.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	providers, err := buildProviders(cfg.Providers)
	if err != nil {
		return nil, err
	}

	skillRegistry, err := loadSkills(cfg.Skills.Dir, logger)
	if err != nil {
		return nil, err
	}

	sqlStore, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	rooms := room.NewManager(logger)
	orchestrator := conversation.NewOrchestrator(rooms, providers,
		conversation.WithRecorder(sqlStore),
		conversation.WithSkills(skillRegistry),
		conversation.WithLogger(logger),
		// No-op until the embedding process installs a tracer provider.
		conversation.WithTracer(otel.Tracer("github.com/2389/coven-chat/conversation")),
	)
	tools := toolgw.New(nil, logger)

	gw := &Gateway{
		config:       cfg,
		store:        sqlStore,
		providers:    providers,
		skills:       skillRegistry,
		rooms:        rooms,
		orchestrator: orchestrator,
		tools:        tools,
		socket: socket.NewServer(rooms, orchestrator, tools, socket.Config{
			WriteTimeout: cfg.Realtime.WriteTimeout,
			PingInterval: cfg.Realtime.PingInterval,
			SendBuffer:   cfg.Realtime.SendBuffer,
			DedupeWindow: cfg.Realtime.DedupeWindow,
		}, logger),
		logger: logger.With("component", "gateway"),
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// routes builds the HTTP handler. Health endpoints are always open; the
// API, tool gateway and WebSocket sit behind auth when a secret is set.
func (g *Gateway) routes() http.Handler {
	protected := http.NewServeMux()
	protected.Handle("GET /ws", g.socket)
	toolgw.NewHandler(g.tools).RegisterRoutes(protected)
	g.registerAPIRoutes(protected)

	var verifier auth.TokenVerifier
	if g.config.Auth.JWTSecret != "" {
		verifier = auth.NewJWTVerifier([]byte(g.config.Auth.JWTSecret))
		g.logger.Info("HTTP auth middleware enabled")
	} else {
		g.logger.Warn("HTTP auth disabled - no jwt_secret configured")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)
	mux.Handle("/", auth.Middleware(verifier)(protected))
	return mux
}

// Handler exposes the HTTP handler, mainly for tests.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// setupTCPListener creates the plain TCP listener.
func (g *Gateway) setupTCPListener() (net.Listener, error) {
	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupListener picks the Tailscale or TCP listener.
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled",
				"http_addr", g.config.Server.HTTPAddr)
		}
		return g.setupTailscaleListener(ctx)
	}
	return g.setupTCPListener()
}

// Run serves until ctx is canceled or the server fails, then shuts down.
// Returns nil on a clean shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}
	return g.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln until ctx is canceled.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown runs Shutdown with a fresh context, since the caller's
// is already canceled.
func (g *Gateway) gracefulShutdown() error {
	timeout := g.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "coven-chat", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener joins the tailnet and listens on :80, :443 with
// Tailscale certs, or a public Funnel.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	ln, err := g.tailscaleHTTPListener(tsCfg)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, err
	}
	return ln, nil
}

func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

func (g *Gateway) tailscaleHTTPListener(tsCfg config.TailscaleConfig) (net.Listener, error) {
	switch {
	case tsCfg.Funnel:
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := g.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale funnel: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		g.logger.Info("enabling HTTPS with Tailscale certs on :443")
		ln, err := g.tsnetServer.Listen("tcp", ":443")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
		}
		lc, err := g.tsnetServer.LocalClient()
		if err != nil {
			_ = ln.Close()
			return nil, fmt.Errorf("getting tailscale local client: %w", err)
		}
		return tls.NewListener(ln, &tls.Config{
			GetCertificate: lc.GetCertificate,
			MinVersion:     tls.VersionTLS12,
		}), nil
	default:
		ln, err := g.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown closes WebSocket connections, stops the HTTP server, waits for
// in-flight dispatches so their replies are recorded, then closes the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	g.socket.Close()

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	errs = appendCloseError(errs, "waiting for dispatches", g.orchestrator.WaitContext(ctx))

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", g.store.Close())

	return errors.Join(errs...)
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 once the store answers queries.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := g.store.ListConversations(r.Context(), 1); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d connections, %d rooms)", g.socket.Connections(), g.rooms.Rooms())
}
