package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	authgin "github.com/open-rails/phoneverify/adapters/gin"
	authhttp "github.com/open-rails/phoneverify/adapters/http"
	"github.com/open-rails/phoneverify/config"
	"github.com/open-rails/phoneverify/core"
	"github.com/open-rails/phoneverify/identitytoolkit"
	"github.com/open-rails/phoneverify/localverify"
	"github.com/open-rails/phoneverify/metrics"
	memorystore "github.com/open-rails/phoneverify/storage/memory"
	redisstore "github.com/open-rails/phoneverify/storage/redis"
	"github.com/open-rails/phoneverify/tui"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "phoneverify-devserver",
	Short:        "Phone number verification flows over HTTP or in a terminal",
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the flow API",
	RunE:  runServe,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Verify a number in the terminal with locally generated codes",
	RunE:  runTUI,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tuiCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rd, err := newRedis(ctx, cfg)
	if err != nil {
		return err
	}
	if rd != nil {
		defer rd.Close()
	}
	store := newStore(rd)

	provider, verifier := newProvider(cfg, store, logger)

	flowMetrics, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	coreCfg := cfg.Core()
	reg := core.NewRegistry(coreCfg, provider, nil).
		WithQuota(core.NewDispatchQuota(store, coreCfg.Quota).WithLogger(logger)).
		WithFlowLogger(core.MultiFlowEventLogger{core.LogrusFlowEventLogger{Logger: logger}, flowMetrics}).
		WithLogger(logger).
		WithOnVerified(func(_ context.Context, p core.Principal) {
			logger.WithFields(logrus.Fields{"subject": p.Subject, "provider": p.Provider}).Info("phone number verified")
		})
	defer reg.Shutdown()

	handler, err := newRouter(cfg, reg, rd, verifier, logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	logger.WithFields(logrus.Fields{"addr": cfg.ListenAddr, "router": cfg.Router, "provider": cfg.Provider}).Info("phoneverify devserver listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runTUI(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// Log lines would tear the alt screen.
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	inbox := &tui.Inbox{}
	provider := localverify.New(memorystore.NewKV()).
		WithSMSSender(inbox).
		WithCodeTTL(cfg.CodeTTL).
		WithLogger(logger)

	ctrl := tui.NewLocalController(cfg.Core(), provider)
	p, err := tui.Run(cmd.Context(), tui.New(cmd.Context(), ctrl).WithInbox(inbox))
	if err != nil {
		return err
	}
	if p != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "verified %s (%s)\n", p.PhoneNumber, p.Subject)
	}
	return nil
}

func newLogger(cfg *config.Config) (*logrus.Logger, error) {
	logger := logrus.New()
	lvl, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("PHONEVERIFY_LOG_LEVEL: %w", err)
	}
	logger.SetLevel(lvl)
	if cfg.Production() {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger, nil
}

func newRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("PHONEVERIFY_REDIS_URL: %w", err)
	}
	rd := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rd.Ping(pingCtx).Err(); err != nil {
		_ = rd.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return rd, nil
}

func newStore(rd *redis.Client) core.EphemeralStore {
	if rd == nil {
		return memorystore.NewKV()
	}
	return redisstore.NewKV(rd)
}

func newProvider(cfg *config.Config, store core.EphemeralStore, logger logrus.FieldLogger) (core.Provider, authgin.TokenVerifier) {
	switch cfg.Provider {
	case config.ProviderIdentityToolkit:
		verifier := identitytoolkit.NewTokenVerifier(cfg.ProjectID)
		client := identitytoolkit.New(cfg.APIKey).WithTokenVerifier(verifier)
		if cfg.ProviderURL != "" {
			client = client.WithBaseURL(cfg.ProviderURL)
		}
		return client, verifier
	default:
		p := localverify.New(store).
			WithCodeTTL(cfg.CodeTTL).
			WithLogger(logger).
			WithDevLog(cfg.DevSMSLog)
		if cfg.SMSLocalAPIKey != "" {
			p = p.WithSMSSender(localverify.NewSMSLocalSender(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender))
		}
		return p, nil
	}
}

func newRouter(cfg *config.Config, reg *core.Registry, rd *redis.Client, verifier authgin.TokenVerifier, logger *logrus.Logger) (http.Handler, error) {
	if cfg.Router == config.RouterGin {
		return newGinRouter(cfg, reg, rd, verifier)
	}

	prefixes, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		return nil, err
	}
	svc := authhttp.NewService(reg).WithLogger(logger)
	if len(prefixes) > 0 {
		svc = svc.WithClientIPFunc(authhttp.ClientIPFromForwardedHeaders(prefixes))
	}
	if rd != nil {
		svc = svc.WithRedis(rd)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", svc.APIHandler())
	return mux, nil
}

func newGinRouter(cfg *config.Config, reg *core.Registry, rd *redis.Client, verifier authgin.TokenVerifier) (http.Handler, error) {
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	if err := r.SetTrustedProxies(cfg.TrustedProxyList()); err != nil {
		return nil, fmt.Errorf("PHONEVERIFY_TRUSTED_PROXIES: %w", err)
	}

	svc := authgin.NewService(reg)
	if rd != nil {
		svc = svc.WithRedis(rd)
	}
	svc.GinRegisterAPI(r)

	r.GET("/healthz", gin.WrapF(healthz))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if verifier != nil {
		svc.WithTokenVerifier(verifier)
		r.GET("/verify/me", svc.Required(), func(c *gin.Context) {
			cl, _ := authgin.ClaimsFromGin(c)
			c.JSON(http.StatusOK, cl)
		})
	}
	return r, nil
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
