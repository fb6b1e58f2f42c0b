package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/felipepmaragno/chatgw/internal/circuitbreaker"
	"github.com/felipepmaragno/chatgw/internal/config"
	"github.com/felipepmaragno/chatgw/internal/cost"
	"github.com/felipepmaragno/chatgw/internal/crypto"
	"github.com/felipepmaragno/chatgw/internal/domain"
	"github.com/felipepmaragno/chatgw/internal/gateway"
	"github.com/felipepmaragno/chatgw/internal/httputil"
	"github.com/felipepmaragno/chatgw/internal/keystore"
	"github.com/felipepmaragno/chatgw/internal/metrics"
	"github.com/felipepmaragno/chatgw/internal/notifications"
	"github.com/felipepmaragno/chatgw/internal/registry"
	"github.com/felipepmaragno/chatgw/internal/repository"
	"github.com/felipepmaragno/chatgw/internal/stream"
	"github.com/felipepmaragno/chatgw/internal/telemetry"
)

const version = "0.3.0"

type options struct {
	provider    string
	model       string
	system      string
	temperature *float64
	maxTokens   *int
	stream      bool
	jsonOut     bool
	list        bool
	models      bool
	usage       time.Duration
	putKey      bool
	metricsAddr string
}

func parseFlags(args []string) (*options, []string, error) {
	opts := &options{}
	var (
		temperature float64
		maxTokens   int
	)
	fs := flag.NewFlagSet("chatgw", flag.ContinueOnError)
	fs.StringVar(&opts.provider, "provider", "", "provider id (defaults to DEFAULT_PROVIDER)")
	fs.StringVar(&opts.model, "model", "", "model name (defaults to the provider's default model)")
	fs.StringVar(&opts.system, "system", "", "system prompt")
	fs.Float64Var(&temperature, "temperature", 0, "sampling temperature in [0,2]; the vendor default when not given")
	fs.IntVar(&maxTokens, "max-tokens", 0, "output token limit; the vendor default when not given")
	fs.BoolVar(&opts.stream, "stream", false, "print fragments as they arrive")
	fs.BoolVar(&opts.jsonOut, "json", false, "print the normalized response as JSON")
	fs.BoolVar(&opts.list, "list", false, "list providers that can be used with the configured key store")
	fs.BoolVar(&opts.models, "models", false, "list the model catalog of -provider, or of every provider")
	fs.DurationVar(&opts.usage, "usage", 0, "print recorded spend for -provider over this window and exit")
	fs.BoolVar(&opts.putKey, "put-key", false, "read an API key from stdin and store it for -provider (KEY_STORE=redis)")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	// Only flags given on the command line reach the request, whatever their value.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "temperature":
			opts.temperature = &temperature
		case "max-tokens":
			opts.maxTokens = &maxTokens
		}
	})
	return opts, fs.Args(), nil
}

func main() {
	opts, args, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, args); err != nil {
		slog.Error("chatgw failed", "error", err, "error_kind", domain.KindOf(err).String())
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts *options, args []string) error {
	shutdownTracing, err := telemetry.Init(ctx, "chatgw", version, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer shutdownTracing(context.Background())

	descriptors, err := cfg.Descriptors()
	if err != nil {
		return fmt.Errorf("load descriptors: %w", err)
	}

	keys, err := newKeyStore(ctx, cfg)
	if err != nil {
		return err
	}

	if opts.putKey {
		return putKey(ctx, keys, opts.provider)
	}

	tracker, closeTracker, err := newTracker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeTracker()

	notifier, err := newNotifier(ctx, cfg)
	if err != nil {
		return err
	}

	reg := registry.New(descriptors, keys, registry.Options{
		Client:      httputil.NewStreamingClient(httputil.DefaultConfig()),
		IdleTimeout: cfg.StreamIdleTimeout,
		Simulation: stream.SimulateOptions{
			Delay:         cfg.SimulatedChunkDelay,
			WordsPerChunk: cfg.SimulatedChunkWords,
		},
	})

	gw := gateway.New(gateway.Config{
		Adapters:        reg,
		DefaultProvider: cfg.DefaultProvider,
		RequestTimeout:  cfg.RequestTimeout,
		Tracker:         tracker,
		Notifier:        notifier,
		Breakers:        circuitbreaker.NewSet(circuitbreaker.DefaultConfig()),
	})

	if opts.metricsAddr != "" {
		stopMetrics := serveMetrics(opts.metricsAddr)
		defer stopMetrics()
	}

	switch {
	case opts.list:
		ids, err := gw.Providers(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil

	case opts.models:
		models, err := gw.Models(opts.provider)
		if err != nil {
			return err
		}
		for _, m := range models {
			fmt.Printf("%s\t%s\n", m.Provider, m.ID)
		}
		return nil

	case opts.usage > 0:
		return printUsage(ctx, tracker, providerOrDefault(opts.provider, cfg), opts.usage)
	}

	prompt, err := readPrompt(args)
	if err != nil {
		return err
	}

	req := buildRequest(opts, prompt)

	if opts.stream {
		return streamResponse(ctx, gw, opts, req)
	}

	resp, err := gw.Send(ctx, opts.provider, req)
	if err != nil {
		return err
	}
	return printResponse(os.Stdout, resp, opts.jsonOut)
}

func buildRequest(opts *options, prompt string) domain.UnifiedRequest {
	return domain.UnifiedRequest{
		Messages:     []domain.ChatMessage{domain.UserMessage(prompt)},
		Model:        opts.model,
		SystemPrompt: opts.system,
		Temperature:  opts.temperature,
		MaxTokens:    opts.maxTokens,
	}
}

func newKeyStore(ctx context.Context, cfg *config.Config) (keystore.Store, error) {
	switch cfg.KeyStore {
	case config.KeyStoreAWS:
		sm, err := keystore.NewSecretsManager(ctx, cfg.AWSRegion, cfg.SecretPrefix)
		if err != nil {
			return nil, fmt.Errorf("init secrets manager: %w", err)
		}
		slog.Info("using aws secrets manager key store", "region", cfg.AWSRegion, "prefix", cfg.SecretPrefix)
		return sm, nil

	case config.KeyStoreRedis:
		enc, err := crypto.NewEncryptor(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("init encryptor: %w", err)
		}
		store, err := keystore.NewRedis(cfg.RedisURL, enc)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		slog.Info("using redis key store")
		return store, nil

	default:
		slog.Debug("using environment key store")
		return keystore.NewEnv(), nil
	}
}

func putKey(ctx context.Context, keys keystore.Store, providerID string) error {
	store, ok := keys.(*keystore.Redis)
	if !ok {
		return errors.New("-put-key requires KEY_STORE=redis")
	}
	defer store.Close()

	if providerID == "" {
		return errors.New("-put-key requires -provider")
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read key: %w", err)
	}
	key := strings.TrimSpace(line)
	if key == "" {
		return errors.New("no key on stdin")
	}
	return store.Put(ctx, providerID, key)
}

func newTracker(ctx context.Context, cfg *config.Config) (cost.Tracker, func(), error) {
	if cfg.DatabaseURL == "" {
		return cost.NewInMemoryTracker(), func() {}, nil
	}

	db, err := repository.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	repo := repository.NewPostgresUsageRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	slog.Info("using postgres usage ledger")
	return repo, func() { db.Close() }, nil
}

func newNotifier(ctx context.Context, cfg *config.Config) (notifications.Notifier, error) {
	if cfg.SNSTopicARN == "" {
		return notifications.NewInMemoryNotifier(), nil
	}
	n, err := notifications.NewSNSNotifier(ctx, cfg.AWSRegion, cfg.SNSTopicARN)
	if err != nil {
		return nil, fmt.Errorf("init sns notifier: %w", err)
	}
	slog.Info("using sns notifier", "topic", cfg.SNSTopicARN)
	return n, nil
}

func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("metrics server forced to shutdown", "error", err)
		}
	}
}

func providerOrDefault(id string, cfg *config.Config) string {
	if id == "" {
		return cfg.DefaultProvider
	}
	return id
}

func printUsage(ctx context.Context, tracker cost.Tracker, providerID string, window time.Duration) error {
	since := time.Now().Add(-window)

	records, err := tracker.GetProviderUsage(ctx, providerID, since)
	if err != nil {
		return err
	}
	total, err := tracker.GetProviderTotalCost(ctx, providerID, since)
	if err != nil {
		return err
	}

	var in, out int
	for _, r := range records {
		in += r.InputTokens
		out += r.OutputTokens
	}
	fmt.Printf("provider=%s requests=%d input_tokens=%d output_tokens=%d cost_usd=%.6f\n",
		providerID, len(records), in, out, total)
	return nil
}

// readPrompt joins the positional arguments, or reads stdin when there are
// none.
func readPrompt(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(b))
	if prompt == "" {
		return "", errors.New("empty prompt: pass it as arguments or on stdin")
	}
	return prompt, nil
}

func streamResponse(ctx context.Context, gw *gateway.Gateway, opts *options, req domain.UnifiedRequest) error {
	s, err := gw.Stream(ctx, opts.provider, req)
	if err != nil {
		return err
	}
	defer s.Close()

	enc := json.NewEncoder(os.Stdout)
	for r, err := range s.Fragments() {
		if err != nil {
			fmt.Println()
			return err
		}
		if opts.jsonOut {
			if err := enc.Encode(r); err != nil {
				return err
			}
			continue
		}
		fmt.Print(r.Content())
		if r.Terminal() {
			fmt.Println()
			logUsage(r)
		}
	}
	return nil
}

func printResponse(w io.Writer, resp *domain.UnifiedResponse, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if fc := resp.FunctionCall; fc != nil {
		fmt.Fprintf(w, "function_call %s(%s)\n", fc.Name, fc.Arguments)
	}
	fmt.Fprintln(w, resp.Content())
	logUsage(resp)
	return nil
}

func logUsage(resp *domain.UnifiedResponse) {
	u := resp.Usage
	if u == nil {
		return
	}
	attrs := []any{
		"provider", resp.Provider,
		"model", resp.Model,
		"finish_reason", resp.FinishReason,
		"input_tokens", u.PromptTokens,
		"output_tokens", u.CompletionTokens,
		"estimated", u.Estimated,
	}
	if u.EstimatedCost != nil {
		attrs = append(attrs, "cost_usd", *u.EstimatedCost)
	}
	slog.Info("usage", attrs...)
}

// setupLogger writes to stderr so responses on stdout stay clean.
func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
