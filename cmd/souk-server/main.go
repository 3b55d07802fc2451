package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/idrissimart/souk/pkg/ads"
	"github.com/idrissimart/souk/pkg/auth"
	"github.com/idrissimart/souk/pkg/chat"
	"github.com/idrissimart/souk/pkg/config"
	"github.com/idrissimart/souk/pkg/httpapi"
	"github.com/idrissimart/souk/pkg/knowledge"
	"github.com/idrissimart/souk/pkg/otp"
	"github.com/idrissimart/souk/pkg/stream"
)

func main() {
	root := &cobra.Command{
		Use:   "souk-server",
		Short: "Marketplace chat and knowledge responder server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
		SilenceUsage: true,
	}
	root.AddCommand(newMintTokenCommand())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("exited")
	}
}

func setupLogging(jsonOutput bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if !jsonOutput {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.LogJSON)

	authn, err := auth.NewJWTAuthenticator(cfg.JWTSecret)
	if err != nil {
		return err
	}

	knowledgeStore, err := knowledge.NewStore(cfg.DSN())
	if err != nil {
		return err
	}
	defer func() { _ = knowledgeStore.Close() }()

	responder, err := knowledge.NewResponder(knowledge.ResponderConfig{Store: knowledgeStore})
	if err != nil {
		return err
	}

	roomStore, err := chat.NewRoomStore(cfg.DSN())
	if err != nil {
		return err
	}
	defer func() { _ = roomStore.Close() }()

	messageStore, err := chat.NewMessageStore(cfg.DSN())
	if err != nil {
		return err
	}
	defer func() { _ = messageStore.Close() }()

	adStore, err := ads.NewStore(cfg.DSN())
	if err != nil {
		return err
	}
	defer func() { _ = adStore.Close() }()

	broker, err := stream.NewBroker(stream.Settings{Enabled: cfg.RedisEnabled, Addr: cfg.RedisAddr})
	if err != nil {
		return err
	}
	defer func() { _ = broker.Close() }()

	hub, err := chat.NewHub(chat.HubConfig{
		BaseCtx:  ctx,
		Broker:   broker,
		Rooms:    roomStore,
		Messages: messageStore,
	})
	if err != nil {
		return err
	}

	resolver, err := chat.NewRoomResolver(roomStore, adStore)
	if err != nil {
		return err
	}

	var codeStore otp.CodeStore
	var redisCodes *otp.RedisCodeStore
	if cfg.RedisEnabled {
		redisCodes, err = otp.NewRedisCodeStore(cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer func() { _ = redisCodes.Close() }()
		codeStore = redisCodes
	} else {
		// Single-process deployments get ephemeral in-memory codes; that is
		// fine because codes are short-lived by construction.
		codeStore = otp.NewMemoryCodeStore()
	}
	otpSvc, err := otp.NewService(otp.ServiceConfig{
		Codes:       codeStore,
		TTL:         cfg.OTPTTL,
		Digits:      cfg.OTPDigits,
		MaxAttempts: cfg.OTPAttempts,
	})
	if err != nil {
		return err
	}

	api, err := httpapi.NewServer(httpapi.ServerConfig{
		Auth:           authn,
		Responder:      responder,
		Hub:            hub,
		Resolver:       resolver,
		OTP:            otpSvc,
		AllowedOrigins: cfg.Origins(),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Bool("redis", cfg.RedisEnabled).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		hub.Shutdown()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newMintTokenCommand issues a development token so the websocket routes can
// be exercised without the external auth service.
func newMintTokenCommand() *cobra.Command {
	var (
		userID string
		name   string
		staff  bool
	)
	cmd := &cobra.Command{
		Use:   "mint-token",
		Short: "Mint a development JWT for the configured secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			authn, err := auth.NewJWTAuthenticator(cfg.JWTSecret)
			if err != nil {
				return err
			}
			token, err := authn.Mint(auth.Identity{ID: userID, Name: name, Staff: staff})
			if err != nil {
				return err
			}
			cmd.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id claim")
	cmd.Flags().StringVar(&name, "name", "", "display name claim")
	cmd.Flags().BoolVar(&staff, "staff", false, "staff claim")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
