package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-pulse/backend/internal/adminapi"
	"github.com/aura-pulse/backend/internal/presenter"
	"github.com/aura-pulse/backend/internal/streamclient"
)

const (
	serverKey           = "server"
	tokenKey            = "token"
	sessionKey          = "session"
	emailKey            = "email"
	passwordKey         = "password"
	reconnectInitialKey = "reconnect_initial"
	reconnectMaxKey     = "reconnect_max"
	plainKey            = "plain"
	logFileKey          = "log_file"
)

// settings are the resolved flag, env and config file values.
type settings struct {
	Server           string
	Token            string
	Session          uuid.UUID
	Email            string
	Password         string
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	Plain            bool
	LogFile          string
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "presenter",
		Short: "Live dashboard for one survey session",
		Long: `Connects to a session's event stream (or polls when streaming is off),
keeps a local replica of its participants and redraws the analytics on every change.
Type "end" to end the session, "rm N" to remove participant N, "q" to quit.`,
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(v, cfgFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := resolve(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), s)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.presenter.yaml)")
	flags.String("server", "http://localhost:8080", "API base URL")
	flags.String("token", "", "admin JWT")
	flags.String("session", "", "session id")
	flags.String("email", "", "admin email, used to log in when no token is given")
	flags.String("password", "", "admin password")
	flags.Duration("reconnect-initial", streamclient.DefaultInitialDelay, "first reconnect delay")
	flags.Duration("reconnect-max", streamclient.DefaultMaxDelay, "reconnect delay ceiling")
	flags.Bool("plain", false, "print one summary line per change instead of the full-screen view")
	flags.String("log-file", "", "write logs to this file")

	for key, flag := range map[string]string{
		serverKey:           "server",
		tokenKey:            "token",
		sessionKey:          "session",
		emailKey:            "email",
		passwordKey:         "password",
		reconnectInitialKey: "reconnect-initial",
		reconnectMaxKey:     "reconnect-max",
		plainKey:            "plain",
		logFileKey:          "log-file",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}
	return cmd
}

// loadConfig reads the optional config file and PRESENTER_* environment variables.
func loadConfig(v *viper.Viper, cfgFile string) error {
	v.SetEnvPrefix("presenter")
	v.AutomaticEnv()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		v.AddConfigPath(home)
		v.SetConfigType("yaml")
		v.SetConfigName(".presenter")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && cfgFile == "" {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func resolve(v *viper.Viper) (settings, error) {
	s := settings{
		Server:           v.GetString(serverKey),
		Token:            v.GetString(tokenKey),
		Email:            v.GetString(emailKey),
		Password:         v.GetString(passwordKey),
		ReconnectInitial: v.GetDuration(reconnectInitialKey),
		ReconnectMax:     v.GetDuration(reconnectMaxKey),
		Plain:            v.GetBool(plainKey),
		LogFile:          v.GetString(logFileKey),
	}
	raw := v.GetString(sessionKey)
	if raw == "" {
		return s, errors.New("--session is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return s, fmt.Errorf("invalid session id %q", raw)
	}
	s.Session = id
	if s.Token == "" && s.Email == "" {
		return s, errors.New("either --token or --email/--password is required")
	}
	if s.ReconnectMax < s.ReconnectInitial {
		return s, errors.New("--reconnect-max must not be below --reconnect-initial")
	}
	return s, nil
}

func run(ctx context.Context, s settings) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, err := newLogger(s.LogFile)
	if err != nil {
		return err
	}
	defer logger.Sync()

	api := adminapi.New(s.Server, s.Token, nil)
	if s.Token == "" {
		loginCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		_, err := api.Login(loginCtx, s.Email, s.Password)
		cancel()
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}

	base := streamclient.Config{
		BaseURL:      s.Server,
		SessionID:    s.Session,
		Token:        api.Token(),
		InitialDelay: s.ReconnectInitial,
		MaxDelay:     s.ReconnectMax,
		Logger:       logger,
	}
	factory := func(onEvent streamclient.Handler, observer streamclient.Observer) streamclient.Subscriber {
		cfg := base
		cfg.OnEvent = onEvent
		cfg.Observer = observer
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return streamclient.Select(probeCtx, api.Probe(s.Session), api, cfg)
	}
	opts := presenter.Options{SessionID: s.Session, API: api, NewSubscriber: factory, Logger: logger}

	if s.Plain {
		return runPlain(ctx, opts)
	}
	return runDashboard(ctx, opts)
}

func runPlain(ctx context.Context, opts presenter.Options) error {
	opts.Render = func(fr presenter.Frame) { fmt.Println(summaryLine(fr)) }
	view, err := presenter.Open(ctx, opts)
	if err != nil {
		return err
	}
	defer view.Close()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	return nil
}

func newLogger(path string) (*zap.Logger, error) {
	if path == "" {
		return zap.NewNop(), nil
	}
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.OutputPaths = []string{path}
	config.ErrorOutputPaths = []string{path}
	return config.Build()
}
