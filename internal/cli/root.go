package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"quiz-room-service/internal/config"
	"quiz-room-service/internal/logging"
)

const envPrefix = "QUIZROOM"

type options struct {
	configPath    string
	port          string
	publicURL     string
	redisAddr     string
	redisPassword string
	postgresURL   string
	amqpURL       string
	amqpQueue     string
	logLevel      string
	noColor       bool
}

// Execute runs the CLI.
func Execute() error {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "err", err)
	}
	return newRootCmd(&options{}).Execute()
}

func newRootCmd(opts *options) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "quiz-room",
		Short:         "Live multiplayer trivia rooms over WebSocket",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Env values apply to flags left unset on the command line.
			fs := cmd.Flags()
			fs.VisitAll(func(f *pflag.Flag) {
				_ = v.BindPFlag(f.Name, f)
				_ = v.BindEnv(f.Name)
				if !f.Changed && v.IsSet(f.Name) {
					_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
				}
			})
			return nil
		},
	}

	fs := cmd.PersistentFlags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	fs.StringVar(&opts.configPath, "config", "config/config.yaml", "path to YAML config (env: QUIZROOM_CONFIG)")
	fs.StringVar(&opts.port, "port", "", "port to listen on, overrides server.port (env: QUIZROOM_PORT)")
	fs.StringVar(&opts.publicURL, "public-url", "", "base URL encoded in join QR codes (env: QUIZROOM_PUBLIC_URL)")
	fs.StringVar(&opts.redisAddr, "redis-addr", "", "redis address, empty keeps rooms in memory (env: QUIZROOM_REDIS_ADDR)")
	fs.StringVar(&opts.redisPassword, "redis-password", "", "redis password (env: QUIZROOM_REDIS_PASSWORD)")
	fs.StringVar(&opts.postgresURL, "postgres-url", "", "postgres DSN for questions and results (env: QUIZROOM_POSTGRES_URL)")
	fs.StringVar(&opts.amqpURL, "amqp-url", "", "RabbitMQ URL for game results (env: QUIZROOM_AMQP_URL)")
	fs.StringVar(&opts.amqpQueue, "amqp-queue", "", "RabbitMQ queue for game results (env: QUIZROOM_AMQP_QUEUE)")
	fs.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error, overrides log.level (env: QUIZROOM_LOG_LEVEL)")
	fs.BoolVar(&opts.noColor, "no-color", false, "disable colored logs (env: QUIZROOM_NO_COLOR)")

	cmd.AddCommand(NewStartCmd(opts))
	cmd.AddCommand(NewMigrateCmd(opts))
	cmd.AddCommand(NewQuestionsCmd(opts))
	cmd.CompletionOptions.HiddenDefaultCmd = true
	return cmd
}

// load reads the config file and applies flag overrides.
func (o *options) load(w io.Writer) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, nil, err
	}
	if o.port != "" {
		cfg.Server.Port = o.port
	}
	override(&cfg.Server.PublicURL, o.publicURL)
	override(&cfg.Redis.Addr, o.redisAddr)
	override(&cfg.Redis.Password, o.redisPassword)
	override(&cfg.Postgres.URL, o.postgresURL)
	override(&cfg.AMQP.URL, o.amqpURL)
	override(&cfg.AMQP.Queue, o.amqpQueue)
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.noColor {
		cfg.Log.NoColor = true
	}
	if w == nil {
		w = os.Stderr
	}
	log := logging.New(w, cfg.Log.Level, cfg.Log.NoColor)
	slog.SetDefault(log)
	return cfg, log, nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
