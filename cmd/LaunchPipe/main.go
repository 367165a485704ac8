package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/BTreeMap/LaunchPipe/internal/api"
	"github.com/BTreeMap/LaunchPipe/internal/lockfile"
	"github.com/BTreeMap/LaunchPipe/internal/provision"
	"github.com/BTreeMap/LaunchPipe/internal/store"
	"github.com/BTreeMap/LaunchPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/LaunchPipe/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for LaunchPipe state data
	DefaultStateDir = "/var/lib/launchpipe"
	// DefaultAppDBFileName is the default SQLite database filename for tasks and snapshots
	DefaultAppDBFileName = "launchpipe.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow device database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup still happens.
func run() int {
	// Load environment configuration
	config, err := loadEnvironmentConfig()
	if err != nil {
		slog.Error("Invalid environment configuration", "error", err)
		return 1
	}

	// Parse command line flags
	flags, err := parseCommandLineFlags(config, os.Args[1:])
	if err != nil {
		return 2
	}

	initializeLogger(flags.logLevel)

	// Only one instance may own the state directory
	if usesStateDir(flags) {
		lock, err := lockfile.AcquireLock(flags.stateDir, flags.apiAddr)
		if err != nil {
			slog.Error("Failed to lock state directory", "error", err)
			return 1
		}
		defer lock.Release()
	}

	// Build module options
	waOpts := buildWhatsAppOptions(flags)
	twilioOpts := buildTwilioOptions(flags)
	storeOpts := buildStoreOptions(flags)
	provOpts := buildProvisionOptions(flags)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping LaunchPipe with configured modules")
	slog.Debug("Final configuration", "state_dir", flags.stateDir, "dsn_set", flags.dbDSN != "", "api_addr", flags.apiAddr,
		"whatsapp_alerts", waOpts != nil, "twilio_alerts", twilioOpts != nil, "redis_snapshots", flags.redisURL != "")
	if err := api.Run(waOpts, twilioOpts, storeOpts, provOpts, apiOpts); err != nil {
		slog.Error("LaunchPipe failed to run", "error", err)
		return 1
	}
	slog.Info("LaunchPipe exited successfully")
	return 0
}

// Config holds environment configuration
type Config struct {
	StateDir    string `envconfig:"LAUNCHPIPE_STATE_DIR" default:"/var/lib/launchpipe"`
	DatabaseDSN string `envconfig:"DATABASE_DSN"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	APIAddr     string `envconfig:"API_ADDR" default:":8080"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"debug"`

	AllowedOrigins []string      `envconfig:"ALLOWED_ORIGINS"`
	RedisURL       string        `envconfig:"SNAPSHOT_REDIS_URL"`
	SnapshotTTL    time.Duration `envconfig:"SNAPSHOT_TTL"`

	ProvisionEndpoint  string `envconfig:"PROVISION_ENDPOINT"`
	ProvisionAPIID     string `envconfig:"PROVISION_API_ID"`
	ProvisionAPISecret string `envconfig:"PROVISION_API_SECRET"`
	ProvisionEmail     string `envconfig:"PROVISION_EMAIL"`
	ProvisionTestUsers bool   `envconfig:"PROVISION_TEST_USERS"`

	AlertRecipient   string `envconfig:"ALERT_RECIPIENT"`
	TwilioAccountSID string `envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `envconfig:"TWILIO_AUTH_TOKEN"`
	TwilioFrom       string `envconfig:"TWILIO_WHATSAPP_FROM"`
	WhatsAppEnabled  bool   `envconfig:"WHATSAPP_ENABLED"`
	WhatsAppDSN      string `envconfig:"WHATSAPP_DB_DSN"`
}

// Flags holds resolved command line values
type Flags struct {
	stateDir       string
	dbDSN          string
	apiAddr        string
	logLevel       string
	allowedOrigins []string
	redisURL       string
	snapshotTTL    time.Duration

	provisionEndpoint string
	provisionAPIID    string
	provisionSecret   string
	provisionEmail    string
	provisionTest     bool

	alertRecipient string
	twilioSID      string
	twilioToken    string
	twilioFrom     string
	whatsapp       bool
	whatsappDSN    string
	qrOutput       string
	numeric        bool
}

// initializeLogger sets up structured logging at the given level
func initializeLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	if level != "" && !strings.EqualFold(lvl.String(), level) {
		slog.Warn("Unknown log level, using debug", "log_level", level)
	}
}

// loadEnvironmentConfig loads configuration from the environment and .env file
func loadEnvironmentConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return Config{}, fmt.Errorf("failed to process environment: %w", err)
	}

	// DATABASE_URL is accepted when DATABASE_DSN is not set
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = config.DatabaseURL
	}

	slog.Debug("environment variables loaded",
		"LAUNCHPIPE_STATE_DIR", config.StateDir,
		"DATABASE_DSN_SET", config.DatabaseDSN != "",
		"API_ADDR", config.APIAddr,
		"SNAPSHOT_REDIS_URL_SET", config.RedisURL != "",
		"PROVISION_ENDPOINT", config.ProvisionEndpoint,
		"PROVISION_API_ID_SET", config.ProvisionAPIID != "",
		"PROVISION_API_SECRET_SET", config.ProvisionAPISecret != "",
		"ALERT_RECIPIENT_SET", config.AlertRecipient != "",
		"TWILIO_ACCOUNT_SID_SET", config.TwilioAccountSID != "",
		"WHATSAPP_ENABLED", config.WhatsAppEnabled)

	return config, nil
}

// parseCommandLineFlags parses args with environment defaults. Database
// paths left unset default into the (possibly overridden) state directory.
func parseCommandLineFlags(config Config, args []string) (Flags, error) {
	var f Flags
	var origins string
	fs := flag.NewFlagSet("LaunchPipe", flag.ContinueOnError)
	fs.StringVar(&f.stateDir, "state-dir", config.StateDir, "state directory for LaunchPipe data (overrides $LAUNCHPIPE_STATE_DIR)")
	fs.StringVar(&f.dbDSN, "db-dsn", config.DatabaseDSN, "task and snapshot database: SQLite path or Postgres URL (overrides $DATABASE_DSN or $DATABASE_URL)")
	fs.StringVar(&f.apiAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&f.logLevel, "log-level", config.LogLevel, "log level: debug, info, warn or error (overrides $LOG_LEVEL)")
	fs.StringVar(&origins, "allowed-origins", strings.Join(config.AllowedOrigins, ","), "comma separated page origins accepted on /page/ws (overrides $ALLOWED_ORIGINS)")
	fs.StringVar(&f.redisURL, "snapshot-redis-url", config.RedisURL, "store parameter snapshots in Redis (overrides $SNAPSHOT_REDIS_URL)")
	fs.DurationVar(&f.snapshotTTL, "snapshot-ttl", config.SnapshotTTL, "expiry of Redis snapshots, 0 keeps them (overrides $SNAPSHOT_TTL)")
	fs.StringVar(&f.provisionEndpoint, "provision-endpoint", config.ProvisionEndpoint, "provisioning endpoint (overrides $PROVISION_ENDPOINT)")
	fs.StringVar(&f.provisionAPIID, "provision-api-id", config.ProvisionAPIID, "provisioning API id (overrides $PROVISION_API_ID)")
	fs.StringVar(&f.provisionSecret, "provision-api-secret", config.ProvisionAPISecret, "provisioning API secret (overrides $PROVISION_API_SECRET)")
	fs.StringVar(&f.provisionEmail, "provision-email", config.ProvisionEmail, "email attached to provisioned users (overrides $PROVISION_EMAIL)")
	fs.BoolVar(&f.provisionTest, "provision-test-users", config.ProvisionTestUsers, "provision users as test users (overrides $PROVISION_TEST_USERS)")
	fs.StringVar(&f.alertRecipient, "alert-recipient", config.AlertRecipient, "operator number receiving copies of page alerts (overrides $ALERT_RECIPIENT)")
	fs.StringVar(&f.twilioSID, "twilio-account-sid", config.TwilioAccountSID, "Twilio account SID; enables Twilio alerts (overrides $TWILIO_ACCOUNT_SID)")
	fs.StringVar(&f.twilioToken, "twilio-auth-token", config.TwilioAuthToken, "Twilio auth token (overrides $TWILIO_AUTH_TOKEN)")
	fs.StringVar(&f.twilioFrom, "twilio-from", config.TwilioFrom, "Twilio WhatsApp sender number (overrides $TWILIO_WHATSAPP_FROM)")
	fs.BoolVar(&f.whatsapp, "whatsapp", config.WhatsAppEnabled, "enable WhatsApp alerts through a linked device (overrides $WHATSAPP_ENABLED)")
	fs.StringVar(&f.whatsappDSN, "whatsapp-db-dsn", config.WhatsAppDSN, "whatsmeow device database (overrides $WHATSAPP_DB_DSN)")
	fs.StringVar(&f.qrOutput, "qr-output", "", "path to write login QR code")
	fs.BoolVar(&f.numeric, "numeric-code", false, "use numeric login code instead of QR code")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	if origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				f.allowedOrigins = append(f.allowedOrigins, o)
			}
		}
	}
	if f.stateDir == "" {
		f.stateDir = DefaultStateDir
	}
	if f.dbDSN == "" {
		f.dbDSN = filepath.Join(f.stateDir, DefaultAppDBFileName)
	}
	if f.whatsappDSN == "" {
		f.whatsappDSN = "file:" + filepath.Join(f.stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}
	return f, nil
}

// usesStateDir reports whether any configured backend keeps files in the state directory.
func usesStateDir(flags Flags) bool {
	if store.DetectDSNType(flags.dbDSN) == "sqlite3" {
		return true
	}
	return flags.whatsapp && store.DetectDSNType(flags.whatsappDSN) == "sqlite3"
}

// buildWhatsAppOptions returns nil when WhatsApp alerts are disabled
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	if !flags.whatsapp {
		return nil
	}
	waOpts := []whatsapp.Option{whatsapp.WithDBDSN(flags.whatsappDSN)}
	if flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(flags.qrOutput))
	}
	if flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	return waOpts
}

// buildTwilioOptions returns nil when no Twilio account is configured
func buildTwilioOptions(flags Flags) []twiliowhatsapp.Option {
	if flags.twilioSID == "" {
		return nil
	}
	return []twiliowhatsapp.Option{
		twiliowhatsapp.WithAccountSID(flags.twilioSID),
		twiliowhatsapp.WithAuthToken(flags.twilioToken),
		twiliowhatsapp.WithFromWhats(flags.twilioFrom),
	}
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	if store.DetectDSNType(flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
		return []store.Option{store.WithPostgresDSN(flags.dbDSN)}
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", flags.dbDSN)
	return []store.Option{store.WithSQLiteDSN(flags.dbDSN)}
}

// buildProvisionOptions constructs provisioning client options
func buildProvisionOptions(flags Flags) []provision.Option {
	provOpts := []provision.Option{
		provision.WithCredentials(flags.provisionAPIID, flags.provisionSecret),
		provision.WithTestUsers(flags.provisionTest),
	}
	if flags.provisionEndpoint != "" {
		provOpts = append(provOpts, provision.WithEndpoint(flags.provisionEndpoint))
	}
	if flags.provisionEmail != "" {
		provOpts = append(provOpts, provision.WithEmail(flags.provisionEmail))
	}
	return provOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(flags.apiAddr))
	}
	if flags.redisURL != "" {
		apiOpts = append(apiOpts, api.WithRedisSnapshots(flags.redisURL, flags.snapshotTTL))
	}
	if flags.alertRecipient != "" {
		apiOpts = append(apiOpts, api.WithAlertRecipient(flags.alertRecipient))
	}
	if len(flags.allowedOrigins) > 0 {
		apiOpts = append(apiOpts, api.WithAllowedOrigins(flags.allowedOrigins...))
	}
	return apiOpts
}
