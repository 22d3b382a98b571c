package cli

import (
	"fmt"
	"os"

	"github.com/ragdesk/ragdesk/internal/api"
	"github.com/ragdesk/ragdesk/internal/category"
	"github.com/ragdesk/ragdesk/internal/config"
	"github.com/ragdesk/ragdesk/internal/constants"
	"github.com/ragdesk/ragdesk/internal/events"
	"github.com/ragdesk/ragdesk/internal/filelist"
	ihttp "github.com/ragdesk/ragdesk/internal/http"
	"github.com/ragdesk/ragdesk/internal/logging"
	"github.com/ragdesk/ragdesk/internal/session"
)

// app bundles what every backend command needs: merged configuration, a
// client, the user session and the event bus the components publish on.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	client  *api.Client
	session *session.Session
	bus     *events.EventBus
}

// loadConfig reads the config file and merges environment variables and
// flags. Priority: flags > environment > config file > defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyEnv()

	if apiBaseURL != "" {
		cfg.APIBaseURL = apiBaseURL
	}
	if sessionFile != "" {
		cfg.SessionFile = sessionFile
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}
	if noNotify {
		cfg.Notifications = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// resolveSession returns the --user session when given, otherwise the
// persisted identity, creating it on first use.
func resolveSession(cfg *config.Config) (*session.Session, error) {
	if userID != "" {
		return session.New(userID)
	}
	sess, err := session.Load(cfg.SessionFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return sess, nil
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if ihttp.NeedsProxyPassword(cfg) {
		password, err := promptPassword(fmt.Sprintf("Proxy password for %s@%s: ", cfg.ProxyUser, cfg.ProxyHost))
		if err != nil {
			return nil, fmt.Errorf("failed to read proxy password: %w", err)
		}
		cfg.ProxyPassword = password
	}

	log := GetLogger()
	if cfg.LogFile != "" {
		log = logging.NewLogger(logging.Options{LogFile: cfg.LogFile})
		logger = log
	}

	client, err := api.NewClient(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	sess, err := resolveSession(cfg)
	if err != nil {
		return nil, err
	}
	if sess.Created {
		fmt.Fprintf(os.Stderr, "Created new user id %s (stored in %s)\n", sess.UserID, sess.Path)
	}
	log.Debug().Str("user", sess.UserID).Str("api", cfg.APIBaseURL).Msg("session ready")

	return &app{
		cfg:     cfg,
		logger:  log,
		client:  client,
		session: sess,
		bus:     events.NewEventBus(constants.EventBusDefaultBuffer),
	}, nil
}

func (a *app) registry() *category.Registry {
	return category.NewRegistry(a.session, a.client, a.bus, a.logger)
}

func (a *app) view(reg *category.Registry) *filelist.View {
	return filelist.NewView(a.session, a.client, reg, a.bus, a.logger)
}

// Close releases the event bus and the log file.
func (a *app) Close() {
	a.bus.Close()
	if a.cfg.LogFile != "" {
		_ = a.logger.Close()
	}
}
