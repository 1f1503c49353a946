package credentials

import (
	"github.com/spf13/viper"

	"github.com/grantflow/grantflow/pkg/logger"
)

const (
	// EnvironmentVar selects the store implementation: unset or "local"
	// picks the file-backed store, any hosted-platform identifier (e.g.
	// "gumloop") picks the platform-backed store.
	EnvironmentVar = "ENVIRONMENT"

	// PlatformURLVar points the remote store at the hosted platform's
	// credential API.
	PlatformURLVar = "GRANTFLOW_PLATFORM_URL"

	// PlatformAPIKeyVar is the ambient tenant API key for the remote store,
	// used when no per-request key is supplied.
	PlatformAPIKeyVar = "GRANTFLOW_PLATFORM_API_KEY"

	// LocalEnvironment is the default deployment environment.
	LocalEnvironment = "local"
)

type factoryOptions struct {
	store  Store
	apiKey string
}

// Option customizes store construction.
type Option func(*factoryOptions)

// WithStore injects a specific store implementation, bypassing environment
// inspection. Dependency override for tests.
func WithStore(store Store) Option {
	return func(o *factoryOptions) {
		o.store = store
	}
}

// WithAPIKey supplies a per-request tenant API key for the hosted store.
// Hosted platforms thread this through every call instead of relying on
// ambient environment state.
func WithAPIKey(apiKey string) Option {
	return func(o *factoryOptions) {
		o.apiKey = apiKey
	}
}

// Environment returns the configured deployment environment.
func Environment() string {
	env := viper.GetString(EnvironmentVar)
	if env == "" {
		return LocalEnvironment
	}
	return env
}

func init() {
	_ = viper.BindEnv(EnvironmentVar)
	_ = viper.BindEnv(PlatformURLVar)
	_ = viper.BindEnv(PlatformAPIKeyVar)
}

// NewStore builds a credential store for the current deployment environment.
//
// It never fails for a missing or misconfigured hosted backend: when the
// remote store cannot be constructed, the local file-backed store is used
// instead and a warning is logged. Store instances are cheap and not cached;
// callers may request a fresh one per call.
func NewStore(opts ...Option) (Store, error) {
	var options factoryOptions
	for _, opt := range opts {
		opt(&options)
	}

	if options.store != nil {
		return options.store, nil
	}

	env := Environment()
	if env != LocalEnvironment {
		apiKey := options.apiKey
		if apiKey == "" {
			apiKey = viper.GetString(PlatformAPIKeyVar)
		}
		remote, err := NewRemoteStore(viper.GetString(PlatformURLVar), apiKey)
		if err == nil {
			return NewFallbackStore(remote), nil
		}
		logger.Warnf("Hosted credential store unavailable for environment %q, falling back to local store: %v", env, err)
	}

	local, err := NewLocalStore()
	if err != nil {
		return nil, err
	}
	return NewFallbackStore(local), nil
}
