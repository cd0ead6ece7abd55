// Package catalog loads and validates the server configuration
// document.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"mcpchat/internal/domain"
)

type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		return &Loader{logger: zap.NewNop()}
	}
	return &Loader{logger: logger.Named("catalog")}
}

type rawConfig struct {
	Servers            map[string]rawServerSpec `mapstructure:"servers"`
	Model              rawModelConfig           `mapstructure:"model"`
	CallTimeoutSeconds int                      `mapstructure:"callTimeoutSeconds"`
	Observability      rawObservabilityConfig   `mapstructure:"observability"`
}

type rawServerSpec struct {
	Transport string            `mapstructure:"transport"`
	Command   string            `mapstructure:"command"`
	Args      []string          `mapstructure:"args"`
	Env       map[string]string `mapstructure:"env"`
	Cwd       string            `mapstructure:"cwd"`
	HTTP      rawHTTPConfig     `mapstructure:"http"`
}

type rawHTTPConfig struct {
	Endpoint string            `mapstructure:"endpoint"`
	Headers  map[string]string `mapstructure:"headers"`
}

type rawModelConfig struct {
	Provider     string `mapstructure:"provider"`
	Model        string `mapstructure:"model"`
	APIKey       string `mapstructure:"apiKey"`
	APIKeyEnvVar string `mapstructure:"apiKeyEnvVar"`
	BaseURL      string `mapstructure:"baseURL"`
}

type rawObservabilityConfig struct {
	ListenAddress string `mapstructure:"listenAddress"`
}

// Load reads, expands, and validates the configuration document. Any
// failure here is fatal for startup; validation reports every problem
// at once.
func (l *Loader) Load(path string) (domain.Config, error) {
	if path == "" {
		return domain.Config{}, errors.New("config path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Config{}, fmt.Errorf("read config: %w", err)
	}

	expanded, missing := expandConfigEnv(string(data))
	if len(missing) > 0 {
		l.logger.Warn("missing environment variables in config", zap.String("path", path), zap.Strings("missing", missing))
	}

	v := viper.New()
	v.SetConfigType(configType(path))
	v.SetDefault("callTimeoutSeconds", domain.DefaultCallTimeoutSeconds)
	if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
		return domain.Config{}, fmt.Errorf("parse config: %w", err)
	}

	var cfg rawConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return domain.Config{}, fmt.Errorf("decode config: %w", err)
	}

	var validationErrors []string
	if len(cfg.Servers) == 0 {
		validationErrors = append(validationErrors, "servers: at least one server is required")
	}

	specs := make(map[string]domain.ServerSpec, len(cfg.Servers))
	for _, name := range sortedNames(cfg.Servers) {
		spec := normalizeServerSpec(name, cfg.Servers[name])
		if errs := validateServerSpec(spec); len(errs) > 0 {
			validationErrors = append(validationErrors, errs...)
			continue
		}
		specs[name] = spec
	}

	model, modelErrs := normalizeModelConfig(cfg.Model)
	validationErrors = append(validationErrors, modelErrs...)

	if cfg.CallTimeoutSeconds < 0 {
		validationErrors = append(validationErrors, "callTimeoutSeconds must be >= 0")
	}

	if len(validationErrors) > 0 {
		return domain.Config{}, errors.New(strings.Join(validationErrors, "; "))
	}

	return domain.Config{
		Servers: specs,
		Model:   model,
		Runtime: domain.RuntimeConfig{
			CallTimeoutSeconds: cfg.CallTimeoutSeconds,
			Observability: domain.ObservabilityConfig{
				ListenAddress: strings.TrimSpace(cfg.Observability.ListenAddress),
			},
		},
	}, nil
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".toml":
		return "toml"
	default:
		return "yaml"
	}
}

func normalizeServerSpec(name string, raw rawServerSpec) domain.ServerSpec {
	transport := domain.NormalizeTransport(domain.TransportKind(strings.TrimSpace(raw.Transport)))
	if transport == domain.TransportStdio && strings.TrimSpace(raw.Transport) == "" && strings.TrimSpace(raw.HTTP.Endpoint) != "" {
		transport = domain.TransportStreamableHTTP
	}

	spec := domain.ServerSpec{
		Name:      name,
		Transport: transport,
		Command:   strings.TrimSpace(raw.Command),
		Args:      raw.Args,
		Env:       raw.Env,
		Cwd:       raw.Cwd,
	}
	if transport == domain.TransportStreamableHTTP {
		spec.HTTP = &domain.StreamableHTTPConfig{
			Endpoint: strings.TrimSpace(raw.HTTP.Endpoint),
			Headers:  raw.HTTP.Headers,
		}
	}
	return spec
}

func validateServerSpec(spec domain.ServerSpec) []string {
	var errs []string
	if strings.TrimSpace(spec.Name) == "" {
		errs = append(errs, "servers: name must not be empty")
		return errs
	}
	switch spec.Transport {
	case domain.TransportStdio:
		if spec.Command == "" {
			errs = append(errs, fmt.Sprintf("servers.%s: command is required for stdio transport", spec.Name))
		}
	case domain.TransportStreamableHTTP:
		if spec.Command != "" {
			errs = append(errs, fmt.Sprintf("servers.%s: command must be empty for streamable_http transport", spec.Name))
		}
		endpoint := ""
		if spec.HTTP != nil {
			endpoint = spec.HTTP.Endpoint
		}
		if endpoint == "" {
			errs = append(errs, fmt.Sprintf("servers.%s: http.endpoint is required for streamable_http transport", spec.Name))
		} else if parsed, err := url.ParseRequestURI(endpoint); err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			errs = append(errs, fmt.Sprintf("servers.%s: http.endpoint must be a valid http(s) URL", spec.Name))
		}
	default:
		errs = append(errs, fmt.Sprintf("servers.%s: transport must be stdio or streamable_http", spec.Name))
	}
	return errs
}

func normalizeModelConfig(raw rawModelConfig) (domain.ModelConfig, []string) {
	var errs []string
	if strings.TrimSpace(raw.Model) == "" {
		errs = append(errs, "model.model is required")
	}
	provider := strings.ToLower(strings.TrimSpace(raw.Provider))
	if provider == "" {
		provider = domain.DefaultModelProvider
	}
	if provider != domain.DefaultModelProvider {
		errs = append(errs, fmt.Sprintf("model.provider %q is not supported", raw.Provider))
	}
	return domain.ModelConfig{
		Provider:     provider,
		Model:        strings.TrimSpace(raw.Model),
		APIKey:       raw.APIKey,
		APIKeyEnvVar: strings.TrimSpace(raw.APIKeyEnvVar),
		BaseURL:      strings.TrimSpace(raw.BaseURL),
	}, errs
}

// expandConfigEnv substitutes ${VAR} references with environment
// values, reporting unset variables.
func expandConfigEnv(data string) (string, []string) {
	var missing []string
	seen := make(map[string]struct{})
	expanded := os.Expand(data, func(name string) string {
		value, ok := os.LookupEnv(name)
		if !ok {
			if _, dup := seen[name]; !dup {
				seen[name] = struct{}{}
				missing = append(missing, name)
			}
			return ""
		}
		return value
	})
	sort.Strings(missing)
	return expanded, missing
}

func sortedNames(servers map[string]rawServerSpec) []string {
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
