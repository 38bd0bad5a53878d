package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/BDNK1/plugrun/internal/config"
	"github.com/BDNK1/plugrun/internal/telemetry"
	"github.com/BDNK1/plugrun/plugins/webhook"
	"github.com/BDNK1/plugrun/runtime"
	yamlengine "github.com/BDNK1/plugrun/runtime/engine/yaml"
)

// environment is everything a command needs once the config is loaded and
// providers are started.
type environment struct {
	cfg *config.Config
	tel *telemetry.Telemetry
	app *runtime.App
	l   *slog.Logger
}

func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if errors.Is(err, fs.ErrNotExist) && !opts.configSet {
		cfg, err = config.Default()
	}
	if err != nil {
		return nil, err
	}

	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	return cfg, nil
}

func setup(ctx context.Context, opts *rootOptions) (*environment, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level, err := telemetry.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	tel, err := telemetry.Setup(ctx, cfg.Telemetry, level)
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}
	l := tel.Logger

	providers, err := buildProviders(cfg, l)
	if err != nil {
		tel.Shutdown(ctx)
		return nil, err
	}

	app, err := runtime.NewApp(l, providers,
		runtime.WithTracerProvider(tel.TracerProvider),
		runtime.WithMeterProvider(tel.MeterProvider))
	if err != nil {
		tel.Shutdown(ctx)
		return nil, err
	}

	if err := app.Start(ctx); err != nil {
		app.Stop(ctx)
		tel.Shutdown(ctx)
		return nil, err
	}

	return &environment{cfg: cfg, tel: tel, app: app, l: l}, nil
}

func (e *environment) close(ctx context.Context) error {
	return errors.Join(e.app.Stop(ctx), e.tel.Shutdown(ctx))
}

// builtinProviders returns the Go providers compiled into this binary,
// configured from the providers section of the config.
func builtinProviders(cfg *config.Config, l *slog.Logger) ([]runtime.Provider, error) {
	hook := webhook.New(webhook.Config{}, l)
	if err := runtime.InitializeConfig(&hook.Config, cfg.ProviderConfig(hook.Identifier())); err != nil {
		return nil, fmt.Errorf("failed to initialize %s config: %w", hook.Identifier(), err)
	}

	return []runtime.Provider{hook}, nil
}

// buildProviders combines the built-in providers with manifest-declared
// plugs. A manifest whose provider matches a built-in replaces that
// provider's declarations; any other manifest is registered alongside,
// backed by its implementation.
func buildProviders(cfg *config.Config, l *slog.Logger) ([]runtime.Provider, error) {
	builtins, err := builtinProviders(cfg, l)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]runtime.Provider, len(builtins))
	for _, p := range builtins {
		byID[p.Identifier()] = p
	}

	manifests, err := loadManifests(cfg.Manifests)
	if err != nil {
		return nil, err
	}

	replaced := make(map[string]runtime.Provider)
	var extra []runtime.Provider
	for _, m := range manifests {
		impl, ok := byID[m.ImplementationID()]
		if !ok {
			return nil, fmt.Errorf("manifest for provider %q: no implementation %q", m.Provider, m.ImplementationID())
		}
		bound := yamlengine.Bind(m, impl)
		if _, builtin := byID[m.Provider]; builtin {
			replaced[m.Provider] = bound
			continue
		}
		extra = append(extra, bound)
		l.Debug("Loaded plug manifest",
			"provider", m.Provider,
			"implementation", m.ImplementationID(),
			"plugs", len(m.Plugs))
	}

	providers := make([]runtime.Provider, 0, len(builtins)+len(extra))
	for _, p := range builtins {
		if r, ok := replaced[p.Identifier()]; ok {
			p = r
		}
		providers = append(providers, p)
	}
	return append(providers, extra...), nil
}

func loadManifests(paths []string) ([]yamlengine.Manifest, error) {
	loader := yamlengine.NewManifestLoader()

	var manifests []yamlengine.Manifest
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("manifest path: %w", err)
		}
		if info.IsDir() {
			ms, err := loader.LoadDir(path)
			if err != nil {
				return nil, err
			}
			manifests = append(manifests, ms...)
			continue
		}
		m, err := loader.Load(path)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}
