package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gridforge/gridforge/internal/ctxlog"
	"github.com/gridforge/gridforge/internal/engine"
	"github.com/gridforge/gridforge/internal/env"
	"github.com/gridforge/gridforge/internal/ninja"
)

// Run evaluates every entry target against the project base environment
// and writes the resulting Ninja manifest to cfg.ManifestOut.
func (a *App) Run(ctx context.Context, cfg *Config) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("run started", "entries", len(a.entries))

	baseEnv, err := a.baseEnv(cfg.BaseEnv)
	if err != nil {
		return err
	}

	eng := engine.New(a.registry, a.store)
	for _, id := range a.entries {
		a.logger.Debug("evaluating entry", "target", id.String())
		if err := eng.EvaluateEntry(id, baseEnv); err != nil {
			return fmt.Errorf("evaluating %s: %w", id.String(), err)
		}
	}

	products := eng.Products()
	a.logger.Info("evaluation complete", "products", len(products))

	f, err := os.Create(cfg.ManifestOut)
	if err != nil {
		return fmt.Errorf("creating manifest %s: %w", cfg.ManifestOut, err)
	}
	defer f.Close()

	opts := ninja.Options{
		ProjectRoot:       cfg.ProjectRoot,
		ManifestOutput:    cfg.ManifestOut,
		RegenerateCommand: regenerateCommand(cfg),
		DescriptionFiles:  a.filesRead,
		Diagnostic:        cfg.Diagnostic,
	}

	w := ninja.NewWriter(f)
	if err := ninja.Write(w, products, opts); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}

	a.logger.Info("manifest written", "path", cfg.ManifestOut)
	return nil
}

// baseEnv resolves the project base environment: the base_env block named
// explicitly by name (or, if name is empty, the one named "default"), or
// the empty environment if the project declared neither.
func (a *App) baseEnv(name string) (env.Env, error) {
	model := a.registry.Model()
	if name == "" {
		name = "default"
	}
	d, ok := model.BaseEnvs[name]
	if !ok {
		if name == "default" {
			return a.store.MakeEmpty(), nil
		}
		return env.Env{}, fmt.Errorf("no base_env named %q declared by this project", name)
	}
	return a.store.Apply(a.store.MakeEmpty(), d)
}

// regenerateCommand reconstructs the command line that reproduces this
// invocation, for the manifest's regenerate build statement.
func regenerateCommand(cfg *Config) string {
	args := []string{os.Args[0], "-project-root", cfg.ProjectRoot, "-out", cfg.ManifestOut}
	if cfg.BaseEnv != "" {
		args = append(args, "-base-env", cfg.BaseEnv)
	}
	args = append(args, cfg.Targets...)
	return strings.Join(args, " ")
}
