package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"buzzy/internal/distro"
	"buzzy/internal/env"
	"buzzy/internal/executor"
	"buzzy/internal/fetch"
	"buzzy/internal/logging"
	"buzzy/internal/recipe"
)

// session is everything a command needs once the environment is loaded.
type session struct {
	log     *zap.Logger
	envDir  string
	env     *env.Record
	runner  executor.Runner
	fetcher *fetch.Fetcher
	backend distro.Backend
	store   *recipe.Store
}

func (a *app) logger(cmd *cobra.Command) *zap.Logger {
	return logging.New(a.v.GetInt("verbose"), cmd.ErrOrStderr())
}

func (a *app) envDir() (string, error) {
	if dir := a.v.GetString("env-dir"); dir != "" {
		return filepath.Abs(dir)
	}
	return env.DefaultDir()
}

func (a *app) envStore() (*env.Store, error) {
	dir, err := a.envDir()
	if err != nil {
		return nil, err
	}
	asker := a.asker
	if asker == nil {
		asker = env.NewTerminalAsker()
	}
	return env.NewStore(dir, asker), nil
}

// loadEnv reads the environment record and applies --package-database.
func (a *app) loadEnv(checkVersion bool) (*env.Record, error) {
	store, err := a.envStore()
	if err != nil {
		return nil, err
	}
	rec, err := store.Load(checkVersion)
	if err != nil {
		return nil, err
	}
	if db := a.v.GetString("package-database"); db != "" {
		if rec.RecipeDatabase, err = filepath.Abs(db); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func (a *app) hostRunner(log *zap.Logger) *executor.Executor {
	e := executor.New(a.v.GetInt("verbose") > 0, log)
	e.Nice = a.v.GetBool("nice")
	return e
}

// open loads the environment and sets up the backend and recipe store.
func (a *app) open(cmd *cobra.Command, checkVersion bool) (*session, error) {
	log := a.logger(cmd)
	dir, err := a.envDir()
	if err != nil {
		return nil, err
	}
	rec, err := a.loadEnv(checkVersion)
	if err != nil {
		return nil, err
	}

	runner := a.runner
	if runner == nil {
		runner = a.hostRunner(log)
	}
	fetcher := fetch.New(filepath.Join(dir, "cache"), runner, log)
	fetcher.Quiet = !term.IsTerminal(int(os.Stderr.Fd()))

	root := a.v.GetString("root")
	if root == "" {
		root = filepath.Join(dir, "root")
	}
	if root, err = filepath.Abs(root); err != nil {
		return nil, err
	}

	backend, err := distro.New(a.v.GetString("backend"), distro.Config{
		Env:     rec,
		Runner:  runner,
		Fetcher: fetcher,
		Root:    root,
		Log:     log,
	})
	if err != nil {
		return nil, err
	}
	store, err := recipe.NewStore(rec.RecipeDatabase, backend, recipe.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("failed to open recipe database: %w", err)
	}
	log.Debug("session ready",
		zap.String("backend", backend.Name()),
		zap.String("recipes", rec.RecipeDatabase),
		zap.String("env", dir))
	return &session{
		log:     log,
		envDir:  dir,
		env:     rec,
		runner:  runner,
		fetcher: fetcher,
		backend: backend,
		store:   store,
	}, nil
}

// recipes loads each named recipe.
func (s *session) recipes(names []string) ([]*recipe.Recipe, error) {
	recipes := make([]*recipe.Recipe, 0, len(names))
	for _, name := range names {
		r, err := s.store.Load(name)
		if err != nil {
			return nil, err
		}
		recipes = append(recipes, r)
	}
	return recipes, nil
}
