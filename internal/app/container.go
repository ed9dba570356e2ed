package app

import (
	"context"

	"github.com/doeshing/safecmd/internal/application/engine"
	"github.com/doeshing/safecmd/internal/infrastructure/backup"
	"github.com/doeshing/safecmd/internal/infrastructure/classifier"
	"github.com/doeshing/safecmd/internal/infrastructure/config"
	"github.com/doeshing/safecmd/internal/infrastructure/executor"
	"github.com/doeshing/safecmd/internal/infrastructure/ledger"
	"github.com/doeshing/safecmd/internal/infrastructure/resolver"
	"github.com/doeshing/safecmd/internal/infrastructure/restorepoint"
	"github.com/doeshing/safecmd/internal/infrastructure/rollback"
	"github.com/doeshing/safecmd/internal/infrastructure/simulate"
	"github.com/doeshing/safecmd/internal/pkg/logger"
	"github.com/doeshing/safecmd/internal/ports"
)

// Container wires up the execution coordinator with infrastructure adapters.
type Container struct {
	Engine         *engine.Service
	ConfigProvider ports.ConfigProvider
	ConfigLoader   *config.FileLoader
	Ledger         ports.Ledger
	Backups        ports.BackupManager
	Logger         ports.Logger
}

// BuildContainer constructs the dependency graph.
func BuildContainer(ctx context.Context, verbose bool) (*Container, error) {
	cfgLoader := config.NewFileLoader("")
	cfg, err := cfgLoader.Load(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.NewStd(verbose)

	cls, err := classifier.Load(cfg.Security.RulesFile)
	if err != nil {
		cls, err = classifier.Load("")
		if err != nil {
			return nil, err
		}
	}

	backupStore, err := backup.NewManager(cfg.Backups.Root, log)
	if err != nil {
		return nil, err
	}

	changeLedger, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return nil, err
	}

	generator, err := rollback.NewGenerator(cfg.Rollback.Dir)
	if err != nil {
		return nil, err
	}

	runner := executor.NewLocalExecutor(cfg.Execution.Shell)

	eng := engine.NewService(engine.Deps{
		Config:        cfg,
		Classifier:    cls,
		Simulator:     simulate.New(),
		Backups:       backupStore,
		Rollback:      generator,
		Applier:       rollback.NewApplier(backupStore, log),
		Ledger:        changeLedger,
		Proposals:     changeLedger,
		Runner:        runner,
		RestorePoints: restorepoint.NewManager(cfg.RestorePoints, runner, log),
		Resolver:      resolver.NewHeuristic(),
		Logger:        log,
	})

	return &Container{
		Engine:         eng,
		ConfigProvider: cfgLoader,
		ConfigLoader:   cfgLoader,
		Ledger:         changeLedger,
		Backups:        backupStore,
		Logger:         log,
	}, nil
}
