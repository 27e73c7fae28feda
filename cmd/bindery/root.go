package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bindery/bindery/internal/config"
	"github.com/bindery/bindery/internal/crypto"
	"github.com/bindery/bindery/internal/database"
	"github.com/bindery/bindery/internal/downloader"
	"github.com/bindery/bindery/internal/downloads"
	"github.com/bindery/bindery/internal/logger"
	"github.com/bindery/bindery/internal/store"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "bindery",
		Short:         "Download engine for tracked books",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newClientsCmd(opts),
		newBooksCmd(opts),
	)
	return cmd
}

// app holds the components shared by every command.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	db      *database.DB
	store   *store.Store
	secrets *crypto.SecretStore
}

type appOptions struct {
	streaming bool
	migrate   bool
}

func openApp(ctx context.Context, opts *rootOptions, ao appOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{
		Level:           cfg.Logging.Level,
		Format:          cfg.Logging.Format,
		Path:            cfg.Logging.Path,
		MaxSizeMB:       cfg.Logging.MaxSizeMB,
		MaxBackups:      cfg.Logging.MaxBackups,
		MaxAgeDays:      cfg.Logging.MaxAgeDays,
		Compress:        cfg.Logging.Compress,
		EnableStreaming: ao.streaming,
		BufferSize:      1000,
	})

	db, err := database.New(cfg.Database.Path, cfg.Database.BusyTimeout)
	if err != nil {
		log.Close()
		return nil, err
	}

	a := &app{cfg: cfg, log: log, db: db, store: store.New(db.Conn())}

	if ao.migrate {
		log.Info().Str("path", cfg.Database.Path).Msg("running database migrations")
		if err := db.Migrate(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	if cfg.Security.SecretKey != "" {
		salt, err := crypto.LoadOrCreateSalt(cfg.SaltFile())
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to load secret salt: %w", err)
		}
		if a.secrets, err = crypto.NewSecretStore(cfg.Security.SecretKey, salt); err != nil {
			a.Close()
			return nil, err
		}
	}

	return a, nil
}

// pool builds the driver pool. A nil SecretStore must stay an untyped nil.
func (a *app) pool() *downloader.Pool {
	var secrets downloader.Decrypter
	if a.secrets != nil {
		secrets = a.secrets
	}
	p := downloader.NewPool(secrets, a.log.Logger)
	p.SetBlackholeDir(a.cfg.Downloads.BlackholeDir)
	return p
}

func (a *app) orchestrator() (*downloads.Orchestrator, error) {
	aliases, err := statusAliases(a.cfg.Downloads.StatusAliases)
	if err != nil {
		return nil, err
	}

	o := downloads.NewOrchestrator(a.store, a.pool(), a.log.Logger)
	o.SetUpdater(downloads.NewItemUpdater(downloads.NewStatusMapper(aliases), a.log.Logger))
	o.SetSelector(clientSelector(a.cfg.Downloads.SelectionStrategy))
	o.SetMatcher(downloads.TitleMatcher{SizeTolerance: a.cfg.Downloads.MatchSizeTolerance})
	o.SetPollConcurrency(a.cfg.Downloads.PollConcurrency)
	o.SetHistoryLimitMax(a.cfg.Downloads.HistoryLimitMax)
	return o, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close database")
	}
	a.log.Close()
}

func clientSelector(strategy string) downloads.ClientSelector {
	if strategy == config.SelectionFirst {
		return downloads.FirstEnabledSelector{}
	}
	return downloads.ProtocolSelector{}
}

func statusAliases(raw map[string]string) (map[string]downloads.Status, error) {
	aliases := make(map[string]downloads.Status, len(raw))
	for word, target := range raw {
		status, ok := downloads.ParseStatus(target)
		if !ok {
			return nil, fmt.Errorf("downloads.status_aliases: %q maps to unknown status %q", word, target)
		}
		aliases[word] = status
	}
	return aliases, nil
}
