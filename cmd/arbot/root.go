package main

import (
	"fmt"

	"arbot/internal/config"
	"arbot/internal/logger"
	"arbot/internal/store"

	"github.com/spf13/cobra"
)

type app struct {
	configDir string
	logLevel  string
	cfg       *config.Config
	log       *logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "arbot",
		Short:         "Арбитражный робот maker/taker.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFrom(a.configDir)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log = logger.New(logger.Config{
				Level:      cfg.Runtime.Log.Level,
				Format:     cfg.Runtime.Log.Format,
				Output:     cfg.Runtime.Log.File,
				MaxSize:    cfg.Runtime.Log.MaxSize,
				MaxBackups: cfg.Runtime.Log.MaxBackups,
				MaxAge:     cfg.Runtime.Log.MaxAge,
				Compress:   cfg.Runtime.Log.Compress,
			})
			if a.logLevel != "" {
				a.log.SetLevel(a.logLevel)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configDir, "config-dir", "configs", "каталог с config.yaml")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "уровень логирования поверх конфигурации")

	root.AddCommand(
		newRunCmd(a),
		newBalanceCmd(a),
		newStatusCmd(a),
		newHoldCmd(a),
		newSettingsCmd(a),
	)
	return root
}

func (a *app) openStore() (*store.SQLite, error) {
	st, err := store.NewSQLite(a.cfg.Runtime.StorePath)
	if err != nil {
		return nil, fmt.Errorf("Не удалось открыть хранилище %s: %w", a.cfg.Runtime.StorePath, err)
	}
	return st, nil
}
