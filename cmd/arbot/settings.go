package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"arbot/internal/config"
	"arbot/internal/models"

	"github.com/spf13/cobra"
)

var overrideFields = map[string]func(*models.Settings) **float64{
	"buying_amount_to_spend_per_order":   func(s *models.Settings) **float64 { return &s.BuyingAmountToSpend },
	"selling_quantity_to_sell_per_order": func(s *models.Settings) **float64 { return &s.SellingQuantityToSell },
	"buying_profit":                      func(s *models.Settings) **float64 { return &s.BuyingProfit },
	"selling_profit":                     func(s *models.Settings) **float64 { return &s.SellingProfit },
	"buying_fx_rate":                     func(s *models.Settings) **float64 { return &s.BuyingFxRate },
	"selling_fx_rate":                    func(s *models.Settings) **float64 { return &s.SellingFxRate },
	"fiat_warning":                       func(s *models.Settings) **float64 { return &s.FiatWarning },
	"fiat_stop":                          func(s *models.Settings) **float64 { return &s.FiatStop },
	"crypto_warning":                     func(s *models.Settings) **float64 { return &s.CryptoWarning },
	"crypto_stop":                        func(s *models.Settings) **float64 { return &s.CryptoStop },
}

func newHoldCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "hold on|off",
		Short:     "Запретить или разрешить открытие новых потоков.",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			hold := args[0] == "on"
			if err := st.SetHold(cmdContext(cmd), hold); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "hold: %t\n", hold)
			return nil
		},
	}
}

func newSettingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Показать переопределения конфигурации из хранилища.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			settings, err := st.Settings(cmdContext(cmd))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, key := range overrideKeys() {
				val := *overrideFields[key](&settings)
				if val == nil {
					fmt.Fprintf(out, "%s: -\n", key)
					continue
				}
				fmt.Fprintf(out, "%s: %s\n", key, num(*val))
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Переопределить значение конфигурации.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			val, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("Некорректное значение %q: %w", args[1], err)
			}
			if err := config.ValidateOverride(args[0], val); err != nil {
				return err
			}
			return a.updateOverride(cmdContext(cmd), args[0], &val)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "unset <key>",
		Short: "Вернуть значение из конфигурации.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.updateOverride(cmdContext(cmd), args[0], nil)
		},
	})
	return cmd
}

func (a *app) updateOverride(ctx context.Context, key string, val *float64) error {
	field, ok := overrideFields[key]
	if !ok {
		return fmt.Errorf("Неизвестный параметр %q", key)
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	settings, err := st.Settings(ctx)
	if err != nil {
		return err
	}
	*field(&settings) = val
	return st.SaveSettings(ctx, settings)
}

func overrideKeys() []string {
	keys := make([]string, 0, len(overrideFields))
	for key := range overrideFields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
