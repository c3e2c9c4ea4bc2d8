package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`
maker:
  venue: paper
  symbol: BTCUSD
  fee: 0.25
  paper_fiat: 100000
  paper_crypto: 10
taker:
  venue: paper
  symbol: BTCUSDT
  fee: 0.1
  paper_fiat: 50000
  paper_crypto: 5
trading:
  buying:
    amount_to_spend_per_order: 1000
    profit: 1
  selling:
    quantity_to_sell_per_order: 0.1
    profit: 1
runtime:
  store_path: %s
  log:
    file: discard
`, filepath.Join(dir, "arbot.db"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config-dir", dir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestHoldIsShownInStatus(t *testing.T) {
	dir := writeConfig(t)

	out, err := execute(t, dir, "hold", "on")
	require.NoError(t, err)
	assert.Contains(t, out, "hold: true")

	out, err = execute(t, dir, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "hold: true")
	assert.Contains(t, out, "OPENING FLOW")
	assert.Contains(t, out, "CLOSING FLOW")

	_, err = execute(t, dir, "hold", "maybe")
	assert.Error(t, err)
}

func TestSettingsOverrides(t *testing.T) {
	dir := writeConfig(t)

	_, err := execute(t, dir, "settings", "set", "buying_profit", "1.5")
	require.NoError(t, err)

	out, err := execute(t, dir, "settings")
	require.NoError(t, err)
	assert.Contains(t, out, "buying_profit: 1.5")
	assert.Contains(t, out, "selling_profit: -")

	_, err = execute(t, dir, "settings", "unset", "buying_profit")
	require.NoError(t, err)
	out, err = execute(t, dir, "settings")
	require.NoError(t, err)
	assert.Contains(t, out, "buying_profit: -")

	_, err = execute(t, dir, "settings", "set", "unknown", "1")
	assert.Error(t, err)
	_, err = execute(t, dir, "settings", "set", "fiat_stop", "-1")
	assert.Error(t, err)
}

func TestSettingsSetRejectsValuesConfigWouldReject(t *testing.T) {
	dir := writeConfig(t)

	for _, args := range [][]string{
		{"buying_profit", "100"},
		{"selling_profit", "250"},
		{"buying_amount_to_spend_per_order", "0"},
		{"selling_quantity_to_sell_per_order", "0"},
		{"buying_fx_rate", "0"},
		{"selling_fx_rate", "NaN"},
	} {
		_, err := execute(t, dir, append([]string{"settings", "set"}, args...)...)
		assert.Error(t, err, args[0])
	}

	out, err := execute(t, dir, "settings")
	require.NoError(t, err)
	assert.Contains(t, out, "buying_profit: -")
	assert.Contains(t, out, "buying_amount_to_spend_per_order: -")

	_, err = execute(t, dir, "settings", "set", "fiat_stop", "0")
	assert.NoError(t, err)
}

func TestBalancePrintsBothVenues(t *testing.T) {
	dir := writeConfig(t)

	out, err := execute(t, dir, "balance")
	require.NoError(t, err)
	assert.Contains(t, out, "maker")
	assert.Contains(t, out, "taker")
	assert.Contains(t, out, "100000")
	assert.Contains(t, out, "BTCUSDT")
}
