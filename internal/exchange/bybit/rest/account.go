package rest

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

func (c *Client) GetBalances(ctx context.Context, coins []string) (map[string]CoinBalance, error) {
	params := url.Values{}
	params.Set("accountType", c.accountType)

	if len(coins) > 0 {
		params.Set("coin", strings.Join(coins, ","))
	}

	type walletBalance struct {
		List []struct {
			Coin []struct {
				Coin                string `json:"coin"`
				WalletBalance       string `json:"walletBalance"`
				Locked              string `json:"locked"`
				AvailableToWithdraw string `json:"availableToWithdraw"`
				Free                string `json:"free"`
			} `json:"coin"`
		} `json:"list"`
	}

	resp, err := withRetry(ctx, c, "wallet-balance", func() (bybitResponse[walletBalance], error) {
		var resp bybitResponse[walletBalance]
		err := c.doRequest(ctx, http.MethodGet, "/v5/account/wallet-balance", params, nil, true, &resp)
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	balances := map[string]CoinBalance{}
	for _, account := range resp.Result.List {
		for _, item := range account.Coin {
			wallet, _ := parseFloatOrZero(item.WalletBalance)
			locked, _ := parseFloatOrZero(item.Locked)

			available, _ := parseFloatOrZero(item.AvailableToWithdraw)
			if available == 0 {
				available, _ = parseFloatOrZero(item.Free)
			}
			if available == 0 {
				available = wallet - locked
			}
			if available < 0 {
				available = 0
			}

			balances[item.Coin] = CoinBalance{
				Coin:      item.Coin,
				Wallet:    wallet,
				Locked:    locked,
				Available: available,
			}
		}
	}
	return balances, nil
}
