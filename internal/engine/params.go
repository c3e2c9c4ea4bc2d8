package engine

import (
	"arbot/internal/config"
	"arbot/internal/models"
)

// params are the trading values in effect for one tick: configuration with the stored
// overrides applied on top.
type params struct {
	BuyingAmountToSpend   float64
	SellingQuantityToSell float64
	BuyingProfit          float64
	SellingProfit         float64
	BuyingFxRate          float64
	SellingFxRate         float64
	FiatWarning           float64
	FiatStop              float64
	CryptoWarning         float64
	CryptoStop            float64
}

func resolveParams(cfg *config.Config, st models.Settings) params {
	return params{
		BuyingAmountToSpend:   override(st.BuyingAmountToSpend, cfg.Trading.Buying.AmountToSpendPerOrder),
		SellingQuantityToSell: override(st.SellingQuantityToSell, cfg.Trading.Selling.QuantityToSellPerOrder),
		BuyingProfit:          override(st.BuyingProfit, cfg.Trading.Buying.Profit),
		SellingProfit:         override(st.SellingProfit, cfg.Trading.Selling.Profit),
		BuyingFxRate:          override(st.BuyingFxRate, cfg.Trading.BuyingFxRate),
		SellingFxRate:         override(st.SellingFxRate, cfg.Trading.SellingFxRate),
		FiatWarning:           override(st.FiatWarning, cfg.Balance.FiatWarning),
		FiatStop:              override(st.FiatStop, cfg.Balance.FiatStop),
		CryptoWarning:         override(st.CryptoWarning, cfg.Balance.CryptoWarning),
		CryptoStop:            override(st.CryptoStop, cfg.Balance.CryptoStop),
	}
}

func override(stored *float64, fallback float64) float64 {
	if stored != nil {
		return *stored
	}
	return fallback
}
