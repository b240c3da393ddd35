package registry

import (
	"strings"
)

const (
	// Chain every read-only helper query runs on.
	QueryChainID = "1"

	OracleChainID = "1"
	OracleCode    = `(n_bfb76eab37bf8c84359d6552a1d96a309e030b71.dia-oracle.get-value "KDA/USD")`

	XChainInterface = "fungible-xchain-v1"
	// Gas station account that pays for cross-chain continuations.
	XChainGasAccount = "kadena-xchain-gas"
)

// Exchange describes a Pact AMM the swap command can route through.
type Exchange struct {
	Platform   string
	Module     string
	ChainID    string
	GasStation string
	GasUser    string
	Sender     string
}

var exchangesByPlatform = map[string]Exchange{
	"kdswap": {
		Platform:   "kdswap",
		Module:     "kdlaunch.kdswap-exchange",
		ChainID:    "1",
		GasStation: "kdlaunch.kdswap-gas-station.GAS_PAYER",
		GasUser:    "free-gas",
		Sender:     "kdswap-gas-payer",
	},
	"mercatus": {
		Platform:   "mercatus",
		Module:     "kaddex.exchange",
		ChainID:    "2",
		GasStation: "kaddex.gas-station.GAS_PAYER",
		GasUser:    "kaddex-free-gas",
		Sender:     "kaddex-free-gas",
	},
}

func ExchangeFor(platform string) (Exchange, bool) {
	ex, ok := exchangesByPlatform[strings.ToLower(strings.TrimSpace(platform))]
	return ex, ok
}

// Platforms lists supported swap platforms in stable order.
func Platforms() []string {
	return []string{"kdswap", "mercatus"}
}
