package pact

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ggonzalez94/kadena-cli/internal/id"
	"github.com/ggonzalez94/kadena-cli/internal/registry"
)

const (
	TransferGasLimit     = 1500
	CrossChainGasLimit   = 2500
	ContinuationGasLimit = 850
	SwapGasLimit         = 2500

	probeSender = "not real"
)

type TransferParams struct {
	Account   string
	PublicKey string
	Recipient string
	Amount    decimal.Decimal
	ChainID   string
}

// Transfer moves coin between accounts on one chain.
func Transfer(p TransferParams) Spec {
	code := fmt.Sprintf(`(coin.transfer "%s" "%s" %s)`, p.Account, p.Recipient, id.FormatAmount(p.Amount))
	return Spec{
		Payload: Payload{Exec: &ExecPayload{Code: code}},
		Signers: []Signer{{
			PubKey: p.PublicKey,
			Scheme: SchemeED25519,
			Clist: []Capability{
				Cap("coin.GAS"),
				Cap("coin.TRANSFER", p.Account, p.Recipient, DecimalArg(p.Amount)),
			},
		}},
		ChainID:  p.ChainID,
		Sender:   p.Account,
		GasLimit: TransferGasLimit,
	}
}

type CrossChainParams struct {
	Account     string
	PublicKey   string
	Recipient   string
	Amount      decimal.Decimal
	SourceChain string
	TargetChain string
	// XChainCapability attaches TRANSFER_XCHAIN; only fungible-xchain-v1 modules define it.
	XChainCapability bool
}

// CrossChainTransfer is step 0 of coin.transfer-crosschain on the source chain.
func CrossChainTransfer(p CrossChainParams) Spec {
	code := fmt.Sprintf(`(coin.transfer-crosschain "%s" "%s" (read-keyset "ks") "%s" %s)`,
		p.Account, p.Recipient, p.TargetChain, id.FormatAmount(p.Amount))
	clist := []Capability{Cap("coin.GAS")}
	if p.XChainCapability {
		clist = append(clist, Cap("coin.TRANSFER_XCHAIN", p.Account, p.Recipient, DecimalArg(p.Amount), p.TargetChain))
	}
	return Spec{
		Payload: Payload{Exec: &ExecPayload{
			Code: code,
			Data: map[string]any{"ks": KeysAll(id.PublicKeyFromAccount(p.Recipient))},
		}},
		Signers:  []Signer{{PubKey: p.PublicKey, Scheme: SchemeED25519, Clist: clist}},
		ChainID:  p.SourceChain,
		Sender:   p.Account,
		GasLimit: CrossChainGasLimit,
	}
}

type ContinuationParams struct {
	PublicKey   string
	PactID      string
	Proof       string
	TargetChain string
}

// Continuation completes step 1 of a cross-chain pact on the target chain,
// with gas paid by the xchain gas station.
func Continuation(p ContinuationParams) Spec {
	proof := p.Proof
	return Spec{
		Payload: Payload{Cont: &ContPayload{
			PactID:   p.PactID,
			Rollback: false,
			Step:     1,
			Data:     map[string]any{},
			Proof:    &proof,
		}},
		Signers:  []Signer{{PubKey: p.PublicKey, Scheme: SchemeED25519, Clist: []Capability{Cap("coin.GAS")}}},
		ChainID:  p.TargetChain,
		Sender:   registry.XChainGasAccount,
		GasLimit: ContinuationGasLimit,
	}
}

type SwapParams struct {
	Exchange    registry.Exchange
	Account     string
	PublicKey   string
	FromToken   string
	ToToken     string
	PairAccount string
	Amount      decimal.Decimal
}

// Swap spends exactly Amount of FromToken with a zero minimum output.
func Swap(p SwapParams) Spec {
	code := fmt.Sprintf(`(%s.swap-exact-in (read-decimal 'token0Amount) (read-decimal 'token1AmountWithSlippage) [%s %s] "%s" "%s" (read-keyset 'ks))`,
		p.Exchange.Module, p.FromToken, p.ToToken, p.Account, p.Account)
	return Spec{
		Payload: Payload{Exec: &ExecPayload{
			Code: code,
			Data: map[string]any{
				"ks":                       KeysAll(p.PublicKey),
				"token0Amount":             json.Number(id.FormatAmount(p.Amount)),
				"token1AmountWithSlippage": 0,
			},
		}},
		Signers: []Signer{{
			PubKey: p.PublicKey,
			Scheme: SchemeED25519,
			Clist: []Capability{
				Cap(p.Exchange.GasStation, p.Exchange.GasUser, IntArg(1), map[string]string{"decimal": "1.0"}),
				Cap(p.FromToken+".TRANSFER", p.Account, p.PairAccount, DecimalArg(p.Amount)),
			},
		}},
		ChainID:  p.Exchange.ChainID,
		Sender:   p.Exchange.Sender,
		GasLimit: SwapGasLimit,
	}
}

// InterfaceProbe reads the interfaces a token module implements. It carries
// no signers and is only ever sent to /local.
func InterfaceProbe(token string) Spec {
	return Spec{
		Payload:  Payload{Exec: &ExecPayload{Code: fmt.Sprintf(`(at 'interfaces (describe-module "%s"))`, token)}},
		ChainID:  registry.QueryChainID,
		Sender:   probeSender,
		GasLimit: TransferGasLimit,
	}
}
