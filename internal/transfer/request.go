package transfer

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	clierr "github.com/ggonzalez94/kadena-cli/internal/errors"
	"github.com/ggonzalez94/kadena-cli/internal/id"
)

// Request is a structured transfer intent. Amount may arrive as a JSON
// number or string; it is kept as text until validation.
type Request struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	FromChain string `json:"fromChain,omitempty"`
	ToChain   string `json:"toChain,omitempty"`
}

type rawRequest struct {
	Recipient string          `json:"recipient"`
	Amount    json.RawMessage `json:"amount"`
	FromChain json.RawMessage `json:"fromChain"`
	ToChain   json.RawMessage `json:"toChain"`
}

// ParseRequest decodes a JSON intent, accepting numbers for amount and chains.
func ParseRequest(raw []byte) (Request, error) {
	var in rawRequest
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		return Request{}, clierr.Wrap(clierr.CodeValidation, "parse transfer intent", err)
	}
	amount, err := scalarText(in.Amount)
	if err != nil {
		return Request{}, clierr.Wrap(clierr.CodeValidation, "parse transfer amount", err)
	}
	from, err := scalarText(in.FromChain)
	if err != nil {
		return Request{}, clierr.Wrap(clierr.CodeValidation, "parse fromChain", err)
	}
	to, err := scalarText(in.ToChain)
	if err != nil {
		return Request{}, clierr.Wrap(clierr.CodeValidation, "parse toChain", err)
	}
	return Request{Recipient: in.Recipient, Amount: amount, FromChain: from, ToChain: to}, nil
}

func scalarText(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// Validated is a request that passed every offline check.
type Validated struct {
	Recipient string
	Amount    decimal.Decimal
	FromChain string
	ToChain   string
}

func (v Validated) CrossChain() bool { return v.FromChain != v.ToChain }

// Validate checks the request without touching the network. fromChain falls
// back to defaultChain and toChain to fromChain.
func (r Request) Validate(defaultChain string) (Validated, error) {
	recipient := strings.TrimSpace(r.Recipient)
	if err := id.ValidateAccount(recipient); err != nil {
		return Validated{}, err
	}
	amount, err := id.ParseAmount(r.Amount)
	if err != nil {
		return Validated{}, err
	}
	fromInput := strings.TrimSpace(r.FromChain)
	if fromInput == "" {
		fromInput = defaultChain
	}
	from, err := id.ParseChainID(fromInput)
	if err != nil {
		return Validated{}, clierr.Wrap(clierr.CodeValidation, "invalid fromChain", err)
	}
	to := from
	if toInput := strings.TrimSpace(r.ToChain); toInput != "" {
		to, err = id.ParseChainID(toInput)
		if err != nil {
			return Validated{}, clierr.Wrap(clierr.CodeValidation, "invalid toChain", err)
		}
	}
	return Validated{Recipient: recipient, Amount: amount, FromChain: from, ToChain: to}, nil
}

type Result struct {
	Success     bool   `json:"success"`
	RequestKey  string `json:"requestKey"`
	Amount      string `json:"amount"`
	FromChain   string `json:"fromChain"`
	ToChain     string `json:"toChain"`
	ExplorerURL string `json:"explorerUrl"`
	ActionID    string `json:"actionId"`
}
