// Package pact builds and hashes chainweb Pact commands.
package pact

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/ggonzalez94/kadena-cli/internal/id"
)

const SchemeED25519 = "ED25519"

// Capability is one entry of a signer's clist.
type Capability struct {
	Name string `json:"name"`
	Args []any  `json:"args"`
}

func Cap(name string, args ...any) Capability {
	if args == nil {
		args = []any{}
	}
	return Capability{Name: name, Args: args}
}

type Signer struct {
	PubKey string       `json:"pubKey"`
	Scheme string       `json:"scheme,omitempty"`
	Clist  []Capability `json:"clist,omitempty"`
}

type Meta struct {
	ChainID      string      `json:"chainId"`
	Sender       string      `json:"sender"`
	GasLimit     int64       `json:"gasLimit"`
	GasPrice     json.Number `json:"gasPrice"`
	TTL          int64       `json:"ttl"`
	CreationTime int64       `json:"creationTime"`
}

type ExecPayload struct {
	Code string         `json:"code"`
	Data map[string]any `json:"data"`
}

type ContPayload struct {
	PactID   string         `json:"pactId"`
	Rollback bool           `json:"rollback"`
	Step     int            `json:"step"`
	Data     map[string]any `json:"data"`
	Proof    *string        `json:"proof"`
}

// Payload holds exactly one of Exec or Cont.
type Payload struct {
	Exec *ExecPayload `json:"exec,omitempty"`
	Cont *ContPayload `json:"cont,omitempty"`
}

type Command struct {
	Payload   Payload  `json:"payload"`
	Signers   []Signer `json:"signers"`
	Meta      Meta     `json:"meta"`
	NetworkID string   `json:"networkId"`
	Nonce     string   `json:"nonce"`
}

// UnsignedTransaction is a built command. Cmd is the exact string that was
// hashed and must travel unchanged.
type UnsignedTransaction struct {
	Cmd     string  `json:"cmd"`
	Hash    string  `json:"hash"`
	Command Command `json:"-"`
}

type Sig struct {
	Sig string `json:"sig"`
}

type SignedTransaction struct {
	Cmd  string `json:"cmd"`
	Hash string `json:"hash"`
	Sigs []Sig  `json:"sigs"`
}

// Unsigned returns the wire form with empty sigs, as used by probes that
// skip signature verification.
func (u UnsignedTransaction) Unsigned() SignedTransaction {
	return SignedTransaction{Cmd: u.Cmd, Hash: u.Hash, Sigs: []Sig{}}
}

// DecimalArg encodes an amount the way capability arguments expect it.
func DecimalArg(d decimal.Decimal) map[string]string {
	return map[string]string{"decimal": id.FormatAmount(d)}
}

func IntArg(n int64) map[string]int64 {
	return map[string]int64{"int": n}
}

// Keyset is the data shape read by (read-keyset ...).
type Keyset struct {
	Keys []string `json:"keys"`
	Pred string   `json:"pred"`
}

func KeysAll(publicKeys ...string) Keyset {
	return Keyset{Keys: publicKeys, Pred: "keys-all"}
}
