package pact

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	clierr "github.com/ggonzalez94/kadena-cli/internal/errors"
	"github.com/ggonzalez94/kadena-cli/internal/id"
)

const (
	DefaultGasPrice = "0.00000001"
	DefaultTTL      = 28800
)

// Spec is everything a command needs except network, time and nonce.
type Spec struct {
	Payload  Payload
	Signers  []Signer
	ChainID  string
	Sender   string
	GasLimit int64
	GasPrice string
	TTL      int64
}

type Builder struct {
	network id.Network
	now     func() time.Time
	nonce   func() string
}

type BuilderOption func(*Builder)

func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

func WithNonce(nonce func() string) BuilderOption {
	return func(b *Builder) { b.nonce = nonce }
}

func NewBuilder(network id.Network, opts ...BuilderOption) *Builder {
	b := &Builder{
		network: network,
		now:     time.Now,
		nonce:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) Network() id.Network { return b.network }

func (b *Builder) Build(spec Spec) (UnsignedTransaction, error) {
	if (spec.Payload.Exec == nil) == (spec.Payload.Cont == nil) {
		return UnsignedTransaction{}, clierr.New(clierr.CodeInternal, "command payload must be exactly one of exec or cont")
	}
	if _, err := id.ParseChainID(spec.ChainID); err != nil {
		return UnsignedTransaction{}, err
	}
	gasPrice := spec.GasPrice
	if gasPrice == "" {
		gasPrice = DefaultGasPrice
	}
	ttl := spec.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	signers := spec.Signers
	if signers == nil {
		signers = []Signer{}
	}
	payload := spec.Payload
	if payload.Exec != nil && payload.Exec.Data == nil {
		exec := *payload.Exec
		exec.Data = map[string]any{}
		payload.Exec = &exec
	}
	if payload.Cont != nil && payload.Cont.Data == nil {
		cont := *payload.Cont
		cont.Data = map[string]any{}
		payload.Cont = &cont
	}

	cmd := Command{
		Payload: payload,
		Signers: signers,
		Meta: Meta{
			ChainID:      spec.ChainID,
			Sender:       spec.Sender,
			GasLimit:     spec.GasLimit,
			GasPrice:     json.Number(gasPrice),
			TTL:          ttl,
			CreationTime: b.now().Unix(),
		},
		NetworkID: string(b.network),
		Nonce:     b.nonce(),
	}
	raw, err := json.Marshal(cmd)
	if err != nil {
		return UnsignedTransaction{}, clierr.Wrap(clierr.CodeInternal, "encode pact command", err)
	}
	return UnsignedTransaction{Cmd: string(raw), Hash: HashCmd(raw), Command: cmd}, nil
}

// HashCmd is the unpadded base64url blake2b-256 digest of the command bytes.
func HashCmd(cmd []byte) string {
	sum := blake2b.Sum256(cmd)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// DecodeHash returns the raw digest bytes that signatures cover.
func DecodeHash(hash string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(hash)
	if err != nil {
		return nil, fmt.Errorf("decode command hash: %w", err)
	}
	if len(raw) != blake2b.Size256 {
		return nil, fmt.Errorf("command hash has %d bytes, want %d", len(raw), blake2b.Size256)
	}
	return raw, nil
}

// ParseCommand decodes a cmd string back into its structure.
func ParseCommand(cmd string) (Command, error) {
	var out Command
	if err := json.Unmarshal([]byte(cmd), &out); err != nil {
		return Command{}, fmt.Errorf("decode pact command: %w", err)
	}
	return out, nil
}
