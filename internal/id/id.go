package id

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	clierr "github.com/ggonzalez94/kadena-cli/internal/errors"
)

// Network is a chainweb network id.
type Network string

const (
	Mainnet Network = "mainnet01"
	Testnet Network = "testnet04"
)

// ChainCount is the number of parallel chains in both supported networks.
const ChainCount = 20

const (
	AccountPrefix = "k:"
	CoinModule    = "coin"
)

var (
	moduleNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_\-]*(\.[a-zA-Z_][a-zA-Z0-9_\-]*)*$`)
	accountBodyRegexp = regexp.MustCompile(`^[0-9a-zA-Z_\-]+$`)
)

func ParseNetwork(input string) (Network, error) {
	switch Network(strings.ToLower(strings.TrimSpace(input))) {
	case "", Mainnet:
		return Mainnet, nil
	case Testnet:
		return Testnet, nil
	default:
		return "", clierr.New(clierr.CodeValidation, fmt.Sprintf("unsupported network %q (expected %s|%s)", input, Mainnet, Testnet))
	}
}

// ExplorerSegment is the path segment the block explorer uses for the network.
func (n Network) ExplorerSegment() string {
	if n == Testnet {
		return "testnet"
	}
	return "mainnet"
}

func (n Network) String() string { return string(n) }

// ParseChainID normalizes a chain id and rejects anything outside [0, ChainCount).
func ParseChainID(input string) (string, error) {
	raw := strings.TrimSpace(input)
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n >= ChainCount || raw != strconv.Itoa(n) {
		return "", clierr.New(clierr.CodeValidation, fmt.Sprintf("invalid chain id %q (must be 0-%d)", input, ChainCount-1))
	}
	return raw, nil
}

// AllChainIDs lists every chain id of the network in ascending order.
func AllChainIDs() []string {
	out := make([]string, 0, ChainCount)
	for i := 0; i < ChainCount; i++ {
		out = append(out, strconv.Itoa(i))
	}
	return out
}

// AccountFromPublicKey derives the principal k: account for an ed25519 key.
func AccountFromPublicKey(pub []byte) string {
	return AccountPrefix + hex.EncodeToString(pub)
}

// PublicKeyFromAccount strips the k: prefix.
func PublicKeyFromAccount(account string) string {
	return strings.TrimPrefix(account, AccountPrefix)
}

// ValidateAccount checks a principal account before it is embedded in Pact code.
func ValidateAccount(account string) error {
	if !strings.HasPrefix(account, AccountPrefix) {
		return clierr.New(clierr.CodeValidation, "account must start with 'k:'")
	}
	body := strings.TrimPrefix(account, AccountPrefix)
	if body == "" || !accountBodyRegexp.MatchString(body) {
		return clierr.New(clierr.CodeValidation, fmt.Sprintf("malformed account %q", account))
	}
	return nil
}

// NormalizeToken maps user token input onto a Pact module name; kda is coin.
func NormalizeToken(input string) (string, error) {
	token := strings.ToLower(strings.TrimSpace(input))
	if token == "" {
		return "", clierr.New(clierr.CodeValidation, "token is required")
	}
	if token == "kda" {
		return CoinModule, nil
	}
	if !moduleNamePattern.MatchString(token) {
		return "", clierr.New(clierr.CodeValidation, fmt.Sprintf("invalid token module %q", input))
	}
	return token, nil
}

// IsCoin reports whether the token refers to the native KDA module.
func IsCoin(token string) bool {
	t := strings.ToLower(strings.TrimSpace(token))
	return t == "kda" || t == CoinModule
}
