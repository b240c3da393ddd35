package signer

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/google/uuid"

	"github.com/ggonzalez94/kadena-cli/internal/id"
	"github.com/ggonzalez94/kadena-cli/internal/pact"
)

const (
	EnvSecretKey            = "KADENA_SECRET_KEY"
	EnvSecretKeyFile        = "KADENA_SECRET_KEY_FILE"
	EnvKeystorePath         = "KADENA_KEYSTORE_PATH"
	EnvKeystorePassword     = "KADENA_KEYSTORE_PASSWORD"
	EnvKeystorePasswordFile = "KADENA_KEYSTORE_PASSWORD_FILE"

	KeySourceAuto     = "auto"
	KeySourceEnv      = "env"
	KeySourceFile     = "file"
	KeySourceKeystore = "keystore"

	defaultSecretKeyRelativePath = "kda/key.hex"
	defaultSecretKeyHintPath     = "~/.config/kda/key.hex"
)

type LocalSigner struct {
	privateKey ed25519.PrivateKey
	publicKey  string
}

func (s *LocalSigner) PublicKey() string { return s.publicKey }

func (s *LocalSigner) Account() string { return id.AccountPrefix + s.publicKey }

// Sign produces one signature per command signer. Every signer must be the
// loaded key.
func (s *LocalSigner) Sign(tx pact.UnsignedTransaction) (pact.SignedTransaction, error) {
	if s == nil || s.privateKey == nil {
		return pact.SignedTransaction{}, errors.New("local signer is not initialized")
	}
	digest, err := pact.DecodeHash(tx.Hash)
	if err != nil {
		return pact.SignedTransaction{}, err
	}
	sigs := make([]pact.Sig, 0, len(tx.Command.Signers))
	for _, signer := range tx.Command.Signers {
		if !strings.EqualFold(signer.PubKey, s.publicKey) {
			return pact.SignedTransaction{}, fmt.Errorf("no key available for signer %s", signer.PubKey)
		}
		sigs = append(sigs, pact.Sig{Sig: hex.EncodeToString(ed25519.Sign(s.privateKey, digest))})
	}
	return pact.SignedTransaction{Cmd: tx.Cmd, Hash: tx.Hash, Sigs: sigs}, nil
}

func NewLocalSignerFromEnv(source string) (*LocalSigner, error) {
	return NewLocalSignerFromInputs(source, "")
}

func NewLocalSignerFromInputs(source, secretKeyOverride string) (*LocalSigner, error) {
	source = strings.ToLower(strings.TrimSpace(source))
	if source == "" {
		source = KeySourceAuto
	}
	secretKeyHex := strings.TrimSpace(os.Getenv(EnvSecretKey))
	secretKeyFile := strings.TrimSpace(os.Getenv(EnvSecretKeyFile))
	keystorePath := strings.TrimSpace(os.Getenv(EnvKeystorePath))
	keystorePassword := strings.TrimSpace(os.Getenv(EnvKeystorePassword))
	keystorePasswordFile := strings.TrimSpace(os.Getenv(EnvKeystorePasswordFile))
	if secretKeyFile == "" {
		secretKeyFile = discoverDefaultSecretKeyFile()
	}

	switch source {
	case KeySourceAuto:
	case KeySourceEnv:
		secretKeyFile = ""
		keystorePath = ""
	case KeySourceFile:
		secretKeyHex = ""
		keystorePath = ""
	case KeySourceKeystore:
		secretKeyHex = ""
		secretKeyFile = ""
	default:
		return nil, fmt.Errorf("unsupported key source %q (expected %s|%s|%s|%s)", source, KeySourceAuto, KeySourceEnv, KeySourceFile, KeySourceKeystore)
	}
	if strings.TrimSpace(secretKeyOverride) != "" {
		secretKeyHex = strings.TrimSpace(secretKeyOverride)
		secretKeyFile = ""
		keystorePath = ""
	}

	return NewLocalSigner(LocalSignerConfig{
		SecretKeyHex:         secretKeyHex,
		SecretKeyFile:        secretKeyFile,
		KeystorePath:         keystorePath,
		KeystorePassword:     keystorePassword,
		KeystorePasswordFile: keystorePasswordFile,
	})
}

type LocalSignerConfig struct {
	SecretKeyHex         string
	SecretKeyFile        string
	KeystorePath         string
	KeystorePassword     string
	KeystorePasswordFile string
}

func NewLocalSigner(cfg LocalSignerConfig) (*LocalSigner, error) {
	pk, err := loadSecretKey(cfg)
	if err != nil {
		return nil, err
	}
	pub := pk.Public().(ed25519.PublicKey)
	return &LocalSigner{privateKey: pk, publicKey: hex.EncodeToString(pub)}, nil
}

func loadSecretKey(cfg LocalSignerConfig) (ed25519.PrivateKey, error) {
	if strings.TrimSpace(cfg.SecretKeyHex) != "" {
		return parseHexKey(cfg.SecretKeyHex)
	}
	if strings.TrimSpace(cfg.SecretKeyFile) != "" {
		buf, err := os.ReadFile(cfg.SecretKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read secret key file: %w", err)
		}
		return parseHexKey(string(buf))
	}
	if strings.TrimSpace(cfg.KeystorePath) != "" {
		password := cfg.KeystorePassword
		if strings.TrimSpace(password) == "" && strings.TrimSpace(cfg.KeystorePasswordFile) != "" {
			buf, err := os.ReadFile(cfg.KeystorePasswordFile)
			if err != nil {
				return nil, fmt.Errorf("read keystore password file: %w", err)
			}
			password = strings.TrimSpace(string(buf))
		}
		if strings.TrimSpace(password) == "" {
			return nil, fmt.Errorf("keystore password is required")
		}
		buf, err := os.ReadFile(cfg.KeystorePath)
		if err != nil {
			return nil, fmt.Errorf("read keystore file: %w", err)
		}
		return decryptKeyFile(buf, password)
	}
	return nil, fmt.Errorf("missing signing key: set %s, %s or %s, or place a hex key at %s", EnvSecretKey, EnvSecretKeyFile, EnvKeystorePath, defaultSecretKeyHintPath)
}

// parseHexKey accepts a 32-byte seed or a 64-byte seed||public key.
func parseHexKey(raw string) (ed25519.PrivateKey, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if clean == "" {
		return nil, fmt.Errorf("empty secret key")
	}
	buf, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("parse secret key: %w", err)
	}
	switch len(buf) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(buf), nil
	case ed25519.PrivateKeySize:
		pk := ed25519.NewKeyFromSeed(buf[:ed25519.SeedSize])
		if !pk.Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(buf[ed25519.SeedSize:])) {
			return nil, fmt.Errorf("secret key public half does not match seed")
		}
		return pk, nil
	default:
		return nil, fmt.Errorf("secret key must be %d or %d bytes, got %d", ed25519.SeedSize, ed25519.PrivateKeySize, len(buf))
	}
}

type encryptedKeyFile struct {
	Version   int                 `json:"version"`
	ID        string              `json:"id"`
	PublicKey string              `json:"publicKey"`
	Crypto    keystore.CryptoJSON `json:"crypto"`
}

// EncryptSecretKey wraps a hex seed in a Web3 Secret Storage v3 envelope.
func EncryptSecretKey(secretKeyHex, password string, scryptN, scryptP int) ([]byte, error) {
	pk, err := parseHexKey(secretKeyHex)
	if err != nil {
		return nil, err
	}
	cryptoJSON, err := keystore.EncryptDataV3(pk.Seed(), []byte(password), scryptN, scryptP)
	if err != nil {
		return nil, fmt.Errorf("encrypt secret key: %w", err)
	}
	return json.MarshalIndent(encryptedKeyFile{
		Version:   3,
		ID:        uuid.NewString(),
		PublicKey: hex.EncodeToString(pk.Public().(ed25519.PublicKey)),
		Crypto:    cryptoJSON,
	}, "", "  ")
}

func decryptKeyFile(buf []byte, password string) (ed25519.PrivateKey, error) {
	var file encryptedKeyFile
	if err := json.Unmarshal(buf, &file); err != nil {
		return nil, fmt.Errorf("decode keystore: %w", err)
	}
	if file.Version != 3 {
		return nil, fmt.Errorf("unsupported keystore version %d", file.Version)
	}
	seed, err := keystore.DecryptDataV3(file.Crypto, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("keystore holds %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	pk := ed25519.NewKeyFromSeed(seed)
	if file.PublicKey != "" && !strings.EqualFold(file.PublicKey, hex.EncodeToString(pk.Public().(ed25519.PublicKey))) {
		return nil, fmt.Errorf("keystore public key does not match decrypted secret")
	}
	return pk, nil
}

func defaultSecretKeyPath() string {
	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, defaultSecretKeyRelativePath)
}

func discoverDefaultSecretKeyFile() string {
	path := defaultSecretKeyPath()
	if path == "" {
		return ""
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return ""
	}
	return path
}
