// Package signer signs built Pact commands and checks signed ones before submission.
package signer

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ggonzalez94/kadena-cli/internal/pact"
)

type Signer interface {
	PublicKey() string
	Account() string
	Sign(tx pact.UnsignedTransaction) (pact.SignedTransaction, error)
}

// Verify checks that cmd hashes to hash and that every command signer has a
// valid ed25519 signature over the hash, in signer order.
func Verify(tx pact.SignedTransaction) error {
	if pact.HashCmd([]byte(tx.Cmd)) != tx.Hash {
		return fmt.Errorf("hash does not match command")
	}
	digest, err := pact.DecodeHash(tx.Hash)
	if err != nil {
		return err
	}
	cmd, err := pact.ParseCommand(tx.Cmd)
	if err != nil {
		return err
	}
	if len(cmd.Signers) == 0 {
		return fmt.Errorf("command has no signers")
	}
	if len(tx.Sigs) != len(cmd.Signers) {
		return fmt.Errorf("expected %d signatures, got %d", len(cmd.Signers), len(tx.Sigs))
	}
	for i, s := range cmd.Signers {
		pub, err := hex.DecodeString(s.PubKey)
		if err != nil || len(pub) != ed25519.PublicKeySize {
			return fmt.Errorf("signer %d has malformed public key", i)
		}
		sig, err := hex.DecodeString(strings.TrimSpace(tx.Sigs[i].Sig))
		if err != nil || len(sig) != ed25519.SignatureSize {
			return fmt.Errorf("signature %d is malformed", i)
		}
		if !ed25519.Verify(ed25519.PublicKey(pub), digest, sig) {
			return fmt.Errorf("signature %d does not verify for %s", i, s.PubKey)
		}
	}
	return nil
}

func IsSignedTransaction(tx pact.SignedTransaction) bool {
	return Verify(tx) == nil
}
