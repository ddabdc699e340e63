package sponsor

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// ed25519Flag is the scheme byte prefixed to public keys and serialized
// signatures.
const ed25519Flag byte = 0x00

// transactionIntent is the three-byte intent scope prepended to
// transaction bytes before hashing. Scope 0 is transaction data,
// version 0, app id 0.
var transactionIntent = []byte{0, 0, 0}

// Signer holds the station's co-signing key.
type Signer struct {
	priv    ed25519.PrivateKey
	pub     ed25519.PublicKey
	address string
}

// NewSigner parses a base64-encoded ed25519 key. Both the 32-byte seed
// form and the 64-byte expanded form are accepted; a leading scheme
// flag byte on the seed form is tolerated.
func NewSigner(keyB64 string) (*Signer, error) {
	raw, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("decoding sponsor key: %w", err)
	}

	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	case ed25519.SeedSize + 1:
		if raw[0] != ed25519Flag {
			return nil, fmt.Errorf("unsupported key scheme flag 0x%02x", raw[0])
		}
		priv = ed25519.NewKeyFromSeed(raw[1:])
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(raw)
	default:
		return nil, fmt.Errorf("sponsor key must be 32 or 64 bytes, got %d", len(raw))
	}

	pub := priv.Public().(ed25519.PublicKey)
	return &Signer{
		priv:    priv,
		pub:     pub,
		address: deriveAddress(pub),
	}, nil
}

// Address returns the sponsor's account address.
func (s *Signer) Address() string { return s.address }

// PublicKey returns the raw verifying key.
func (s *Signer) PublicKey() ed25519.PublicKey { return s.pub }

// Sign produces the serialized signature over the transaction bytes:
// base64(flag || ed25519_sig || pubkey), where the signature covers
// blake2b-256(intent || txBytes).
func (s *Signer) Sign(txBytes []byte) string {
	msg := make([]byte, 0, len(transactionIntent)+len(txBytes))
	msg = append(msg, transactionIntent...)
	msg = append(msg, txBytes...)
	digest := blake2b.Sum256(msg)

	sig := ed25519.Sign(s.priv, digest[:])

	out := make([]byte, 0, 1+len(sig)+len(s.pub))
	out = append(out, ed25519Flag)
	out = append(out, sig...)
	out = append(out, s.pub...)
	return base64.StdEncoding.EncodeToString(out)
}

// deriveAddress hashes the flagged public key into the 32-byte account
// address, rendered as 0x-prefixed hex.
func deriveAddress(pub ed25519.PublicKey) string {
	buf := make([]byte, 0, 1+len(pub))
	buf = append(buf, ed25519Flag)
	buf = append(buf, pub...)
	sum := blake2b.Sum256(buf)
	return "0x" + hex.EncodeToString(sum[:])
}
