// Package identity provides the synthetic peer pool: a fixed set of stable
// pseudo-identities used to attribute changes, so one imported issue's
// history is spread across multiple "authors" the way a real multi-peer
// system would be. Identities are derived, not generated: the same pool seed
// and index always yield the same keypair, DID, and petname.
package identity

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strconv"
)

// ErrPoolExhausted reports a request for a peer index outside the configured
// pool. Attribution consistency depends on the pool being fixed at import
// start, so this is fatal to the batch.
var ErrPoolExhausted = errors.New("identity pool exhausted")

// base58btc alphabet (Bitcoin)
const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// ed25519Multicodec is the multicodec prefix for Ed25519 public keys (0xED01).
var ed25519Multicodec = []byte{0xed, 0x01}

// Identity is one synthetic peer: an Ed25519 keypair with the derived DID
// and a human-readable petname. Never mutated after derivation.
type Identity struct {
	Index   int
	DID     string
	Petname string

	priv ed25519.PrivateKey
}

// Document is the on-store identity record for a peer. It is written
// content-addressed exactly once per peer (idempotent creation).
type Document struct {
	V         int    `json:"v"`
	DID       string `json:"did"`
	Petname   string `json:"petname"`
	PublicKey string `json:"public_key"` // base64-encoded 32 bytes
}

// Derive produces the identity for (poolSeed, index). Pure: calling it twice
// with the same arguments returns interchangeable identities.
func Derive(poolSeed string, index int) *Identity {
	seed := sha256.Sum256([]byte("litemono/peer/" + poolSeed + "/" + strconv.Itoa(index)))
	priv := ed25519.NewKeyFromSeed(seed[:])
	pub := priv.Public().(ed25519.PublicKey)
	did := EncodeDIDKey(pub)
	return &Identity{
		Index:   index,
		DID:     did,
		Petname: Petname(did),
		priv:    priv,
	}
}

// Document returns the on-store record for this identity.
func (id *Identity) Document() Document {
	pub := id.priv.Public().(ed25519.PublicKey)
	return Document{
		V:         1,
		DID:       id.DID,
		Petname:   id.Petname,
		PublicKey: base64.StdEncoding.EncodeToString(pub),
	}
}

// Sign signs a message with the peer's private key.
func (id *Identity) Sign(msg []byte) []byte {
	return ed25519.Sign(id.priv, msg)
}

// EncodeDIDKey encodes a raw Ed25519 public key as did:key:z... using
// multicodec 0xED01 prefix and base58btc encoding.
func EncodeDIDKey(publicKey []byte) string {
	prefixed := append(ed25519Multicodec, publicKey...)

	// Base58btc encode
	num := new(big.Int).SetBytes(prefixed)
	zero := big.NewInt(0)
	base := big.NewInt(58)
	mod := new(big.Int)

	var encoded []byte
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		encoded = append([]byte{base58Alphabet[mod.Int64()]}, encoded...)
	}

	// Handle leading zero bytes
	for _, b := range prefixed {
		if b == 0 {
			encoded = append([]byte{'1'}, encoded...)
		} else {
			break
		}
	}

	return "did:key:z" + string(encoded)
}

// DecodeDIDKey decodes a did:key:z... string back to the raw Ed25519 public
// key bytes.
func DecodeDIDKey(did string) (ed25519.PublicKey, error) {
	const prefix = "did:key:z"
	if len(did) <= len(prefix) || did[:len(prefix)] != prefix {
		return nil, fmt.Errorf("invalid DID %q: missing %s prefix", did, prefix)
	}
	payload := did[len(prefix):]

	num := big.NewInt(0)
	base := big.NewInt(58)
	for i := 0; i < len(payload); i++ {
		idx := indexOfBase58(payload[i])
		if idx < 0 {
			return nil, fmt.Errorf("invalid DID %q: bad base58 character %q", did, payload[i])
		}
		num.Mul(num, base)
		num.Add(num, big.NewInt(int64(idx)))
	}
	decoded := num.Bytes()

	// Restore leading zero bytes
	for i := 0; i < len(payload) && payload[i] == '1'; i++ {
		decoded = append([]byte{0}, decoded...)
	}

	if len(decoded) != len(ed25519Multicodec)+ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid DID %q: decoded length %d", did, len(decoded))
	}
	if decoded[0] != ed25519Multicodec[0] || decoded[1] != ed25519Multicodec[1] {
		return nil, fmt.Errorf("invalid DID %q: not an Ed25519 key", did)
	}
	return ed25519.PublicKey(decoded[2:]), nil
}

func indexOfBase58(c byte) int {
	for i := 0; i < len(base58Alphabet); i++ {
		if base58Alphabet[i] == c {
			return i
		}
	}
	return -1
}
