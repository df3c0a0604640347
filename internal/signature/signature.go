// Package signature verifies customer approvals of redemption sessions.
//
// A customer approves or rejects a session by signing a deterministic text
// message that binds the action, session id, customer address, shop id,
// amount and expiry. The
// message is hashed with the EIP-191 personal_sign prefix so any standard
// Ethereum wallet can produce the signature. The package is stateless: it
// never looks at or changes session state.
package signature

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrMalformedSignature is returned when the signature cannot be decoded or recovered.
	ErrMalformedSignature = errors.New("signature: malformed signature")
	// ErrSignatureMismatch is returned when the recovered signer is not the expected address.
	ErrSignatureMismatch = errors.New("signature: signer does not match customer")
)

const signatureLength = 65

// Action is the decision a customer signs. The zero value is ActionApprove.
type Action string

const (
	ActionApprove Action = "Approval"
	ActionReject  Action = "Rejection"
)

// Payload is the set of session parameters a customer signs.
type Payload struct {
	Action          Action
	SessionID       string
	CustomerAddress string
	ShopID          string
	Amount          int64
	ExpiresAt       time.Time
}

// Message returns the exact text the customer's wallet signs.
func (p Payload) Message() []byte {
	return []byte(fmt.Sprintf(
		"RepairCoin Redemption %s\nSession: %s\nCustomer: %s\nShop: %s\nAmount: %d RCN\nExpires: %d",
		p.action(),
		p.SessionID,
		strings.ToLower(p.CustomerAddress),
		p.ShopID,
		p.Amount,
		p.ExpiresAt.Unix(),
	))
}

func (p Payload) action() Action {
	if p.Action == "" {
		return ActionApprove
	}
	return p.Action
}

// Digest returns the EIP-191 hash of Message.
func (p Payload) Digest() []byte {
	return accounts.TextHash(p.Message())
}

// Verifier checks customer signatures over redemption payloads.
type Verifier struct{}

// NewVerifier creates a Verifier.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// Recover returns the lowercase hex address that signed payload.
func (v *Verifier) Recover(payload Payload, sig []byte) (string, error) {
	if len(sig) != signatureLength {
		return "", fmt.Errorf("%w: want %d bytes, got %d", ErrMalformedSignature, signatureLength, len(sig))
	}
	normalized := make([]byte, signatureLength)
	copy(normalized, sig)
	// Wallets emit V as 27/28; recovery expects 0/1.
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	if normalized[64] > 1 {
		return "", fmt.Errorf("%w: invalid recovery id", ErrMalformedSignature)
	}

	pub, err := ethcrypto.SigToPub(payload.Digest(), normalized)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	return strings.ToLower(ethcrypto.PubkeyToAddress(*pub).Hex()), nil
}

// Verify returns nil only if sig over payload was produced by expectedSigner.
func (v *Verifier) Verify(payload Payload, sig []byte, expectedSigner string) error {
	signer, err := v.Recover(payload, sig)
	if err != nil {
		return err
	}
	if !strings.EqualFold(signer, strings.TrimSpace(expectedSigner)) {
		return ErrSignatureMismatch
	}
	return nil
}

// Decode parses a hex signature with or without the 0x prefix.
func Decode(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	sig, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	return sig, nil
}

// Sign produces a wallet-style signature (V = 27/28) over payload.
func Sign(payload Payload, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := ethcrypto.Sign(payload.Digest(), key)
	if err != nil {
		return nil, fmt.Errorf("sign payload: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// AddressOf returns the lowercase hex address controlled by key.
func AddressOf(key *ecdsa.PrivateKey) string {
	return strings.ToLower(ethcrypto.PubkeyToAddress(key.PublicKey).Hex())
}
