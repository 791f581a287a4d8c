package crypto

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Wallet signs messages with a secp256k1 key the way wallets implement
// personal_sign.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewWallet loads a wallet from a hex private key (0x prefix optional).
func NewWallet(privateKeyHex string) (*Wallet, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return &Wallet{key: pk, address: ethcrypto.PubkeyToAddress(pk.PublicKey)}, nil
}

// GenerateWallet creates a wallet with a fresh random key.
func GenerateWallet() (*Wallet, error) {
	pk, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}
	return &Wallet{key: pk, address: ethcrypto.PubkeyToAddress(pk.PublicKey)}, nil
}

// Address returns the wallet's address.
func (w *Wallet) Address() common.Address { return w.address }

// PrivateKeyHex returns the private key as hex without 0x.
func (w *Wallet) PrivateKeyHex() string {
	return hexutil.Encode(ethcrypto.FromECDSA(w.key))[2:]
}

// SignText signs msg with the EIP-191 "Ethereum Signed Message" prefix and
// returns the 65-byte signature as 0x hex with V in {27, 28}.
func (w *Wallet) SignText(msg []byte) (string, error) {
	sig, err := ethcrypto.Sign(accounts.TextHash(msg), w.key)
	if err != nil {
		return "", fmt.Errorf("crypto: sign: %w", err)
	}
	sig[ethcrypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// RecoverText returns the address that produced sigHex over msg via
// personal_sign. V may be 0/1 or 27/28.
func RecoverText(msg []byte, sigHex string) (common.Address, error) {
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: decode signature: %w", err)
	}
	if len(sig) != ethcrypto.SignatureLength {
		return common.Address{}, fmt.Errorf("crypto: signature is %d bytes, want %d", len(sig), ethcrypto.SignatureLength)
	}
	v := sig[ethcrypto.RecoveryIDOffset]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return common.Address{}, errors.New("crypto: invalid signature recovery id")
	}
	sig[ethcrypto.RecoveryIDOffset] = v

	pub, err := ethcrypto.SigToPub(accounts.TextHash(msg), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: recover public key: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
