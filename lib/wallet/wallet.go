// Package wallet implements the custodial wallets of Linka users: key generation, sealing of private keys under the
// server encryption key, signer recovery and balance lookups.
//
// Sealed keys have the format v1:<salt>:<nonce>:<ciphertext>, all hex encoded. The AES-256-GCM key is derived with
// scrypt from the server encryption key concatenated with an optional per-user secret, using the per-key salt.
package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/scrypt"
)

const (
	version  = "v1"
	saltSize = 16
	keySize  = 32
	// scrypt cost parameters
	scryptN = 1 << 14
	scryptR = 8
	scryptP = 1
)

// Errors returned.
var (
	ErrDecryption = errors.New("failed to decrypt wallet key")
	ErrNoMaster   = errors.New("encryption key is required")
)

// Wallet is a newly generated wallet. Ciphertext is the sealed private key to be persisted.
type Wallet struct {
	Address    string `json:"address"`
	Ciphertext string `json:"-"`
}

// Keystore seals and opens private keys under the server encryption key.
type Keystore struct {
	master []byte
	rand   io.Reader
}

// New returns a Keystore for the given server encryption key.
func New(masterKey string) (*Keystore, error) {
	if masterKey == "" {
		return nil, ErrNoMaster
	}

	return &Keystore{master: []byte(masterKey), rand: rand.Reader}, nil
}

// CreateWallet generates a new keypair and seals its private key, mixing in secret when not empty.
func (k *Keystore) CreateWallet(secret string) (Wallet, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), k.rand)
	if err != nil {
		return Wallet{}, fmt.Errorf("cannot generate key: %w", err)
	}

	ct, err := k.Seal(crypto.FromECDSA(key), secret)
	if err != nil {
		return Wallet{}, err
	}

	return Wallet{Address: crypto.PubkeyToAddress(key.PublicKey).Hex(), Ciphertext: ct}, nil
}

// Seal encrypts plain.
func (k *Keystore) Seal(plain []byte, secret string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(k.rand, salt); err != nil {
		return "", fmt.Errorf("cannot read salt: %w", err)
	}

	gcm, err := k.aead(salt, secret)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(k.rand, nonce); err != nil {
		return "", fmt.Errorf("cannot read nonce: %w", err)
	}

	ct := gcm.Seal(nil, nonce, plain, []byte(version))

	return strings.Join([]string{version, hex.EncodeToString(salt), hex.EncodeToString(nonce), hex.EncodeToString(ct)}, ":"), nil
}

// Open decrypts a sealed key. Any malformed or tampered input, or a wrong secret, yields an error wrapping
// ErrDecryption.
func (k *Keystore) Open(sealed, secret string) ([]byte, error) {
	parts := strings.Split(sealed, ":")
	if len(parts) != 4 || parts[0] != version {
		return nil, fmt.Errorf("%w: expected 4 segments", ErrDecryption)
	}

	raw := make([][]byte, 3)

	for i, p := range parts[1:] {
		b, err := hex.DecodeString(p)
		if err != nil {
			return nil, fmt.Errorf("%w: bad hex in segment %d", ErrDecryption, i+1)
		}

		raw[i] = b
	}

	gcm, err := k.aead(raw[0], secret)
	if err != nil {
		return nil, err
	}

	if len(raw[1]) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce size", ErrDecryption)
	}

	plain, err := gcm.Open(nil, raw[1], raw[2], []byte(version))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	return plain, nil
}

func (k *Keystore) aead(salt []byte, secret string) (cipher.AEAD, error) {
	key, err := scrypt.Key(append(append([]byte{}, k.master...), secret...), salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("cannot derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cannot create cipher: %w", err)
	}

	return cipher.NewGCM(block)
}

// Decrypt returns the private key sealed in ciphertext as 0x prefixed hex.
func (k *Keystore) Decrypt(ciphertext, secret string) (string, error) {
	key, err := k.Signer(ciphertext, secret)
	if err != nil {
		return "", err
	}

	return "0x" + hex.EncodeToString(crypto.FromECDSA(key)), nil
}

// Signer returns the private key sealed in ciphertext.
func (k *Keystore) Signer(ciphertext, secret string) (*ecdsa.PrivateKey, error) {
	plain, err := k.Open(ciphertext, secret)
	if err != nil {
		return nil, err
	}

	key, err := crypto.ToECDSA(plain)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	return key, nil
}

// Address returns the address of the key sealed in ciphertext.
func (k *Keystore) Address(ciphertext, secret string) (common.Address, error) {
	key, err := k.Signer(ciphertext, secret)
	if err != nil {
		return common.Address{}, err
	}

	return crypto.PubkeyToAddress(key.PublicKey), nil
}
