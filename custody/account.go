// Package custody implements the key custody layer of the marketplace: it
// generates ledger accounts on behalf of end users, seals their recovery
// phrases with a caller-supplied passphrase and recovers transient signing
// keys for the transaction builders. The sealed phrase is the only durable
// representation of a private key; raw key material only ever exists as a
// local value during a signing operation.
package custody

import (
	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/mnemonic"
)

// Account is the public, persistable view of a custodial ledger account.
type Account struct {
	// Address is the public ledger address of the account.
	Address string

	// EncryptedPhrase is the account's recovery phrase sealed with the
	// owner's passphrase. This is safe to hand to the surrounding
	// services for storage.
	EncryptedPhrase string
}

// GenerateAccount creates a fresh key pair, derives its recovery phrase and
// seals it with the passed passphrase. No network calls are made.
func GenerateAccount(passphrase string) (*Account, error) {
	keys := crypto.GenerateAccount()
	defer ZeroSigner(&keys)

	phrase, err := mnemonic.FromPrivateKey(keys.PrivateKey)
	if err != nil {
		return nil, err
	}

	sealed, err := EncryptSecret(phrase, passphrase)
	if err != nil {
		return nil, err
	}

	return &Account{
		Address:         keys.Address.String(),
		EncryptedPhrase: sealed,
	}, nil
}

// RecoverSigner unseals an account's recovery phrase and re-derives its
// signing key. The returned account holds raw key material: callers must
// only keep it for the duration of a signing operation and wipe it with
// ZeroSigner afterwards.
func RecoverSigner(encryptedPhrase, passphrase string) (crypto.Account, error) {
	phrase, err := DecryptSecret(encryptedPhrase, passphrase)
	if err != nil {
		return crypto.Account{}, err
	}

	key, err := mnemonic.ToPrivateKey(phrase)
	if err != nil {
		// The phrase decrypted but doesn't derive a key, which means
		// the ciphertext didn't seal a valid recovery phrase. Callers
		// must not be able to tell this apart from a bad passphrase.
		return crypto.Account{}, ErrInvalidPassphrase
	}

	signer, err := crypto.AccountFromPrivateKey(key)
	if err != nil {
		return crypto.Account{}, ErrInvalidPassphrase
	}

	return signer, nil
}

// IsValidPassphrase reports whether the passed passphrase unseals the
// encrypted phrase into a usable signing key. This is a user-facing check,
// so all failure modes collapse to false rather than an error.
func IsValidPassphrase(encryptedPhrase, passphrase string) bool {
	signer, err := RecoverSigner(encryptedPhrase, passphrase)
	if err != nil {
		return false
	}
	ZeroSigner(&signer)

	return true
}

// ZeroSigner overwrites the private key held by a transient signing
// account.
func ZeroSigner(signer *crypto.Account) {
	for i := range signer.PrivateKey {
		signer.PrivateKey[i] = 0
	}
}
