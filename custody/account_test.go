package custody

import (
	"testing"

	"github.com/algorand/go-algorand-sdk/v2/mnemonic"
	"github.com/stretchr/testify/require"
)

// TestGenerateAndRecover tests the full custody cycle: generate an account,
// recover its signer with the right passphrase and verify a wrong passphrase
// gives nothing away.
func TestGenerateAndRecover(t *testing.T) {
	t.Parallel()

	account, err := GenerateAccount("000000")
	require.NoError(t, err)
	require.NotEmpty(t, account.Address)
	require.NotEmpty(t, account.EncryptedPhrase)

	// The right passphrase re-derives the key pair of the published
	// address.
	signer, err := RecoverSigner(account.EncryptedPhrase, "000000")
	require.NoError(t, err)
	require.Equal(t, account.Address, signer.Address.String())

	// The sealed phrase round-trips into a valid recovery phrase for the
	// same key.
	phrase, err := DecryptSecret(account.EncryptedPhrase, "000000")
	require.NoError(t, err)
	key, err := mnemonic.ToPrivateKey(phrase)
	require.NoError(t, err)
	require.Equal(t, []byte(signer.PrivateKey), []byte(key))

	// A near-miss passphrase fails with the same opaque error as any
	// other failure.
	_, err = RecoverSigner(account.EncryptedPhrase, "111111")
	require.ErrorIs(t, err, ErrInvalidPassphrase)

	require.True(t, IsValidPassphrase(account.EncryptedPhrase, "000000"))
	require.False(t, IsValidPassphrase(account.EncryptedPhrase, "111111"))
}

// TestGenerateAccountsAreUnique tests that repeated generation never reuses
// key material.
func TestGenerateAccountsAreUnique(t *testing.T) {
	t.Parallel()

	first, err := GenerateAccount("000000")
	require.NoError(t, err)
	second, err := GenerateAccount("000000")
	require.NoError(t, err)

	require.NotEqual(t, first.Address, second.Address)
	require.NotEqual(t, first.EncryptedPhrase, second.EncryptedPhrase)
}

// TestZeroSigner tests that wiping a transient signer clears its key
// material.
func TestZeroSigner(t *testing.T) {
	t.Parallel()

	account, err := GenerateAccount("000000")
	require.NoError(t, err)

	signer, err := RecoverSigner(account.EncryptedPhrase, "000000")
	require.NoError(t, err)

	ZeroSigner(&signer)
	for _, b := range signer.PrivateKey {
		require.Zero(t, b)
	}
}
