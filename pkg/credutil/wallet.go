package credutil

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// DeriveWalletSecretRef derives a deterministic, non-reversible reference for
// a custodial wallet seed phrase. The HMAC is keyed with a server-side pepper
// and binds the seed to the owning account, so the same phrase enrolled under
// two accounts yields unrelated references. The result is a lookup key; the
// seed phrase itself is never persisted.
func DeriveWalletSecretRef(seedPhrase, accountID, pepper string) string {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(seedPhrase))
	mac.Write([]byte{0})
	mac.Write([]byte(accountID))
	return hex.EncodeToString(mac.Sum(nil))
}
