package pgp

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"

	"github.com/go-librepo/librepo/internal/lrerrors"
)

// RawVerifier is the raw-packet back-end strategy (spec.md §4.F.2): a
// filesystem directory of one key per file named "<keyid>.pub", verified
// directly against go-crypto/openpgp packets without any external agent.
type RawVerifier struct{}

// NewRawVerifier returns the raw-packet back-end.
func NewRawVerifier() *RawVerifier {
	return &RawVerifier{}
}

func (r *RawVerifier) keyPath(homeDir, keyID string) string {
	return filepath.Join(homeDir, keyID+".pub")
}

// ImportKey parses source (armored or binary), derives the key ID, and
// writes it to "<homeDir>/<keyid>.pub" unless a file by that name already
// exists, in which case the import is silently skipped.
func (r *RawVerifier) ImportKey(source any, homeDir string) error {
	data, err := readSource(source)
	if err != nil {
		return err
	}

	entity, _, err := parseEntity(data)
	if err != nil {
		return err
	}
	keyID := hexKeyID(entity)

	if err := os.MkdirAll(homeDir, 0o700); err != nil {
		return signatureError(err, "creating raw-packet keyring directory")
	}

	path := r.keyPath(homeDir, keyID)
	if _, err := os.Stat(path); err == nil {
		return nil // already imported
	} else if !os.IsNotExist(err) {
		return signatureError(err, "checking existing key file")
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return signatureError(err, "writing key file")
	}
	return nil
}

// ListKeys enumerates "*.pub" files under homeDir.
func (r *RawVerifier) ListKeys(homeDir string, export bool) ([]Key, error) {
	entries, err := os.ReadDir(homeDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, signatureError(err, "reading raw-packet keyring directory")
	}

	var keys []Key
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".pub" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(homeDir, e.Name()))
		if err != nil {
			return nil, signatureError(err, "reading key file")
		}
		entity, _, err := parseEntity(data)
		if err != nil {
			return nil, err
		}
		k := Key{
			KeyID:   hexKeyID(entity),
			UserIDs: userIDs(entity),
			Subkeys: subkeyIDs(entity),
		}
		if export {
			k.Raw = data
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// CheckDetachedSignature verifies sig against data using every key found
// under homeDir, succeeding as soon as one key's signature validates.
// go-crypto/openpgp does not model GnuPG's NOT_TRUSTED status (there is
// no local trust database here), so a cryptographically valid signature
// from any known key is accepted, matching spec.md's "succeed on OK or
// NOT_TRUSTED" rule collapsed to the one trust model this backend has.
func (r *RawVerifier) CheckDetachedSignature(_ context.Context, sig, data io.Reader, homeDir string) error {
	entries, err := os.ReadDir(homeDir)
	if err != nil {
		return signatureError(err, "reading raw-packet keyring directory")
	}

	var keyring openpgp.EntityList
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".pub" {
			continue
		}
		keyData, err := os.ReadFile(filepath.Join(homeDir, e.Name()))
		if err != nil {
			return signatureError(err, "reading key file")
		}
		entity, _, err := parseEntity(keyData)
		if err != nil {
			return err
		}
		keyring = append(keyring, entity)
	}
	if len(keyring) == 0 {
		return lrerrors.New(lrerrors.SignatureError, "no keys available in raw-packet keyring")
	}

	dataBytes, err := io.ReadAll(data)
	if err != nil {
		return signatureError(err, "reading signed data")
	}
	sigBytes, err := io.ReadAll(sig)
	if err != nil {
		return signatureError(err, "reading signature")
	}

	if looksArmored(sigBytes) {
		block, err := armor.Decode(bytes.NewReader(sigBytes))
		if err != nil {
			return signatureError(err, "decoding armored signature")
		}
		_, sigErr := openpgp.CheckDetachedSignature(keyring, bytes.NewReader(dataBytes), block.Body, nil)
		if sigErr != nil {
			return badSignature(sigErr)
		}
		return nil
	}

	_, sigErr := openpgp.CheckDetachedSignature(keyring, bytes.NewReader(dataBytes), bytes.NewReader(sigBytes), nil)
	if sigErr != nil {
		return badSignature(sigErr)
	}
	return nil
}
