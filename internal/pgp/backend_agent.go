package pgp

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/ProtonMail/gopenpgp/v3/crypto"

	"github.com/go-librepo/librepo/internal/lrerrors"
)

// AgentVerifier is the agent-backed strategy (spec.md §4.F.1): a
// gopenpgp/v3 PGPHandle standing in for an external OpenPGP agent that
// owns its own keyring directory. Grounded directly on the teacher's
// apt_parser.go, which drives the same crypto.PGP()/Verify() API for APT
// Release/InRelease verification.
type AgentVerifier struct {
	pgp *crypto.PGPHandle
}

// NewAgentVerifier returns the agent-backed strategy.
func NewAgentVerifier() *AgentVerifier {
	return &AgentVerifier{pgp: crypto.PGP()}
}

func (a *AgentVerifier) keyPath(homeDir, keyID string) string {
	return filepath.Join(homeDir, "pubring.d", keyID+".asc")
}

// ImportKey parses source and stores it, ASCII-armored, as one blob per
// key under "<homeDir>/pubring.d/<keyid>.asc" — the agent's keyring
// directory, per spec.md §4.F's "keys are imported into the keyring as
// blobs".
func (a *AgentVerifier) ImportKey(source any, homeDir string) error {
	data, err := readSource(source)
	if err != nil {
		return err
	}

	entity, armored, err := parseEntity(data)
	if err != nil {
		return err
	}
	keyID := hexKeyID(entity)

	dir := filepath.Join(homeDir, "pubring.d")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return signatureError(err, "creating agent keyring directory")
	}

	blob := data
	if !armored {
		var buf bytes.Buffer
		key, err := crypto.NewKey(data)
		if err != nil {
			return signatureError(err, "reconstructing key for armoring")
		}
		armoredStr, err := key.GetArmoredPublicKey()
		if err != nil {
			return signatureError(err, "armoring imported key")
		}
		buf.WriteString(armoredStr)
		blob = buf.Bytes()
	}

	if err := os.WriteFile(a.keyPath(homeDir, keyID), blob, 0o600); err != nil {
		return signatureError(err, "writing agent keyring blob")
	}
	return nil
}

// ListKeys enumerates the agent's keyring blobs.
func (a *AgentVerifier) ListKeys(homeDir string, export bool) ([]Key, error) {
	dir := filepath.Join(homeDir, "pubring.d")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, signatureError(err, "reading agent keyring directory")
	}

	var keys []Key
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, signatureError(err, "reading agent keyring blob")
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

// CheckDetachedSignature verifies sig against data by trying each key
// blob under the agent's keyring directory in turn, succeeding on the
// first that validates — mirroring the teacher's single-key
// Verify().VerificationKey(key).New() call, generalized to a directory of
// keys instead of one configured key file.
func (a *AgentVerifier) CheckDetachedSignature(_ context.Context, sig, data io.Reader, homeDir string) error {
	dir := filepath.Join(homeDir, "pubring.d")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return signatureError(err, "reading agent keyring directory")
	}

	dataBytes, err := io.ReadAll(data)
	if err != nil {
		return signatureError(err, "reading signed data")
	}
	sigBytes, err := io.ReadAll(sig)
	if err != nil {
		return signatureError(err, "reading signature")
	}

	var lastErr error
	tried := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		keyData, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return signatureError(err, "reading agent keyring blob")
		}

		key, err := crypto.NewKeyFromArmored(string(keyData))
		if err != nil {
			lastErr = err
			continue
		}
		tried++

		verifier, err := a.pgp.Verify().VerificationKey(key).New()
		if err != nil {
			lastErr = err
			continue
		}

		result, err := verifier.VerifyDetached(dataBytes, sigBytes, crypto.Armor)
		if err != nil {
			lastErr = err
			continue
		}
		if sigErr := result.SignatureError(); sigErr != nil {
			lastErr = sigErr
			continue
		}
		return nil // verified against this key
	}

	if tried == 0 {
		return lrerrors.New(lrerrors.SignatureError, "no usable keys in agent keyring")
	}
	return badSignature(lastErr)
}
