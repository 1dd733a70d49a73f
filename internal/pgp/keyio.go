package pgp

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"

	"github.com/go-librepo/librepo/internal/lrerrors"
)

// readSource normalizes the three accepted ImportKey source shapes
// (spec.md §4.F: a byte buffer, a file descriptor, or a path) to bytes.
func readSource(source any) ([]byte, error) {
	switch v := source.(type) {
	case []byte:
		return v, nil
	case *os.File:
		data, err := io.ReadAll(v)
		if err != nil {
			return nil, signatureError(err, "reading key from file descriptor")
		}
		return data, nil
	case string:
		data, err := os.ReadFile(v)
		if err != nil {
			return nil, signatureError(err, "reading key file")
		}
		return data, nil
	default:
		return nil, lrerrors.Newf(lrerrors.BadArgument, "unsupported ImportKey source type %T", source)
	}
}

// parseEntity accepts either ASCII-armored or raw binary OpenPGP key
// material and returns the parsed entity along with whether the input was
// armored.
func parseEntity(data []byte) (*openpgp.Entity, bool, error) {
	if looksArmored(data) {
		block, err := armor.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, false, signatureError(err, "decoding armored key")
		}
		e, err := openpgp.ReadEntity(packet.NewReader(block.Body))
		if err != nil {
			return nil, false, signatureError(err, "parsing armored key packets")
		}
		return e, true, nil
	}

	e, err := openpgp.ReadEntity(packet.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, false, signatureError(err, "parsing binary key packets")
	}
	return e, false, nil
}

func looksArmored(data []byte) bool {
	return bytes.Contains(data[:min(len(data), 64)], []byte("-----BEGIN PGP"))
}

func hexKeyID(e *openpgp.Entity) string {
	return strings.ToUpper(e.PrimaryKey.KeyIdString())
}

func userIDs(e *openpgp.Entity) []string {
	ids := make([]string, 0, len(e.Identities))
	for name := range e.Identities {
		ids = append(ids, name)
	}
	return ids
}

func subkeyIDs(e *openpgp.Entity) []string {
	ids := make([]string, 0, len(e.Subkeys))
	for _, sk := range e.Subkeys {
		ids = append(ids, strings.ToUpper(sk.PublicKey.KeyIdString()))
	}
	return ids
}
