package release

import (
	"bytes"
	"io"

	"github.com/ProtonMail/go-crypto/openpgp/armor"
)

// armorDecode strips ASCII-armor framing from a PGP signature block,
// returning the raw binary signature packet bytes.
func armorDecode(armored []byte) ([]byte, error) {
	block, err := armor.Decode(bytes.NewReader(armored))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(block.Body)
}
