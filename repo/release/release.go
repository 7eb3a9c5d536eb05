// Package release parses and verifies a dists/<dist>/InRelease document:
// the clear-signed index of every Packages/Contents/BinContents artifact
// in a repository, along with their expected checksums.
package release

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/pkg/errors"

	"github.com/basalt-pkg/apm/checksum"
	"github.com/basalt-pkg/apm/control"
)

// FileHash is one entry from a Release document's SHA256/SHA512 field:
// the expected checksum and size of a named path relative to the dist.
type FileHash struct {
	Path     string
	Size     uint64
	Checksum checksum.Checksum
}

// Release is a parsed InRelease document.
type Release struct {
	Origin        string
	Label         string
	Suite         string
	Codename      string
	Architectures []string
	Components    []string
	Date          string
	hashes        map[string]FileHash
}

// Indices returns the verified checksum/size for path, preferring a
// SHA512 entry over SHA256 when a repository publishes both.
func (r *Release) Indices(path string) (FileHash, bool) {
	h, ok := r.hashes[path]
	return h, ok
}

// VerifyClearsigned checks raw (the full InRelease file contents) against
// keyring and, on success, parses the verified inner content into a
// Release. Any failure — a bad signature, an untrusted signer, or a
// malformed body — is fatal and returned as an error; there is no lenient
// fallback for an unrecognized key.
func VerifyClearsigned(raw []byte, keyring openpgp.EntityList) (*Release, error) {
	block, rest := clearsign(raw)
	if block == nil {
		return nil, errors.New("not a clear-signed document")
	}
	if len(rest) != 0 {
		// Trailing data after the signature block is not part of the
		// signed content and is ignored.
	}
	signed, err := openpgp.CheckDetachedSignature(keyring, bytes.NewReader(block.body), bytes.NewReader(block.signature), nil)
	if err != nil {
		return nil, errors.Wrap(err, "verifying InRelease signature")
	}
	if signed == nil {
		return nil, errors.New("signature verified against no known entity")
	}
	return Parse(bytes.NewReader(block.body))
}

// Parse parses an (already verified, or intentionally unverified for
// local/offline use) Release document body.
func Parse(r io.Reader) (*Release, error) {
	cf, err := control.Parse(r)
	if err != nil {
		return nil, err
	}
	if len(cf.Stanzas) == 0 {
		return nil, errors.New("empty Release document")
	}
	s := cf.Stanzas[0]
	rel := &Release{hashes: map[string]FileHash{}}
	rel.Origin, _ = s.Get("Origin")
	rel.Label, _ = s.Get("Label")
	rel.Suite, _ = s.Get("Suite")
	rel.Codename, _ = s.Get("Codename")
	rel.Date, _ = s.Get("Date")
	if archs, ok := s.Get("Architectures"); ok {
		rel.Architectures = strings.Fields(archs)
	}
	if comps, ok := s.Get("Components"); ok {
		rel.Components = strings.Fields(comps)
	}

	if sha256Lines, ok := s.Get("SHA256"); ok {
		if err := addHashes(rel.hashes, sha256Lines, checksum.SHA256); err != nil {
			return nil, err
		}
	}
	if sha512Lines, ok := s.Get("SHA512"); ok {
		if err := addHashes(rel.hashes, sha512Lines, checksum.SHA512); err != nil {
			return nil, err
		}
	}
	return rel, nil
}

// addHashes parses a SHA256:/SHA512: field body, each line "hash size
// path", overwriting any SHA256 entry with the stronger SHA512 one for the
// same path — callers add SHA256 first, then SHA512, so this naturally
// prefers SHA512.
func addHashes(into map[string]FileHash, body string, alg checksum.Algorithm) error {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return errors.Errorf("malformed %s line: %q", alg, line)
		}
		sum, err := checksum.FromHex(alg, fields[0])
		if err != nil {
			return err
		}
		size, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return errors.Wrapf(err, "malformed size in %q", line)
		}
		into[fields[2]] = FileHash{Path: fields[2], Size: size, Checksum: sum}
	}
	return nil
}

type clearsignBlock struct {
	body      []byte
	signature []byte
}

// clearsign splits an OpenPGP clear-signed message into its dash-escaped
// body and its ASCII-armored signature, dash-unescaping the body per
// RFC 4880 §7.1 so the checksum computed over it matches what was signed.
func clearsign(raw []byte) (*clearsignBlock, []byte) {
	const beginMsg = "-----BEGIN PGP SIGNED MESSAGE-----"
	const beginSig = "-----BEGIN PGP SIGNATURE-----"
	const endSig = "-----END PGP SIGNATURE-----"

	s := string(raw)
	i := strings.Index(s, beginMsg)
	if i < 0 {
		return nil, raw
	}
	s = s[i+len(beginMsg):]
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	for strings.HasPrefix(s, "Hash:") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
	}
	s = strings.TrimPrefix(s, "\n")

	sigStart := strings.Index(s, beginSig)
	if sigStart < 0 {
		return nil, raw
	}
	bodyPart := s[:sigStart]
	sigPart := s[sigStart:]
	sigEnd := strings.Index(sigPart, endSig)
	if sigEnd < 0 {
		return nil, raw
	}

	var unescaped bytes.Buffer
	// The line break right before the signature armor is not part of the
	// signed text, so no newline follows the last line.
	for i, line := range strings.Split(strings.TrimSuffix(bodyPart, "\n"), "\n") {
		if i > 0 {
			unescaped.WriteByte('\n')
		}
		unescaped.WriteString(strings.TrimPrefix(line, "- "))
	}

	armored := []byte(sigPart[:sigEnd+len(endSig)])
	sigBlock, err := armorDecode(armored)
	if err != nil {
		return nil, raw
	}
	return &clearsignBlock{body: unescaped.Bytes(), signature: sigBlock}, nil
}
