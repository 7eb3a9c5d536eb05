package download

import (
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
)

// decompressors dispatches by the source URL's suffix, mirroring the
// archive tooling's by-extension reader selection.
var decompressors = map[string]func(io.Reader) (io.Reader, error){
	".gz": func(r io.Reader) (io.Reader, error) {
		return gzip.NewReader(r)
	},
	".xz": func(r io.Reader) (io.Reader, error) {
		return xz.NewReader(r)
	},
}

// Decompress wraps r in the decoder matching name's suffix. An
// unrecognized suffix is an error: callers only set Job.Decompress for
// artifacts they know to be one of the supported encodings.
func Decompress(r io.Reader, name string) (io.Reader, error) {
	for suffix, newReader := range decompressors {
		if strings.HasSuffix(name, suffix) {
			dec, err := newReader(r)
			if err != nil {
				return nil, errors.Wrapf(err, "decompressing %s", name)
			}
			return dec, nil
		}
	}
	return nil, errors.Errorf("unrecognized compression suffix on %q", name)
}
