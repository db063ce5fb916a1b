package runner

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// DefaultEncoding returns the encoding name implied by the locale
// environment (LC_ALL, LC_CTYPE, LANG). Locales without a codeset, including
// "C" and "POSIX", map to UTF-8.
func DefaultEncoding() string {
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		val := os.Getenv(key)
		if val == "" {
			continue
		}
		// language_territory.codeset@modifier
		if i := strings.IndexByte(val, '@'); i >= 0 {
			val = val[:i]
		}
		if i := strings.IndexByte(val, '.'); i >= 0 && i < len(val)-1 {
			return val[i+1:]
		}
		break
	}
	return "utf-8"
}

// lookupEncoding resolves an encoding by WHATWG label or IANA name.
func lookupEncoding(name string) (encoding.Encoding, error) {
	if enc, err := htmlindex.Get(name); err == nil {
		return enc, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
	return enc, nil
}

// codec decodes child output and encodes text written to the child.
type codec struct {
	name string
	enc  encoding.Encoding
}

func newCodec(name string) (*codec, error) {
	if name == "" {
		name = DefaultEncoding()
	}
	enc, err := lookupEncoding(name)
	if err != nil {
		return nil, err
	}
	return &codec{name: name, enc: enc}, nil
}

// encode converts text to the child's encoding, substituting characters the
// encoding cannot represent.
func (c *codec) encode(s string) ([]byte, error) {
	b, err := encoding.ReplaceUnsupported(c.enc.NewEncoder()).Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.name, err)
	}
	return b, nil
}

// decoder returns a fresh streaming decoder.
func (c *codec) decoder() *streamDecoder {
	return &streamDecoder{t: c.enc.NewDecoder()}
}

// streamDecoder decodes a byte stream chunk by chunk, holding back incomplete
// multi-byte sequences until the rest arrives.
type streamDecoder struct {
	t       transform.Transformer
	pending []byte
}

// decode appends p to the pending input and returns the text that can be
// decoded so far. With atEOF set, any incomplete tail is flushed as a
// replacement character.
func (d *streamDecoder) decode(p []byte, atEOF bool) (string, error) {
	d.pending = append(d.pending, p...)
	var out strings.Builder
	dst := make([]byte, 4*len(d.pending)+16)
	for {
		nDst, nSrc, err := d.t.Transform(dst, d.pending, atEOF)
		out.Write(dst[:nDst])
		d.pending = d.pending[nSrc:]
		switch {
		case err == nil:
			return out.String(), nil
		case errors.Is(err, transform.ErrShortDst):
			if nDst == 0 && nSrc == 0 {
				dst = make([]byte, 2*len(dst))
			}
		case errors.Is(err, transform.ErrShortSrc):
			if atEOF {
				return out.String(), nil
			}
			// Incomplete sequence: keep it for the next chunk.
			d.pending = append([]byte(nil), d.pending...)
			return out.String(), nil
		default:
			return out.String(), fmt.Errorf("decode: %w", err)
		}
	}
}
