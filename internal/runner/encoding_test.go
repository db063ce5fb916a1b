package runner

import (
	"errors"
	"strings"
	"testing"
)

func TestDefaultEncoding(t *testing.T) {
	tests := []struct {
		lcAll, lcCtype, lang string
		want                 string
	}{
		{"", "", "", "utf-8"},
		{"", "", "C", "utf-8"},
		{"", "", "POSIX", "utf-8"},
		{"", "", "en_US.UTF-8", "UTF-8"},
		{"", "de_DE.ISO-8859-1", "en_US.UTF-8", "ISO-8859-1"},
		{"ja_JP.EUC-JP", "de_DE.ISO-8859-1", "en_US.UTF-8", "EUC-JP"},
		{"", "", "sr_RS.UTF-8@latin", "UTF-8"},
	}
	for _, tt := range tests {
		t.Setenv("LC_ALL", tt.lcAll)
		t.Setenv("LC_CTYPE", tt.lcCtype)
		t.Setenv("LANG", tt.lang)
		if got := DefaultEncoding(); got != tt.want {
			t.Errorf("DefaultEncoding() with LC_ALL=%q LC_CTYPE=%q LANG=%q = %q, want %q",
				tt.lcAll, tt.lcCtype, tt.lang, got, tt.want)
		}
	}
}

func TestNewCodec_Unknown(t *testing.T) {
	if _, err := newCodec("no-such-charset"); !errors.Is(err, ErrUnknownEncoding) {
		t.Errorf("expected ErrUnknownEncoding, got %v", err)
	}
}

func TestStreamDecoder_SplitMultibyte(t *testing.T) {
	c, err := newCodec("utf-8")
	if err != nil {
		t.Fatal(err)
	}
	dec := c.decoder()

	// "é" is 0xc3 0xa9; feed it one byte at a time.
	got, err := dec.decode([]byte("caf\xc3"), false)
	if err != nil {
		t.Fatal(err)
	}
	if got != "caf" {
		t.Errorf("expected incomplete sequence held back, got %q", got)
	}
	got, err = dec.decode([]byte("\xa9!"), false)
	if err != nil {
		t.Fatal(err)
	}
	if got != "é!" {
		t.Errorf("expected completed sequence, got %q", got)
	}
}

func TestStreamDecoder_IncompleteAtEOF(t *testing.T) {
	c, _ := newCodec("utf-8")
	dec := c.decoder()

	if got, _ := dec.decode([]byte("x\xe2\x82"), false); got != "x" {
		t.Errorf("expected prefix only, got %q", got)
	}
	got, err := dec.decode(nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if got == "" || strings.Trim(got, "\uFFFD") != "" {
		t.Errorf("expected only replacement characters at EOF, got %q", got)
	}
}

func TestCodec_Latin1RoundTrip(t *testing.T) {
	c, err := newCodec("latin1")
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.encode("née")
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "n\xe9e" {
		t.Errorf("encode() = %q", b)
	}
	got, err := c.decoder().decode(b, true)
	if err != nil || got != "née" {
		t.Errorf("decode() = %q, %v", got, err)
	}

	// Unrepresentable characters are substituted rather than failing.
	if b, err := c.encode("→"); err != nil || len(b) != 1 {
		t.Errorf("encode(unsupported) = %q, %v", b, err)
	}
}
