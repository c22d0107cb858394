package encryption

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"cms-go/internal/config"
)

func TestTestEncryptor_RoundTrip(t *testing.T) {
	t.Parallel()
	e := NewTestEncryptor()
	plain := strings.Repeat("lessons/intro.mdx ", 8)

	var sealed bytes.Buffer
	// OneByteReader forces the mask offset to carry across writes.
	if err := e.Encrypt(iotest.OneByteReader(strings.NewReader(plain)), &sealed); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if !bytes.HasPrefix(sealed.Bytes(), testHeader) {
		t.Errorf("sealed value %q missing header", sealed.Bytes())
	}
	if bytes.Contains(sealed.Bytes(), []byte("intro")) {
		t.Errorf("sealed value %q leaks plaintext", sealed.Bytes())
	}
	if sealed.Len() != len(testHeader)+len(plain) {
		t.Errorf("sealed length = %d, want %d", sealed.Len(), len(testHeader)+len(plain))
	}

	dc, err := e.Unlock("anything")
	if err != nil {
		t.Fatalf("Unlock() before Setup error = %v", err)
	}
	var opened bytes.Buffer
	if err := dc.Decrypt(bytes.NewReader(sealed.Bytes()), &opened); err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if opened.String() != plain {
		t.Errorf("Decrypt() = %q, want %q", opened.String(), plain)
	}
}

func TestTestDecryptionContext_RejectsUnsealed(t *testing.T) {
	t.Parallel()
	tests := []string{"", "CMS", "plain text value"}
	for _, in := range tests {
		var out bytes.Buffer
		if err := (&TestDecryptionContext{}).Decrypt(strings.NewReader(in), &out); err == nil {
			t.Errorf("Decrypt(%q) expected error", in)
		}
	}
}

func TestTestEncryptor_Passphrase(t *testing.T) {
	t.Parallel()
	e := NewTestEncryptor()

	if err := e.Setup(""); err == nil {
		t.Error("Setup(\"\") expected error")
	}
	if err := e.Setup("pw"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := e.Setup("other"); !errors.Is(err, ErrKeysExist) {
		t.Errorf("second Setup() error = %v, want ErrKeysExist", err)
	}
	if _, err := e.Unlock("nope"); !errors.Is(err, ErrWrongPassphrase) {
		t.Errorf("Unlock(wrong) error = %v, want ErrWrongPassphrase", err)
	}
	if _, err := e.Unlock("pw"); err != nil {
		t.Errorf("Unlock(pw) error = %v", err)
	}
}

func TestNewEncryptorFromConfig(t *testing.T) {
	tests := []struct {
		typ     string
		wantNil bool
		wantErr bool
	}{
		{typ: "none", wantNil: true},
		{typ: "age"},
		{typ: "test"},
		{typ: "rot13", wantNil: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			enc, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: tt.typ})
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewEncryptorFromConfig(%q) error = %v, wantErr %v", tt.typ, err, tt.wantErr)
			}
			if (enc == nil) != tt.wantNil {
				t.Errorf("NewEncryptorFromConfig(%q) = %v, wantNil %v", tt.typ, enc, tt.wantNil)
			}
		})
	}
}
