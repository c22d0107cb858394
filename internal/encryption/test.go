package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"cms-go/internal/cms"
)

var (
	// testHeader marks values sealed by TestEncryptor.
	testHeader = []byte("CMSTEST\x00")
	testMask   = []byte("cms-test-mask")
)

// ErrWrongPassphrase is returned by TestEncryptor.Unlock when the
// passphrase differs from the one given to Setup.
var ErrWrongPassphrase = errors.New("wrong passphrase")

// TestEncryptor is a keyless sealer for tests and local runs. Sealed values
// are a fixed header followed by the payload XORed with a repeating mask.
// Before Setup any passphrase unlocks it; afterwards only the one given.
type TestEncryptor struct {
	mu         sync.Mutex
	passphrase string
}

var _ cms.Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor creates a new TestEncryptor.
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	if passphrase == "" {
		return errors.New("passphrase must not be empty")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.passphrase != "" {
		return ErrKeysExist
	}
	e.passphrase = passphrase
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testHeader); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if _, err := io.Copy(&maskWriter{w: w}, r); err != nil {
		return fmt.Errorf("masking data: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(passphrase string) (cms.DecryptionContext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.passphrase != "" && passphrase != e.passphrase {
		return nil, ErrWrongPassphrase
	}
	return &TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool { return true }

// TestDecryptionContext opens values sealed by TestEncryptor.
type TestDecryptionContext struct{}

var _ cms.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testHeader) {
		return errors.New("invalid test encryption header")
	}
	if _, err := io.Copy(&maskWriter{w: w}, r); err != nil {
		return fmt.Errorf("unmasking data: %w", err)
	}
	return nil
}

// maskWriter XORs everything written through it with testMask. Applying it
// twice restores the input.
type maskWriter struct {
	w   io.Writer
	off int
}

func (m *maskWriter) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	for i, b := range p {
		buf[i] = b ^ testMask[(m.off+i)%len(testMask)]
	}
	n, err := m.w.Write(buf)
	m.off += n
	return n, err
}
