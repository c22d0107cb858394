package kv

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cms-go/internal/cms"
)

// sealedPrefix tags sealed payloads so unsealed legacy values are detected
// instead of being fed to the decrypter.
const sealedPrefix = "sealed:v1:"

// ErrNotSealed is returned when a value read through a SealedStore was not
// written by one.
var ErrNotSealed = errors.New("value is not sealed")

// SealedStore encrypts values before they reach the backend. A sealed value
// is a JSON string, so backends that only accept JSON documents still work.
type SealedStore struct {
	inner cms.Store
	enc   cms.Encryptor
	dec   cms.DecryptionContext
}

// NewSealedStore wraps inner. The result implements cms.Swapper exactly when
// inner does.
func NewSealedStore(inner cms.Store, enc cms.Encryptor, dec cms.DecryptionContext) cms.Store {
	s := &SealedStore{inner: inner, enc: enc, dec: dec}
	if sw, ok := inner.(cms.Swapper); ok {
		return &swappingSealedStore{SealedStore: s, swapper: sw}
	}
	return s
}

func (s *SealedStore) seal(plaintext []byte) ([]byte, error) {
	var ct bytes.Buffer
	if err := s.enc.Encrypt(bytes.NewReader(plaintext), &ct); err != nil {
		return nil, fmt.Errorf("sealing value: %w", err)
	}
	return json.Marshal(sealedPrefix + base64.StdEncoding.EncodeToString(ct.Bytes()))
}

func (s *SealedStore) open(raw []byte) ([]byte, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err != nil || !strings.HasPrefix(text, sealedPrefix) {
		return nil, ErrNotSealed
	}
	ct, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(text, sealedPrefix))
	if err != nil {
		return nil, fmt.Errorf("decoding sealed value: %w", err)
	}
	var pt bytes.Buffer
	if err := s.dec.Decrypt(bytes.NewReader(ct), &pt); err != nil {
		return nil, fmt.Errorf("opening sealed value: %w", err)
	}
	return pt.Bytes(), nil
}

func (s *SealedStore) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.open(raw)
}

func (s *SealedStore) Set(ctx context.Context, key string, value []byte) error {
	sealed, err := s.seal(value)
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, key, sealed)
}

func (s *SealedStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *SealedStore) Shared() bool { return s.inner.Shared() }
func (s *SealedStore) Name() string { return s.inner.Name() }
func (s *SealedStore) Close() error { return s.inner.Close() }

type swappingSealedStore struct {
	*SealedStore
	swapper cms.Swapper
}

// Swap compares plaintexts. Sealing is randomized, so the stored ciphertext
// is read back and used as the backend's comparison value.
func (s *swappingSealedStore) Swap(ctx context.Context, key string, prev, next []byte) (bool, error) {
	var current []byte
	raw, err := s.inner.Get(ctx, key)
	switch {
	case errors.Is(err, cms.ErrNotFound):
		if prev != nil {
			return false, nil
		}
	case err != nil:
		return false, err
	default:
		if prev == nil {
			return false, nil
		}
		plain, err := s.open(raw)
		if err != nil {
			return false, err
		}
		if !bytes.Equal(plain, prev) {
			return false, nil
		}
		current = raw
	}

	sealed, err := s.seal(next)
	if err != nil {
		return false, err
	}
	return s.swapper.Swap(ctx, key, current, sealed)
}

var (
	_ cms.Store   = (*SealedStore)(nil)
	_ cms.Swapper = (*swappingSealedStore)(nil)
)
