// Package aead implements AES-256-GCM encryption of container payloads with
// the header used as associated data, per spec §4.3. The construction is
// built directly on crypto/aes and crypto/cipher, the same pair the
// gobeaver-filekit and couchbase-tools-common reference implementations use
// for hand-rolled AES-GCM framing (see DESIGN.md for why this stays stdlib).
package aead

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/oiarchive/oi/internal/oierr"
	"github.com/oiarchive/oi/internal/randsrc"
)

const (
	// KeySize is the AES-256 key size in bytes.
	KeySize = 32
	// IVSize is the GCM nonce size in bytes.
	IVSize = 12
	// TagSize is the GCM authentication tag size in bytes.
	TagSize = 16
)

// Result carries the ciphertext and the IV/key actually used, which may
// have been generated on the caller's behalf.
type Result struct {
	Ciphertext []byte
	IV         []byte
	Tag        []byte
	Key        []byte // populated only when the key was generated
}

// Encrypt seals plaintext under key (generating one via src if key is nil)
// and iv (generating one via src if iv is nil), binding aad as the GCM
// additional authenticated data. Ciphertext length equals len(plaintext);
// the 16-byte tag is returned separately, matching the wire layout where
// IV and tag occupy their own header slots rather than trailing the
// ciphertext.
func Encrypt(src randsrc.Source, plaintext, aad, key, iv []byte) (*Result, error) {
	var genKey []byte
	if key == nil {
		genKey = make([]byte, KeySize)
		if err := src.FillRandom(genKey); err != nil {
			return nil, oierr.Wrap("aead.Encrypt: generate key", err)
		}
		key = genKey
	}
	if len(key) != KeySize {
		return nil, oierr.InvalidParameter("key", "size", -1)
	}

	if iv == nil {
		iv = make([]byte, IVSize)
		if err := src.FillRandom(iv); err != nil {
			return nil, oierr.Wrap("aead.Encrypt: generate iv", err)
		}
	}
	if len(iv) != IVSize {
		return nil, oierr.InvalidParameter("iv", "size", -1)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	// Seal appends the tag to the ciphertext; split it back out so the
	// caller can place IV and tag into their own fixed header slots.
	sealed := gcm.Seal(nil, iv, plaintext, aad)
	ct := sealed[:len(sealed)-TagSize]
	tag := sealed[len(sealed)-TagSize:]

	return &Result{
		Ciphertext: ct,
		IV:         iv,
		Tag:        tag,
		Key:        genKey,
	}, nil
}

// Decrypt verifies and opens ciphertext under key, iv and tag, with aad as
// the bound additional data. Returns oierr.AuthenticationFailed() if the
// tag does not verify.
func Decrypt(ciphertext, aad, key, iv, tag []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, oierr.InvalidParameter("key", "size", -1)
	}
	if len(iv) != IVSize {
		return nil, oierr.InvalidParameter("iv", "size", -1)
	}
	if len(tag) != TagSize {
		return nil, oierr.InvalidParameter("tag", "size", -1)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, iv, sealed, aad)
	if err != nil {
		return nil, oierr.AuthenticationFailed()
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, oierr.Wrap("aead: new cipher", err)
	}
	gcm, err := cipher.NewGCMWithTagSize(block, TagSize)
	if err != nil {
		return nil, oierr.Wrap("aead: new gcm", err)
	}
	return gcm, nil
}
