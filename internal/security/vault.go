package security

import (
	"encoding/base64"
	"fmt"

	"github.com/technosupport/cashvision/internal/crypto"
)

// Vault wraps a crypto.Keyring to encrypt/decrypt RTSP passwords at rest in
// camera config files. The camera id is used as additional authenticated
// data so a ciphertext can never be copy-pasted onto a different camera.
type Vault struct {
	keyring *crypto.Keyring
}

// NewVault builds a Vault from the process's master keyring, loaded from the
// MASTER_KEYS / ACTIVE_MASTER_KID environment variables.
func NewVault() (*Vault, error) {
	kr := crypto.NewKeyring()
	if err := kr.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("loading master keyring: %w", err)
	}
	return &Vault{keyring: kr}, nil
}

// EncryptedCredential is the at-rest representation of a camera password,
// suitable for embedding directly in a CameraConfig YAML document.
type EncryptedCredential struct {
	KeyID      string `yaml:"key_id" json:"key_id"`
	Nonce      string `yaml:"nonce" json:"nonce"`
	Ciphertext string `yaml:"ciphertext" json:"ciphertext"`
	Tag        string `yaml:"tag" json:"tag"`
}

// Encrypt wraps a plaintext RTSP password for storage in a camera's config
// file, scoped to cameraID via AAD.
func (v *Vault) Encrypt(cameraID, plaintext string) (EncryptedCredential, error) {
	dek, err := crypto.GenerateDEK()
	if err != nil {
		return EncryptedCredential{}, err
	}
	kid, dekNonce, dekCiphertext, dekTag, err := v.keyring.WrapDEK(dek, []byte(cameraID))
	if err != nil {
		return EncryptedCredential{}, err
	}
	nonce, ciphertext, tag, err := crypto.EncryptGCM(dek, []byte(plaintext), []byte(cameraID))
	if err != nil {
		return EncryptedCredential{}, err
	}
	// Pack the wrapped DEK alongside the payload so a single record is
	// self-contained: KeyID holds kid, Nonce holds
	// base64(nonce) "." base64(dekNonce|dekCiphertext|dekTag), and
	// Ciphertext/Tag hold the payload's.
	packed := EncryptedCredential{
		KeyID:      kid,
		Nonce:      base64.StdEncoding.EncodeToString(append(append(dekNonce, dekCiphertext...), dekTag...)),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		Tag:        base64.StdEncoding.EncodeToString(tag),
	}
	packed.Nonce = base64.StdEncoding.EncodeToString(nonce) + "." + packed.Nonce
	return packed, nil
}

// Decrypt reverses Encrypt, returning the plaintext RTSP password.
func (v *Vault) Decrypt(cameraID string, ec EncryptedCredential) (string, error) {
	parts := splitOnce(ec.Nonce, '.')
	if len(parts) != 2 {
		return "", fmt.Errorf("malformed encrypted credential nonce field")
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decoding nonce: %w", err)
	}
	wrapped, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decoding wrapped dek: %w", err)
	}
	// wrapped = dekNonce(12) || dekCiphertext || dekTag(16)
	if len(wrapped) < 12+16 {
		return "", fmt.Errorf("wrapped dek too short")
	}
	dekNonce := wrapped[:12]
	dekTag := wrapped[len(wrapped)-16:]
	dekCiphertext := wrapped[12 : len(wrapped)-16]

	dek, err := v.keyring.UnwrapDEK(ec.KeyID, dekNonce, dekCiphertext, dekTag, []byte(cameraID))
	if err != nil {
		return "", fmt.Errorf("unwrapping dek: %w", err)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(ec.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	tag, err := base64.StdEncoding.DecodeString(ec.Tag)
	if err != nil {
		return "", fmt.Errorf("decoding tag: %w", err)
	}

	plaintext, err := crypto.DecryptGCM(dek, nonce, ciphertext, tag, []byte(cameraID))
	if err != nil {
		return "", fmt.Errorf("decrypting credential: %w", err)
	}
	return string(plaintext), nil
}

func splitOnce(s string, sep byte) []string {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return []string{s[:i], s[i+1:]}
		}
	}
	return []string{s}
}
