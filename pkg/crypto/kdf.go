package crypto

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2Parameters controls the cost factors for Argon2id key derivation.
type Argon2Parameters struct {
	Time      uint32
	Memory    uint32 // KiB
	Threads   uint8
	KeyLength uint32
}

// DefaultArgon2Params returns parameters suitable for deriving a process-lifetime key at startup.
func DefaultArgon2Params() Argon2Parameters {
	return Argon2Parameters{
		Time:      1,
		Memory:    19 * 1024,
		Threads:   2,
		KeyLength: 32,
	}
}

// Validate ensures the parameters are suitable for Argon2id key derivation.
func (p Argon2Parameters) Validate() error {
	if p.Time == 0 {
		return fmt.Errorf("argon2: time cost must be greater than zero")
	}
	if p.Threads == 0 {
		return fmt.Errorf("argon2: parallelism must be greater than zero")
	}
	if p.Memory < 8*uint32(p.Threads) {
		return fmt.Errorf("argon2: memory cost must be at least 8 * threads")
	}
	switch p.KeyLength {
	case 16, 24, 32:
	default:
		return fmt.Errorf("argon2: key length must be 16, 24, or 32 bytes (got %d)", p.KeyLength)
	}
	return nil
}

// DeriveKeyArgon2id derives a key using the Argon2id KDF.
func DeriveKeyArgon2id(secret, salt []byte, params Argon2Parameters) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("argon2: secret is required")
	}
	if len(salt) < 16 {
		return nil, fmt.Errorf("argon2: salt must be at least 16 bytes (got %d)", len(salt))
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return argon2.IDKey(secret, salt, params.Time, params.Memory, params.Threads, params.KeyLength), nil
}

// DeriveSubkey derives a purpose-bound AES key from a shared secret. The purpose
// label is hashed into the salt so distinct purposes never share key material.
func DeriveSubkey(secret, purpose string) ([]byte, error) {
	salt := sha256.Sum256([]byte("notely:" + purpose))
	return DeriveKeyArgon2id([]byte(secret), salt[:], DefaultArgon2Params())
}
