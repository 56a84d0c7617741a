package crypto

import (
	"crypto"
	"errors"
	"sync"
	"time"
)

// KeyType represents the type of cryptographic key
type KeyType string

const (
	KeyTypeEd25519 KeyType = "Ed25519"
	KeyTypeX25519  KeyType = "X25519"
	KeyTypeRSA     KeyType = "RSA"
)

// KeyPair represents a cryptographic key pair
type KeyPair interface {
	// PublicKey returns the public key
	PublicKey() crypto.PublicKey

	// PrivateKey returns the private key
	PrivateKey() crypto.PrivateKey

	// Type returns the key type
	Type() KeyType

	// Sign signs the given message
	Sign(message []byte) ([]byte, error)

	// Verify verifies the signature
	Verify(message, signature []byte) error

	// ID returns a unique identifier for this key pair
	ID() string
}

// KeyStorage provides secure storage for keys
type KeyStorage interface {
	// Store stores a key pair with the given ID
	Store(id string, keyPair KeyPair) error

	// Load loads a key pair by ID
	Load(id string) (KeyPair, error)

	// Delete removes a key pair by ID
	Delete(id string) error

	// List returns all stored key IDs
	List() ([]string, error)

	// Exists checks if a key exists
	Exists(id string) bool
}

// KeyRotationConfig represents configuration for key rotation
type KeyRotationConfig struct {
	// RotationInterval is the time between rotations
	RotationInterval time.Duration

	// MaxKeyAge is the maximum age for a key
	MaxKeyAge time.Duration

	// KeepOldKeys determines if old keys should be kept
	KeepOldKeys bool
}

// KeyRotator handles key rotation operations
type KeyRotator interface {
	// Rotate rotates the key for the given ID
	Rotate(id string) (KeyPair, error)

	// SetRotationConfig sets the rotation configuration
	SetRotationConfig(config KeyRotationConfig)

	// GetRotationHistory returns the rotation history for a key
	GetRotationHistory(id string) ([]KeyRotationEvent, error)
}

// KeyRotationEvent represents a key rotation event
type KeyRotationEvent struct {
	Timestamp time.Time
	OldKeyID  string
	NewKeyID  string
	Reason    string
}

// KeyManager is the main interface for key management
type KeyManager interface {
	// GenerateKeyPair generates a new key pair
	GenerateKeyPair(keyType KeyType) (KeyPair, error)

	// GetStorage returns the key storage
	GetStorage() KeyStorage

	// GetRotator returns the key rotator
	GetRotator() KeyRotator
}

// AlgorithmInfo describes the capabilities of a registered key algorithm.
type AlgorithmInfo struct {
	KeyType               KeyType
	Name                  string
	Description           string
	SupportsKeyGeneration bool
	SupportsSignature     bool
	SupportsEncryption    bool
}

var (
	algorithmsMu sync.RWMutex
	algorithms   = make(map[KeyType]AlgorithmInfo)
)

// RegisterAlgorithm records the capabilities of a key algorithm so callers
// (the CLI, the greeting engine's identity setup) can introspect what key
// types are available without importing crypto/keys directly.
func RegisterAlgorithm(info AlgorithmInfo) error {
	algorithmsMu.Lock()
	defer algorithmsMu.Unlock()

	if info.KeyType == "" {
		return errors.New("algorithm info requires a key type")
	}
	algorithms[info.KeyType] = info
	return nil
}

// LookupAlgorithm returns the registered capabilities for a key type.
func LookupAlgorithm(kt KeyType) (AlgorithmInfo, bool) {
	algorithmsMu.RLock()
	defer algorithmsMu.RUnlock()
	info, ok := algorithms[kt]
	return info, ok
}

// SupportedAlgorithms returns all registered key types.
func SupportedAlgorithms() []AlgorithmInfo {
	algorithmsMu.RLock()
	defer algorithmsMu.RUnlock()
	out := make([]AlgorithmInfo, 0, len(algorithms))
	for _, info := range algorithms {
		out = append(out, info)
	}
	return out
}

// Common errors
var (
	ErrKeyNotFound         = errors.New("key not found")
	ErrInvalidKeyType      = errors.New("invalid key type")
	ErrKeyExists           = errors.New("key already exists")
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrSignNotSupported    = errors.New("key type does not support signing")
	ErrVerifyNotSupported  = errors.New("key type does not support signature verification")
)
