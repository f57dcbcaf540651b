package jwtx

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// KeySource records where the active signing key pair came from.
type KeySource string

const (
	SourceEnv       KeySource = "env"
	SourceFile      KeySource = "file"
	SourceGenerated KeySource = "generated"
)

// On-disk layout when keys are file-backed.
const (
	PrivateKeyFile = "private_key.pem"
	PublicKeyFile  = "public_key.pem"
)

// DefaultRSABits is the key size used when generating a fresh pair.
const DefaultRSABits = 2048

// ErrKeyProvisioning wraps any failure that leaves the process without a
// usable signing key pair. It is fatal at startup.
var ErrKeyProvisioning = errors.New("jwtx: key provisioning failed")

// KeyMaterial is the process-wide RSA key pair used to sign and verify
// tokens. It is resolved exactly once at boot and never mutated afterwards.
type KeyMaterial struct {
	private *rsa.PrivateKey
	public  *rsa.PublicKey
	source  KeySource
	kid     string
}

func (m *KeyMaterial) Private() *rsa.PrivateKey { return m.private }
func (m *KeyMaterial) Public() *rsa.PublicKey   { return m.public }
func (m *KeyMaterial) Source() KeySource        { return m.source }

// KID is a stable identifier derived from the public key, used as the JWT
// "kid" header and in the published JWKS.
func (m *KeyMaterial) KID() string { return m.kid }

// PublicPEM returns the PEM encoding of the verification key, as served on
// the public-key endpoint for other services.
func (m *KeyMaterial) PublicPEM() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(m.public)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// KeyConfig carries the inputs for key resolution.
type KeyConfig struct {
	// PrivateKey and PublicKey take precedence when both are non-empty.
	// Either bare base64 DER or full PEM-wrapped input is accepted.
	PrivateKey string
	PublicKey  string

	// StorePath is the directory holding private_key.pem/public_key.pem,
	// and where a generated pair is persisted if the directory is writable.
	StorePath string

	// Bits is the RSA key size for generation. Zero means DefaultRSABits.
	Bits int
}

// ResolveKeyMaterial resolves the signing key pair at startup. Resolution
// order, first success wins:
//
//  1. Key strings from configuration (environment).
//  2. PEM files under StorePath.
//  3. A freshly generated pair, persisted to StorePath when the directory
//     is writable, held only in memory otherwise.
//
// A file read or parse failure falls through to generation; a failure to
// decode configured env keys or to generate a pair is fatal.
func ResolveKeyMaterial(cfg KeyConfig, logger *slog.Logger) (*KeyMaterial, error) {
	if cfg.StorePath == "" {
		cfg.StorePath = "./keys"
	}
	if cfg.Bits == 0 {
		cfg.Bits = DefaultRSABits
	}

	if cfg.PrivateKey != "" && cfg.PublicKey != "" {
		m, err := fromStrings(cfg.PrivateKey, cfg.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("%w: environment keys: %w", ErrKeyProvisioning, err)
		}
		logger.Info("signing keys loaded from environment", "kid", m.kid)
		return m, nil
	}

	if m, err := fromFiles(cfg.StorePath); err == nil {
		logger.Info("signing keys loaded from key store",
			"path", cfg.StorePath,
			"kid", m.kid,
		)
		return m, nil
	} else {
		logger.Debug("key store files unusable, generating fresh pair", "error", err)
	}

	private, err := rsa.GenerateKey(rand.Reader, cfg.Bits)
	if err != nil {
		return nil, fmt.Errorf("%w: generate RSA pair: %w", ErrKeyProvisioning, err)
	}

	m, err := newKeyMaterial(private, &private.PublicKey, SourceGenerated)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyProvisioning, err)
	}

	if dirWritable(cfg.StorePath) {
		if err := persist(cfg.StorePath, private); err != nil {
			return nil, fmt.Errorf("%w: persist generated pair: %w", ErrKeyProvisioning, err)
		}
		logger.Info("generated signing keys persisted to key store",
			"path", cfg.StorePath,
			"bits", cfg.Bits,
			"kid", m.kid,
		)
		return m, nil
	}

	logger.Warn("key store not writable, using ephemeral signing keys",
		"path", cfg.StorePath,
		"kid", m.kid,
	)
	logger.Warn("tokens issued before this restart are now invalid and other services must refetch the public key")
	return m, nil
}

func newKeyMaterial(private *rsa.PrivateKey, public *rsa.PublicKey, source KeySource) (*KeyMaterial, error) {
	der, err := x509.MarshalPKIXPublicKey(public)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)

	return &KeyMaterial{
		private: private,
		public:  public,
		source:  source,
		kid:     base64.RawURLEncoding.EncodeToString(sum[:8]),
	}, nil
}

func fromStrings(privateStr, publicStr string) (*KeyMaterial, error) {
	private, err := DecodePrivateKey(privateStr)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	public, err := DecodePublicKey(publicStr)
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	return newKeyMaterial(private, public, SourceEnv)
}

func fromFiles(storePath string) (*KeyMaterial, error) {
	privateRaw, err := os.ReadFile(filepath.Join(storePath, PrivateKeyFile))
	if err != nil {
		return nil, err
	}
	publicRaw, err := os.ReadFile(filepath.Join(storePath, PublicKeyFile))
	if err != nil {
		return nil, err
	}

	private, err := DecodePrivateKey(string(privateRaw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", PrivateKeyFile, err)
	}
	public, err := DecodePublicKey(string(publicRaw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", PublicKeyFile, err)
	}

	m, err := newKeyMaterial(private, public, SourceFile)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// dirWritable creates the directory if absent and probes write access with a
// throwaway file. Probe failures mean the generated pair stays in memory.
func dirWritable(path string) bool {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return false
	}

	probe := filepath.Join(path, ".write_probe")
	if err := os.WriteFile(probe, []byte("probe"), 0o600); err != nil {
		return false
	}
	_ = os.Remove(probe)
	return true
}

func persist(storePath string, private *rsa.PrivateKey) error {
	privatePEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(private),
	})

	publicDER, err := x509.MarshalPKIXPublicKey(&private.PublicKey)
	if err != nil {
		return err
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})

	if err := os.WriteFile(filepath.Join(storePath, PrivateKeyFile), privatePEM, 0o600); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(storePath, PublicKeyFile), publicPEM, 0o644)
}

// DecodePrivateKey parses an RSA private key from either bare base64 DER or
// PEM-wrapped input. Handles both PKCS1 and PKCS8 because otherwise we will
// be chasing a bug for longer than we would be willing to admit.
func DecodePrivateKey(s string) (*rsa.PrivateKey, error) {
	der, err := decodeKeyBody(s)
	if err != nil {
		return nil, err
	}

	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("jwtx: parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("jwtx: not an RSA private key")
	}
	return key, nil
}

// DecodePublicKey parses an RSA public key from either bare base64 DER or
// PEM-wrapped input, accepting PKIX and PKCS1 encodings.
func DecodePublicKey(s string) (*rsa.PublicKey, error) {
	der, err := decodeKeyBody(s)
	if err != nil {
		return nil, err
	}

	if parsed, err := x509.ParsePKIXPublicKey(der); err == nil {
		pub, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("jwtx: not an RSA public key")
		}
		return pub, nil
	}

	pub, err := x509.ParsePKCS1PublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("jwtx: parse public key: %w", err)
	}
	return pub, nil
}

// decodeKeyBody strips PEM armor lines and all whitespace, then base64
// decodes the remaining body. Bare base64 input passes through the same
// path, so both forms are accepted everywhere keys are read.
func decodeKeyBody(s string) ([]byte, error) {
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-----") {
			continue
		}
		b.WriteString(line)
	}

	body := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r':
			return -1
		}
		return r
	}, b.String())

	if body == "" {
		return nil, errors.New("jwtx: empty key body")
	}

	der, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("jwtx: base64 decode key body: %w", err)
	}
	return der, nil
}
