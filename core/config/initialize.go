package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"log"
	"path/filepath"

	"github.com/spf13/afero"
	gossh "golang.org/x/crypto/ssh"
)

// Initialize scaffolds a configuration directory: default config.yaml,
// traces/ and a fresh SSH host key. Existing files are left alone so
// re-running is safe.
func Initialize(dir string, logger *log.Logger) (*Configuration, error) {
	return InitializeFs(afero.NewOsFs(), dir, logger)
}

// InitializeFs is Initialize against an arbitrary filesystem, for
// tests.
func InitializeFs(fs afero.Fs, dir string, logger *log.Logger) (*Configuration, error) {
	if err := fs.MkdirAll(filepath.Join(dir, TraceDirName), 0700); err != nil {
		return nil, err
	}

	configPath := filepath.Join(dir, ConfigurationName)
	if exists, _ := afero.Exists(fs, configPath); !exists {
		if err := afero.WriteFile(fs, configPath, defaultConfigData, 0600); err != nil {
			return nil, err
		}
		logger.Printf("wrote %s", ConfigurationName)
	} else {
		logger.Printf("%s already exists, keeping it", ConfigurationName)
	}

	keyPath := filepath.Join(dir, HostKeyName)
	if exists, _ := afero.Exists(fs, keyPath); !exists {
		keyPem, fingerprint, err := generateHostKey()
		if err != nil {
			return nil, err
		}
		if err := afero.WriteFile(fs, keyPath, keyPem, 0600); err != nil {
			return nil, err
		}
		logger.Printf("wrote %s, fingerprint %s", HostKeyName, fingerprint)
	}

	return LoadFs(fs, dir)
}

func generateHostKey() (keyPem []byte, fingerprint string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, "", err
	}

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, "", err
	}
	keyPem = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	sshPub, err := gossh.NewPublicKey(pub)
	if err != nil {
		return nil, "", err
	}
	return keyPem, gossh.FingerprintSHA256(sshPub), nil
}
