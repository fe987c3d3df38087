package config

import (
	"io/ioutil"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	gossh "golang.org/x/crypto/ssh"
)

func TestInitialize(t *testing.T) {
	tempDir := t.TempDir()
	cfg, err := Initialize(tempDir, log.New(ioutil.Discard, "", 0))
	if err != nil {
		t.Fatal(err)
	}

	// Check that the config is valid and loadable afterwards.
	cfg, err = Load(tempDir)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("CreateTraceLog", func(t *testing.T) {
		fd, err := cfg.CreateTraceLog("session.json")
		assert.Nil(t, err)
		fd.Close()
	})

	t.Run("OpenTraceLog", func(t *testing.T) {
		fd, err := cfg.OpenTraceLog("session.json")
		assert.Nil(t, err)
		fd.Close()
	})

	t.Run("HostKeyPEM", func(t *testing.T) {
		keyPem, err := cfg.HostKeyPEM()
		assert.Nil(t, err)
		_, err = gossh.ParsePrivateKey(keyPem)
		assert.Nil(t, err, "host key should be a parseable private key")
	})
}

func TestInitializeIsIdempotent(t *testing.T) {
	tempDir := t.TempDir()
	logger := log.New(ioutil.Discard, "", 0)

	first, err := Initialize(tempDir, logger)
	if err != nil {
		t.Fatal(err)
	}
	firstKey, err := first.HostKeyPEM()
	assert.Nil(t, err)

	second, err := Initialize(tempDir, logger)
	if err != nil {
		t.Fatal(err)
	}
	secondKey, err := second.HostKeyPEM()
	assert.Nil(t, err)

	assert.Equal(t, firstKey, secondKey, "re-running init must not rotate the host key")
}
