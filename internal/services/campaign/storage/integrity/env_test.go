package integrity

import (
	"errors"
	"testing"
)

func TestKeyringFromEnvSingleKey(t *testing.T) {
	t.Setenv(EnvHMACKeys, "")
	t.Setenv(EnvHMACKey, "secret")
	t.Setenv(EnvHMACKeyID, "")

	ring, err := KeyringFromEnv()
	if err != nil {
		t.Fatalf("keyring from env: %v", err)
	}
	if ring.ActiveKeyID() != "v1" {
		t.Fatalf("expected default key id v1, got %s", ring.ActiveKeyID())
	}
}

func TestKeyringFromEnvKeyList(t *testing.T) {
	t.Setenv(EnvHMACKeys, "v1=one, v2=two")
	t.Setenv(EnvHMACKey, "ignored")
	t.Setenv(EnvHMACKeyID, "v2")

	ring, err := KeyringFromEnv()
	if err != nil {
		t.Fatalf("keyring from env: %v", err)
	}
	if ring.ActiveKeyID() != "v2" {
		t.Fatalf("expected key id v2, got %s", ring.ActiveKeyID())
	}
}

func TestKeyringFromEnvErrors(t *testing.T) {
	t.Setenv(EnvHMACKeys, "")
	t.Setenv(EnvHMACKey, "")
	t.Setenv(EnvHMACKeyID, "")
	if _, err := KeyringFromEnv(); !errors.Is(err, ErrNoKeyMaterial) {
		t.Fatalf("expected ErrNoKeyMaterial, got %v", err)
	}

	t.Setenv(EnvHMACKeys, "v1")
	if _, err := KeyringFromEnv(); err == nil {
		t.Fatal("expected malformed entry error")
	}

	t.Setenv(EnvHMACKeys, "v1=one")
	t.Setenv(EnvHMACKeyID, "v9")
	if _, err := KeyringFromEnv(); err == nil {
		t.Fatal("expected unknown active key error")
	}
}

func TestDevelopmentKeyring(t *testing.T) {
	ring := DevelopmentKeyring()
	if ring.ActiveKeyID() != "dev" {
		t.Fatalf("expected dev key id, got %s", ring.ActiveKeyID())
	}
}
