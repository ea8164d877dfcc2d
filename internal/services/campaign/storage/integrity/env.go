package integrity

import (
	"fmt"
	"os"
	"strings"
)

const (
	EnvHMACKeys  = "CAMPAIGNLOG_EVENT_HMAC_KEYS"
	EnvHMACKey   = "CAMPAIGNLOG_EVENT_HMAC_KEY"
	EnvHMACKeyID = "CAMPAIGNLOG_EVENT_HMAC_KEY_ID"
	defaultKeyID = "v1"
)

// developmentKey signs logs when no key material is configured. It keeps
// local runs reproducible and must not be used for shared data.
const developmentKey = "campaignlog-development-key"

// ErrNoKeyMaterial indicates that neither a single key nor a key list was set.
var ErrNoKeyMaterial = fmt.Errorf("%s or %s is required", EnvHMACKey, EnvHMACKeys)

// KeyringFromEnv loads the HMAC keyring configuration from environment variables.
func KeyringFromEnv() (*Keyring, error) {
	return ParseKeyring(os.Getenv(EnvHMACKeys), os.Getenv(EnvHMACKey), os.Getenv(EnvHMACKeyID))
}

// ParseKeyring builds a keyring from either a comma separated "id=secret" list
// or a single raw key. The list wins when both are present.
func ParseKeyring(keySpec, rawKey, keyID string) (*Keyring, error) {
	keyID = strings.TrimSpace(keyID)
	if keyID == "" {
		keyID = defaultKeyID
	}

	keySpec = strings.TrimSpace(keySpec)
	if keySpec == "" {
		raw := strings.TrimSpace(rawKey)
		if raw == "" {
			return nil, ErrNoKeyMaterial
		}
		return NewKeyring(map[string][]byte{keyID: []byte(raw)}, keyID)
	}

	keys := make(map[string][]byte)
	for _, entry := range strings.Split(keySpec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, value, ok := strings.Cut(entry, "=")
		id = strings.TrimSpace(id)
		value = strings.TrimSpace(value)
		if !ok || id == "" || value == "" {
			return nil, fmt.Errorf("invalid %s entry", EnvHMACKeys)
		}
		keys[id] = []byte(value)
	}
	return NewKeyring(keys, keyID)
}

// DevelopmentKeyring returns a fixed single-key ring for local use.
func DevelopmentKeyring() *Keyring {
	ring, err := NewKeyring(map[string][]byte{"dev": []byte(developmentKey)}, "dev")
	if err != nil {
		panic(err)
	}
	return ring
}
