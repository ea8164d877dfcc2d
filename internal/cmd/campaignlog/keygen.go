package campaignlog

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/louisbranch/campaignlog/internal/services/campaign/storage/integrity"
)

var randReader io.Reader = rand.Reader

func keygenCmd() *cobra.Command {
	var size int
	var keyID string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an event signing key",
		Long: `keygen prints a random HMAC key in the environment format read at startup.
With --key-id the key is printed as a key list entry, ready to be appended
to an existing rotation.`,
		Args: cobra.NoArgs,
		// No store is needed to generate a key.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeKey(cmd.OutOrStdout(), randReader, size, keyID)
		},
	}
	cmd.Flags().IntVar(&size, "bytes", 32, "number of random bytes")
	cmd.Flags().StringVar(&keyID, "key-id", "", "print as a key list entry with this id")
	return cmd
}

func writeKey(out io.Writer, reader io.Reader, size int, keyID string) error {
	if size <= 0 {
		return errors.New("bytes must be greater than zero")
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return fmt.Errorf("generate random bytes: %w", err)
	}
	key := hex.EncodeToString(buf)
	keyID = strings.TrimSpace(keyID)
	if keyID == "" {
		_, err := fmt.Fprintf(out, "%s=%s\n", integrity.EnvHMACKey, key)
		return err
	}
	if strings.ContainsAny(keyID, "=,") {
		return fmt.Errorf("key id %q must not contain '=' or ','", keyID)
	}
	_, err := fmt.Fprintf(out, "%s=%s=%s\n%s=%s\n", integrity.EnvHMACKeys, keyID, key, integrity.EnvHMACKeyID, keyID)
	return err
}
