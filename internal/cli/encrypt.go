package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pideploy/pideploy/internal/config"
)

func newEncryptCommand(g *globalOptions) *cobra.Command {
	var key string
	var generate bool
	cmd := &cobra.Command{
		Use:   "encrypt [value]",
		Short: "Encrypt a password for use in settings",
		Long: `Encrypt a value with a secretbox key so it can be stored as
PIWEBAPI_PASSWORD. The key is read from --key or PIWEBAPI_ENCRYPTION_KEY.
Without an argument the value is read from standard input.`,
		Example: `  pideploy encrypt --generate-key
  PIWEBAPI_ENCRYPTION_KEY=... pideploy encrypt 's3cret'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if generate {
				k, err := config.GenerateKey()
				if err != nil {
					return err
				}
				fmt.Fprintln(g.stdout, k)
				return nil
			}

			if key == "" {
				key = os.Getenv("PIWEBAPI_ENCRYPTION_KEY")
			}
			if key == "" {
				return errors.New("no key: pass --key or set PIWEBAPI_ENCRYPTION_KEY")
			}

			var plain string
			if len(args) == 1 {
				plain = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read value: %w", err)
				}
				plain = strings.TrimRight(line, "\r\n")
			}

			sealed, err := config.Encrypt(plain, key)
			if err != nil {
				return err
			}
			fmt.Fprintln(g.stdout, sealed)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "base64 encoded 32 byte key")
	cmd.Flags().BoolVar(&generate, "generate-key", false, "print a new key and exit")
	return cmd
}
