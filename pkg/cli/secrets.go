package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/crypto"
)

var errNoCredentialsKey = errors.New("LINEQA_CREDENTIALS_KEY is not set")

func newSecretsCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Encrypt values for the passwords file",
	}
	cmd.AddCommand(newSecretsEncryptCommand(e))
	return cmd
}

func newSecretsEncryptCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt [value]",
		Short: "Encrypt a password with LINEQA_CREDENTIALS_KEY",
		Long: `Encrypt prints an "enc:" value to paste into the passwords file. Without
an argument the value is read from the first line of stdin.`,
		Example: `  LINEQA_CREDENTIALS_KEY=... lineqa secrets encrypt 's3cret'
  echo 's3cret' | lineqa secrets encrypt`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.cfg.CredentialsKey == "" {
				return errNoCredentialsKey
			}
			enc, err := crypto.NewCredentialEncryptor(e.cfg.CredentialsKey)
			if err != nil {
				return fmt.Errorf("invalid LINEQA_CREDENTIALS_KEY: %w", err)
			}

			var value string
			if len(args) == 1 {
				value = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read value from stdin: %w", err)
				}
				value = strings.TrimRight(line, "\r\n")
			}
			if value == "" {
				return errors.New("nothing to encrypt")
			}

			sealed, err := enc.Seal(value)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}
}
