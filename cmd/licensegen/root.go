package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"cicadagallery/internal/config"
	"cicadagallery/internal/issuance"
	"cicadagallery/internal/license"
	"cicadagallery/pkg/contracts"
)

// passphraseEnv lets scripts and tests supply the key passphrase.
const passphraseEnv = config.EnvPrefix + "_ISSUER_KEY_PASSPHRASE"

// NewRootCmd builds the licensegen command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "licensegen",
		Short: "Generate signing keys and CicadaGallery licenses",
		Long: `licensegen is the offline tool behind the issuance service:
  - keygen creates the encrypted Ed25519 signing key
  - pubkey prints the verification key to embed in premium builds
  - issue and batch sign licenses for orders
  - inspect decodes and verifies a license string`,
		Version:       contracts.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("key", "signing.key", "encrypted signing key file")

	root.AddCommand(
		newKeygenCmd(),
		newPubkeyCmd(),
		newIssueCmd(),
		newBatchCmd(),
		newInspectCmd(),
	)
	return root
}

// readPassphrase takes the passphrase from the environment or prompts for
// it on the terminal. confirm asks twice.
func readPassphrase(cmd *cobra.Command, confirm bool) ([]byte, error) {
	if p := os.Getenv(passphraseEnv); p != "" {
		return []byte(p), nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("no terminal for passphrase prompt; set %s", passphraseEnv)
	}

	fmt.Fprint(cmd.ErrOrStderr(), "Key passphrase: ")
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	if !confirm {
		return pass, nil
	}

	fmt.Fprint(cmd.ErrOrStderr(), "Repeat passphrase: ")
	again, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	if string(pass) != string(again) {
		return nil, errors.New("passphrases do not match")
	}
	return pass, nil
}

// loadSigner decrypts the --key file.
func loadSigner(cmd *cobra.Command) (*issuance.Signer, error) {
	path, _ := cmd.Flags().GetString("key")
	pass, err := readPassphrase(cmd, false)
	if err != nil {
		return nil, err
	}
	key, err := issuance.LoadSigningKey(path, pass)
	if err != nil {
		return nil, err
	}
	product, _ := cmd.Flags().GetString("product")
	if product == "" {
		product = license.ProductID
	}
	return issuance.NewSigner(key, product)
}

func requireFlag(cmd *cobra.Command, name string) (string, error) {
	v, _ := cmd.Flags().GetString(name)
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("--%s is required", name)
	}
	return v, nil
}
