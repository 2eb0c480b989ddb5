package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"

	"cicadagallery/internal/issuance"
	"cicadagallery/internal/license"
)

const maxBatch = 100

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Create a new encrypted signing key",
		Long: `Generate an Ed25519 keypair and store the private key in --key,
encrypted with scrypt and AES-GCM. An existing key file is never
overwritten. The printed public key goes into premium builds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("key")
			pass, err := readPassphrase(cmd, true)
			if err != nil {
				return err
			}

			pub, priv, err := issuance.GenerateKey()
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			kf, err := issuance.EncryptKey(priv, pass, issuance.DefaultKDFParams())
			if err != nil {
				return err
			}
			if err := issuance.WriteKeyFile(path, kf); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Signing key written to %s\n", path)
			fmt.Fprintf(out, "Public key: %s\n", hex.EncodeToString(pub))
			return nil
		},
	}
}

func newPubkeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pubkey",
		Short: "Print the verification key of --key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("key")
			kf, err := issuance.ReadKeyFile(path)
			if err != nil {
				return err
			}
			if _, err := license.ParsePublicKey(kf.PublicKey); err != nil {
				return fmt.Errorf("key file %s: %w", path, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), kf.PublicKey)
			return nil
		},
	}
}

func addIssueFlags(cmd *cobra.Command) {
	cmd.Flags().String("email", "", "purchaser email")
	cmd.Flags().Int("expiry-days", 0, "days until expiry; 0 issues a perpetual license")
	cmd.Flags().String("product", license.ProductID, "product the license is issued for")
}

func expiry(cmd *cobra.Command, issued time.Time) (time.Time, error) {
	days, _ := cmd.Flags().GetInt("expiry-days")
	if days < 0 {
		return time.Time{}, fmt.Errorf("--expiry-days must not be negative")
	}
	if days == 0 {
		return time.Time{}, nil
	}
	return issued.AddDate(0, 0, days), nil
}

func newIssueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a license for one order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID, err := requireFlag(cmd, "order")
			if err != nil {
				return err
			}
			email, err := requireFlag(cmd, "email")
			if err != nil {
				return err
			}

			signer, err := loadSigner(cmd)
			if err != nil {
				return err
			}
			issued := time.Now().UTC()
			expires, err := expiry(cmd, issued)
			if err != nil {
				return err
			}

			licenseString, _, err := signer.Sign(orderID, email, issued, expires)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), licenseString)
			return nil
		},
	}
	cmd.Flags().String("order", "", "order ID")
	addIssueFlags(cmd)
	return cmd
}

type batchRow struct {
	OrderID string
	Email   string
	Expires string
	License string
}

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Sign licenses for a run of generated order IDs",
		Long: `Sign --count licenses (at most 100) for order IDs <prefix>-0001,
<prefix>-0002 and so on. The result is written to --file as tab separated
text, or as a spreadsheet when the name ends in .xlsx.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			if count < 1 || count > maxBatch {
				return fmt.Errorf("--count must be between 1 and %d", maxBatch)
			}
			prefix, err := requireFlag(cmd, "prefix")
			if err != nil {
				return err
			}
			email, err := requireFlag(cmd, "email")
			if err != nil {
				return err
			}
			file, err := requireFlag(cmd, "file")
			if err != nil {
				return err
			}

			signer, err := loadSigner(cmd)
			if err != nil {
				return err
			}
			issued := time.Now().UTC()
			expires, err := expiry(cmd, issued)
			if err != nil {
				return err
			}

			rows := make([]batchRow, 0, count)
			for i := 1; i <= count; i++ {
				orderID := fmt.Sprintf("%s-%04d", prefix, i)
				licenseString, _, err := signer.Sign(orderID, email, issued, expires)
				if err != nil {
					return err
				}
				row := batchRow{OrderID: orderID, Email: email, Expires: "never", License: licenseString}
				if !expires.IsZero() {
					row.Expires = expires.Format(time.DateOnly)
				}
				rows = append(rows, row)
			}

			if strings.EqualFold(filepath.Ext(file), ".xlsx") {
				err = writeXLSX(file, rows)
			} else {
				err = writeText(file, rows)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d licenses to %s\n", len(rows), file)
			return nil
		},
	}
	cmd.Flags().Int("count", 10, "number of licenses")
	cmd.Flags().String("prefix", "", "order ID prefix")
	cmd.Flags().String("file", "", "output file (.txt or .xlsx)")
	addIssueFlags(cmd)
	return cmd
}

func writeText(path string, rows []batchRow) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := tabwriter.NewWriter(f, 0, 0, 1, ' ', 0)
	fmt.Fprintln(w, "ORDER\tEMAIL\tEXPIRES\tLICENSE")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.OrderID, r.Email, r.Expires, r.License)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

const licenseSheet = "Licenses"

func writeXLSX(path string, rows []batchRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", licenseSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(licenseSheet, "A1", &[]interface{}{"Order", "Email", "Expires", "License"}); err != nil {
		return err
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(licenseSheet, cell, &[]interface{}{r.OrderID, r.Email, r.Expires, r.License}); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(licenseSheet, "D", "D", 120); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <license>",
		Short: "Decode a license and verify its signature",
		Long: `Print the claims of a license string and check it against
--pubkey, or against the key embedded in this build when --pubkey is empty.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := license.Decode(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Product:\t%s\n", rec.ProductID)
			fmt.Fprintf(w, "Order:\t%s\n", rec.OrderID)
			fmt.Fprintf(w, "Email:\t%s\n", rec.Email)
			fmt.Fprintf(w, "Issued:\t%s\n", rec.IssuedAt.UTC().Format(time.RFC3339))
			if rec.ExpiresAt != nil {
				fmt.Fprintf(w, "Expires:\t%s\n", rec.ExpiresAt.UTC().Format(time.RFC3339))
			} else {
				fmt.Fprintf(w, "Expires:\tnever\n")
			}
			w.Flush()

			key := license.TrustedKey()
			if hexKey, _ := cmd.Flags().GetString("pubkey"); hexKey != "" {
				if key, err = license.ParsePublicKey(hexKey); err != nil {
					return err
				}
			}
			if key == nil {
				fmt.Fprintln(out, "Signature: not checked (no verification key in this build)")
				return nil
			}

			product, _ := cmd.Flags().GetString("product")
			if err := license.Verify(rec, key, product); err != nil {
				fmt.Fprintf(out, "Status: INVALID (%s)\n", err)
				return err
			}
			fmt.Fprintln(out, "Status: VALID")
			return nil
		},
	}
	cmd.Flags().String("pubkey", "", "hex verification key")
	cmd.Flags().String("product", license.ProductID, "expected product")
	return cmd
}
