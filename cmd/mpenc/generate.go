// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sage-x-project/mpenc/crypto/keys"
)

var (
	genOutputFile string
	genPublicFile string
)

var generateCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a static RSA identity keypair",
	Long: `Generate the static RSA keypair an mpENC participant uses to sign ASKE
session acknowledgements, PEM-encoding the private key to stdout or a file.
Pass --public to also write the corresponding public key, which peers need
in their identity.Directory to verify this participant's signatures.`,
	Example: `  mpenc keygen --output alice.pem --public alice.pub.pem`,
	RunE:    runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringVarP(&genOutputFile, "output", "o", "", "Output file for the PEM-encoded private key (default: stdout)")
	generateCmd.Flags().StringVar(&genPublicFile, "public", "", "Output file for the PEM-encoded public key (optional)")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	kp, err := keys.GenerateRSAKeyPair()
	if err != nil {
		return fmt.Errorf("generating RSA key: %w", err)
	}
	priv, ok := kp.PrivateKey().(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("generating RSA key: unexpected private key type %T", kp.PrivateKey())
	}

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return fmt.Errorf("marshaling private key: %w", err)
	}
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}

	if genOutputFile == "" {
		if err := pem.Encode(os.Stdout, block); err != nil {
			return err
		}
	} else {
		f, err := os.OpenFile(genOutputFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("opening output file: %w", err)
		}
		defer f.Close()
		if err := pem.Encode(f, block); err != nil {
			return err
		}
	}

	if genPublicFile == "" {
		return nil
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return fmt.Errorf("marshaling public key: %w", err)
	}
	pf, err := os.OpenFile(genPublicFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("opening public key output file: %w", err)
	}
	defer pf.Close()
	return pem.Encode(pf, &pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
}
