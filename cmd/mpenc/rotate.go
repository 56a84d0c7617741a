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
	"github.com/sage-x-project/mpenc/crypto/rotation"
	"github.com/sage-x-project/mpenc/crypto/storage"
)

var (
	rotateInputFile  string
	rotateOutputFile string
	rotatePublicFile string
)

// rotateKeyID is the fixed identifier under which rotate stages the
// participant's static key for its single, local Rotate call; nothing
// persists once the command exits.
const rotateKeyID = "static"

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Rotate a participant's static RSA identity keypair",
	Long: `rotate replaces an existing static RSA private key with a freshly
generated one. It stages the old key in an in-memory crypto.KeyStorage,
rotates it through crypto/rotation.KeyRotator, and PEM-encodes the
replacement private key to stdout or a file, writing the matching public
key too if --public is given. Peers need the new public key in their
identity.Directory before they can verify this participant's signatures
again.`,
	Example: `  mpenc rotate --input alice.pem --output alice.next.pem --public alice.next.pub.pem`,
	RunE:    runRotate,
}

func init() {
	rootCmd.AddCommand(rotateCmd)
	rotateCmd.Flags().StringVarP(&rotateInputFile, "input", "i", "", "PEM-encoded RSA private key to rotate (required)")
	rotateCmd.Flags().StringVarP(&rotateOutputFile, "output", "o", "", "Output file for the new PEM-encoded private key (default: stdout)")
	rotateCmd.Flags().StringVar(&rotatePublicFile, "public", "", "Output file for the new PEM-encoded public key (optional)")
	_ = rotateCmd.MarkFlagRequired("input")
}

func runRotate(cmd *cobra.Command, args []string) error {
	oldPriv, err := loadPrivateKey(rotateInputFile)
	if err != nil {
		return fmt.Errorf("loading private key: %w", err)
	}
	oldKeyPair, err := keys.NewRSAKeyPair(oldPriv, rotateKeyID)
	if err != nil {
		return fmt.Errorf("wrapping existing key: %w", err)
	}

	store := storage.NewMemoryKeyStorage()
	if err := store.Store(rotateKeyID, oldKeyPair); err != nil {
		return fmt.Errorf("staging existing key: %w", err)
	}

	newKeyPair, err := rotation.NewKeyRotator(store).Rotate(rotateKeyID)
	if err != nil {
		return fmt.Errorf("rotating key: %w", err)
	}
	priv, ok := newKeyPair.PrivateKey().(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("rotating key: unexpected private key type %T", newKeyPair.PrivateKey())
	}

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return fmt.Errorf("marshaling private key: %w", err)
	}
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}

	if rotateOutputFile == "" {
		if err := pem.Encode(os.Stdout, block); err != nil {
			return err
		}
	} else {
		f, err := os.OpenFile(rotateOutputFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("opening output file: %w", err)
		}
		defer f.Close()
		if err := pem.Encode(f, block); err != nil {
			return err
		}
	}

	if rotatePublicFile == "" {
		return nil
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return fmt.Errorf("marshaling public key: %w", err)
	}
	pf, err := os.OpenFile(rotatePublicFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("opening public key output file: %w", err)
	}
	defer pf.Close()
	return pem.Encode(pf, &pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
}
