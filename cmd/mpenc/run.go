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
	"bufio"
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sage-x-project/mpenc/config"
	"github.com/sage-x-project/mpenc/core/handler"
	"github.com/sage-x-project/mpenc/identity"
	"github.com/sage-x-project/mpenc/internal/logger"
	"github.com/sage-x-project/mpenc/transport/wsdemo"
)

var (
	runSelf    string
	runPeers   []string
	runKeyFile string
	runHubURL  string
	runEnvFile string
	runCfgFile string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an interactive mpENC session over the wsdemo broadcast channel",
	Long: `run drives a live Handler against a wsdemo.Hub: it loads this identity's
static keypair, registers known peers' public keys, dials the hub, and
relays stdin lines as outbound messages while printing inbound UI events.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runSelf, "id", "", "this participant's id (required)")
	runCmd.Flags().StringSliceVar(&runPeers, "peer", nil, "known peer as id=pubkey.pem, repeatable")
	runCmd.Flags().StringVar(&runKeyFile, "key", "", "this participant's static private key PEM (required)")
	runCmd.Flags().StringVar(&runHubURL, "hub", "ws://127.0.0.1:8080/ws", "wsdemo hub URL")
	runCmd.Flags().StringVar(&runEnvFile, "env", "", "optional .env file to load before startup")
	runCmd.Flags().StringVar(&runCfgFile, "config", "", "optional config file (yaml or json)")
	_ = runCmd.MarkFlagRequired("id")
	_ = runCmd.MarkFlagRequired("key")
}

func runRun(cmd *cobra.Command, args []string) error {
	if runEnvFile != "" {
		if err := godotenv.Overload(runEnvFile); err != nil {
			return fmt.Errorf("loading env file: %w", err)
		}
	}

	padding := 0
	if runCfgFile != "" {
		cfg, err := config.LoadFromFile(runCfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if cfg.Protocol != nil {
			padding = cfg.Protocol.PaddingSize
		}
	}

	priv, err := loadPrivateKey(runKeyFile)
	if err != nil {
		return fmt.Errorf("loading private key: %w", err)
	}

	dir := identity.NewMapDirectory()
	for _, p := range runPeers {
		id, pub, err := parsePeerFlag(p)
		if err != nil {
			return err
		}
		dir.Put(id, pub)
	}

	h := handler.New(runSelf, priv, dir, padding)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := wsdemo.NewClient(runSelf, h, runHubURL)
	if err := client.Dial(ctx); err != nil {
		return fmt.Errorf("dialing hub: %w", err)
	}
	defer client.Close()

	go runStdinLoop(ctx, cancel, client)

	members := func() []string {
		peers := make([]string, 0, len(runPeers)+1)
		peers = append(peers, runSelf)
		for _, p := range runPeers {
			id, _, err := parsePeerFlag(p)
			if err != nil {
				continue
			}
			peers = append(peers, id)
		}
		return peers
	}

	go drainUIQueue(ctx, h)

	logger.Info("mpenc session starting", logger.String("self", runSelf), logger.String("hub", runHubURL))
	err = client.Pump(ctx, members)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("session ended: %w", err)
	}
	return nil
}

func runStdinLoop(ctx context.Context, cancel context.CancelFunc, client *wsdemo.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := client.Send(line); err != nil {
			fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
			cancel()
			return
		}
	}
}

// drainUIQueue polls the handler's UI queue and prints each event until ctx
// is cancelled, since Handler has no push notification for its queues.
func drainUIQueue(ctx context.Context, h *handler.Handler) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for len(h.UIQueue) > 0 {
				ev := h.UIQueue[0]
				h.UIQueue = h.UIQueue[1:]
				switch ev.Type {
				case handler.EventMessage:
					fmt.Printf("<%s> %s\n", ev.From, ev.Message)
				case handler.EventError:
					fmt.Fprintf(os.Stderr, "! %s\n", ev.Message)
				default:
					fmt.Printf("* %s\n", ev.Message)
				}
			}
		}
	}
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key in %s is not RSA", path)
	}
	return priv, nil
}

func loadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}
	if pub, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return pub, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key in %s is not RSA", path)
	}
	return pub, nil
}

func parsePeerFlag(raw string) (string, *rsa.PublicKey, error) {
	parts := strings.SplitN(raw, "=", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("malformed --peer %q, want id=pubkey.pem", raw)
	}
	pub, err := loadPublicKey(parts[1])
	if err != nil {
		return "", nil, fmt.Errorf("loading peer %q public key: %w", parts[0], err)
	}
	return parts[0], pub, nil
}
