// Command paddock-keytool manages operator signing keys and produces signed
// settlement payloads for development and testing.
//
//	paddock-keytool encrypt -key 0x... -password secret -out signer.json
//	paddock-keytool address -config config.toml
//	paddock-keytool sign -config config.toml -payload payload.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/paddockmarkets/paddock/internal/config"
	"github.com/paddockmarkets/paddock/internal/crypto"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "encrypt":
		err = runEncrypt(os.Args[2:])
	case "address":
		err = runAddress(os.Args[2:])
	case "sign":
		err = runSign(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: paddock-keytool <encrypt|address|sign> [flags]")
}

// runEncrypt encrypts a raw private key with a password and writes the JSON
// blob to disk.
func runEncrypt(args []string) error {
	fs := flag.NewFlagSet("encrypt", flag.ExitOnError)
	key := fs.String("key", "", "hex private key (with or without 0x prefix)")
	password := fs.String("password", "", "encryption password")
	out := fs.String("out", "signer.json", "output file path")
	fs.Parse(args)

	if *key == "" || *password == "" {
		return fmt.Errorf("encrypt: -key and -password are required")
	}

	blob, err := crypto.EncryptKey(*key, *password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, blob, 0o600); err != nil {
		return fmt.Errorf("encrypt: write %s: %w", *out, err)
	}

	fmt.Printf("encrypted key written to %s\n", *out)
	return nil
}

// loadSigner builds a Signer from the wallet section of the config file.
func loadSigner(configPath string) (*crypto.Signer, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}

	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, err
	}

	return crypto.NewSigner(keyHex, cfg.Engine.ChainID)
}

// runAddress prints the address derived from the configured wallet key.
func runAddress(args []string) error {
	fs := flag.NewFlagSet("address", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "path to configuration file")
	fs.Parse(args)

	signer, err := loadSigner(*configPath)
	if err != nil {
		return err
	}

	fmt.Println(signer.Address().Hex())
	return nil
}

// runSign signs the settlement payload JSON at -payload and prints the
// hex signature.
func runSign(args []string) error {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "path to configuration file")
	payloadPath := fs.String("payload", "", "path to settlement payload JSON")
	fs.Parse(args)

	if *payloadPath == "" {
		return fmt.Errorf("sign: -payload is required")
	}

	raw, err := os.ReadFile(*payloadPath)
	if err != nil {
		return fmt.Errorf("sign: read %s: %w", *payloadPath, err)
	}

	var payload crypto.SettlementPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("sign: decode payload: %w", err)
	}

	signer, err := loadSigner(*configPath)
	if err != nil {
		return err
	}

	sig, err := signer.SignSettlement(payload)
	if err != nil {
		return err
	}

	fmt.Println(sig)
	return nil
}
