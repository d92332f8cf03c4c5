package keyloader

import (
	"bufio"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mitchellh/go-homedir"

	"scheduled_payments/internal/app/port"
)

// ErrNoKeys is returned when neither the key file nor the environment yields a key.
var ErrNoKeys = errors.New("no signing keys configured")

// KeyLoader loads signing keys for the local wallet. Keys come from the environment
// variable first, then from the key file, one hex key per line.
type KeyLoader struct {
	filePath string
	envVar   string
	logger   port.Logger
}

// NewKeyLoader creates a new KeyLoader. Either source may be empty.
func NewKeyLoader(filePath, envVar string, logger port.Logger) *KeyLoader {
	return &KeyLoader{filePath: filePath, envVar: envVar, logger: logger}
}

// Load returns every key found, de-duplicated by address, in source order.
func (l *KeyLoader) Load() ([]*ecdsa.PrivateKey, error) {
	var keys []*ecdsa.PrivateKey
	seen := make(map[string]struct{})
	add := func(k *ecdsa.PrivateKey) {
		addr := crypto.PubkeyToAddress(k.PublicKey).Hex()
		if _, dup := seen[addr]; dup {
			return
		}
		seen[addr] = struct{}{}
		keys = append(keys, k)
	}

	if l.envVar != "" {
		if raw := strings.TrimSpace(os.Getenv(l.envVar)); raw != "" {
			k, err := ParseKey(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid key in %s: %w", l.envVar, err)
			}
			add(k)
		}
	}

	if l.filePath != "" {
		fileKeys, err := l.loadFile()
		if err != nil {
			return nil, err
		}
		for _, k := range fileKeys {
			add(k)
		}
	}

	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	l.logger.Info("Signing keys loaded", "count", len(keys))
	return keys, nil
}

func (l *KeyLoader) loadFile() ([]*ecdsa.PrivateKey, error) {
	path, err := homedir.Expand(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to expand key file path %s: %w", l.filePath, err)
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			l.logger.Warn("Key file not found, skipping", "path", path)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open key file %s: %w", path, err)
	}
	defer file.Close()

	var keys []*ecdsa.PrivateKey
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, err := ParseKey(line)
		if err != nil {
			l.logger.Warn("Skipping invalid key", "file", path, "line_number", lineNum, "error", err)
			continue
		}
		keys = append(keys, k)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning key file %s: %w", path, err)
	}
	return keys, nil
}

// ParseKey parses a hex private key with or without the 0x prefix.
func ParseKey(raw string) (*ecdsa.PrivateKey, error) {
	raw = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(raw), "0x"), "0X")
	return crypto.HexToECDSA(raw)
}
