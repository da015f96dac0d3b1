package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/screa/nonce-miner/internal/crypto"
	"github.com/screa/nonce-miner/pkg/types"
)

// Errors
var (
	ErrNoTargetSpecified = errors.New("must specify --target")
	ErrTargetTooLong     = fmt.Errorf("target longer than %d bytes", crypto.MaxTargetLen)
	ErrBothHeaders       = errors.New("specify only one of --header and --header-file")
	ErrNoMiningKeys      = errors.New("mining requires at least one --mining-key")
	ErrInvalidMiningKey  = errors.New("mining key must be <pubkey> or <share>,<m>:<key>[,<key>...]")
	ErrInvalidInterval   = errors.New("stats interval must be at least 1 second")
)

// Config holds the application configuration
type Config struct {
	Threads       int
	NUMANodes     []int
	Affinity      bool
	BatchSize     int
	StatsInterval int // Logging interval in seconds
	NoVector      bool
	NonceSpace    uint64

	Header     string
	HeaderFile string
	Target     string
	Algorithm  string

	Mine        bool
	MiningKeys  []string
	Verbose     bool
	LogFile     string
	MetricsAddr string
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	def := types.DefaultConfig()
	return &Config{
		Threads:       def.Threads,
		NUMANodes:     def.NUMANodes,
		Affinity:      def.Affinity,
		BatchSize:     def.BatchSize,
		StatsInterval: int(def.StatsInterval / time.Second),
		Algorithm:     "keccak",
		Mine:          true,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.MiningConfig().Validate(); err != nil {
		return err
	}
	if c.StatsInterval < 1 {
		return ErrInvalidInterval
	}
	if c.Header != "" && c.HeaderFile != "" {
		return ErrBothHeaders
	}
	if _, err := crypto.New(c.Algorithm); err != nil {
		return fmt.Errorf("%w: %q", err, c.Algorithm)
	}
	if !c.Mine {
		return nil
	}
	if c.Target == "" {
		return ErrNoTargetSpecified
	}
	if len(c.MiningKeys) == 0 {
		return ErrNoMiningKeys
	}
	target, err := c.GetTarget()
	if err != nil {
		return err
	}
	if len(target) > crypto.MaxTargetLen {
		return ErrTargetTooLong
	}
	if _, err := c.GetMiningKeys(); err != nil {
		return err
	}
	return nil
}

// MiningConfig returns the engine configuration
func (c *Config) MiningConfig() types.Config {
	return types.Config{
		Threads:       c.Threads,
		NUMANodes:     c.NUMANodes,
		Affinity:      c.Affinity,
		BatchSize:     c.BatchSize,
		StatsInterval: time.Duration(c.StatsInterval) * time.Second,
		Vectorized:    !c.NoVector,
		IdleTimeout:   types.DefaultIdleTimeout,
		NonceSpace:    c.NonceSpace,
	}
}

// GetTargetDescription returns a human-readable description of the target
func (c *Config) GetTargetDescription() string {
	if c.Target == "" {
		return "unknown"
	}
	return "digest <= " + strings.ToLower(trimHexPrefix(c.Target)) + " (" + c.Algorithm + ")"
}

// GetTarget decodes the target bytes
func (c *Config) GetTarget() ([]byte, error) {
	if c.Target == "" {
		return nil, ErrNoTargetSpecified
	}
	b, err := decodeHex(c.Target)
	if err != nil {
		return nil, fmt.Errorf("invalid target: %w", err)
	}
	return b, nil
}

// GetHeader returns the block header bytes. An unset header is empty.
func (c *Config) GetHeader() ([]byte, error) {
	if c.HeaderFile != "" {
		return readHexFromFile(c.HeaderFile)
	}
	if c.Header == "" {
		return nil, nil
	}
	b, err := decodeHex(c.Header)
	if err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}
	return b, nil
}

// GetMiningKeys parses the --mining-key values. A bare key is a 1-of-1
// configuration; "<share>,<m>:<key>,<key>..." spells out the share and
// signature threshold.
func (c *Config) GetMiningKeys() ([]types.MiningKey, error) {
	keys := make([]types.MiningKey, 0, len(c.MiningKeys))
	for _, raw := range c.MiningKeys {
		k, err := parseMiningKey(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", err, raw)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func parseMiningKey(raw string) (types.MiningKey, error) {
	raw = strings.TrimSpace(raw)
	params, list, advanced := strings.Cut(raw, ":")
	if !advanced {
		if raw == "" || strings.ContainsAny(raw, ", ") {
			return types.MiningKey{}, ErrInvalidMiningKey
		}
		return types.MiningKey{Share: 1, M: 1, Keys: []string{raw}}, nil
	}

	shareStr, mStr, ok := strings.Cut(params, ",")
	if !ok {
		return types.MiningKey{}, ErrInvalidMiningKey
	}
	share, err := strconv.ParseUint(shareStr, 10, 64)
	if err != nil {
		return types.MiningKey{}, ErrInvalidMiningKey
	}
	m, err := strconv.ParseUint(mStr, 10, 64)
	if err != nil || m == 0 {
		return types.MiningKey{}, ErrInvalidMiningKey
	}

	var keys []string
	for _, k := range strings.Split(list, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	if uint64(len(keys)) < m {
		return types.MiningKey{}, ErrInvalidMiningKey
	}
	return types.MiningKey{Share: share, M: m, Keys: keys}, nil
}

func trimHexPrefix(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(trimHexPrefix(s))
}

// readHexFromFile reads a hex-encoded value from a file
func readHexFromFile(filename string) ([]byte, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	code := trimHexPrefix(string(content))

	// Ensure even length by padding with 0 if necessary
	if len(code)%2 != 0 {
		code = code + "0"
	}

	return hex.DecodeString(code)
}
