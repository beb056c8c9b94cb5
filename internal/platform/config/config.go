package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	dErrors "bloodtrace/pkg/domain-errors"
	"bloodtrace/pkg/domain"
	platformstrings "bloodtrace/pkg/platform/strings"
)

// Config captures everything the server needs at startup. The three contract
// addresses and the expected chain come from the deployment; a mismatch with
// the live network is surfaced at connect time, never silently tolerated.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string

	// LedgerURL is the remote ledger RPC endpoint.
	LedgerURL string

	// ChainID is the network this deployment targets.
	ChainID uint64

	// TrackerContract is the registry + marketplace contract.
	TrackerContract domain.Address

	// DonationContract is the donation-unit registry.
	DonationContract domain.Address

	// DerivativeContract is the derivative-unit registry.
	DerivativeContract domain.Address

	// DeploymentBlock is the earliest block any event of interest can live in.
	DeploymentBlock uint64

	// ScanChunkSize bounds each event query's block span.
	ScanChunkSize uint64

	// ScanLookback caps how far back a scan may reach from the head. Zero
	// means "from the deployment block" and is only safe on small networks.
	ScanLookback uint64

	// CallTimeout bounds every individual ledger call.
	CallTimeout time.Duration

	// RedisURL enables the advisory cache when set.
	RedisURL string

	// KafkaBrokers enables audit publishing when set.
	KafkaBrokers []string

	// AuditTopic is the Kafka topic audit events land on.
	AuditTopic string

	// SessionIdentity is the address the server's signing agent acts for.
	// Mutating marketplace routes are rejected when unset.
	SessionIdentity domain.Address
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:          envOr("BLOODTRACE_ADDR", ":8080"),
		LedgerURL:     envOr("LEDGER_RPC_URL", "http://localhost:8545"),
		RedisURL:      os.Getenv("REDIS_URL"),
		AuditTopic:    envOr("AUDIT_TOPIC", "bloodtrace.audit"),
		CallTimeout:   15 * time.Second,
		ScanChunkSize: 5000,
	}

	var err error
	if cfg.ChainID, err = envUint("CHAIN_ID", 31337); err != nil {
		return Config{}, err
	}
	if cfg.DeploymentBlock, err = envUint("DEPLOYMENT_BLOCK", 0); err != nil {
		return Config{}, err
	}
	if cfg.ScanChunkSize, err = envUint("SCAN_CHUNK_SIZE", cfg.ScanChunkSize); err != nil {
		return Config{}, err
	}
	if cfg.ScanLookback, err = envUint("SCAN_LOOKBACK_BLOCKS", 500_000); err != nil {
		return Config{}, err
	}

	if cfg.TrackerContract, err = envAddress("TRACKER_CONTRACT"); err != nil {
		return Config{}, err
	}
	if cfg.DonationContract, err = envAddress("DONATION_CONTRACT"); err != nil {
		return Config{}, err
	}
	if cfg.DerivativeContract, err = envAddress("DERIVATIVE_CONTRACT"); err != nil {
		return Config{}, err
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitCSV(brokers)
	}

	if raw := os.Getenv("SESSION_IDENTITY"); raw != "" {
		if cfg.SessionIdentity, err = domain.ParseAddress(raw); err != nil {
			return Config{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "SESSION_IDENTITY is not a valid address")
		}
	}

	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envUint(key string, def uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "%s must be a non-negative integer", key)
	}
	return n, nil
}

func envAddress(key string) (domain.Address, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "%s is required", key)
	}
	addr, err := domain.ParseAddress(v)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInvalidInput, key+" is not a valid address")
	}
	return addr, nil
}

func splitCSV(s string) []string {
	return platformstrings.DedupeAndTrim(strings.Split(s, ","))
}
