package stockimport

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// FailurePolicy decides what happens to the rest of a run after a chunk
// fails to commit.
type FailurePolicy int

const (
	// FailurePolicyContinue moves on to the next chunk.
	FailurePolicyContinue FailurePolicy = iota
	// FailurePolicyHalt stops writing; later chunks are reported as not attempted.
	FailurePolicyHalt
)

// String returns the configuration spelling of the policy.
func (p FailurePolicy) String() string {
	switch p {
	case FailurePolicyContinue:
		return "continue"
	case FailurePolicyHalt:
		return "halt"
	default:
		return fmt.Sprintf("Unknown(%d)", p)
	}
}

// IsValid returns true if the policy is a defined value.
func (p FailurePolicy) IsValid() bool {
	return p == FailurePolicyContinue || p == FailurePolicyHalt
}

// ParseFailurePolicy parses "continue" or "halt" (case-insensitive).
// An empty string yields the default, FailurePolicyContinue.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "continue":
		return FailurePolicyContinue, nil
	case "halt", "stop":
		return FailurePolicyHalt, nil
	default:
		return 0, fmt.Errorf("unknown chunk failure policy %q (want continue or halt): %w", s, ErrInvalidConfig)
	}
}

// ImportConfig contains all parameters of one import run.
type ImportConfig struct {
	// Table is the permanent table, optionally schema-qualified ("market.stock_prices").
	Table string

	// ChunkSize is the number of records per staging/merge transaction.
	ChunkSize int

	// OnChunkFailure selects continue or halt after a chunk rolls back.
	OnChunkFailure FailurePolicy

	// ChunkRetries is how often a chunk failing with a transient error is
	// re-run. Connection losses are never retried.
	ChunkRetries int

	// MergeLock serializes merges into Table across concurrent runs with a
	// transaction-scoped advisory lock.
	MergeLock bool
}

// DefaultImportConfig returns the configuration used when nothing is overridden.
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		Table:          DefaultTable,
		ChunkSize:      DefaultChunkSize,
		OnChunkFailure: FailurePolicyContinue,
		ChunkRetries:   DefaultChunkRetries,
		MergeLock:      true,
	}
}

// Validate checks if the ImportConfig has all required fields and valid values.
// It returns a multi-error if multiple validation failures occur.
func (c *ImportConfig) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Table) == "" {
		errs = append(errs, fmt.Errorf("Table is required: %w", ErrInvalidConfig))
	} else if _, err := SplitTableName(c.Table); err != nil {
		errs = append(errs, err)
	}

	if c.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("ChunkSize must be at least 1, got %d: %w", c.ChunkSize, ErrInvalidConfig))
	}

	if !c.OnChunkFailure.IsValid() {
		errs = append(errs, fmt.Errorf("OnChunkFailure %s: %w", c.OnChunkFailure, ErrInvalidConfig))
	}

	if c.ChunkRetries < 0 {
		errs = append(errs, fmt.Errorf("ChunkRetries cannot be negative: %w", ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

// SplitTableName splits "schema.table" or "table" into identifier parts.
func SplitTableName(name string) ([]string, error) {
	parts := strings.Split(strings.TrimSpace(name), ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("table name %q has too many parts: %w", name, ErrInvalidConfig)
	}
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("table name %q has an empty part: %w", name, ErrInvalidConfig)
		}
	}
	return parts, nil
}

// ConnectionConfig represents parsed connection parameters.
type ConnectionConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string

	// AuthMethod indicates the authentication mechanism to use
	AuthMethod AuthMethod

	// Additional connection parameters
	AppName          string
	ConnectTimeout   time.Duration
	AdditionalParams map[string]string

	// Azure Entra ID authentication parameters (used when AuthMethod is AuthMethodAzureEntraID)
	// If all three are provided, Service Principal authentication is used.
	// If none are provided, DefaultAzureCredential chain is used (env vars, managed identity, CLI, etc.)
	AzureTenantID     string
	AzureClientID     string
	AzureClientSecret string

	// AWS IAM parameters (used when AuthMethod is AuthMethodAWSIAM)
	AWSRegion string

	// Google Cloud SQL instance connection name, "project:region:instance"
	GoogleInstance string
}

// AuthMethod represents the type of authentication to use.
type AuthMethod int

const (
	AuthMethodStandard     AuthMethod = iota // Username/Password
	AuthMethodAWSIAM                         // AWS IAM Database Authentication
	AuthMethodGoogleIAM                      // Google Cloud SQL IAM
	AuthMethodAzureEntraID                   // Azure Active Directory (Entra ID)
)

// String returns a human-readable string representation of the AuthMethod.
func (a AuthMethod) String() string {
	switch a {
	case AuthMethodStandard:
		return "Standard"
	case AuthMethodAWSIAM:
		return "AWS IAM"
	case AuthMethodGoogleIAM:
		return "Google IAM"
	case AuthMethodAzureEntraID:
		return "Azure Entra ID"
	default:
		return fmt.Sprintf("Unknown(%d)", a)
	}
}

// IsValid returns true if the AuthMethod is a valid, defined value.
func (a AuthMethod) IsValid() bool {
	return a >= AuthMethodStandard && a <= AuthMethodAzureEntraID
}
