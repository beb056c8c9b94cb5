package session

import (
	"context"

	"bloodtrace/pkg/domain"
	dErrors "bloodtrace/pkg/domain-errors"
)

// Signer fronts the external signing agent a session binds to: a wallet,
// a keystore daemon, or a fixed test identity. The service never holds
// key material itself.
type Signer interface {
	// Accounts returns the identities the agent can sign for. The first
	// one becomes the session identity.
	Accounts(ctx context.Context) ([]domain.Address, error)
	// ChainID reports which chain the agent is configured against.
	ChainID(ctx context.Context) (uint64, error)
}

// StaticSigner is a Signer for a fixed identity and chain.
type StaticSigner struct {
	Addr  domain.Address
	Chain uint64
}

// Accounts implements Signer.
func (s StaticSigner) Accounts(ctx context.Context) ([]domain.Address, error) {
	addr, err := domain.ParseAddress(string(s.Addr))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "static signer identity")
	}
	return []domain.Address{addr}, nil
}

// ChainID implements Signer.
func (s StaticSigner) ChainID(ctx context.Context) (uint64, error) {
	return s.Chain, nil
}
