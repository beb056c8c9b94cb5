package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"bloodtrace/internal/ledger"
	"bloodtrace/internal/roles"
	"bloodtrace/pkg/domain"
	dErrors "bloodtrace/pkg/domain-errors"
)

// Service manages session lifecycles. Transitions are strictly ordered:
// Connect binds an identity and verifies the chain, Classify resolves the
// identity's role, Disconnect discards everything. Roles are recomputed on
// every Classify and never persisted across sessions.
type Service struct {
	gw            ledger.Gateway
	resolver      *roles.Resolver
	expectedChain uint64

	mu       sync.RWMutex
	sessions map[string]*Session

	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger attaches a logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a session service. A non-zero expectedChain makes
// Connect fail when the ledger reports a different chain id.
func NewService(gw ledger.Gateway, resolver *roles.Resolver, expectedChain uint64, opts ...Option) *Service {
	s := &Service{
		gw:            gw,
		resolver:      resolver,
		expectedChain: expectedChain,
		sessions:      make(map[string]*Session),
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect opens a session for the signer's first account. A failed connect
// leaves nothing behind: no session exists until every check passes. Chain
// mismatches — signer vs ledger, or either vs the configured chain — are
// surfaced as connectivity errors instead of silently binding to the wrong
// network.
func (s *Service) Connect(ctx context.Context, signer Signer) (Session, error) {
	accounts, err := signer.Accounts(ctx)
	if err != nil {
		return Session{}, dErrors.Wrap(err, dErrors.CodeOf(err), "connect: signer accounts")
	}
	if len(accounts) == 0 {
		return Session{}, dErrors.New(dErrors.CodeUnauthorized, "signing agent exposes no accounts")
	}
	identity := accounts[0]

	signerChain, err := signer.ChainID(ctx)
	if err != nil {
		return Session{}, dErrors.Wrap(err, dErrors.CodeOf(err), "connect: signer chain")
	}
	ledgerChain, err := s.gw.ChainID(ctx)
	if err != nil {
		return Session{}, dErrors.Wrap(err, dErrors.CodeOf(err), "connect: ledger chain")
	}
	if signerChain != ledgerChain {
		return Session{}, dErrors.Newf(dErrors.CodeConnectivity,
			"signing agent is on chain %d (%s) but the ledger reports %d (%s)",
			signerChain, NetworkName(signerChain), ledgerChain, NetworkName(ledgerChain))
	}
	if s.expectedChain != 0 && ledgerChain != s.expectedChain {
		return Session{}, dErrors.Newf(dErrors.CodeConnectivity,
			"connected to chain %d (%s), expected %d (%s)",
			ledgerChain, NetworkName(ledgerChain), s.expectedChain, NetworkName(s.expectedChain))
	}
	chainID := ledgerChain

	sess := &Session{
		ID:          uuid.NewString(),
		Identity:    identity,
		Phase:       PhaseConnected,
		Network:     Network{ChainID: chainID, Name: NetworkName(chainID)},
		ConnectedAt: s.now().UTC(),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "session connected",
		"session_id", sess.ID, "identity", identity.Short(), "network", sess.Network.Name)
	return *sess, nil
}

// Classify resolves the session identity's role from current ledger state.
// Re-classifying an already classified session refreshes the role.
func (s *Service) Classify(ctx context.Context, sessionID string) (Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return Session{}, dErrors.Newf(dErrors.CodeNotFound, "session %s not found", sessionID)
	}

	classification, err := s.resolver.Resolve(ctx, sess.Identity)
	if err != nil {
		return Session{}, dErrors.Wrap(err, dErrors.CodeOf(err), "classify session")
	}

	s.mu.Lock()
	sess, ok = s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return Session{}, dErrors.Newf(dErrors.CodeNotFound, "session %s not found", sessionID)
	}
	sess.Classification = &classification
	sess.Phase = PhaseClassified
	sess.ClassifiedAt = s.now().UTC()
	snapshot := *sess
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "session classified",
		"session_id", sessionID, "identity", sess.Identity.Short(), "role", classification.Role)
	return snapshot, nil
}

// IdentityChanged rebinds a session to a new identity reported by the
// signing agent. The previous classification is discarded and the session
// drops back to connected; roles never carry across identities.
func (s *Service) IdentityChanged(ctx context.Context, sessionID string, identity domain.Address) (Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return Session{}, dErrors.Newf(dErrors.CodeNotFound, "session %s not found", sessionID)
	}
	if sess.Identity == identity {
		snapshot := *sess
		s.mu.Unlock()
		return snapshot, nil
	}
	previous := sess.Identity
	sess.Identity = identity
	sess.Phase = PhaseConnected
	sess.Classification = nil
	sess.ClassifiedAt = time.Time{}
	snapshot := *sess
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "session identity changed",
		"session_id", sessionID, "previous", previous.Short(), "identity", identity.Short())
	return snapshot, nil
}

// Get returns a session snapshot.
func (s *Service) Get(ctx context.Context, sessionID string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, dErrors.Newf(dErrors.CodeNotFound, "session %s not found", sessionID)
	}
	return *sess, nil
}

// Disconnect ends a session and discards its state.
func (s *Service) Disconnect(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		return dErrors.Newf(dErrors.CodeNotFound, "session %s not found", sessionID)
	}
	s.logger.InfoContext(ctx, "session disconnected",
		"session_id", sessionID, "identity", sess.Identity.Short())
	return nil
}
