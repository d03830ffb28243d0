package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"presence/internal/auth"
	"presence/internal/faults"
	"presence/internal/metrics"
	"presence/internal/model"
	"presence/internal/store"
)

// Guard resolves bearer tokens to actors. Tokens are signed JWTs that also
// live in the sessions table, so a logout revokes them server-side even
// though the signature would still verify.
type Guard struct {
	store      store.Store
	signingKey string
	issuer     string
	ttl        time.Duration
	timeout    time.Duration
	log        *zap.Logger
}

// NewGuard wires a guard over the store. ttl is the session lifetime
// (default seven days at the config layer); timeout bounds store calls.
func NewGuard(s store.Store, signingKey, issuer string, ttl, timeout time.Duration, log *zap.Logger) *Guard {
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{store: s, signingKey: signingKey, issuer: issuer, ttl: ttl, timeout: timeout, log: log}
}

func (g *Guard) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

// Issue creates a session for the actor and returns it with the raw token.
func (g *Guard) Issue(ctx context.Context, actor *model.Actor) (*model.Session, error) {
	token, exp, err := auth.IssueToken(actor.ID, string(actor.Role), g.issuer, g.signingKey, g.ttl)
	if err != nil {
		return nil, faults.Wrap(faults.StoreError, "token issue failed", err)
	}
	sess := &model.Session{
		Token:     token,
		ActorID:   actor.ID,
		ExpiresAt: exp,
		CreatedAt: time.Now().UTC(),
	}
	sctx, cancel := g.bound(ctx)
	defer cancel()
	if err := g.store.CreateSession(sctx, sess); err != nil {
		if err == store.ErrDuplicate {
			// jti collisions do not happen in practice; treat as hard failure.
			return nil, faults.Wrap(faults.StoreError, "token collision", err)
		}
		return nil, faults.Store(err)
	}
	return sess, nil
}

// Authenticate resolves a token to an active actor. Failure kinds are
// distinct on purpose: no token, unknown token, and expired token all read
// differently to the client.
func (g *Guard) Authenticate(ctx context.Context, token string) (*model.Actor, error) {
	if token == "" {
		return nil, faults.New(faults.Unauthenticated, "no token provided")
	}
	// An expired signature is not terminal yet: once the sweeper has removed
	// the row the token must read as unknown, not expired, so the store is
	// consulted before deciding which failure to report.
	_, perr := auth.ParseToken(token, g.signingKey, g.issuer)
	if perr != nil && faults.KindOf(perr) != faults.SessionExpired {
		return nil, perr
	}

	sctx, cancel := g.bound(ctx)
	defer cancel()
	sess, err := g.store.GetSession(sctx, token)
	if err != nil {
		return nil, faults.Store(err)
	}
	if sess == nil {
		return nil, faults.New(faults.SessionNotFound, "session not found")
	}
	if perr != nil || sess.Expired(time.Now().UTC()) {
		return nil, faults.New(faults.SessionExpired, "session expired, log in again")
	}

	actor, err := g.store.GetActor(sctx, sess.ActorID)
	if err != nil {
		return nil, faults.Store(err)
	}
	if actor == nil {
		return nil, faults.New(faults.SessionNotFound, "session actor no longer exists")
	}
	if !actor.Active {
		return nil, faults.New(faults.Forbidden, "account disabled")
	}
	return actor, nil
}

// Revoke deletes the session for token. Deleting an unknown token is a no-op.
func (g *Guard) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return faults.New(faults.Unauthenticated, "no token provided")
	}
	sctx, cancel := g.bound(ctx)
	defer cancel()
	if err := g.store.DeleteSession(sctx, token); err != nil {
		return faults.Store(err)
	}
	return nil
}

// SweepExpired batch-deletes expired sessions. Idempotent and safe to run
// concurrently with authentication reads; a token expiring mid-request is
// reported as SessionExpired by Authenticate, never a crash.
func (g *Guard) SweepExpired(ctx context.Context) (int64, error) {
	sctx, cancel := g.bound(ctx)
	defer cancel()
	n, err := g.store.DeleteExpiredSessions(sctx, time.Now().UTC())
	if err != nil {
		return 0, faults.Store(err)
	}
	if n > 0 {
		metrics.SessionsSweptTotal.Add(float64(n))
		g.log.Info("swept expired sessions", zap.Int64("count", n))
	}
	return n, nil
}

// RunSweeper sweeps on a fixed interval until ctx is cancelled.
func (g *Guard) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := g.SweepExpired(ctx); err != nil {
				g.log.Warn("session sweep failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}
