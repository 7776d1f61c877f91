package taskauth

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/minus-twelve/taskauth/token"
)

// TokenDecoder verifies a bearer token and returns its payload.
type TokenDecoder interface {
	Decode(raw string) (*token.Claims, error)
}

func accessKey(userID int64, tokenID string) string {
	return "access_" + strconv.FormatInt(userID, 10) + "_" + tokenID
}

func userTokensKey(userID int64) string {
	return "user_tokens:" + strconv.FormatInt(userID, 10)
}

// TokenRegistry records which signed tokens may still be honoured. A token
// is valid while its access_<user>_<jti> record exists; the record lives as
// long as the token's declared lifetime.
//
// Every method reports failure as false and logs the cause; errors never
// leave the registry.
type TokenRegistry struct {
	store   Store
	decoder TokenDecoder
	logger  *slog.Logger
	metrics *Metrics
}

func NewTokenRegistry(store Store, decoder TokenDecoder, opts ...Option) *TokenRegistry {
	o := buildOptions(opts)
	return &TokenRegistry{
		store:   store,
		decoder: decoder,
		logger:  o.logger,
		metrics: o.metrics,
	}
}

// Store tracks raw for userID. A false result means the token was not
// tracked; it is still correctly signed.
func (tr *TokenRegistry) Store(ctx context.Context, raw string, userID int64) bool {
	ok := tr.track(ctx, raw, userID)
	tr.metrics.tokenOp("store", ok)
	return ok
}

func (tr *TokenRegistry) track(ctx context.Context, raw string, userID int64) bool {
	claims, err := tr.decoder.Decode(raw)
	if err != nil {
		tr.logger.WarnContext(ctx, "token store: decode failed", "err", err)
		return false
	}

	if claims.UserID != userID {
		tr.logger.WarnContext(ctx, "token store: user mismatch", "user_id", userID, "token_user_id", claims.UserID)
		return false
	}

	ttl := claims.Lifetime()
	if ttl <= 0 {
		tr.logger.WarnContext(ctx, "token store: non-positive lifetime", "jti", claims.TokenID())
		return false
	}

	if err := tr.store.Set(ctx, accessKey(userID, claims.TokenID()), raw, ttl); err != nil {
		tr.logger.ErrorContext(ctx, "token store: write failed", "user_id", userID, "err", err)
		return false
	}
	if err := tr.store.SAdd(ctx, userTokensKey(userID), claims.TokenID()); err != nil {
		tr.logger.ErrorContext(ctx, "token store: index write failed", "user_id", userID, "err", err)
		return false
	}
	if _, err := tr.store.Expire(ctx, userTokensKey(userID), ttl); err != nil {
		tr.logger.ErrorContext(ctx, "token store: index expire failed", "user_id", userID, "err", err)
		return false
	}
	return true
}

// IsValid reports whether raw decodes and is still tracked.
func (tr *TokenRegistry) IsValid(ctx context.Context, raw string) bool {
	claims, err := tr.decoder.Decode(raw)
	if err != nil {
		tr.logger.DebugContext(ctx, "token check: decode failed", "err", err)
		tr.metrics.tokenOp("check", false)
		return false
	}

	exists, err := tr.store.Exists(ctx, accessKey(claims.UserID, claims.TokenID()))
	if err != nil {
		tr.logger.ErrorContext(ctx, "token check: store failed", "err", err)
		tr.metrics.tokenOp("check", false)
		return false
	}
	tr.metrics.tokenOp("check", exists)
	return exists
}

// Blacklist revokes raw. Revoking an untracked token succeeds.
func (tr *TokenRegistry) Blacklist(ctx context.Context, raw string) bool {
	claims, err := tr.decoder.Decode(raw)
	if err != nil {
		tr.logger.WarnContext(ctx, "token blacklist: decode failed", "err", err)
		tr.metrics.tokenOp("blacklist", false)
		return false
	}

	ok := tr.revoke(ctx, claims.UserID, claims.TokenID())
	tr.metrics.tokenOp("blacklist", ok)
	return ok
}

func (tr *TokenRegistry) revoke(ctx context.Context, userID int64, tokenID string) bool {
	if err := tr.store.Del(ctx, accessKey(userID, tokenID)); err != nil {
		tr.logger.ErrorContext(ctx, "token blacklist: delete failed", "user_id", userID, "err", err)
		return false
	}
	if err := tr.store.SRem(ctx, userTokensKey(userID), tokenID); err != nil {
		tr.logger.ErrorContext(ctx, "token blacklist: index update failed", "user_id", userID, "err", err)
		return false
	}
	return true
}

// ActiveTokens lists the user's tracked token ids, pruning ids whose
// validity record has already expired.
func (tr *TokenRegistry) ActiveTokens(ctx context.Context, userID int64) ([]string, error) {
	ids, err := tr.store.SMembers(ctx, userTokensKey(userID))
	if err != nil {
		return nil, storeErr("read user tokens", err)
	}

	live := make([]string, 0, len(ids))
	for _, id := range ids {
		exists, err := tr.store.Exists(ctx, accessKey(userID, id))
		if err != nil {
			return nil, storeErr("check token", err)
		}
		if exists {
			live = append(live, id)
			continue
		}
		if err := tr.store.SRem(ctx, userTokensKey(userID), id); err != nil {
			return nil, storeErr("prune user tokens", err)
		}
	}
	return live, nil
}

// BlacklistAll revokes every token tracked for userID.
func (tr *TokenRegistry) BlacklistAll(ctx context.Context, userID int64) bool {
	ids, err := tr.store.SMembers(ctx, userTokensKey(userID))
	if err != nil {
		tr.logger.ErrorContext(ctx, "token blacklist all: read failed", "user_id", userID, "err", err)
		tr.metrics.tokenOp("blacklist_all", false)
		return false
	}

	ok := true
	for _, id := range ids {
		if !tr.revoke(ctx, userID, id) {
			ok = false
		}
	}
	tr.metrics.tokenOp("blacklist_all", ok)
	return ok
}
