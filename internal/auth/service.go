package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/approvalflow/approval-gateway/internal"
	"github.com/approvalflow/approval-gateway/internal/core/events"
	"github.com/approvalflow/approval-gateway/internal/session"
	"github.com/approvalflow/approval-gateway/internal/upstream"
)

// Service owns the session lifecycle: login, logout, token refresh and the
// cached user snapshot. It is the upstream client's token source, so the
// 401 recovery policy lands back here.
//
// Login, logout and refresh are serialized per session. A method holding a
// session's lock must never issue an upstream call bound to that session's
// token source, or a 401 would re-enter Refresh and deadlock.
type Service struct {
	api        *upstream.Client
	store      session.Store
	bus        *events.EventBus
	logger     *slog.Logger
	idleCutoff time.Duration

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	verified map[string]bool

	now func() time.Time
}

// touchInterval coalesces the implicit activity touch performed on every
// authenticated request, so a chatty client does not write the session row
// for each call.
const touchInterval = time.Minute

func NewService(api *upstream.Client, store session.Store, bus *events.EventBus, cfg internal.SessionConfig, logger *slog.Logger) *Service {
	return &Service{
		api:        api,
		store:      store,
		bus:        bus,
		logger:     logger,
		idleCutoff: cfg.IdleCutoff,
		locks:      make(map[string]*sync.Mutex),
		verified:   make(map[string]bool),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}
	return lock
}

func (s *Service) forget(sessionID string) {
	s.mu.Lock()
	delete(s.locks, sessionID)
	delete(s.verified, sessionID)
	s.mu.Unlock()
}

// Login authenticates against the upstream auth endpoint, then fetches the
// full user record with the fresh token. Only after both succeed is a
// session row written; a failed profile fetch fails the whole login.
func (s *Service) Login(ctx context.Context, dto LoginDTO) (*User, string, error) {
	if err := dto.Validate(); err != nil {
		return nil, "", err
	}

	var payload loginPayload
	body := map[string]string{"username": dto.Username, "password": dto.Password}
	if err := s.api.Post(ctx, s.api.EP.Login(), body, &payload); err != nil {
		return nil, "", err
	}
	if payload.Token == "" {
		return nil, "", internal.NewUpstreamError("login response missing token", internal.ErrCodeUpstreamRejected, nil)
	}

	var user User
	mctx := upstream.WithTokenSource(ctx, staticTokenSource{token: payload.Token})
	if err := s.api.Get(mctx, s.api.EP.Me(), &user); err != nil {
		return nil, "", err
	}

	userJSON, err := json.Marshal(&user)
	if err != nil {
		return nil, "", internal.NewInternalError("failed to encode user snapshot", err)
	}

	now := s.now()
	sess := &session.Session{
		ID:           uuid.NewString(),
		AccessToken:  payload.Token,
		RefreshToken: payload.RefreshToken,
		UserJSON:     string(userJSON),
		LastActivity: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, "", internal.NewInternalError("failed to persist session", err)
	}

	s.logger.Info("user logged in", "user_id", user.ID, "session_id", sess.ID)
	s.bus.Publish(ctx, events.NewSessionEvent(events.SessionLoggedIn, sess.ID, user.ID, ""))
	return &user, sess.ID, nil
}

// Logout tears the session down. Logging out a session that is already
// gone is not an error.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.endSession(ctx, sessionID, events.SessionLoggedOut, "")
}

// ForceLogout ends the session on the server's initiative, recording the
// reason so the audit trail explains the disappearance.
func (s *Service) ForceLogout(ctx context.Context, sessionID, reason string) error {
	return s.endSession(ctx, sessionID, events.SessionForcedOut, reason)
}

func (s *Service) endSession(ctx context.Context, sessionID, eventType, reason string) error {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			s.forget(sessionID)
			return nil
		}
		return internal.NewInternalError("failed to load session", err)
	}

	if err := s.store.Delete(ctx, sessionID); err != nil && !errors.Is(err, session.ErrNotFound) {
		return internal.NewInternalError("failed to delete session", err)
	}
	s.forget(sessionID)

	userID := snapshotUserID(sess.UserJSON)
	s.logger.Info("session ended", "session_id", sessionID, "event", eventType, "reason", reason)
	s.bus.Publish(ctx, events.NewSessionEvent(eventType, sessionID, userID, reason))
	return nil
}

// Refresh exchanges the stored refresh token for a new access token. Any
// failure is terminal for the session: the stored tokens are already
// rejected upstream, so keeping them would only loop.
func (s *Service) Refresh(ctx context.Context, sessionID string) (string, error) {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return "", internal.ErrSessionNotFound
		}
		return "", internal.NewInternalError("failed to load session", err)
	}
	if sess.RefreshToken == "" {
		return "", internal.ErrNoRefreshToken
	}

	// The refresh exchange must go out anonymously: this method is reached
	// from inside the 401 recovery path, and carrying the session's token
	// source here would recurse straight back into it.
	var payload refreshPayload
	body := map[string]string{"refresh_token": sess.RefreshToken}
	if err := s.api.Post(upstream.Anonymous(ctx), s.api.EP.TokenRefresh(), body, &payload); err != nil {
		s.logger.Warn("token refresh rejected upstream", "session_id", sessionID, "error", err)
		s.deleteLocked(ctx, sess)
		return "", internal.ErrSessionExpired
	}
	if payload.Token == "" {
		s.deleteLocked(ctx, sess)
		return "", internal.ErrSessionExpired
	}

	sess.AccessToken = payload.Token
	if payload.RefreshToken != "" {
		sess.RefreshToken = payload.RefreshToken
	}
	if err := s.store.Save(ctx, sess); err != nil {
		return "", internal.NewInternalError("failed to persist refreshed session", err)
	}

	s.bus.Publish(ctx, events.NewSessionEvent(events.SessionRefreshed, sessionID, snapshotUserID(sess.UserJSON), ""))
	return payload.Token, nil
}

// deleteLocked removes the session while its lock is already held; used on
// the refresh failure path where endSession would self-deadlock.
func (s *Service) deleteLocked(ctx context.Context, sess *session.Session) {
	if err := s.store.Delete(ctx, sess.ID); err != nil && !errors.Is(err, session.ErrNotFound) {
		s.logger.Error("failed to delete session after refresh failure", "session_id", sess.ID, "error", err)
	}
	s.forget(sess.ID)
	s.bus.Publish(ctx, events.NewSessionEvent(events.SessionForcedOut, sess.ID, snapshotUserID(sess.UserJSON), "token refresh failed"))
}

// CurrentUser returns the session's cached user snapshot. The first call
// for a session after process start also schedules a background check of
// the stored token against the upstream, mirroring how a rehydrated client
// re-validates state it restored from disk.
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (*User, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, internal.ErrSessionNotFound
		}
		return nil, internal.NewInternalError("failed to load session", err)
	}
	if !sess.IsAuthenticated() {
		return nil, internal.ErrSessionNotFound
	}

	var user User
	if err := json.Unmarshal([]byte(sess.UserJSON), &user); err != nil {
		s.logger.Warn("corrupt user snapshot, ending session", "session_id", sessionID, "error", err)
		if logoutErr := s.Logout(ctx, sessionID); logoutErr != nil {
			s.logger.Error("failed to end session with corrupt snapshot", "session_id", sessionID, "error", logoutErr)
		}
		return nil, internal.ErrSessionExpired
	}

	s.touchCoalesced(ctx, sess)
	s.verifyOnce(ctx, sessionID)
	return &user, nil
}

// touchCoalesced resets the idle clock when an authenticated request is
// served. Any authenticated request counts as activity, not only explicit
// activity beacons, so a user working through the API is never warned or
// logged out as idle. Touches within touchInterval of the last one are
// skipped.
func (s *Service) touchCoalesced(ctx context.Context, sess *session.Session) {
	now := s.now()
	if sess.IdleSince(now) < touchInterval {
		return
	}
	if err := s.store.Touch(ctx, sess.ID, now); err != nil && !errors.Is(err, session.ErrNotFound) {
		s.logger.Warn("failed to touch session on authenticated request", "session_id", sess.ID, "error", err)
	}
}

func (s *Service) verifyOnce(ctx context.Context, sessionID string) {
	s.mu.Lock()
	if s.verified[sessionID] {
		s.mu.Unlock()
		return
	}
	s.verified[sessionID] = true
	s.mu.Unlock()

	vctx := upstream.WithTokenSource(context.WithoutCancel(ctx), s.TokenSource(sessionID))
	go func() {
		var user User
		if err := s.api.Get(vctx, s.api.EP.Me(), &user); err != nil {
			// A rejected token has already torn the session down through the
			// token source. An unreachable upstream proves nothing, so allow
			// the check to run again later.
			s.logger.Warn("session verification failed", "session_id", sessionID, "error", err)
			var appErr *internal.AppError
			if errors.As(err, &appErr) && appErr.Code == internal.ErrCodeUpstreamUnavailable {
				s.mu.Lock()
				delete(s.verified, sessionID)
				s.mu.Unlock()
			}
			return
		}
		if err := s.replaceSnapshot(vctx, sessionID, &user); err != nil {
			s.logger.Error("failed to store verified user snapshot", "session_id", sessionID, "error", err)
		}
	}()
}

// replaceSnapshot swaps the stored user JSON wholesale for the freshly
// fetched record.
func (s *Service) replaceSnapshot(ctx context.Context, sessionID string, user *User) error {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil
		}
		return err
	}

	userJSON, err := json.Marshal(user)
	if err != nil {
		return err
	}
	sess.UserJSON = string(userJSON)
	return s.store.Save(ctx, sess)
}

// Status reports the session's idle state for the warning banner: how long
// it has been idle, how long until forced logout, and whether the one-shot
// warning has fired.
func (s *Service) Status(ctx context.Context, sessionID string) (*SessionStatus, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return &SessionStatus{Authenticated: false}, nil
		}
		return nil, internal.NewInternalError("failed to load session", err)
	}

	idle := sess.IdleSince(s.now())
	remaining := s.idleCutoff - idle
	if remaining < 0 {
		remaining = 0
	}
	return &SessionStatus{
		Authenticated: sess.IsAuthenticated(),
		IdleFor:       int64(idle.Seconds()),
		Remaining:     int64(remaining.Seconds()),
		Warned:        sess.WarnedAt != nil,
	}, nil
}

// RecordActivity resets the session's idle clock for a reported input
// event and re-arms the idle warning.
func (s *Service) RecordActivity(ctx context.Context, sessionID string, dto ActivityDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}
	if err := s.store.Touch(ctx, sessionID, s.now()); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return internal.ErrSessionNotFound
		}
		return internal.NewInternalError("failed to record activity", err)
	}
	return nil
}

// TokenSource returns the upstream token source bound to one session.
func (s *Service) TokenSource(sessionID string) upstream.TokenSource {
	return &sessionTokenSource{svc: s, sessionID: sessionID}
}

// WithSession binds both the session ID and its token source to the
// context, so downstream services issue upstream calls as this session.
func (s *Service) WithSession(ctx context.Context, sessionID string) context.Context {
	ctx = internal.ContextWithSessionID(ctx, sessionID)
	return upstream.WithTokenSource(ctx, s.TokenSource(sessionID))
}

func snapshotUserID(userJSON string) int64 {
	var snapshot struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(userJSON), &snapshot); err != nil {
		return 0
	}
	return snapshot.ID
}

type sessionTokenSource struct {
	svc       *Service
	sessionID string
}

func (ts *sessionTokenSource) AccessToken(ctx context.Context) (string, bool) {
	sess, err := ts.svc.store.Get(ctx, ts.sessionID)
	if err != nil || !sess.IsAuthenticated() {
		return "", false
	}
	return sess.AccessToken, true
}

func (ts *sessionTokenSource) RefreshAccessToken(ctx context.Context) (string, error) {
	return ts.svc.Refresh(ctx, ts.sessionID)
}

func (ts *sessionTokenSource) ClearSession(ctx context.Context) error {
	return ts.svc.ForceLogout(ctx, ts.sessionID, "upstream rejected session token")
}

// staticTokenSource carries a token that exists before any session does,
// such as during the post-login profile fetch.
type staticTokenSource struct {
	token string
}

func (ts staticTokenSource) AccessToken(ctx context.Context) (string, bool) {
	return ts.token, true
}

func (ts staticTokenSource) RefreshAccessToken(ctx context.Context) (string, error) {
	return "", internal.ErrNoRefreshToken
}

func (ts staticTokenSource) ClearSession(ctx context.Context) error {
	return nil
}
