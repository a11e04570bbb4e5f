package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/byte4ever/contribgraph/contrib"
	"github.com/byte4ever/contribgraph/instance"
)

// Cookie names shared with the browser UI.
const (
	tokenCookie = "access_token"
	stateCookie = "oauth_state"
)

// tokenResponse is the session issuance payload.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// profileResponse mirrors the UI's profile shape.
type profileResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// signupRequest is the signup body.
type signupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleWelcome(
	w http.ResponseWriter,
	_ *http.Request,
) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome to the contribution graph exporter!",
	})
}

// handleLogin starts the OAuth authorization code flow
// against the primary instance. The state token guards the
// callback against forgery.
func (s *Server) handleLogin(
	w http.ResponseWriter,
	r *http.Request,
) {
	state, err := randomToken(16)
	if err != nil {
		slog.Error(
			"generating oauth state",
			"error", err,
		)
		errorJSON(
			w, http.StatusInternalServerError,
			"could not start login",
		)

		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(
		w, r,
		s.oauth.AuthCodeURL(state),
		http.StatusFound,
	)
}

// handleLoginCallback exchanges the authorization code,
// resolves the user once to prove the token works, stores
// the token in an httponly cookie and sends the browser
// back to the frontend.
func (s *Server) handleLoginCallback(
	w http.ResponseWriter,
	r *http.Request,
) {
	code := r.URL.Query().Get("code")
	if code == "" {
		errorJSON(
			w, http.StatusBadRequest, "missing code",
		)

		return
	}

	if !s.validState(r) {
		errorJSON(
			w, http.StatusBadRequest, "state mismatch",
		)

		return
	}

	// The state cookie is single use.
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	tok, err := s.oauth.Exchange(r.Context(), code)
	if err != nil {
		slog.Error(
			"oauth code exchange failed",
			"error", err,
		)
		errorJSON(
			w, http.StatusBadGateway,
			"token exchange failed",
		)

		return
	}

	if _, err := s.cfg.Users.UserForToken(
		r.Context(), tok.AccessToken,
	); err != nil {
		slog.Error(
			"token user lookup failed",
			"error", err,
		)
		errorJSON(
			w, http.StatusBadGateway,
			"instance query failed",
		)

		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    tok.AccessToken,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(
		w, r,
		s.cfg.FrontendURL+"/profile",
		http.StatusFound,
	)
}

// validState compares the callback state parameter with
// the state cookie set by handleLogin.
func (s *Server) validState(r *http.Request) bool {
	state := r.URL.Query().Get("state")
	if state == "" {
		return false
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil {
		return false
	}

	return cookie.Value == state
}

// handleProfile resolves the presented instance token to
// its user.
func (s *Server) handleProfile(
	w http.ResponseWriter,
	r *http.Request,
) {
	token := instanceToken(r)
	if token == "" {
		unauthorized(w, "Not authenticated")

		return
	}

	user, err := s.cfg.Users.UserForToken(
		r.Context(), token,
	)
	if err != nil {
		if errors.Is(err, instance.ErrAuthentication) {
			unauthorized(w, "authentication rejected")

			return
		}

		slog.Error(
			"profile lookup failed", "error", err,
		)
		errorJSON(
			w, http.StatusBadGateway,
			"instance query failed",
		)

		return
	}

	writeJSON(w, http.StatusOK, profileResponse{
		ID:       user.ID,
		Name:     user.Name,
		Username: user.Username,
		Email:    user.Email,
	})
}

// handleContributions serves the merged timeline to an
// authenticated caller. Both local sessions and instance
// tokens are accepted.
func (s *Server) handleContributions(
	w http.ResponseWriter,
	r *http.Request,
) {
	if !s.authorized(r) {
		unauthorized(w, "Not authenticated")

		return
	}

	timeline, err := s.cfg.Contributions.Collect(
		r.Context(),
	)
	if err != nil {
		slog.Error(
			"collecting contributions failed",
			"error", err,
		)
		errorJSON(
			w, http.StatusInternalServerError,
			"collecting contributions failed",
		)

		return
	}

	if timeline == nil {
		timeline = contrib.Timeline{}
	}

	writeJSON(w, http.StatusOK, timeline)
}

// authorized accepts a live local session or an instance
// token that resolves to a user.
func (s *Server) authorized(r *http.Request) bool {
	token := instanceToken(r)
	if token == "" {
		return false
	}

	if _, ok := s.sessions.Resolve(token); ok {
		return true
	}

	_, err := s.cfg.Users.UserForToken(
		r.Context(), token,
	)

	return err == nil
}

// handleSignup registers a local account and issues its
// first session.
func (s *Server) handleSignup(
	w http.ResponseWriter,
	r *http.Request,
) {
	var req signupRequest

	if err := json.NewDecoder(r.Body).
		Decode(&req); err != nil {
		errorJSON(
			w, http.StatusBadRequest, "invalid body",
		)

		return
	}

	account, err := s.accounts.Create(
		req.Username, req.Password,
	)
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			errorJSON(
				w, http.StatusConflict,
				"username already taken",
			)

			return
		}

		errorJSON(
			w, http.StatusBadRequest, err.Error(),
		)

		return
	}

	s.issueSession(w, account, http.StatusCreated)
}

// handleToken implements the password grant form used by
// the UI login box.
func (s *Server) handleToken(
	w http.ResponseWriter,
	r *http.Request,
) {
	if err := r.ParseForm(); err != nil {
		errorJSON(
			w, http.StatusBadRequest, "invalid form",
		)

		return
	}

	account, err := s.accounts.Verify(
		r.PostFormValue("username"),
		r.PostFormValue("password"),
	)
	if err != nil {
		unauthorized(w, "unknown username or password")

		return
	}

	s.issueSession(w, account, http.StatusOK)
}

// issueSession writes a fresh bearer session for the
// account.
func (s *Server) issueSession(
	w http.ResponseWriter,
	account Account,
	status int,
) {
	token, err := s.sessions.Issue(account.ID)
	if err != nil {
		slog.Error(
			"issuing session failed", "error", err,
		)
		errorJSON(
			w, http.StatusInternalServerError,
			"could not issue session",
		)

		return
	}

	writeJSON(w, status, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
	})
}

// handleUsersMe returns the local account behind the
// presented bearer session.
func (s *Server) handleUsersMe(
	w http.ResponseWriter,
	r *http.Request,
) {
	token := bearerToken(r)
	if token == "" {
		unauthorized(w, "Not authenticated")

		return
	}

	accountID, ok := s.sessions.Resolve(token)
	if !ok {
		unauthorized(w, "session expired or unknown")

		return
	}

	account, ok := s.accounts.ByID(accountID)
	if !ok {
		unauthorized(w, "session expired or unknown")

		return
	}

	writeJSON(w, http.StatusOK, account)
}

// instanceToken extracts the caller's token: the httponly
// cookie set by the login flow, or an Authorization bearer
// header.
func instanceToken(r *http.Request) string {
	if cookie, err := r.Cookie(tokenCookie); err == nil &&
		cookie.Value != "" {
		return cookie.Value
	}

	return bearerToken(r)
}

// bearerToken extracts the Authorization bearer value.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")

	const prefix = "Bearer "

	if !strings.HasPrefix(auth, prefix) {
		return ""
	}

	return strings.TrimPrefix(auth, prefix)
}

// writeJSON renders v as a JSON response.
func writeJSON(
	w http.ResponseWriter,
	status int,
	v any,
) {
	raw, err := json.Marshal(v)
	if err != nil {
		slog.Error(
			"encoding response failed", "error", err,
		)
		http.Error(
			w,
			"internal server error",
			http.StatusInternalServerError,
		)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if _, err := w.Write(raw); err != nil {
		slog.Warn(
			"writing response failed", "error", err,
		)
	}
}

// errorJSON renders an error detail payload.
func errorJSON(
	w http.ResponseWriter,
	status int,
	detail string,
) {
	writeJSON(w, status, map[string]string{
		"detail": detail,
	})
}

// unauthorized renders a 401 with the bearer challenge.
func unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	errorJSON(w, http.StatusUnauthorized, detail)
}
