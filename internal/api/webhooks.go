package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/docscout/docscout/internal/errors"
)

// Webhook bodies are bounded; providers send small JSON payloads.
const maxWebhookBody = 1 << 20

// webhookSyncTimeout bounds a webhook-scheduled sync, which runs detached
// from the request.
const webhookSyncTimeout = 10 * time.Minute

// webhookSecret resolves the webhook secret for a repository: the per-repo
// <NAME>_WEBHOOK_SECRET variable wins, then the provider-wide default
// (GITHUB_WEBHOOK_SECRET, GITLAB_WEBHOOK_TOKEN, or WEBHOOK_AUTH).
func webhookSecret(provider, repo string) string {
	name := strings.ToUpper(repo)
	name = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, name)
	if v := os.Getenv(name + "_WEBHOOK_SECRET"); v != "" {
		return v
	}
	switch provider {
	case "github":
		return os.Getenv("GITHUB_WEBHOOK_SECRET")
	case "gitlab":
		return os.Getenv("GITLAB_WEBHOOK_TOKEN")
	default:
		return os.Getenv("WEBHOOK_AUTH")
	}
}

// handleGithubWebhook verifies the X-Hub-Signature-256 HMAC and triggers a
// sync of the named repository.
func (s *Server) handleGithubWebhook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	secret := webhookSecret("github", name)
	if secret == "" {
		writeError(w, errors.Newf(errors.KindAuth, "no webhook secret configured for %q", name))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, errors.Wrap(err, errors.KindValidation, "read webhook body"))
		return
	}

	sig := strings.TrimPrefix(r.Header.Get("X-Hub-Signature-256"), "sha256=")
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	if subtle.ConstantTimeCompare([]byte(sig), []byte(want)) != 1 {
		writeError(w, errors.New(errors.KindAuth, "webhook signature mismatch"))
		return
	}

	s.triggerSync(w, r, name, "github")
}

// handleGitlabWebhook verifies the X-Gitlab-Token header.
func (s *Server) handleGitlabWebhook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	secret := webhookSecret("gitlab", name)
	if secret == "" {
		writeError(w, errors.Newf(errors.KindAuth, "no webhook secret configured for %q", name))
		return
	}

	token := r.Header.Get("X-Gitlab-Token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
		writeError(w, errors.New(errors.KindAuth, "webhook token mismatch"))
		return
	}

	s.triggerSync(w, r, name, "gitlab")
}

// handleGenericWebhook verifies a bearer token.
func (s *Server) handleGenericWebhook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	secret := webhookSecret("generic", name)
	if secret == "" {
		writeError(w, errors.Newf(errors.KindAuth, "no webhook secret configured for %q", name))
		return
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
		writeError(w, errors.New(errors.KindAuth, "webhook token mismatch"))
		return
	}

	s.triggerSync(w, r, name, "generic")
}

// triggerSync schedules an asynchronous sync of the named repository and
// responds immediately; the credential has already been verified.
func (s *Server) triggerSync(w http.ResponseWriter, r *http.Request, name, provider string) {
	if _, err := s.svc.Config().Repository(name); err != nil {
		writeError(w, err)
		return
	}

	s.logger.Info("webhook received",
		slog.String("repository", name),
		slog.String("provider", provider))

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), webhookSyncTimeout)
		defer cancel()
		if err := s.svc.SyncRepository(ctx, name); err != nil {
			s.logger.Warn("webhook sync failed",
				slog.String("repository", name),
				slog.String("provider", provider),
				slog.String("error", err.Error()))
		}
	}()

	writeJSON(w, http.StatusOK, map[string]string{"repository": name, "status": "scheduled"})
}
