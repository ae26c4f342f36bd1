package auth

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	authmw "github.com/mind-engage/valuejourney/internal/auth/middleware"
	"github.com/mind-engage/valuejourney/internal/config"
	"github.com/mind-engage/valuejourney/internal/rbac"
)

const (
	guestCookie = "me_guest_id"
	guestPrefix = "guest|"
	guestTTL    = 30 * 24 * time.Hour
)

// GuestLoginHandler issues a player token. A browser that already holds a
// guest cookie keeps its identity, and with it its saved journey.
func GuestLoginHandler(a *authmw.AuthService, cfg config.Config) http.HandlerFunc {
	type out struct {
		AccessToken string `json:"access_token"`
		Subject     string `json:"subject"`
		Username    string `json:"username"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !cfg.EnableGuestAuth {
			http.Error(w, "guest auth disabled", http.StatusForbidden)
			return
		}

		sub := ""
		if c, err := r.Cookie(guestCookie); err == nil && validGuest(c.Value) {
			sub = c.Value
		} else {
			sub = guestPrefix + uuid.NewString()
		}

		tok, err := a.IssueJWT(sub, rbac.RolePlayer)
		if err != nil {
			http.Error(w, "issue token", http.StatusInternalServerError)
			return
		}
		// Persist (or refresh) guest identity for this browser
		http.SetCookie(w, &http.Cookie{
			Name:     guestCookie,
			Value:    sub,
			Path:     "/",
			HttpOnly: true,
			Secure:   cfg.Mode == config.ModeOnline,
			SameSite: http.SameSiteLaxMode,
			Expires:  time.Now().Add(guestTTL),
		})
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out{AccessToken: tok, Subject: sub, Username: guestName(sub)})
	}
}

func validGuest(v string) bool {
	id, ok := strings.CutPrefix(v, guestPrefix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func guestName(sub string) string {
	id := strings.TrimPrefix(sub, guestPrefix)
	if len(id) > 6 {
		id = id[len(id)-6:]
	}
	return "guest-" + id
}
