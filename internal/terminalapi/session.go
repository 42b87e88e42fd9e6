package terminalapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/kiwari-pos/terminal/internal/enum"
	"github.com/kiwari-pos/terminal/internal/repository"
	"github.com/kiwari-pos/terminal/internal/session"
	log "github.com/sirupsen/logrus"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type selectBranchRequest struct {
	BranchID string `json:"branch_id"`
}

type sessionResponse struct {
	User   *session.User   `json:"user"`
	Branch *session.Branch `json:"branch"`
}

// GetSession handles GET /session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Wait(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "session is still loading")
		return
	}
	var resp sessionResponse
	if u, err := h.session.User(); err == nil {
		resp.User = &u
	}
	if b, err := h.session.Branch(); err == nil {
		resp.Branch = &b
	}
	writeData(w, http.StatusOK, resp)
}

// Login handles POST /session/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	res, err := h.identity.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUnauthorized), errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusUnauthorized, "invalid email or password")
		default:
			log.WithError(err).Warn("login")
			writeError(w, http.StatusBadGateway, "could not reach the order service, try again")
		}
		return
	}

	if err := h.session.Wait(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "session is still loading")
		return
	}
	u := session.User{ID: res.ID, FullName: res.FullName, Role: res.Role}
	if err := h.session.SignIn(r.Context(), u, res.Token); err != nil {
		log.WithError(err).Error("persist sign-in")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	log.WithField("user_id", u.ID).Info("staff signed in")
	writeData(w, http.StatusOK, u)
}

// Logout handles POST /session/logout. The working order is discarded.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Clear(r.Context()); err != nil {
		log.WithError(err).Error("clear session")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	_ = h.term.NewDraft(enum.ChannelDineIn)
	w.WriteHeader(http.StatusNoContent)
}

// ListBranches handles GET /branches.
func (h *Handler) ListBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := h.catalog.Branches(r.Context())
	if err != nil {
		log.WithError(err).Warn("list branches")
		writeError(w, http.StatusBadGateway, "could not reach the order service, try again")
		return
	}
	writeData(w, http.StatusOK, branches)
}

// SelectBranch handles PUT /session/branch. The branch must be one the
// repository knows.
func (h *Handler) SelectBranch(w http.ResponseWriter, r *http.Request) {
	var req selectBranchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := uuid.Parse(req.BranchID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid branch ID")
		return
	}

	if err := h.session.Wait(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "session is still loading")
		return
	}
	if _, err := h.session.User(); err != nil {
		writeError(w, http.StatusUnauthorized, "not signed in")
		return
	}

	branches, err := h.catalog.Branches(r.Context())
	if err != nil {
		log.WithError(err).Warn("list branches")
		writeError(w, http.StatusBadGateway, "could not reach the order service, try again")
		return
	}
	var picked *repository.Branch
	for i := range branches {
		if branches[i].ID == id {
			picked = &branches[i]
			break
		}
	}
	if picked == nil {
		writeError(w, http.StatusNotFound, "branch not found")
		return
	}

	b := session.Branch{ID: picked.ID, Name: picked.Name, Location: picked.Location}
	if err := h.session.SelectBranch(r.Context(), b); err != nil {
		log.WithError(err).Error("persist branch")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if h.board != nil {
		h.board.Nudge()
	}
	writeData(w, http.StatusOK, b)
}
