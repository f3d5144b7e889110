package http

import (
	"net/http"
	"strings"

	"spendlog/internal/core"
	"spendlog/internal/log"
	"spendlog/internal/services"
)

type createUserRequest struct {
	Name       string      `json:"name"`
	Email      string      `json:"email"`
	Allowance  jsonDecimal `json:"allowance"`
	ExternalID string      `json:"external_id"`
}

// syncUserRequest also accepts the field names sent by the Clerk web client
// (clerk_id, firstName, lastName).
type syncUserRequest struct {
	ExternalID string `json:"external_id"`
	ClerkID    string `json:"clerk_id"`
	Name       string `json:"name"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	ClerkFirst string `json:"firstName"`
	ClerkLast  string `json:"lastName"`
	Email      string `json:"email"`
}

func (req syncUserRequest) identity() services.IdentitySync {
	return services.IdentitySync{
		ExternalID: sanitizeInput(firstNonEmpty(req.ExternalID, req.ClerkID)),
		Name:       sanitizeInput(req.Name),
		FirstName:  sanitizeInput(firstNonEmpty(req.FirstName, req.ClerkFirst)),
		LastName:   sanitizeInput(firstNonEmpty(req.LastName, req.ClerkLast)),
		Email:      sanitizeInput(req.Email),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

type allowanceRequest struct {
	Allowance jsonDecimal `json:"allowance"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, r, err, detailUserNotFound)
		return
	}
	allowance, err := req.Allowance.allowance()
	if err != nil {
		writeError(w, r, err, detailUserNotFound)
		return
	}

	u, created, err := s.users.CreateUser(r.Context(), services.NewUser{
		Name:       sanitizeInput(req.Name),
		Email:      sanitizeInput(req.Email),
		Allowance:  allowance,
		ExternalID: sanitizeInput(req.ExternalID),
	})
	if err != nil {
		writeError(w, r, err, detailUserNotFound)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	NewJSONResponse().Status(status).JSON(newUserResponse(u)).Write(w)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.ListUsers(r.Context())
	if err != nil {
		writeError(w, r, err, detailUserNotFound)
		return
	}
	NewJSONResponse().JSON(newUserListResponse(users)).Write(w)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err, detailUserNotFound)
		return
	}
	u, expenses, err := s.users.GetUserWithExpenses(r.Context(), id)
	if err != nil {
		writeError(w, r, err, detailUserNotFound)
		return
	}
	NewJSONResponse().JSON(newUserDetailResponse(u, expenses)).Write(w)
}

func (s *Server) handleGetUserByExternalID(w http.ResponseWriter, r *http.Request) {
	externalID := strings.TrimSpace(r.PathValue("external_id"))
	u, err := s.users.GetUserByExternalID(r.Context(), externalID)
	if err != nil {
		writeError(w, r, err, detailUserNotFound)
		return
	}
	NewJSONResponse().JSON(newUserResponse(u)).Write(w)
}

// handleSyncUser upserts the caller's identity-provider profile. Missing
// identity fields are malformed requests, not validation failures.
func (s *Server) handleSyncUser(w http.ResponseWriter, r *http.Request) {
	var req syncUserRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, r, err, detailUserNotFound)
		return
	}

	u, err := s.users.SyncIdentity(r.Context(), req.identity())
	if err != nil {
		if core.IsValidation(err) {
			err = badRequest(err)
		}
		writeError(w, r, err, detailUserNotFound)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Identity synced",
		log.FieldUserID, u.ID,
		log.FieldOperation, log.OpSync,
	)
	NewJSONResponse().JSON(newUserResponse(u)).Write(w)
}

func (s *Server) handleUpdateAllowance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err, detailUserNotFound)
		return
	}
	var req allowanceRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, r, err, detailUserNotFound)
		return
	}
	allowance, err := req.Allowance.allowance()
	if err != nil {
		writeError(w, r, err, detailUserNotFound)
		return
	}

	u, err := s.users.UpdateAllowance(r.Context(), id, allowance)
	if err != nil {
		writeError(w, r, err, detailUserNotFound)
		return
	}
	NewJSONResponse().JSON(newUserResponse(u)).Write(w)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err, detailUserNotFound)
		return
	}
	if err := s.users.DeleteUser(r.Context(), id); err != nil {
		writeError(w, r, err, detailUserNotFound)
		return
	}
	NoContent().Write(w)
}
