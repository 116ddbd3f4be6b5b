package devserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type registerInput struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"full_name" validate:"required,max=255"`
	Company  string `json:"company" validate:"max=255"`
}

type loginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshInput struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type userPayload struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Company  string `json:"company,omitempty"`
	Role     string `json:"role"`
}

func (a *account) payload() userPayload {
	return userPayload{
		ID:       a.ID.String(),
		Email:    a.Email,
		FullName: a.FullName,
		Company:  a.Company,
		Role:     a.Role,
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var input registerInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		Detail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(input); err != nil {
		Detail(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	if _, exists := s.accounts[input.Email]; exists {
		s.mu.Unlock()
		Detail(w, http.StatusBadRequest, "email already registered")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		s.mu.Unlock()
		Detail(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	acct := &account{
		ID:           uuid.New(),
		Email:        input.Email,
		PasswordHash: hash,
		FullName:     input.FullName,
		Company:      input.Company,
		Role:         "user",
	}
	s.accounts[input.Email] = acct
	s.mu.Unlock()

	s.log.Info().Str("email", acct.Email).Msg("account registered")
	s.respondTokens(w, acct)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var input loginInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		Detail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(input); err != nil {
		Detail(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	acct, ok := s.accounts[input.Email]
	s.mu.Unlock()
	if !ok {
		Detail(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(input.Password)); err != nil {
		Detail(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	s.respondTokens(w, acct)
}

func (s *Server) respondTokens(w http.ResponseWriter, acct *account) {
	accessToken, refreshToken, err := s.jwtManager.GenerateTokenPair(acct.ID, acct.Email, acct.FullName, acct.Role)
	if err != nil {
		Detail(w, http.StatusInternalServerError, "failed to generate tokens")
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"user":          acct.payload(),
	})
}

// handleRefresh issues a fresh access token. The refresh token is not
// rotated, matching the client contract.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var input refreshInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		Detail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(input); err != nil {
		Detail(w, http.StatusBadRequest, err.Error())
		return
	}

	userID, err := s.jwtManager.ValidateRefreshToken(input.RefreshToken)
	if err != nil {
		Detail(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	acct := s.accountByID(userID)
	if acct == nil {
		Detail(w, http.StatusUnauthorized, "user not found")
		return
	}

	accessToken, err := s.jwtManager.GenerateAccessToken(acct.ID, acct.Email, acct.FullName, acct.Role)
	if err != nil {
		Detail(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"access_token": accessToken,
		"user":         acct.payload(),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		Detail(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	acct := s.accountByID(claims.UserID)
	if acct == nil {
		Detail(w, http.StatusUnauthorized, "user not found")
		return
	}
	JSON(w, http.StatusOK, acct.payload())
}

type protectedChatInput struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

type anonymousChatInput struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
}

func (s *Server) handleChatProtected(w http.ResponseWriter, r *http.Request) {
	var input protectedChatInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		Detail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if input.Message == "" {
		Detail(w, http.StatusBadRequest, "message is required")
		return
	}
	s.respondChat(w, input.Message)
}

func (s *Server) handleChatAnonymous(w http.ResponseWriter, r *http.Request) {
	var input anonymousChatInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		Detail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(input.Messages) == 0 {
		Detail(w, http.StatusBadRequest, "messages are required")
		return
	}
	s.respondChat(w, input.Messages[len(input.Messages)-1].Content)
}

// respondChat returns a deterministic canned reply with two sources so the
// client's source plumbing is exercised end to end.
func (s *Server) respondChat(w http.ResponseWriter, question string) {
	JSON(w, http.StatusOK, map[string]any{
		"response":  fmt.Sprintf("Réponse de développement à : %s", question),
		"timestamp": time.Now().Format(time.RFC3339),
		"sources": []map[string]any{
			{
				"text":     "Document de démonstration A",
				"metadata": map[string]any{"page": 1},
				"score":    0.92,
			},
			{
				"text":     "Document de démonstration B",
				"metadata": map[string]any{"page": 7},
				"score":    0.61,
			},
		},
	})
}

func (s *Server) accountByID(id uuid.UUID) *account {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range s.accounts {
		if acct.ID == id {
			return acct
		}
	}
	return nil
}
