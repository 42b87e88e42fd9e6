package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/terminal/internal/auth"
	"github.com/kiwari-pos/terminal/internal/database"
	"github.com/kiwari-pos/terminal/internal/handler"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

// --- Mock store ---

type mockAuthStore struct {
	userByEmail map[string]database.User
	userByID    map[uuid.UUID]database.User
}

func newMockAuthStore() *mockAuthStore {
	return &mockAuthStore{
		userByEmail: make(map[string]database.User),
		userByID:    make(map[uuid.UUID]database.User),
	}
}

func (m *mockAuthStore) addUser(u database.User) {
	m.userByEmail[u.Email] = u
	m.userByID[u.ID] = u
}

func (m *mockAuthStore) GetUserByEmail(_ context.Context, email string) (database.User, error) {
	u, ok := m.userByEmail[email]
	if !ok {
		return database.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (m *mockAuthStore) GetUserByID(_ context.Context, id uuid.UUID) (database.User, error) {
	u, ok := m.userByID[id]
	if !ok {
		return database.User{}, pgx.ErrNoRows
	}
	return u, nil
}

// --- Helpers ---

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(h)
}

func setupAuthRouter(store handler.AuthStore) *chi.Mux {
	h := handler.NewAuthHandler(store, testSecret)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func postJSON(router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

// decodeData unwraps the {"data": ...} envelope into out.
func decodeData(t *testing.T, rr *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	env := struct {
		Data interface{} `json:"data"`
	}{Data: out}
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v (body=%s)", err, rr.Body.String())
	}
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var e struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&e); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return e.Error
}

type loginBody struct {
	ID           uuid.UUID  `json:"id"`
	FullName     string     `json:"full_name"`
	Role         string     `json:"role"`
	BranchID     *uuid.UUID `json:"branch_id"`
	Token        string     `json:"token"`
	RefreshToken string     `json:"refresh_token"`
}

// --- Tests ---

func TestLogin_Success(t *testing.T) {
	store := newMockAuthStore()
	branchID := uuid.New()
	user := database.User{
		ID:             uuid.New(),
		BranchID:       pgtype.UUID{Bytes: branchID, Valid: true},
		Email:          "cashier@test.com",
		HashedPassword: hashPassword(t, "password123"),
		FullName:       "Juan Dela Cruz",
		Role:           "CASHIER",
		IsActive:       true,
	}
	store.addUser(user)

	rr := postJSON(setupAuthRouter(store), "/auth/login", map[string]string{
		"email":    "cashier@test.com",
		"password": "password123",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d (body=%s)", rr.Code, http.StatusOK, rr.Body.String())
	}

	var body loginBody
	decodeData(t, rr, &body)
	if body.ID != user.ID || body.FullName != user.FullName || body.Role != "CASHIER" {
		t.Errorf("unexpected user in response: %+v", body)
	}
	if body.BranchID == nil || *body.BranchID != branchID {
		t.Errorf("branch_id: got %v, want %v", body.BranchID, branchID)
	}

	claims, err := auth.ValidateToken(testSecret, body.Token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.UserID != user.ID || claims.BranchID != branchID {
		t.Errorf("claims: got user=%v branch=%v", claims.UserID, claims.BranchID)
	}
	if body.RefreshToken == "" {
		t.Error("expected a refresh token")
	}
}

func TestLogin_OwnerWithoutBranch(t *testing.T) {
	store := newMockAuthStore()
	store.addUser(database.User{
		ID:             uuid.New(),
		Email:          "owner@test.com",
		HashedPassword: hashPassword(t, "password123"),
		FullName:       "Owner",
		Role:           "OWNER",
		IsActive:       true,
	})

	rr := postJSON(setupAuthRouter(store), "/auth/login", map[string]string{
		"email":    "owner@test.com",
		"password": "password123",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	var body loginBody
	decodeData(t, rr, &body)
	if body.BranchID != nil {
		t.Errorf("branch_id should be omitted, got %v", body.BranchID)
	}
	claims, err := auth.ValidateToken(testSecret, body.Token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.BranchID != uuid.Nil {
		t.Errorf("token branch: got %v, want nil uuid", claims.BranchID)
	}
}

func TestLogin_Failures(t *testing.T) {
	store := newMockAuthStore()
	store.addUser(database.User{
		ID:             uuid.New(),
		Email:          "cashier@test.com",
		HashedPassword: hashPassword(t, "password123"),
		Role:           "CASHIER",
		IsActive:       true,
	})
	router := setupAuthRouter(store)

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"wrong password", map[string]string{"email": "cashier@test.com", "password": "nope"}, http.StatusUnauthorized},
		{"unknown email", map[string]string{"email": "ghost@test.com", "password": "password123"}, http.StatusUnauthorized},
		{"missing password", map[string]string{"email": "cashier@test.com"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postJSON(router, "/auth/login", tt.body)
			if rr.Code != tt.want {
				t.Errorf("status: got %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	store := newMockAuthStore()
	user := database.User{ID: uuid.New(), Email: "m@test.com", Role: "MANAGER", IsActive: true}
	store.addUser(user)
	router := setupAuthRouter(store)

	refresh, err := auth.GenerateRefreshToken(testSecret, user.ID)
	if err != nil {
		t.Fatalf("generate refresh token: %v", err)
	}
	rr := postJSON(router, "/auth/refresh", map[string]string{"refresh_token": refresh})
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d (body=%s)", rr.Code, http.StatusOK, rr.Body.String())
	}
	var body loginBody
	decodeData(t, rr, &body)
	if body.ID != user.ID || body.Token == "" {
		t.Errorf("unexpected refresh response: %+v", body)
	}

	rr = postJSON(router, "/auth/refresh", map[string]string{"refresh_token": "garbage"})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}

	stranger, _ := auth.GenerateRefreshToken(testSecret, uuid.New())
	rr = postJSON(router, "/auth/refresh", map[string]string{"refresh_token": stranger})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("unknown user: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	if msg := decodeError(t, rr); msg != "user not found" {
		t.Errorf("error: got %q", msg)
	}
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	store := newMockAuthStore()
	user := database.User{ID: uuid.New(), Email: "c@test.com", Role: "CASHIER", IsActive: true}
	store.addUser(user)
	router := setupAuthRouter(store)

	access, err := auth.GenerateToken(testSecret, user.ID, uuid.Nil, user.Role)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	rr := postJSON(router, "/auth/refresh", map[string]string{"refresh_token": access})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}
