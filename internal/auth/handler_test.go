package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/alumni-connect/backend/internal/models"
	"github.com/alumni-connect/backend/internal/testutil"
	"github.com/alumni-connect/backend/pkg/utils"
)

func newRouter(t *testing.T) (*gin.Engine, *testutil.DB, *JWTService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB()
	db.Users.DuplicateErr = ErrEmailTaken
	jwt := NewJWTService("test-secret", 1)
	h := NewHandler(db.Users, jwt, nil)
	r := gin.New()
	r.POST("/auth/login", h.Login)
	r.POST("/admin/users", h.CreateUser)
	r.GET("/admin/users", h.List)
	return r, db, jwt
}

func post(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateUserDefaultsAndValidation(t *testing.T) {
	db := testutil.NewDB()
	ctx := context.Background()

	u, err := CreateUser(ctx, db.Users, "door@example.com", "volunteer1", "Door Desk", "")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.Role != models.RoleVolunteer {
		t.Errorf("role = %s, want volunteer", u.Role)
	}
	if u.Password == "volunteer1" {
		t.Error("password stored in plain text")
	}

	if _, err := CreateUser(ctx, db.Users, "x@example.com", "longenough", "X", "cashier"); err == nil {
		t.Error("unknown role accepted")
	}
	if _, err := CreateUser(ctx, db.Users, "x@example.com", "short", "X", "admin"); !errors.Is(err, utils.ErrPasswordTooShort) {
		t.Errorf("short password: err = %v", err)
	}
}

func TestLoginFlow(t *testing.T) {
	r, _, jwt := newRouter(t)

	if w := post(r, "/admin/users", `{"email":"admin@example.com","password":"s3cret-pass","full_name":"Admin","role":"ADMIN"}`); w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	if w := post(r, "/admin/users", `{"email":"admin@example.com","password":"another-pass","full_name":"Again"}`); w.Code != http.StatusConflict {
		t.Errorf("duplicate: %d %s", w.Code, w.Body.String())
	}
	if w := post(r, "/admin/users", `{"email":"door@example.com","password":"`+strings.Repeat("x", 80)+`","full_name":"Door"}`); w.Code != http.StatusBadRequest {
		t.Errorf("overlong password: %d %s", w.Code, w.Body.String())
	}

	w := post(r, "/auth/login", `{"email":"admin@example.com","password":"s3cret-pass"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "s3cret-pass") || strings.Contains(w.Body.String(), "$2a$") {
		t.Error("login response leaks the password or its hash")
	}
	var body struct {
		Data TokenResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	claims, err := jwt.Validate(body.Data.Token)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if claims.Role != "admin" || body.Data.User.Role != models.RoleAdmin {
		t.Errorf("role claim = %s, user = %+v", claims.Role, body.Data.User)
	}

	if w := post(r, "/auth/login", `{"email":"admin@example.com","password":"wrong-pass"}`); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: %d", w.Code)
	}
	if w := post(r, "/auth/login", `{"email":"ghost@example.com","password":"whatever"}`); w.Code != http.StatusUnauthorized {
		t.Errorf("unknown user: %d", w.Code)
	}
}
