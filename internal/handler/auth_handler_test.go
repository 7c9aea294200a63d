package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ragpipe-go/internal/model"
	"ragpipe-go/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdminService 只为 handler 测试实现 service.AdminService。
type fakeAdminService struct {
	loginToken string
	loginErr   error
}

func (f *fakeAdminService) Login(username, password string) (string, error) {
	return f.loginToken, f.loginErr
}

func (f *fakeAdminService) CreateCollection(name string, parentID *uint) (*model.KBCollection, error) {
	return &model.KBCollection{ID: 1, Name: name, ParentID: parentID}, nil
}

func (f *fakeAdminService) ListCollections() ([]model.KBCollection, error) {
	return []model.KBCollection{}, nil
}

func (f *fakeAdminService) DeleteCollection(id uint) error { return nil }

func (f *fakeAdminService) ListDocuments(page, size int) ([]model.IngestionRecord, int64, error) {
	return []model.IngestionRecord{}, 0, nil
}

func (f *fakeAdminService) ListCollectionDocuments(collectionID uint) ([]model.IngestionRecord, error) {
	return []model.IngestionRecord{}, nil
}

func setupAuthRouter(svc *fakeAdminService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/v1/auth/login", NewAuthHandler(svc).Login)
	return r
}

func TestLoginSuccess(t *testing.T) {
	r := setupAuthRouter(&fakeAdminService{loginToken: "token-123"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"username":"admin","password":"pw"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "token-123")
}

func TestLoginBadCredentials(t *testing.T) {
	r := setupAuthRouter(&fakeAdminService{loginErr: service.ErrInvalidCredentials})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"username":"admin","password":"bad"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginMissingFields(t *testing.T) {
	r := setupAuthRouter(&fakeAdminService{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"username":"admin"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
