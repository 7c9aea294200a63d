package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ragpipe-go/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChatService 只为 handler 测试实现 service.ChatService。
type fakeChatService struct {
	answer    *model.ChatAnswer
	sources   []model.SourceDocument
	direct    *model.DirectChatResponse
	err       error
	lastQuery string
}

func (f *fakeChatService) Answer(ctx context.Context, query, namespace string) (*model.ChatAnswer, []model.SourceDocument, error) {
	f.lastQuery = query
	return f.answer, f.sources, f.err
}

func (f *fakeChatService) Direct(ctx context.Context, query, namespace string) (*model.DirectChatResponse, error) {
	f.lastQuery = query
	return f.direct, f.err
}

func (f *fakeChatService) StreamResponse(ctx context.Context, query, clientID string, ws *websocket.Conn, shouldStop func() bool) error {
	return fmt.Errorf("not implemented")
}

func setupChatRouter(svc *fakeChatService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewChatHandler(svc)
	r.POST("/api/v1/chat", h.Chat)
	r.POST("/api/v1/chat/direct", h.ChatDirect)
	return r
}

func TestChatReturnsStructuredAnswer(t *testing.T) {
	svc := &fakeChatService{
		answer:  &model.ChatAnswer{Answer: "回答", FollowUpQuestion: []string{"追问"}},
		sources: []model.SourceDocument{{Text: "来源", Score: 0.8}},
	}
	r := setupChatRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"query":"问题"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "回答", body["answer"])
	assert.Equal(t, "问题", svc.lastQuery)
	assert.Len(t, body["follow_up_question"], 1)
	assert.Len(t, body["source_documents"], 1)
}

func TestChatUnparseableModelOutputIs500(t *testing.T) {
	svc := &fakeChatService{err: fmt.Errorf("模型输出无法解析为结构化回答")}
	r := setupChatRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"query":"问题"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestChatMissingQueryIs400(t *testing.T) {
	r := setupChatRouter(&fakeChatService{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatDirectReportsContextMissing(t *testing.T) {
	svc := &fakeChatService{
		direct: &model.DirectChatResponse{
			Message:         "（本轮无检索结果）",
			Query:           "没命中的问题",
			SourceDocuments: []model.SourceDocument{},
			ContextMissing:  true,
		},
	}
	r := setupChatRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/direct", strings.NewReader(`{"query":"没命中的问题"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp model.DirectChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.ContextMissing)
	assert.Empty(t, resp.SourceDocuments)
}
