package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"

	"ragpipe-go/internal/service"
	"ragpipe-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责处理检索问答相关的 API 请求, 包括 WebSocket 流式聊天。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// ChatRequest 定义了问答 API 的请求体结构。
type ChatRequest struct {
	Query     string `json:"query" binding:"required"`
	Namespace string `json:"namespace"`
}

// Chat 处理结构化问答请求。模型必须输出合法的回答 JSON,
// 解析失败直接向客户端返回 500。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	answer, sources, err := h.chatService.Answer(c.Request.Context(), req.Query, req.Namespace)
	if err != nil {
		log.Error("Chat: 问答失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"answer":             answer.Answer,
		"follow_up_question": answer.FollowUpQuestion,
		"source_documents":   sources,
	})
}

// ChatDirect 处理自由文本问答请求, 响应中附带检索来源。
func (h *ChatHandler) ChatDirect(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	resp, err := h.chatService.Direct(c.Request.Context(), req.Query, req.Namespace)
	if err != nil {
		log.Error("ChatDirect: 问答失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HandleStream 处理一个传入的 WebSocket 连接。
// 路径参数 token 是客户端自定的会话标识, 用作对话历史的键。
func (h *ChatHandler) HandleStream(c *gin.Context) {
	clientID := c.Param("token")
	if clientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少会话标识"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立, 会话: %s", clientID)

	// 主循环只读, 流式回答的 goroutine 只写, 符合 websocket
	// 连接一读一写的并发约束
	var stopped atomic.Bool
	var busy atomic.Bool
	var streaming sync.WaitGroup

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}
		log.Infof("收到 WebSocket 消息: %s", string(message))

		// JSON 停止指令: {"type":"stop"}
		var ctrl map[string]interface{}
		if jsonErr := json.Unmarshal(message, &ctrl); jsonErr == nil {
			if t, ok := ctrl["type"].(string); ok && t == "stop" {
				stopped.Store(true)
				continue
			}
		}

		// 普通文本消息作为问句处理; 上一个回答还在流式输出时忽略新问句
		if !busy.CompareAndSwap(false, true) {
			log.Warnf("上一条回答仍在输出, 忽略新问句: %s", string(message))
			continue
		}
		stopped.Store(false)
		query := string(message)
		streaming.Add(1)
		go func() {
			defer streaming.Done()
			defer busy.Store(false)
			if err := h.chatService.StreamResponse(context.Background(), query, clientID, conn, stopped.Load); err != nil {
				log.Errorf("流式回答失败: %v", err)
				errPayload, _ := json.Marshal(map[string]string{"error": err.Error()})
				_ = conn.WriteMessage(websocket.TextMessage, errPayload)
			}
		}()
	}

	stopped.Store(true)
	streaming.Wait()
}
