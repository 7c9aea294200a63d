package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"ragpipe-go/internal/config"
	"ragpipe-go/internal/model"
	"ragpipe-go/internal/repository"
	"ragpipe-go/pkg/llm"
	"ragpipe-go/pkg/log"

	"github.com/gorilla/websocket"
)

// contextSeparator 分隔拼入提示词的多条检索来源。
const contextSeparator = "\n\n--- SOURCE SPLIT ---\n\n"

// ChatService 定义了检索问答操作的接口。
type ChatService interface {
	// Answer 执行检索增强问答, 要求模型输出结构化 JSON 回答。
	// 模型输出无法解析是硬错误, 由上层转化为 500。
	Answer(ctx context.Context, query, namespace string) (*model.ChatAnswer, []model.SourceDocument, error)
	// Direct 执行检索增强问答, 返回自由文本回答并附带检索来源。
	Direct(ctx context.Context, query, namespace string) (*model.DirectChatResponse, error)
	// StreamResponse 通过 WebSocket 流式返回回答, 并维护对话历史。
	StreamResponse(ctx context.Context, query, clientID string, ws *websocket.Conn, shouldStop func() bool) error
}

type chatService struct {
	retrievalService RetrievalService
	llmClient        llm.Client
	conversationRepo repository.ConversationRepository
	cfg              config.ChatConfig
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(retrievalService RetrievalService, llmClient llm.Client, conversationRepo repository.ConversationRepository, cfg config.ChatConfig) ChatService {
	return &chatService{
		retrievalService: retrievalService,
		llmClient:        llmClient,
		conversationRepo: conversationRepo,
		cfg:              cfg,
	}
}

const answerPromptTemplate = `%s

Use the following sources to answer the user's question. If the sources do not contain the answer, say so honestly instead of inventing one.

%s

Return ONLY a valid JSON object of this exact shape, with no surrounding text:

{
  "answer": "Your answer to the question",
  "follow_up_question": ["A related question the user might ask next", "..."]
}

Question: %s`

// Answer 检索上下文并要求模型以结构化 JSON 回答。
func (s *chatService) Answer(ctx context.Context, query, namespace string) (*model.ChatAnswer, []model.SourceDocument, error) {
	sources, err := s.retrievalService.Retrieve(ctx, query, s.topK(), namespace)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to retrieve context: %w", err)
	}

	prompt := fmt.Sprintf(answerPromptTemplate, s.rules(), s.buildContextText(sources), query)
	content, err := s.llmClient.Complete(ctx, []llm.Message{{Role: "user", Content: prompt}}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("llm completion failed: %w", err)
	}

	// 这条路径的消费方依赖结构化字段, 解析失败不做降级
	var answer model.ChatAnswer
	if err := json.Unmarshal([]byte(stripJSONFences(content)), &answer); err != nil {
		log.Errorf("[ChatService] 模型输出不是合法的回答 JSON: %v, content: %s", err, content)
		return nil, nil, fmt.Errorf("模型输出无法解析为结构化回答: %w", err)
	}
	return &answer, sources, nil
}

const directPromptTemplate = `%s

Use the following sources to answer the user's question.

%s

Question: %s`

// Direct 检索上下文并返回自由文本回答。零命中时不调用模型，
// 直接返回配置的无结果文案并标记 context_missing。
func (s *chatService) Direct(ctx context.Context, query, namespace string) (*model.DirectChatResponse, error) {
	sources, err := s.retrievalService.Retrieve(ctx, query, s.topK(), namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve context: %w", err)
	}

	if len(sources) == 0 {
		return &model.DirectChatResponse{
			Message:         s.noResultText(),
			Query:           query,
			SourceDocuments: []model.SourceDocument{},
			ContextMissing:  true,
		}, nil
	}

	prompt := fmt.Sprintf(directPromptTemplate, s.rules(), s.buildContextText(sources), query)
	content, err := s.llmClient.Complete(ctx, []llm.Message{{Role: "user", Content: prompt}}, nil)
	if err != nil {
		return nil, fmt.Errorf("llm completion failed: %w", err)
	}

	return &model.DirectChatResponse{
		Message:         content,
		Query:           query,
		SourceDocuments: sources,
		ContextMissing:  false,
	}, nil
}

// StreamResponse 协调 RAG 流程并流式传输 LLM 响应。
func (s *chatService) StreamResponse(ctx context.Context, query, clientID string, ws *websocket.Conn, shouldStop func() bool) error {
	// 1. 检索上下文
	sources, err := s.retrievalService.Retrieve(ctx, query, s.topK(), "")
	if err != nil {
		return fmt.Errorf("failed to retrieve context: %w", err)
	}

	// 2. 构建 system 消息与历史
	systemMsg := s.buildSystemMessage(s.buildContextText(sources))
	history, err := s.loadHistory(ctx, clientID)
	if err != nil {
		log.Errorf("Failed to load conversation history: %v", err)
		history = []model.ChatMessage{}
	}
	messages := s.composeMessages(systemMsg, history, query)

	// 拦截 websocket writer 以捕获完整答案，并包装为 JSON 分块
	answerBuilder := &strings.Builder{}
	interceptor := &wsWriterInterceptor{conn: ws, writer: answerBuilder, shouldStop: shouldStop}

	// 3. 调用 LLM 客户端以流式传输响应
	var llmMsgs []llm.Message
	for _, m := range messages {
		llmMsgs = append(llmMsgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	if err := s.llmClient.StreamChatMessages(ctx, llmMsgs, nil, interceptor); err != nil {
		return err
	}

	// 4. 发送完成通知，并将对话保存到 Redis
	sendCompletion(ws)
	fullAnswer := answerBuilder.String()
	if len(fullAnswer) > 0 {
		// 使用后台上下文，因为即使原始请求被取消，我们也希望保存成功生成的答案
		if err := s.addMessageToConversation(context.Background(), clientID, query, fullAnswer); err != nil {
			// 只记录错误，不返回给客户端，因为流式响应已经成功
			log.Errorf("Failed to save conversation history: %v", err)
		}
	}

	return nil
}

// buildContextText 把检索来源拼接为提示词中的上下文段落。
func (s *chatService) buildContextText(sources []model.SourceDocument) string {
	if len(sources) == 0 {
		return s.noResultText()
	}
	parts := make([]string, 0, len(sources))
	for _, src := range sources {
		parts = append(parts, src.Text)
	}
	return strings.Join(parts, contextSeparator)
}

func (s *chatService) buildSystemMessage(contextText string) string {
	var sys strings.Builder
	sys.WriteString(s.rules())
	sys.WriteString("\n\nSources:\n")
	sys.WriteString(contextText)
	return sys.String()
}

func (s *chatService) loadHistory(ctx context.Context, clientID string) ([]model.ChatMessage, error) {
	convID, err := s.conversationRepo.GetOrCreateConversationID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return s.conversationRepo.GetConversationHistory(ctx, convID)
}

func (s *chatService) composeMessages(systemMsg string, history []model.ChatMessage, userInput string) []model.ChatMessage {
	msgs := make([]model.ChatMessage, 0, len(history)+2)
	msgs = append(msgs, model.ChatMessage{Role: "system", Content: systemMsg})
	msgs = append(msgs, history...)
	msgs = append(msgs, model.ChatMessage{Role: "user", Content: userInput})
	return msgs
}

// addMessageToConversation 是一个用于管理 Redis 中对话历史的辅助函数。
func (s *chatService) addMessageToConversation(ctx context.Context, clientID, question, answer string) error {
	conversationID, err := s.conversationRepo.GetOrCreateConversationID(ctx, clientID)
	if err != nil {
		return fmt.Errorf("failed to get or create conversation ID: %w", err)
	}

	history, err := s.conversationRepo.GetConversationHistory(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to get conversation history: %w", err)
	}

	history = append(history, model.ChatMessage{
		Role:      "user",
		Content:   question,
		Timestamp: time.Now(),
	})
	history = append(history, model.ChatMessage{
		Role:      "assistant",
		Content:   answer,
		Timestamp: time.Now(),
	})

	return s.conversationRepo.UpdateConversationHistory(ctx, conversationID, history)
}

func (s *chatService) topK() int {
	if s.cfg.TopK > 0 {
		return s.cfg.TopK
	}
	return 5
}

func (s *chatService) rules() string {
	if s.cfg.Rules != "" {
		return s.cfg.Rules
	}
	return "You are a helpful assistant answering questions from a private knowledge base."
}

func (s *chatService) noResultText() string {
	if s.cfg.NoResultText != "" {
		return s.cfg.NoResultText
	}
	return "（本轮无检索结果）"
}

var chatFenceOpenRE = regexp.MustCompile("^```(?:json)?[ \t]*\n?")
var chatFenceCloseRE = regexp.MustCompile("\n?```$")

// stripJSONFences 去除模型输出外层的 Markdown 代码栅栏。
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	s = chatFenceOpenRE.ReplaceAllString(s, "")
	s = chatFenceCloseRE.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// wsWriterInterceptor 是对 websocket.Conn 的封装，用于捕获写入的消息。
type wsWriterInterceptor struct {
	conn       *websocket.Conn
	writer     *strings.Builder
	shouldStop func() bool
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	if w.shouldStop != nil && w.shouldStop() {
		// 停止标志生效：跳过下发
		return nil
	}
	w.writer.Write(data)
	// 将原始分块包装成 {"chunk":"..."}
	payload := map[string]string{"chunk": string(data)}
	b, _ := json.Marshal(payload)
	return w.conn.WriteMessage(messageType, b)
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(ws *websocket.Conn) {
	notif := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"message":   "响应已完成",
		"timestamp": time.Now().UnixMilli(),
		"date":      time.Now().Format("2006-01-02T15:04:05"),
	}
	b, _ := json.Marshal(notif)
	_ = ws.WriteMessage(websocket.TextMessage, b)
}
