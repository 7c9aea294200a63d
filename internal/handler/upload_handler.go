package handler

import (
	"net/http"
	"strconv"

	"ragpipe-go/internal/model"
	"ragpipe-go/internal/pipeline"
	"ragpipe-go/internal/service"
	"ragpipe-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UploadHandler 负责处理所有与资料导入相关的 API 请求。
type UploadHandler struct {
	ingestService service.IngestService
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(ingestService service.IngestService) *UploadHandler {
	return &UploadHandler{ingestService: ingestService}
}

// ingestOptions 是各个导入接口共享的可选字段。
type ingestOptions struct {
	Model        string `json:"model"`
	Prompt       string `json:"prompt"`
	DriveLink    string `json:"drive_link"`
	Namespace    string `json:"namespace"`
	CollectionID *uint  `json:"collection_id"`
}

func (o ingestOptions) toRequest(name string, restructure bool) pipeline.IngestRequest {
	return pipeline.IngestRequest{
		Name:         name,
		Model:        o.Model,
		Prompt:       o.Prompt,
		DriveLink:    o.DriveLink,
		Namespace:    o.Namespace,
		CollectionID: o.CollectionID,
		Restructure:  restructure,
	}
}

// UploadTextRequest 定义了文本导入 API 的请求体结构。
type UploadTextRequest struct {
	Name        string `json:"name" binding:"required"`
	Text        string `json:"text" binding:"required"`
	Restructure bool   `json:"restructure"`
	ingestOptions
}

// UploadText 处理一段长文本的同步导入。
func (h *UploadHandler) UploadText(c *gin.Context) {
	var req UploadTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	result, err := h.ingestService.IngestText(c.Request.Context(), req.Text, req.toRequest(req.Name, req.Restructure))
	if err != nil {
		log.Error("UploadText: 导入失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// UploadPDF 处理单个文件的同步导入。文件先经 Tika 提取文本，
// 再经大模型抽取重组后写入向量索引。
func (h *UploadHandler) UploadPDF(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少文件"})
		return
	}
	name := c.PostForm("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 name 字段"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法读取上传的文件"})
		return
	}
	defer file.Close()

	req := h.formRequest(c, name)
	// 文件导入默认走抽取重组
	req.Restructure = c.DefaultPostForm("restructure", "true") != "false"

	result, err := h.ingestService.IngestFile(c.Request.Context(), file, fileHeader.Filename, req)
	if err != nil {
		log.Error("UploadPDF: 导入失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// UploadQnARequest 定义了问答对导入 API 的请求体结构。
type UploadQnARequest struct {
	Name  string          `json:"name" binding:"required"`
	Pairs []model.QnAPair `json:"pairs" binding:"required"`
	ingestOptions
}

// UploadQnA 处理问答对列表的同步导入。
func (h *UploadHandler) UploadQnA(c *gin.Context) {
	var req UploadQnARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	result, err := h.ingestService.IngestQnA(c.Request.Context(), req.Pairs, req.toRequest(req.Name, false))
	if err != nil {
		log.Error("UploadQnA: 导入失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// UploadRawRequest 定义了原始记录导入 API 的请求体结构。
type UploadRawRequest struct {
	Name    string            `json:"name" binding:"required"`
	Records []model.RawRecord `json:"records" binding:"required"`
	ingestOptions
}

// UploadRaw 处理已成型记录的同步导入, 跳过分块与抽取。
func (h *UploadHandler) UploadRaw(c *gin.Context) {
	var req UploadRawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	result, err := h.ingestService.IngestRaw(c.Request.Context(), req.Records, req.toRequest(req.Name, false))
	if err != nil {
		log.Error("UploadRaw: 导入失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// UploadAsync 接收一个文件, 存入对象存储并投递异步导入任务。
// 接口立即返回, 实际导入由 Kafka 消费者完成。
func (h *UploadHandler) UploadAsync(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少文件"})
		return
	}
	name := c.PostForm("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 name 字段"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法读取上传的文件"})
		return
	}
	defer file.Close()

	req := h.formRequest(c, name)
	req.Restructure = c.DefaultPostForm("restructure", "true") != "false"

	contentType := fileHeader.Header.Get("Content-Type")
	objectName, err := h.ingestService.EnqueueFile(c.Request.Context(), file, fileHeader.Size, fileHeader.Filename, contentType, req)
	if err != nil {
		log.Error("UploadAsync: 投递失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message":    "导入任务已投递",
		"objectName": objectName,
	})
}

// formRequest 从 multipart 表单中解出共享的导入选项。
func (h *UploadHandler) formRequest(c *gin.Context, name string) pipeline.IngestRequest {
	req := pipeline.IngestRequest{
		Name:      name,
		Model:     c.PostForm("model"),
		Prompt:    c.PostForm("prompt"),
		DriveLink: c.PostForm("drive_link"),
		Namespace: c.PostForm("namespace"),
	}
	if idStr := c.PostForm("collection_id"); idStr != "" {
		if id, err := strconv.ParseUint(idStr, 10, 32); err == nil {
			cid := uint(id)
			req.CollectionID = &cid
		}
	}
	return req
}
