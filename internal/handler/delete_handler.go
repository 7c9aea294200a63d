package handler

import (
	"net/http"

	"ragpipe-go/internal/service"
	"ragpipe-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// DeleteHandler 负责处理向量删除相关的 API 请求。
type DeleteHandler struct {
	ingestService service.IngestService
}

// NewDeleteHandler 创建一个新的 DeleteHandler 实例。
func NewDeleteHandler(ingestService service.IngestService) *DeleteHandler {
	return &DeleteHandler{ingestService: ingestService}
}

// DeleteRangeRequest 定义了按区间删除 API 的请求体结构。
type DeleteRangeRequest struct {
	Name  string `json:"name" binding:"required"`
	Count int    `json:"count" binding:"required"`
}

// DeleteRange 按 "{name}_0..{name}_{count-1}" 的区间删除向量。
// 这是没有登记记录可查时的兼容入口。
func (h *DeleteHandler) DeleteRange(c *gin.Context) {
	var req DeleteRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	deleted, err := h.ingestService.DeleteRange(c.Request.Context(), req.Name, req.Count)
	if err != nil {
		log.Error("DeleteRange: 删除失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":    req.Name,
		"deleted": deleted,
	})
}

// DeleteDocumentRequest 定义了按登记记录删除 API 的请求体结构。
type DeleteDocumentRequest struct {
	RecordID uint `json:"record_id" binding:"required"`
}

// DeleteDocument 按登记记录删除一次导入的全部向量及记录本身。
func (h *DeleteHandler) DeleteDocument(c *gin.Context) {
	var req DeleteDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	if err := h.ingestService.DeleteDocument(c.Request.Context(), req.RecordID); err != nil {
		log.Error("DeleteDocument: 删除失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"recordId": req.RecordID, "message": "删除成功"})
}
