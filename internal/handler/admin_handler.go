package handler

import (
	"net/http"
	"strconv"

	"ragpipe-go/internal/service"
	"ragpipe-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AdminHandler 负责处理管理端的 API 请求: 集合与登记记录管理。
type AdminHandler struct {
	adminService service.AdminService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(adminService service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// CreateCollectionRequest 定义了创建集合 API 的请求体结构。
type CreateCollectionRequest struct {
	Name     string `json:"name" binding:"required"`
	ParentID *uint  `json:"parent_id"`
}

// CreateCollection 创建一个知识库集合。
func (h *AdminHandler) CreateCollection(c *gin.Context) {
	var req CreateCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	collection, err := h.adminService.CreateCollection(req.Name, req.ParentID)
	if err != nil {
		log.Error("CreateCollection: 创建失败", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, collection)
}

// ListCollections 返回全部知识库集合。
func (h *AdminHandler) ListCollections(c *gin.Context) {
	collections, err := h.adminService.ListCollections()
	if err != nil {
		log.Error("ListCollections: 查询失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"collections": collections})
}

// DeleteCollection 删除一个集合。集合下仍有记录或子集合时返回 409。
func (h *AdminHandler) DeleteCollection(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的集合 ID"})
		return
	}

	if err := h.adminService.DeleteCollection(uint(id)); err != nil {
		log.Error("DeleteCollection: 删除失败", err)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "删除成功"})
}

// ListCollectionDocuments 返回指定集合下的全部登记记录。
func (h *AdminHandler) ListCollectionDocuments(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的集合 ID"})
		return
	}

	records, err := h.adminService.ListCollectionDocuments(uint(id))
	if err != nil {
		log.Error("ListCollectionDocuments: 查询失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": records})
}

// ListDocuments 分页返回全部登记记录。
func (h *AdminHandler) ListDocuments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	records, total, err := h.adminService.ListDocuments(page, size)
	if err != nil {
		log.Error("ListDocuments: 查询失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"documents": records,
		"total":     total,
		"page":      page,
		"size":      size,
	})
}
