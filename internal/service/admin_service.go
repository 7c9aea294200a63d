package service

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"ragpipe-go/internal/config"
	"ragpipe-go/internal/model"
	"ragpipe-go/internal/repository"
	"ragpipe-go/pkg/log"
	"ragpipe-go/pkg/token"
)

// ErrInvalidCredentials 表示用户名或密码错误。
var ErrInvalidCredentials = fmt.Errorf("用户名或密码错误")

// AdminService 定义了管理端操作的接口: 登录、知识库集合与登记记录管理。
type AdminService interface {
	Login(username, password string) (string, error)
	CreateCollection(name string, parentID *uint) (*model.KBCollection, error)
	ListCollections() ([]model.KBCollection, error)
	DeleteCollection(id uint) error
	ListDocuments(page, size int) ([]model.IngestionRecord, int64, error)
	ListCollectionDocuments(collectionID uint) ([]model.IngestionRecord, error)
}

type adminService struct {
	collectionRepo repository.CollectionRepository
	ingestionRepo  repository.IngestionRepository
	jwtManager     *token.JWTManager
	adminCfg       config.AdminConfig
}

// NewAdminService 创建一个新的 AdminService 实例。
func NewAdminService(
	collectionRepo repository.CollectionRepository,
	ingestionRepo repository.IngestionRepository,
	jwtManager *token.JWTManager,
	adminCfg config.AdminConfig,
) AdminService {
	return &adminService{
		collectionRepo: collectionRepo,
		ingestionRepo:  ingestionRepo,
		jwtManager:     jwtManager,
		adminCfg:       adminCfg,
	}
}

// Login 校验管理员账号并签发 access token。
// 密码只与配置中的 bcrypt 哈希比对, 服务不保存明文。
func (s *adminService) Login(username, password string) (string, error) {
	if username != s.adminCfg.Username {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.adminCfg.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	accessToken, err := s.jwtManager.GenerateToken(username, "ADMIN")
	if err != nil {
		log.Errorf("[AdminService] 签发 token 失败: %v", err)
		return "", fmt.Errorf("签发 token 失败: %w", err)
	}
	return accessToken, nil
}

// CreateCollection 创建一个知识库集合。parentID 非空时校验父集合存在。
func (s *adminService) CreateCollection(name string, parentID *uint) (*model.KBCollection, error) {
	if name == "" {
		return nil, fmt.Errorf("集合名称不能为空")
	}
	if parentID != nil {
		if _, err := s.collectionRepo.FindByID(*parentID); err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, fmt.Errorf("父集合 %d 不存在", *parentID)
			}
			return nil, fmt.Errorf("查询父集合失败: %w", err)
		}
	}

	collection := &model.KBCollection{Name: name, ParentID: parentID}
	if err := s.collectionRepo.Create(collection); err != nil {
		return nil, fmt.Errorf("创建集合失败: %w", err)
	}
	return collection, nil
}

// ListCollections 返回全部集合。
func (s *adminService) ListCollections() ([]model.KBCollection, error) {
	return s.collectionRepo.FindAll()
}

// DeleteCollection 删除一个集合。集合下仍有登记记录或子集合时拒绝删除。
func (s *adminService) DeleteCollection(id uint) error {
	if _, err := s.collectionRepo.FindByID(id); err != nil {
		if err == gorm.ErrRecordNotFound {
			return fmt.Errorf("集合 %d 不存在", id)
		}
		return fmt.Errorf("查询集合失败: %w", err)
	}

	count, err := s.ingestionRepo.CountByCollection(id)
	if err != nil {
		return fmt.Errorf("统计集合下的记录失败: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("集合下仍有 %d 条登记记录, 请先删除", count)
	}

	children, err := s.collectionRepo.FindChildren(id)
	if err != nil {
		return fmt.Errorf("查询子集合失败: %w", err)
	}
	if len(children) > 0 {
		return fmt.Errorf("集合下仍有 %d 个子集合, 请先删除", len(children))
	}

	return s.collectionRepo.DeleteByID(id)
}

// ListDocuments 分页返回全部登记记录。
func (s *adminService) ListDocuments(page, size int) ([]model.IngestionRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	return s.ingestionRepo.FindWithPagination((page-1)*size, size)
}

// ListCollectionDocuments 返回指定集合下的全部登记记录。
func (s *adminService) ListCollectionDocuments(collectionID uint) ([]model.IngestionRecord, error) {
	return s.ingestionRepo.FindByCollection(collectionID)
}
