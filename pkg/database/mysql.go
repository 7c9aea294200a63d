package database

import (
	"time"

	"ragpipe-go/internal/model"
	"ragpipe-go/pkg/log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// InitMySQL 初始化 MySQL 数据库连接并执行表结构迁移。
// 返回连接句柄，由调用方注入到各个仓库中。
func InitMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		// 可以在这里添加 GORM 的配置
	})
	if err != nil {
		return nil, err
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)           // 设置空闲连接池中连接的最大数量
	sqlDB.SetMaxOpenConns(100)          // 设置打开数据库连接的最大数量
	sqlDB.SetConnMaxLifetime(time.Hour) // 设置了连接可复用的最大时间

	// 迁移登记表和知识库集合表
	if err := db.AutoMigrate(&model.IngestionRecord{}, &model.KBCollection{}); err != nil {
		return nil, err
	}

	log.Info("MySQL database connected successfully")
	return db, nil
}
