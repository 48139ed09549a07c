package service

import (
	"context"
	"strings"
	"time"

	"github.com/Kosei0128/Plane-SNS/internal/cache"
	"github.com/Kosei0128/Plane-SNS/internal/constants"
	"github.com/Kosei0128/Plane-SNS/internal/logger"
	"github.com/Kosei0128/Plane-SNS/internal/models"
	"github.com/Kosei0128/Plane-SNS/internal/repository"

	"gorm.io/gorm"
)

// ItemService 商品目录服务
type ItemService struct {
	itemRepo    repository.ItemRepository
	historyRepo repository.ItemHistoryRepository
	listTTL     time.Duration
}

// CreateItemInput 创建商品输入
type CreateItemInput struct {
	Title       string
	Price       int64
	Description string
	ImageURL    string
	Rating      float64
	Category    string
	IsActive    *bool
}

// UpdateItemInput 更新商品输入，nil 字段保持不变
type UpdateItemInput struct {
	Title       *string
	Price       *int64
	Description *string
	ImageURL    *string
	Rating      *float64
	Category    *string
	IsActive    *bool
}

// ItemListResult 公开商品列表缓存结构
type ItemListResult struct {
	Items []models.Item `json:"items"`
	Total int64         `json:"total"`
}

// NewItemService 创建商品服务
func NewItemService(itemRepo repository.ItemRepository, historyRepo repository.ItemHistoryRepository, listTTL time.Duration) *ItemService {
	return &ItemService{
		itemRepo:    itemRepo,
		historyRepo: historyRepo,
		listTTL:     listTTL,
	}
}

// Create 创建商品并记录历史
func (s *ItemService) Create(ctx context.Context, input CreateItemInput, actor string) (*models.Item, error) {
	item := &models.Item{
		Title:       strings.TrimSpace(input.Title),
		Price:       input.Price,
		Description: strings.TrimSpace(input.Description),
		ImageURL:    strings.TrimSpace(input.ImageURL),
		Rating:      input.Rating,
		Category:    strings.TrimSpace(input.Category),
		IsActive:    true,
	}
	if input.IsActive != nil {
		item.IsActive = *input.IsActive
	}
	if err := validateItem(item); err != nil {
		return nil, err
	}

	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.itemRepo.WithTx(tx).Create(item); err != nil {
			return err
		}
		return s.writeHistory(tx, item.ID, constants.ItemChangeCreate, nil, item.Snapshot(), actor)
	})
	if err != nil {
		return nil, err
	}
	invalidateItemListCache(ctx)
	logger.Infow("item_created", "item_id", item.ID, "actor", actor)
	return item, nil
}

// Update 部分更新商品
func (s *ItemService) Update(ctx context.Context, id uint, input UpdateItemInput, actor string) (*models.Item, error) {
	var updated *models.Item
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.itemRepo.WithTx(tx)
		item, err := repo.GetByIDForUpdate(id)
		if err != nil {
			return err
		}
		if item == nil {
			return ErrItemNotFound
		}
		before := item.Snapshot()
		applyItemUpdate(item, input)
		if err := validateItem(item); err != nil {
			return err
		}
		if err := repo.Update(item); err != nil {
			return err
		}
		updated = item
		return s.writeHistory(tx, item.ID, constants.ItemChangeUpdate, before, item.Snapshot(), actor)
	})
	if err != nil {
		return nil, err
	}
	invalidateItemListCache(ctx)
	logger.Infow("item_updated", "item_id", id, "actor", actor)
	return updated, nil
}

// Delete 软删除商品，历史订单仍可解析
func (s *ItemService) Delete(ctx context.Context, id uint, actor string) error {
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.itemRepo.WithTx(tx)
		item, err := repo.GetByIDForUpdate(id)
		if err != nil {
			return err
		}
		if item == nil {
			return ErrItemNotFound
		}
		if err := repo.Delete(id); err != nil {
			return err
		}
		return s.writeHistory(tx, id, constants.ItemChangeDelete, item.Snapshot(), nil, actor)
	})
	if err != nil {
		return err
	}
	invalidateItemListCache(ctx)
	logger.Infow("item_deleted", "item_id", id, "actor", actor)
	return nil
}

// Get 获取商品
func (s *ItemService) Get(ctx context.Context, id uint, onlyActive bool) (*models.Item, error) {
	item, err := s.itemRepo.WithContext(ctx).GetByID(id)
	if err != nil {
		return nil, err
	}
	if item == nil || (onlyActive && !item.IsActive) {
		return nil, ErrItemNotFound
	}
	return item, nil
}

// ListPublic 前台商品列表，命中缓存时不访问数据库
func (s *ItemService) ListPublic(ctx context.Context, filter repository.ItemListFilter) ([]models.Item, int64, error) {
	filter.OnlyActive = true
	version, err := cache.ItemListVersion(ctx)
	if err != nil {
		logger.Warnw("item_list_cache_version_failed", "error", err)
	}
	key := cache.ItemListKey(version, filter.Category, filter.Search, filter.Page, filter.PageSize)
	if err == nil {
		var cached ItemListResult
		hit, cacheErr := cache.GetItemList(ctx, key, &cached)
		if cacheErr != nil {
			logger.Warnw("item_list_cache_read_failed", "key", key, "error", cacheErr)
		}
		if hit {
			return cached.Items, cached.Total, nil
		}
	}

	items, total, err := s.itemRepo.WithContext(ctx).List(filter)
	if err != nil {
		return nil, 0, err
	}
	if setErr := cache.SetItemList(ctx, key, ItemListResult{Items: items, Total: total}, s.listTTL); setErr != nil {
		logger.Warnw("item_list_cache_write_failed", "key", key, "error", setErr)
	}
	return items, total, nil
}

// ListAdmin 管理端商品列表
func (s *ItemService) ListAdmin(ctx context.Context, filter repository.ItemListFilter) ([]models.Item, int64, error) {
	return s.itemRepo.WithContext(ctx).List(filter)
}

// ListHistory 商品变更历史，新记录在前
func (s *ItemService) ListHistory(ctx context.Context, filter repository.ItemHistoryFilter) ([]models.ItemHistory, int64, error) {
	return s.historyRepo.WithContext(ctx).List(filter)
}

// SyncStock 按卡密数量重算库存
func (s *ItemService) SyncStock(ctx context.Context, itemIDs []uint) error {
	if err := s.itemRepo.WithContext(ctx).SyncStockByIDs(itemIDs); err != nil {
		return err
	}
	invalidateItemListCache(ctx)
	return nil
}

func (s *ItemService) writeHistory(tx *gorm.DB, itemID uint, changeType string, oldData, newData models.JSON, actor string) error {
	return s.historyRepo.WithTx(tx).Create(&models.ItemHistory{
		ItemID:     itemID,
		ChangeType: changeType,
		OldData:    oldData,
		NewData:    newData,
		Actor:      normalizeActor(actor),
		ChangedAt:  time.Now(),
	})
}

func applyItemUpdate(item *models.Item, input UpdateItemInput) {
	if input.Title != nil {
		item.Title = strings.TrimSpace(*input.Title)
	}
	if input.Price != nil {
		item.Price = *input.Price
	}
	if input.Description != nil {
		item.Description = strings.TrimSpace(*input.Description)
	}
	if input.ImageURL != nil {
		item.ImageURL = strings.TrimSpace(*input.ImageURL)
	}
	if input.Rating != nil {
		item.Rating = *input.Rating
	}
	if input.Category != nil {
		item.Category = strings.TrimSpace(*input.Category)
	}
	if input.IsActive != nil {
		item.IsActive = *input.IsActive
	}
}

func validateItem(item *models.Item) error {
	if item.Title == "" {
		return newValidationError("title", "required")
	}
	if item.Description == "" {
		return newValidationError("description", "required")
	}
	if item.Price < 0 {
		return newValidationError("price", "must not be negative")
	}
	if item.Rating < 0 || item.Rating > 5 {
		return newValidationError("rating", "must be between 0 and 5")
	}
	return nil
}
