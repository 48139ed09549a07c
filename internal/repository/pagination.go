package repository

import "gorm.io/gorm"

// maxListPageSize 后台列表单页上限，防止一次拉取整张卡密表
const maxListPageSize = 200

// pageWindow 计算分页窗口；pageSize<=0 表示不分页
func pageWindow(page, pageSize int) (limit, offset int) {
	if pageSize <= 0 {
		return 0, 0
	}
	if pageSize > maxListPageSize {
		pageSize = maxListPageSize
	}
	if page < 1 {
		page = 1
	}
	return pageSize, (page - 1) * pageSize
}

// listPage 先统计总数，再按给定排序取一页。
// total 为 0 时直接返回空切片，不再发起第二次查询。
func listPage[T any](query *gorm.DB, page, pageSize int, order string, prepare ...func(*gorm.DB) *gorm.DB) ([]T, int64, error) {
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	rows := make([]T, 0)
	if total == 0 {
		return rows, 0, nil
	}

	if limit, offset := pageWindow(page, pageSize); limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	for _, fn := range prepare {
		query = fn(query)
	}
	if err := query.Order(order).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
