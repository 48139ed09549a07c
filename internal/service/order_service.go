package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/Kosei0128/Plane-SNS/internal/config"
	"github.com/Kosei0128/Plane-SNS/internal/constants"
	"github.com/Kosei0128/Plane-SNS/internal/events"
	"github.com/Kosei0128/Plane-SNS/internal/logger"
	"github.com/Kosei0128/Plane-SNS/internal/metrics"
	"github.com/Kosei0128/Plane-SNS/internal/models"
	"github.com/Kosei0128/Plane-SNS/internal/queue"
	"github.com/Kosei0128/Plane-SNS/internal/repository"
	"github.com/Kosei0128/Plane-SNS/internal/tracing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
)

// 下单阶段名称，用于日志、追踪与指标
const (
	stageValidating       = "validating"
	stageReservingStock   = "reserving_stock"
	stageVerifyingBalance = "verifying_balance"
	stageCommitting       = "committing"
	stageCompleted        = "completed"
)

const (
	defaultCommitTimeout = 15 * time.Second
	defaultMaxLines      = 50
	defaultMaxQuantity   = 100
	stockSyncRetryDelay  = 5 * time.Second
)

// OrderService 订单交易引擎
type OrderService struct {
	orderRepo      repository.OrderRepository
	itemRepo       repository.ItemRepository
	credentialRepo repository.CredentialRepository
	pool           *CredentialPool
	ledger         *LedgerService
	publisher      events.Publisher
	queueClient    *queue.Client
	runTx          func(ctx context.Context, fn func(tx *gorm.DB) error) error
	commitTimeout  time.Duration
	maxLines       int
	maxQuantity    int
}

// CartLine 购物车行（客户端提交，价格仅作参考）
type CartLine struct {
	ItemID    uint  `json:"item_id"`
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
}

// PlaceOrderInput 下单输入
type PlaceOrderInput struct {
	UserID        string
	Lines         []CartLine
	ExpectedTotal int64
}

// PlacedLine 下单结果行
type PlacedLine struct {
	ItemID    uint     `json:"item_id"`
	Title     string   `json:"title"`
	Quantity  int      `json:"quantity"`
	UnitPrice int64    `json:"unit_price"`
	LineTotal int64    `json:"line_total"`
	Secrets   []string `json:"secrets"`
}

// PlaceOrderResult 下单结果
type PlaceOrderResult struct {
	OrderID uint         `json:"order_id"`
	OrderNo string       `json:"order_no"`
	Total   int64        `json:"total"`
	Balance int64        `json:"balance"`
	Lines   []PlacedLine `json:"lines"`
}

// OrderView 用户订单详情（含已购卡密）
type OrderView struct {
	ID        uint         `json:"id"`
	OrderNo   string       `json:"order_no"`
	UserID    string       `json:"user_id"`
	Total     int64        `json:"total"`
	Status    string       `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	Lines     []PlacedLine `json:"lines"`
}

type pricedLine struct {
	item     models.Item
	quantity int
	total    int64
}

// NewOrderService 创建订单服务
func NewOrderService(
	orderRepo repository.OrderRepository,
	itemRepo repository.ItemRepository,
	credentialRepo repository.CredentialRepository,
	pool *CredentialPool,
	ledger *LedgerService,
	publisher events.Publisher,
	cfg config.OrderConfig,
) *OrderService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	commitTimeout := time.Duration(cfg.CommitTimeoutSeconds) * time.Second
	if commitTimeout <= 0 {
		commitTimeout = defaultCommitTimeout
	}
	maxLines := cfg.MaxLines
	if maxLines <= 0 {
		maxLines = defaultMaxLines
	}
	maxQuantity := cfg.MaxQuantity
	if maxQuantity <= 0 {
		maxQuantity = defaultMaxQuantity
	}
	return &OrderService{
		orderRepo:      orderRepo,
		itemRepo:       itemRepo,
		credentialRepo: credentialRepo,
		pool:           pool,
		ledger:         ledger,
		publisher:      publisher,
		runTx:          runInTransaction,
		commitTimeout:  commitTimeout,
		maxLines:       maxLines,
		maxQuantity:    maxQuantity,
	}
}

// SetQueueClient 设置库存重算失败时使用的队列客户端
func (s *OrderService) SetQueueClient(client *queue.Client) {
	s.queueClient = client
}

// PlaceOrder 校验、预占、核对余额并一次性提交订单
func (s *OrderService) PlaceOrder(ctx context.Context, input PlaceOrderInput) (result *PlaceOrderResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "order.place")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", input.UserID))
	defer func() {
		metrics.OrdersPlacedTotal.WithLabelValues(orderResultLabel(err)).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	// 1. 校验并以服务端价格重算总额
	done := s.stage(ctx, stageValidating)
	lines, total, err := s.validate(ctx, input)
	done()
	if err != nil {
		logger.Infow("order_rejected", "stage", stageValidating, "user_id", input.UserID, "error", err)
		return nil, err
	}
	span.SetAttributes(attribute.Int64("order.total", total), attribute.Int("order.lines", len(lines)))

	// 2. 逐行预占卡密，任一行失败则整体释放
	token := uuid.NewString()
	done = s.stage(ctx, stageReservingStock)
	claimed, err := s.reserve(ctx, lines, token)
	done()
	if err != nil {
		s.releaseReservation(ctx, token, input.UserID)
		logger.Infow("order_rejected", "stage", stageReservingStock, "user_id", input.UserID, "error", err)
		return nil, err
	}

	// 3. 核对余额
	done = s.stage(ctx, stageVerifyingBalance)
	balance, err := s.ledger.GetBalance(ctx, input.UserID)
	done()
	if err != nil {
		s.releaseReservation(ctx, token, input.UserID)
		return nil, err
	}
	if balance < total {
		s.releaseReservation(ctx, token, input.UserID)
		logger.Infow("order_rejected", "stage", stageVerifyingBalance, "user_id", input.UserID, "balance", balance, "required", total)
		return nil, &InsufficientBalanceError{Balance: balance, Required: total}
	}

	// 4. 单事务提交：订单、卡密售出、扣款
	done = s.stage(ctx, stageCommitting)
	order, balanceAfter, err := s.commit(ctx, input.UserID, lines, total, token, claimed, balance)
	done()
	if err != nil {
		return nil, err
	}

	result = buildPlaceOrderResult(order, lines, claimed, balanceAfter)
	s.afterCommit(ctx, order, lines, balanceAfter)
	logger.Infow("order_completed",
		"stage", stageCompleted,
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"user_id", order.UserID,
		"total", order.Total,
		"balance_after", balanceAfter,
	)
	return result, nil
}

func (s *OrderService) validate(ctx context.Context, input PlaceOrderInput) ([]pricedLine, int64, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, 0, newValidationError("user_id", "required")
	}
	if len(input.Lines) == 0 {
		return nil, 0, ErrEmptyCart
	}
	if len(input.Lines) > s.maxLines {
		return nil, 0, ErrTooManyLines
	}

	order := make([]uint, 0, len(input.Lines))
	quantities := make(map[uint]int, len(input.Lines))
	for idx, line := range input.Lines {
		if line.ItemID == 0 {
			return nil, 0, newValidationError(fmt.Sprintf("lines[%d].item_id", idx), "required")
		}
		if line.Quantity < 1 {
			return nil, 0, newValidationError(fmt.Sprintf("lines[%d].quantity", idx), "must be at least 1")
		}
		if _, ok := quantities[line.ItemID]; !ok {
			order = append(order, line.ItemID)
		}
		quantities[line.ItemID] += line.Quantity
		if quantities[line.ItemID] > s.maxQuantity {
			return nil, 0, newValidationError(fmt.Sprintf("lines[%d].quantity", idx), fmt.Sprintf("at most %d per item", s.maxQuantity))
		}
	}

	items, err := s.itemRepo.WithContext(ctx).ListByIDs(order)
	if err != nil {
		return nil, 0, err
	}
	byID := make(map[uint]models.Item, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	lines := make([]pricedLine, 0, len(order))
	var total int64
	for _, itemID := range order {
		item, ok := byID[itemID]
		if !ok {
			return nil, 0, fmt.Errorf("%w: %d", ErrItemNotFound, itemID)
		}
		if !item.IsActive {
			return nil, 0, fmt.Errorf("%w: %d", ErrItemInactive, itemID)
		}
		qty := quantities[itemID]
		lineTotal := item.Price * int64(qty)
		lines = append(lines, pricedLine{item: item, quantity: qty, total: lineTotal})
		total += lineTotal
	}
	if input.ExpectedTotal != total {
		return nil, 0, fmt.Errorf("%w: expected %d, server total %d", ErrPriceMismatch, input.ExpectedTotal, total)
	}
	return lines, total, nil
}

func (s *OrderService) reserve(ctx context.Context, lines []pricedLine, token string) (map[uint][]models.Credential, error) {
	claimed := make(map[uint][]models.Credential, len(lines))
	for _, line := range lines {
		rows, err := s.pool.ClaimMany(ctx, line.item.ID, line.quantity, token)
		if err != nil {
			return nil, err
		}
		claimed[line.item.ID] = rows
	}
	return claimed, nil
}

func (s *OrderService) commit(
	ctx context.Context,
	userID string,
	lines []pricedLine,
	total int64,
	token string,
	claimed map[uint][]models.Credential,
	balance int64,
) (*models.Order, int64, error) {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.commitTimeout)
	defer cancel()

	now := time.Now()
	order := &models.Order{
		OrderNo:   generateOrderNo(),
		UserID:    userID,
		Total:     total,
		Status:    constants.OrderStatusCompleted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	orderLines := make([]models.OrderLine, 0, len(lines))
	reservedCount := 0
	for _, line := range lines {
		orderLines = append(orderLines, models.OrderLine{
			ItemID:    line.item.ID,
			ItemTitle: line.item.Title,
			Quantity:  line.quantity,
			UnitPrice: line.item.Price,
			LineTotal: line.total,
			CreatedAt: now,
		})
		reservedCount += len(claimed[line.item.ID])
	}

	balanceAfter := balance
	bodyDone := false
	err := s.runTx(commitCtx, func(tx *gorm.DB) error {
		if err := s.orderRepo.WithTx(tx).Create(order, orderLines); err != nil {
			return err
		}
		consumed, err := s.credentialRepo.WithTx(tx).ConsumeByToken(token, order.ID, now)
		if err != nil {
			return err
		}
		if consumed != int64(reservedCount) {
			return fmt.Errorf("%w: expected %d, consumed %d", ErrReservationMismatch, reservedCount, consumed)
		}
		if total > 0 {
			txn, err := s.ledger.DebitInTx(tx, DebitInput{
				UserID:    userID,
				Amount:    total,
				Type:      constants.BalanceTxnTypePurchase,
				Reference: fmt.Sprintf("%s%d", constants.BalanceRefPrefixOrder, order.ID),
				OrderID:   &order.ID,
				Actor:     userID,
				Remark:    "order " + order.OrderNo,
			})
			if err != nil {
				return err
			}
			balanceAfter = txn.BalanceAfter
		}
		bodyDone = true
		return nil
	})
	if err == nil {
		return order, balanceAfter, nil
	}

	if bodyDone {
		// 提交阶段失败，结果未知：不主动释放，交由清理任务处理
		logger.Errorw("order_commit_partial_failure",
			"order_no", order.OrderNo,
			"user_id", userID,
			"total", total,
			"claim_token", token,
			"credential_ids", credentialIDs(claimed),
			"error", err,
		)
		return nil, 0, fmt.Errorf("%w: %v", ErrOrderCommitFailed, err)
	}

	s.releaseReservation(ctx, token, userID)
	var insufficient *InsufficientBalanceError
	if errors.As(err, &insufficient) {
		logger.Infow("order_rejected", "stage", stageCommitting, "user_id", userID, "balance", insufficient.Balance, "required", insufficient.Required)
		return nil, 0, err
	}
	logger.Errorw("order_commit_rolled_back", "order_no", order.OrderNo, "user_id", userID, "error", err)
	if errors.Is(err, ErrReservationMismatch) {
		return nil, 0, err
	}
	return nil, 0, fmt.Errorf("%w: %v", ErrOrderCommitFailed, err)
}

func (s *OrderService) afterCommit(ctx context.Context, order *models.Order, lines []pricedLine, balanceAfter int64) {
	sideCtx := context.WithoutCancel(ctx)
	itemIDs := make([]uint, 0, len(lines))
	eventLines := make([]events.OrderLineData, 0, len(lines))
	for _, line := range lines {
		itemIDs = append(itemIDs, line.item.ID)
		eventLines = append(eventLines, events.OrderLineData{ItemID: line.item.ID, Quantity: line.quantity, Price: line.item.Price})
	}
	if err := s.itemRepo.WithContext(sideCtx).SyncStockByIDs(itemIDs); err != nil {
		logger.Warnw("item_stock_sync_failed", "order_no", order.OrderNo, "item_ids", itemIDs, "error", err)
		if s.queueClient.Enabled() {
			if qerr := s.queueClient.EnqueueItemStockSync(queue.ItemStockSyncPayload{ItemIDs: itemIDs}, stockSyncRetryDelay); qerr != nil {
				logger.Warnw("item_stock_sync_enqueue_failed", "order_no", order.OrderNo, "error", qerr)
			}
		}
	}
	invalidateItemListCache(sideCtx)
	if err := s.publisher.Publish(sideCtx, constants.EventOrderCompleted, events.OrderKey(order.ID), events.OrderCompletedData{
		OrderID:      order.ID,
		OrderNo:      order.OrderNo,
		UserID:       order.UserID,
		Total:        order.Total,
		BalanceAfter: balanceAfter,
		Lines:        eventLines,
	}); err != nil {
		logger.Warnw("order_event_publish_failed", "order_no", order.OrderNo, "error", err)
	}
}

func runInTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return models.DB.WithContext(ctx).Transaction(fn)
}

// releaseReservation 补偿释放；失败时保留给清理任务
func (s *OrderService) releaseReservation(ctx context.Context, token, userID string) {
	released, err := s.pool.ReleaseByToken(context.WithoutCancel(ctx), token)
	if err != nil {
		logger.Errorw("order_reservation_release_failed", "claim_token", token, "user_id", userID, "error", err)
		return
	}
	if released > 0 {
		logger.Debugw("order_reservation_released", "claim_token", token, "released", released)
	}
}

func (s *OrderService) stage(ctx context.Context, name string) func() {
	_, span := tracing.StartSpan(ctx, "order."+name)
	started := time.Now()
	return func() {
		metrics.OrderStageLatency.WithLabelValues(name).Observe(time.Since(started).Seconds())
		span.End()
	}
}

// GetOrder 获取用户自己的订单及已购卡密
func (s *OrderService) GetOrder(ctx context.Context, userID string, orderID uint) (*OrderView, error) {
	order, err := s.orderRepo.WithContext(ctx).GetByIDAndUser(orderID, userID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	view := buildOrderView(order)
	return &view, nil
}

// ListUserOrders 用户订单列表，新订单在前
func (s *OrderService) ListUserOrders(ctx context.Context, userID string, page, pageSize int) ([]OrderView, int64, error) {
	orders, total, err := s.orderRepo.WithContext(ctx).ListByUser(repository.OrderListFilter{
		UserID:   userID,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return nil, 0, err
	}
	views := make([]OrderView, 0, len(orders))
	for i := range orders {
		views = append(views, buildOrderView(&orders[i]))
	}
	return views, total, nil
}

// ListOrders 管理端订单列表（不含卡密内容）
func (s *OrderService) ListOrders(ctx context.Context, filter repository.OrderListFilter) ([]models.Order, int64, error) {
	return s.orderRepo.WithContext(ctx).ListAdmin(filter)
}

func buildPlaceOrderResult(order *models.Order, lines []pricedLine, claimed map[uint][]models.Credential, balanceAfter int64) *PlaceOrderResult {
	result := &PlaceOrderResult{
		OrderID: order.ID,
		OrderNo: order.OrderNo,
		Total:   order.Total,
		Balance: balanceAfter,
		Lines:   make([]PlacedLine, 0, len(lines)),
	}
	for _, line := range lines {
		rows := claimed[line.item.ID]
		secrets := make([]string, 0, len(rows))
		for _, row := range rows {
			secrets = append(secrets, row.Payload)
		}
		result.Lines = append(result.Lines, PlacedLine{
			ItemID:    line.item.ID,
			Title:     line.item.Title,
			Quantity:  line.quantity,
			UnitPrice: line.item.Price,
			LineTotal: line.total,
			Secrets:   secrets,
		})
	}
	return result
}

func buildOrderView(order *models.Order) OrderView {
	secretsByItem := make(map[uint][]string, len(order.Lines))
	for _, credential := range order.Credentials {
		secretsByItem[credential.ItemID] = append(secretsByItem[credential.ItemID], credential.Payload)
	}
	view := OrderView{
		ID:        order.ID,
		OrderNo:   order.OrderNo,
		UserID:    order.UserID,
		Total:     order.Total,
		Status:    order.Status,
		CreatedAt: order.CreatedAt,
		Lines:     make([]PlacedLine, 0, len(order.Lines)),
	}
	for _, line := range order.Lines {
		secrets := secretsByItem[line.ItemID]
		if secrets == nil {
			secrets = []string{}
		}
		view.Lines = append(view.Lines, PlacedLine{
			ItemID:    line.ItemID,
			Title:     line.ItemTitle,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: line.LineTotal,
			Secrets:   secrets,
		})
	}
	return view
}

func credentialIDs(claimed map[uint][]models.Credential) []uint {
	ids := make([]uint, 0)
	for _, rows := range claimed {
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
	}
	return ids
}

func orderResultLabel(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, ErrOutOfStock):
		return metrics.ResultOutOfStock
	case errors.Is(err, ErrInsufficientBalance):
		return metrics.ResultInsufficientBalance
	case errors.Is(err, ErrPriceMismatch):
		return metrics.ResultPriceMismatch
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrEmptyCart), errors.Is(err, ErrTooManyLines),
		errors.Is(err, ErrItemNotFound), errors.Is(err, ErrItemInactive):
		return metrics.ResultInvalid
	default:
		return metrics.ResultError
	}
}

func generateOrderNo() string {
	now := time.Now().Format("20060102150405")
	return fmt.Sprintf("PS%s%s", now, randNumeric(6))
}

func randNumeric(length int) string {
	var b strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			b.WriteString("0")
			continue
		}
		b.WriteString(fmt.Sprintf("%d", n.Int64()))
	}
	return b.String()
}
