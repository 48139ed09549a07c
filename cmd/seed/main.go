package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/Kosei0128/Plane-SNS/internal/config"
	"github.com/Kosei0128/Plane-SNS/internal/constants"
	"github.com/Kosei0128/Plane-SNS/internal/events"
	"github.com/Kosei0128/Plane-SNS/internal/logger"
	"github.com/Kosei0128/Plane-SNS/internal/models"
	"github.com/Kosei0128/Plane-SNS/internal/repository"
	"github.com/Kosei0128/Plane-SNS/internal/service"
)

type seedItem struct {
	Title       string
	Price       int64
	Description string
	Category    string
	Rating      float64
	Stock       int
}

var seedItems = []seedItem{
	{Title: "Streaming Premium 1 Month", Price: 980, Description: "One month premium streaming account", Category: "streaming", Rating: 4.6, Stock: 5},
	{Title: "Music Family Plan", Price: 1480, Description: "Family music subscription seat", Category: "music", Rating: 4.4, Stock: 3},
	{Title: "Cloud Storage 200GB", Price: 450, Description: "200GB cloud storage for 30 days", Category: "storage", Rating: 4.1, Stock: 8},
	{Title: "VPN Annual Key", Price: 3600, Description: "Activation key valid for 12 months", Category: "network", Rating: 4.8, Stock: 2},
}

func main() {
	demoUser := flag.String("demo-user", "", "为该用户 ID 预置余额")
	demoBalance := flag.Int64("demo-balance", 10000, "预置余额（最小货币单位）")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	defer logger.Sync()
	stdLog := logger.StdLogger()

	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, cfg.Database.LogLevel, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	if admin, err := models.InitDefaultAdmin(cfg.Admin.Username, cfg.Admin.Password); err != nil {
		stdLog.Printf("Failed to create default admin: %v", err)
	} else if admin != nil {
		stdLog.Printf("Created admin: %s", admin.Username)
	}

	db := models.DB
	itemRepo := repository.NewItemRepository(db)
	historyRepo := repository.NewItemHistoryRepository(db)
	publisher := events.NoopPublisher{}
	items := service.NewItemService(itemRepo, historyRepo, 0)
	pool := service.NewCredentialPool(repository.NewCredentialRepository(db), itemRepo, historyRepo, publisher, cfg.Order.ClaimRetries)
	ledger := service.NewLedgerService(repository.NewLedgerRepository(db), publisher)

	ctx := context.Background()
	for _, seed := range seedItems {
		var existing models.Item
		if err := db.Where("title = ?", seed.Title).First(&existing).Error; err == nil {
			stdLog.Printf("Item already exists: %s", seed.Title)
			continue
		}
		item, err := items.Create(ctx, service.CreateItemInput{
			Title:       seed.Title,
			Price:       seed.Price,
			Description: seed.Description,
			Category:    seed.Category,
			Rating:      seed.Rating,
		}, constants.ActorSystem)
		if err != nil {
			stdLog.Printf("Failed to create item %s: %v", seed.Title, err)
			continue
		}
		secrets := make([]string, 0, seed.Stock)
		for i := 0; i < seed.Stock; i++ {
			secrets = append(secrets, fmt.Sprintf("demo-%d-%d-%d", item.ID, i+1, time.Now().UnixNano()%100000))
		}
		added, err := pool.AddCredentials(ctx, item.ID, secrets, constants.ActorSystem)
		if err != nil {
			stdLog.Printf("Failed to add credentials for %s: %v", seed.Title, err)
			continue
		}
		stdLog.Printf("Created item: %s (stock %d)", seed.Title, added)
	}

	if *demoUser != "" {
		if _, err := ledger.Adjust(ctx, *demoUser, *demoBalance, constants.ActorSystem, "seed balance"); err != nil {
			stdLog.Printf("Failed to seed balance for %s: %v", *demoUser, err)
		} else {
			stdLog.Printf("Seeded balance %d for user %s", *demoBalance, *demoUser)
		}
	}
	stdLog.Printf("Seed completed")
}
