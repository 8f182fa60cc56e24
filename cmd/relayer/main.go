package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/krishishah/0xygen-Relay-sub000/api"
	"github.com/krishishah/0xygen-Relay-sub000/internal/config"
	"github.com/krishishah/0xygen-Relay-sub000/internal/database"
	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/events"
	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/orderbook"
	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/repository"
	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/service"
	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/settlement"
	"github.com/krishishah/0xygen-Relay-sub000/internal/ws"
	"github.com/krishishah/0xygen-Relay-sub000/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	db, err := database.Open(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	var cache *redis.Client
	if cfg.Redis.Enabled {
		cache = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := cache.Ping(context.Background()).Err(); err != nil {
			zapLogger.Warn("Redis not available, proceeding without cache", zap.Error(err))
			cache = nil
		}
	}

	repo, err := repository.NewGormRepository(db, cache, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to initialize order repository", zap.Error(err))
	}

	settlementClient, err := newSettlementClient(cfg.Settlement, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create settlement client", zap.Error(err))
	}

	bus := events.NewBus(zapLogger)
	orders := service.NewOrderService(repo, settlementClient, bus, cfg.Relay.PruneInterval, zapLogger)
	book := orderbook.NewEngine(repo, zapLogger)
	hub := ws.NewHub(book, bus, cfg.Relay.HeartbeatInterval, cfg.Relay.SendBufferSize, zapLogger)
	server := api.NewServer(zapLogger, orders, book, hub, cfg.Server.AllowedOrigins)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := settlementClient.Start(ctx); err != nil {
		zapLogger.Fatal("Failed to start settlement client", zap.Error(err))
	}
	go orders.Run(ctx)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		if err := server.Start(addr); err != nil {
			zapLogger.Fatal("Failed to start API server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down relayer...")

	cancel()
	settlementClient.Stop()
	zapLogger.Info("Relayer exited properly")
}

func newSettlementClient(cfg config.SettlementConfig, zapLogger *zap.Logger) (settlement.Client, error) {
	switch cfg.Backend {
	case "onchain":
		eth, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("failed to dial ethereum RPC at %s: %w", cfg.RPCURL, err)
		}
		if !common.IsHexAddress(cfg.ExchangeContractAddress) {
			return nil, fmt.Errorf("invalid exchange contract address %q", cfg.ExchangeContractAddress)
		}
		return settlement.NewOnChainClient(
			eth,
			common.HexToAddress(cfg.ExchangeContractAddress),
			cfg.QueryTimeout,
			cfg.WatchInterval,
			zapLogger,
		), nil
	case "offchain":
		return settlement.NewOffChainClient(cfg.StatusURL, cfg.FeedURL, cfg.QueryTimeout, zapLogger), nil
	default:
		return nil, fmt.Errorf("unsupported settlement backend %q", cfg.Backend)
	}
}
