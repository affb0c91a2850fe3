package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/d60-Lab/food-order/config"
	"github.com/d60-Lab/food-order/internal/model"
	"github.com/d60-Lab/food-order/internal/repository"
	"github.com/d60-Lab/food-order/internal/service"
	"github.com/d60-Lab/food-order/pkg/database"
)

type BenchResult struct {
	Name            string
	Duration        time.Duration
	TotalRequests   int64
	SuccessRequests int64
	SoldOut         int64
	FailedRequests  int64
	QPS             float64
	AvgLatency      time.Duration
	P50Latency      time.Duration
	P95Latency      time.Duration
	P99Latency      time.Duration
}

func main() {
	app := &cli.App{
		Name:  "stockbench",
		Usage: "并发下单压测，验证库存不超卖",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "stock", Value: 500, Usage: "初始库存"},
			&cli.IntFlag{Name: "requests", Value: 2000, Usage: "下单请求总数"},
			&cli.IntFlag{Name: "concurrency", Value: 100, Usage: "并发数"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	db, err := database.InitDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)
	if err := db.AutoMigrate(model.All()...); err != nil {
		return err
	}

	ctx := context.Background()
	repo := repository.New(db)
	stock := c.Int("stock")
	product := &model.Product{Name: "bench-biryani", Price: decimal.RequireFromString("9.99"), Stock: stock, IsAvailable: true}
	if err := repo.Products.Create(ctx, product); err != nil {
		return err
	}

	// COD 不经过网关延迟，压测只关注库存扣减
	gw := service.NewGatewaySimulator(0, cfg.Payment.Timeout)
	payments := service.NewPaymentService(repo, gw, nil, nil)
	orders := service.NewOrderService(repo, payments, nil, nil)

	fmt.Println("===== 并发下单压测 =====")
	fmt.Printf("数据库: %s\n", cfg.Database.Driver)
	fmt.Printf("初始库存: %d\n", stock)
	fmt.Printf("请求数: %d\n", c.Int("requests"))
	fmt.Printf("并发数: %d\n\n", c.Int("concurrency"))

	result := benchCheckout(ctx, orders, product.ID, c.Int("requests"), c.Int("concurrency"))
	printBenchResult(result)

	final, err := repo.Products.GetByID(ctx, product.ID)
	if err != nil {
		return err
	}
	fmt.Printf("\n剩余库存: %d, 累计销量: %d\n", final.Stock, final.TotalOrders)
	if final.Stock < 0 || int64(stock-final.Stock) != result.SuccessRequests {
		return fmt.Errorf("stock invariant violated: stock=%d success=%d", final.Stock, result.SuccessRequests)
	}
	fmt.Println("✅ 库存守恒，未超卖")
	return nil
}

func benchCheckout(ctx context.Context, orders *service.OrderService, productID string, requests, concurrency int) *BenchResult {
	var (
		total, success, soldOut, failed int64
		latencies                       = make([]time.Duration, 0, requests)
		latencyMu                       sync.Mutex
		wg                              sync.WaitGroup
	)
	if concurrency < 1 {
		concurrency = 1
	}

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := workerID; i < requests; i += concurrency {
				uctx := service.WithIdentity(ctx, service.Identity{
					UserID: fmt.Sprintf("bench-user-%d", i),
					Role:   service.RoleUser,
				})
				reqStart := time.Now()
				_, err := orders.PlaceOrder(uctx, service.PlaceOrderInput{
					Items:           []service.LineRequest{{ProductID: productID, Quantity: 1}},
					PaymentMethod:   model.PaymentMethodCOD,
					DeliveryAddress: "bench street 1",
				})
				latency := time.Since(reqStart)

				atomic.AddInt64(&total, 1)
				switch {
				case err == nil:
					atomic.AddInt64(&success, 1)
				case errors.Is(err, service.ErrInsufficientStock):
					atomic.AddInt64(&soldOut, 1)
				default:
					if n := atomic.AddInt64(&failed, 1); n <= 10 {
						fmt.Printf("下单失败 [%d]: %v\n", n, err)
					}
				}
				latencyMu.Lock()
				latencies = append(latencies, latency)
				latencyMu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	r := calculateResult("checkout", time.Since(start), latencies)
	r.TotalRequests, r.SuccessRequests, r.SoldOut, r.FailedRequests = total, success, soldOut, failed
	return r
}

func calculateResult(name string, duration time.Duration, latencies []time.Duration) *BenchResult {
	r := &BenchResult{Name: name, Duration: duration}
	if len(latencies) == 0 {
		return r
	}
	r.QPS = float64(len(latencies)) / duration.Seconds()

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	r.AvgLatency = sum / time.Duration(len(latencies))

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	r.P50Latency = percentile(latencies, 0.50)
	r.P95Latency = percentile(latencies, 0.95)
	r.P99Latency = percentile(latencies, 0.99)
	return r
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func printBenchResult(result *BenchResult) {
	fmt.Printf("名称: %s\n", result.Name)
	fmt.Printf("耗时: %v\n", result.Duration)
	fmt.Printf("总请求数: %d\n", result.TotalRequests)
	fmt.Printf("下单成功: %d\n", result.SuccessRequests)
	fmt.Printf("库存不足: %d\n", result.SoldOut)
	fmt.Printf("其他失败: %d\n", result.FailedRequests)
	fmt.Printf("QPS: %.2f\n", result.QPS)
	fmt.Printf("平均延迟: %v\n", result.AvgLatency)
	fmt.Printf("P50 延迟: %v\n", result.P50Latency)
	fmt.Printf("P95 延迟: %v\n", result.P95Latency)
	fmt.Printf("P99 延迟: %v\n", result.P99Latency)
}
