package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/d60-Lab/food-order/internal/model"
	"github.com/d60-Lab/food-order/internal/repository"
)

var (
	alice = Identity{UserID: "user-alice", Role: RoleUser, Email: "alice@example.com"}
	bob   = Identity{UserID: "user-bob", Role: RoleUser}
	admin = Identity{UserID: "user-admin", Role: RoleAdmin}
)

func as(id Identity) context.Context { return WithIdentity(context.Background(), id) }

func noSleep(context.Context, time.Duration) error { return nil }

func newTestRepo(t *testing.T) *repository.Repository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "svc.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(model.All()...))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return repository.New(db)
}

type recordedActivity struct {
	userID, action string
}

type fakeActivity struct {
	mu   sync.Mutex
	list []recordedActivity
}

func (f *fakeActivity) Record(userID, action string, _ map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.list = append(f.list, recordedActivity{userID, action})
}

func (f *fakeActivity) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.list))
	for i, a := range f.list {
		out[i] = a.action
	}
	return out
}

type fixture struct {
	repo     *repository.Repository
	activity *fakeActivity
	orders   *OrderService
	payments *PaymentService
	refunds  *RefundCoordinator
}

func newFixture(t *testing.T, opts ...GatewayOption) *fixture {
	t.Helper()
	repo := newTestRepo(t)
	act := &fakeActivity{}
	opts = append([]GatewayOption{WithSleeper(noSleep), WithOutcome(AlwaysSucceed)}, opts...)
	gw := NewGatewaySimulator(0, time.Second, opts...)
	payments := NewPaymentService(repo, gw, act, nil)
	return &fixture{
		repo:     repo,
		activity: act,
		orders:   NewOrderService(repo, payments, act, nil),
		payments: payments,
		refunds:  NewRefundCoordinator(repo, act, nil),
	}
}

func (f *fixture) product(t *testing.T, name, price string, stock int) *model.Product {
	t.Helper()
	p := &model.Product{Name: name, Price: decimal.RequireFromString(price), Stock: stock, IsAvailable: true}
	require.NoError(t, f.repo.Products.Create(context.Background(), p))
	return p
}

func (f *fixture) stock(t *testing.T, id string) (int, int) {
	t.Helper()
	p, err := f.repo.Products.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p.Stock, p.TotalOrders
}

func (f *fixture) setStatus(t *testing.T, orderID string, st model.OrderStatus) {
	t.Helper()
	require.NoError(t, f.repo.DB.Model(&model.Order{}).Where("id = ?", orderID).Update("order_status", st).Error)
}

func validCard() *CardInput {
	return &CardInput{Number: "4111 1111 1111 1111", ExpiryMonth: 12, ExpiryYear: time.Now().Year()%100 + 2, CVV: "123"}
}

func (f *fixture) placeUPI(t *testing.T, id Identity, productID string, qty int) *CheckoutResult {
	t.Helper()
	res, err := f.orders.PlaceOrder(as(id), PlaceOrderInput{
		Items:           []LineRequest{{ProductID: productID, Quantity: qty}},
		PaymentMethod:   model.PaymentMethodUPI,
		DeliveryAddress: "221B Baker Street",
		UPI:             &UPIInput{ID: "alice@okaxis", App: "gpay"},
	})
	require.NoError(t, err)
	return res
}
