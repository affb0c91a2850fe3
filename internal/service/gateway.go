package service

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"

	"github.com/d60-Lab/food-order/internal/model"
)

const (
	ReasonGatewayTimeout   = "gateway_timeout"
	ReasonRequestCancelled = "request_cancelled"
	ReasonUPIDeclined      = "UPI transaction declined"
	ReasonCardDeclined     = "card declined by issuer"
	ReasonCardNumber       = "invalid card number"
	ReasonCardExpired      = "card expired"
	ReasonCardCVV          = "invalid CVV"
)

// OutcomeFunc 决定一次模拟支付是否成功
type OutcomeFunc func(method model.PaymentMethod) bool

// Sleeper 模拟网络延迟，ctx 结束时应提前返回 ctx.Err()
type Sleeper func(ctx context.Context, d time.Duration) error

// RandomOutcome 按成功率随机决定结果
func RandomOutcome(upiRate, cardRate float64) OutcomeFunc {
	var mu sync.Mutex
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	return func(m model.PaymentMethod) bool {
		mu.Lock()
		defer mu.Unlock()
		switch m {
		case model.PaymentMethodUPI:
			return rnd.Float64() < upiRate
		case model.PaymentMethodCard:
			return rnd.Float64() < cardRate
		}
		return true
	}
}

// AlwaysSucceed / AlwaysFail 便于测试固定分支
func AlwaysSucceed(model.PaymentMethod) bool { return true }
func AlwaysFail(model.PaymentMethod) bool    { return false }

func ctxSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type UPIInput struct {
	ID  string
	App string
}

type CardInput struct {
	Number      string
	ExpiryMonth int
	ExpiryYear  int
	CVV         string
	HolderName  string
	Type        string
}

// ChargeRequest 一次支付尝试的参数
type ChargeRequest struct {
	OrderID string
	UserID  string
	Amount  decimal.Decimal
	Method  model.PaymentMethod
	UPI     *UPIInput
	Card    *CardInput
}

// GatewaySimulator 模拟 UPI / 银行卡 / 货到付款网关，每次调用产出一条 Payment（未落库）
type GatewaySimulator struct {
	latency time.Duration
	timeout time.Duration
	outcome OutcomeFunc
	sleep   Sleeper
	now     func() time.Time
}

type GatewayOption func(*GatewaySimulator)

func WithOutcome(f OutcomeFunc) GatewayOption { return func(g *GatewaySimulator) { g.outcome = f } }
func WithSleeper(s Sleeper) GatewayOption     { return func(g *GatewaySimulator) { g.sleep = s } }
func WithClock(now func() time.Time) GatewayOption {
	return func(g *GatewaySimulator) { g.now = now }
}

func NewGatewaySimulator(latency, timeout time.Duration, opts ...GatewayOption) *GatewaySimulator {
	g := &GatewaySimulator{
		latency: latency,
		timeout: timeout,
		outcome: RandomOutcome(0.9, 0.85),
		sleep:   ctxSleep,
		now:     time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	if g.timeout <= 0 {
		g.timeout = 5 * time.Second
	}
	return g
}

// Charge 执行一次支付尝试。网关拒付不是错误，而是 status=failed 的 Payment。
func (g *GatewaySimulator) Charge(ctx context.Context, req ChargeRequest) *model.Payment {
	ctx, span := otel.Tracer("foodorder/gateway").Start(ctx, "gateway.charge")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.method", string(req.Method)),
		attribute.String("order.id", req.OrderID),
	)

	p := &model.Payment{
		OrderID:              req.OrderID,
		UserID:               req.UserID,
		Amount:               req.Amount,
		Method:               req.Method,
		Status:               model.TransactionProcessing,
		GatewayTransactionID: model.NewTransactionID(req.Method),
	}

	switch req.Method {
	case model.PaymentMethodCOD:
		p.Gateway = model.GatewayCOD
		p.Status = model.TransactionPending
		p.GatewayResponse = gatewayResponse(p, "cash on delivery, collect on arrival")
	case model.PaymentMethodUPI:
		p.Gateway = model.GatewayDummyUPI
		if req.UPI != nil {
			p.UPI = model.UPIDetails{ID: req.UPI.ID, App: req.UPI.App}
		}
		g.settle(ctx, p, ReasonUPIDeclined)
	case model.PaymentMethodCard:
		p.Gateway = model.GatewayDummyCard
		var card CardInput
		if req.Card != nil {
			card = *req.Card
		}
		number := strings.ReplaceAll(card.Number, " ", "")
		p.Card = model.CardDetails{Last4: lastN(number, 4), Brand: CardBrand(number), Type: cardType(card.Type)}
		if reason := g.checkCard(number, card); reason != "" {
			g.fail(p, reason)
			break
		}
		g.settle(ctx, p, ReasonCardDeclined)
	}

	span.SetAttributes(attribute.String("payment.status", string(p.Status)))
	return p
}

// settle 等待模拟延迟后按 outcome 给出结果；超时视为失败
func (g *GatewaySimulator) settle(ctx context.Context, p *model.Payment, declineReason string) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.sleep(ctx, g.latency); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			g.fail(p, ReasonGatewayTimeout)
			return
		}
		p.Status = model.TransactionCancelled
		p.FailureReason = ReasonRequestCancelled
		g.stamp(p, ReasonRequestCancelled)
		return
	}
	if !g.outcome(p.Method) {
		g.fail(p, declineReason)
		return
	}
	p.Status = model.TransactionCompleted
	g.stamp(p, "payment successful")
}

func (g *GatewaySimulator) fail(p *model.Payment, reason string) {
	p.Status = model.TransactionFailed
	p.FailureReason = reason
	g.stamp(p, reason)
}

func (g *GatewaySimulator) stamp(p *model.Payment, msg string) {
	now := g.now()
	p.ProcessedAt = &now
	p.GatewayResponse = gatewayResponse(p, msg)
}

func gatewayResponse(p *model.Payment, msg string) datatypes.JSON {
	b, _ := json.Marshal(map[string]any{
		"transaction_id": p.GatewayTransactionID,
		"status":         p.Status,
		"message":        msg,
	})
	return datatypes.JSON(b)
}

// checkCard 返回失败原因，空串表示通过
func (g *GatewaySimulator) checkCard(number string, card CardInput) string {
	if len(number) < 13 || len(number) > 19 || digitsOnly(number) != number {
		return ReasonCardNumber
	}
	if cardExpired(card.ExpiryMonth, card.ExpiryYear, g.now()) {
		return ReasonCardExpired
	}
	if cvv := digitsOnly(card.CVV); len(cvv) < 3 || len(cvv) > 4 || len(cvv) != len(card.CVV) {
		return ReasonCardCVV
	}
	return ""
}

// cardExpired 年份按两位比较，四位年份取后两位
func cardExpired(month, year int, now time.Time) bool {
	if month < 1 || month > 12 {
		return true
	}
	yy := year % 100
	curYY, curMonth := now.Year()%100, int(now.Month())
	return yy < curYY || (yy == curYY && month < curMonth)
}

// CardBrand 按卡号首位识别卡组织
func CardBrand(number string) string {
	if number == "" {
		return "Unknown"
	}
	switch number[0] {
	case '4':
		return "Visa"
	case '5', '2':
		return "Mastercard"
	case '3':
		return "Amex"
	case '6':
		return "Discover"
	}
	return "Unknown"
}

func cardType(t string) string {
	if t == "" {
		return "credit"
	}
	return strings.ToLower(t)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
