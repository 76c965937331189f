package services

import (
	"context"
	"time"

	"github.com/saeid-a/CoachLiveBack/internal/gateway"
	"github.com/saeid-a/CoachLiveBack/internal/models"
	"github.com/saeid-a/CoachLiveBack/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SettlementAction is what the engine decided to do with a hold.
type SettlementAction string

const (
	ActionRelease        SettlementAction = "release"
	ActionPartialCapture SettlementAction = "partial_capture"
	ActionFullCapture    SettlementAction = "full_capture"
)

// SettlementPlan is the pure outcome of the usage computation, before any
// gateway call.
type SettlementPlan struct {
	Action      SettlementAction
	Amount      decimal.Decimal
	AmountMinor int64
	UsedMinutes int
}

var msPerMinute = int64(time.Minute / time.Millisecond)

// PlanSettlement computes what to settle for a segment authorized at
// authorizedAt once finalEnd is known. Usage is capped at the requested
// duration: the client never authorized more than maxPrice, so overrun
// beyond the window needs a new request, never a bigger charge. Partial
// minutes bill as whole minutes (ceiling), matching the stated per-minute
// rate; the same rounding applies on every path.
func PlanSettlement(
	authorizedAt time.Time,
	requestedMinutes int,
	maxPrice decimal.Decimal,
	finalEnd time.Time,
	minChargeMinor int64,
) SettlementPlan {
	usedMs := finalEnd.Sub(authorizedAt).Milliseconds()
	if usedMs < 0 {
		usedMs = 0
	}
	capMs := int64(requestedMinutes) * msPerMinute
	if usedMs > capMs {
		usedMs = capMs
	}
	usedMinutes := int((usedMs + msPerMinute - 1) / msPerMinute)

	if usedMinutes == 0 || maxPrice.IsZero() {
		return SettlementPlan{Action: ActionRelease, Amount: decimal.Zero, UsedMinutes: usedMinutes}
	}

	var amount decimal.Decimal
	action := ActionFullCapture
	if usedMinutes < requestedMinutes {
		perMinute := maxPrice.Div(decimal.NewFromInt(int64(requestedMinutes)))
		amount = perMinute.Mul(decimal.NewFromInt(int64(usedMinutes))).Round(2)
		action = ActionPartialCapture
	} else {
		amount = maxPrice
	}

	amountMinor := MinorUnits(amount)
	if amountMinor < minChargeMinor {
		return SettlementPlan{Action: ActionRelease, Amount: decimal.Zero, UsedMinutes: usedMinutes}
	}
	return SettlementPlan{
		Action:      action,
		Amount:      amount,
		AmountMinor: amountMinor,
		UsedMinutes: usedMinutes,
	}
}

// MinorUnits converts a two-decimal major amount into gateway minor units.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// SettlementEngine resolves an authorized segment's hold via the gateway
// and stamps segment + payment rows through the repositories it is handed,
// which are expected to be bound to the caller's transaction.
type SettlementEngine struct {
	gateway gateway.PaymentGateway
	logger  *zap.Logger
}

func NewSettlementEngine(gw gateway.PaymentGateway, logger *zap.Logger) *SettlementEngine {
	return &SettlementEngine{gateway: gw, logger: logger}
}

// SettlementResult reports how a segment was finalized. GatewayErr is set
// when the external call failed; the segment and payment are then durably
// marked failed, distinguishable from "never attempted".
type SettlementResult struct {
	Segment    *models.OvertimeSegment
	Plan       SettlementPlan
	GatewayErr error
}

// Settle runs the usage algorithm against a locked, authorized, unfinalized
// segment and folds the gateway outcome back into the same transaction.
func (e *SettlementEngine) Settle(
	ctx context.Context,
	segmentRepo *repository.SegmentRepository,
	paymentRepo *repository.PaymentRepository,
	segment *models.OvertimeSegment,
	finalEnd time.Time,
) (*SettlementResult, error) {
	if segment.Status != models.SegmentAuthorized || segment.FinalizedAt != nil ||
		segment.AuthorizedAt == nil || segment.PaymentHoldRef == nil {
		return nil, ErrRecordInconsistency
	}

	payment, err := paymentRepo.GetBySegmentIDForUpdate(ctx, segment.ID)
	if err != nil {
		if noRows(err) {
			return nil, ErrRecordInconsistency
		}
		return nil, err
	}

	plan := PlanSettlement(
		*segment.AuthorizedAt,
		segment.RequestedDuration,
		segment.CalculatedMaxPrice,
		finalEnd,
		e.gateway.MinimumChargeMinor(segment.Currency),
	)

	e.logger.Info("settling overtime segment",
		zap.String("segment_id", segment.ID),
		zap.Int64("session_id", segment.SessionID),
		zap.String("action", string(plan.Action)),
		zap.Int("used_minutes", plan.UsedMinutes),
		zap.String("amount", plan.Amount.StringFixed(2)),
	)

	holdRef := *segment.PaymentHoldRef
	switch plan.Action {
	case ActionRelease:
		if gwErr := e.gateway.Release(ctx, holdRef); gwErr != nil {
			return e.recordFailure(ctx, segmentRepo, paymentRepo, segment, payment, plan, finalEnd, gwErr)
		}
		return e.recordSuccess(ctx, segmentRepo, paymentRepo, segment, payment, plan, finalEnd,
			models.SegmentReleased, models.PaymentCancelled, decimal.Zero, nil)
	default:
		capture, gwErr := e.gateway.Capture(ctx, holdRef, plan.AmountMinor)
		if gwErr != nil {
			return e.recordFailure(ctx, segmentRepo, paymentRepo, segment, payment, plan, finalEnd, gwErr)
		}
		segmentStatus := models.SegmentCaptured
		paymentStatus := models.PaymentCompleted
		if plan.Action == ActionPartialCapture {
			segmentStatus = models.SegmentPartiallyCaptured
			paymentStatus = models.PaymentPartiallyRefunded
		}
		return e.recordSuccess(ctx, segmentRepo, paymentRepo, segment, payment, plan, finalEnd,
			segmentStatus, paymentStatus, plan.Amount, &capture.ChargeRef)
	}
}

func (e *SettlementEngine) recordSuccess(
	ctx context.Context,
	segmentRepo *repository.SegmentRepository,
	paymentRepo *repository.PaymentRepository,
	segment *models.OvertimeSegment,
	payment *models.Payment,
	plan SettlementPlan,
	finalizedAt time.Time,
	segmentStatus models.SegmentStatus,
	paymentStatus models.PaymentStatus,
	captured decimal.Decimal,
	chargeRef *string,
) (*SettlementResult, error) {
	finalized, err := segmentRepo.Finalize(ctx, segment.ID, segmentStatus, models.CaptureResult{
		Status:         gatewayStatus(segmentStatus),
		CapturedAmount: captured,
		ChargeRef:      chargeRef,
	}, finalizedAt)
	if err != nil {
		if noRows(err) {
			return nil, ErrRecordInconsistency
		}
		return nil, err
	}
	if _, err := paymentRepo.RecordSettlement(ctx, payment.ID, paymentStatus, captured, chargeRef, nil); err != nil {
		if noRows(err) {
			return nil, ErrRecordInconsistency
		}
		return nil, err
	}
	return &SettlementResult{Segment: finalized, Plan: plan}, nil
}

func (e *SettlementEngine) recordFailure(
	ctx context.Context,
	segmentRepo *repository.SegmentRepository,
	paymentRepo *repository.PaymentRepository,
	segment *models.OvertimeSegment,
	payment *models.Payment,
	plan SettlementPlan,
	finalizedAt time.Time,
	gwErr error,
) (*SettlementResult, error) {
	e.logger.Error("gateway settlement call failed",
		zap.String("segment_id", segment.ID),
		zap.String("hold_ref", *segment.PaymentHoldRef),
		zap.Error(gwErr),
	)
	msg := gwErr.Error()
	finalized, err := segmentRepo.Finalize(ctx, segment.ID, models.SegmentFailed, models.CaptureResult{
		Status: gateway.StatusFailed,
		Error:  &msg,
	}, finalizedAt)
	if err != nil {
		if noRows(err) {
			return nil, ErrRecordInconsistency
		}
		return nil, err
	}
	if _, err := paymentRepo.RecordSettlement(ctx, payment.ID, models.PaymentFailed, decimal.Zero, nil, &msg); err != nil {
		if noRows(err) {
			return nil, ErrRecordInconsistency
		}
		return nil, err
	}
	return &SettlementResult{Segment: finalized, Plan: plan, GatewayErr: gwErr}, nil
}

func gatewayStatus(status models.SegmentStatus) string {
	if status == models.SegmentReleased {
		return gateway.StatusCanceled
	}
	return gateway.StatusSucceeded
}
