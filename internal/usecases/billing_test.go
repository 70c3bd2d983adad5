package usecases

import (
	"context"
	"testing"
	"time"

	"botfleet/internal/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreshBotNotChargedOnFirstDay(t *testing.T) {
	s := newStack(t)
	owner := s.addOwner(t, 60000)
	ctx := context.Background()

	// Full creation flow: fee settled, bot spawned.
	_, err := s.billing.ChargeCreationFee(ctx, owner.ID, 1)
	require.NoError(t, err)
	bot := s.newRunningBot(t, owner.ID)

	created := s.getBot(t, bot.ID)
	assert.Equal(t, s.clock.Now(), created.LastPaymentDate)
	assert.Equal(t, s.clock.Now().Add(24*time.Hour), created.NextPaymentDate)

	// The first hourly pass after creation must not take the daily fee on top
	// of the creation fee.
	s.clock.Advance(time.Hour)
	require.NoError(t, s.billing.CheckDailyPayments(ctx))
	assert.Equal(t, int64(10000), s.getOwner(t, owner.ID).Balance)
	assert.Equal(t, created.NextPaymentDate, s.getBot(t, bot.ID).NextPaymentDate)

	// A day later the regular charge lands.
	s.clock.Advance(24 * time.Hour)
	require.NoError(t, s.billing.CheckDailyPayments(ctx))
	assert.Equal(t, int64(9000), s.getOwner(t, owner.ID).Balance)
}

func TestDailyChargeDebitsAndAdvances(t *testing.T) {
	s := newStack(t)
	owner := s.addOwner(t, 1000)
	bot := s.newRunningBot(t, owner.ID)

	s.clock.Advance(25 * time.Hour) // past next_payment_date
	require.NoError(t, s.billing.CheckDailyPayments(context.Background()))

	assert.Equal(t, int64(0), s.getOwner(t, owner.ID).Balance)
	assert.Equal(t, int64(1000), s.getOwner(t, owner.ID).TotalSpent)

	got := s.getBot(t, bot.ID)
	assert.Equal(t, entities.StatusRunning, got.Status)
	assert.Equal(t, s.clock.Now(), got.LastPaymentDate)
	assert.Equal(t, s.clock.Now().Add(24*time.Hour), got.NextPaymentDate)

	payments, err := s.store.ListPayments(context.Background(), 0)
	require.NoError(t, err)
	var daily *entities.Payment
	for _, p := range payments {
		if p.Type == entities.PaymentDailyFee {
			daily = p
		}
	}
	require.NotNil(t, daily)
	assert.Equal(t, entities.PaymentCompleted, daily.Status)
	assert.Equal(t, bot.ID, daily.BotID)
}

func TestDailyChargeIsIdempotentPerDay(t *testing.T) {
	s := newStack(t)
	owner := s.addOwner(t, 5000)
	s.newRunningBot(t, owner.ID)

	s.clock.Advance(25 * time.Hour)
	require.NoError(t, s.billing.CheckDailyPayments(context.Background()))
	require.NoError(t, s.billing.CheckDailyPayments(context.Background()))

	// One debit, not two.
	assert.Equal(t, int64(4000), s.getOwner(t, owner.ID).Balance)
}

func TestInsufficientBalanceSuspends(t *testing.T) {
	s := newStack(t)
	owner := s.addOwner(t, 500) // below the 1000 daily fee
	bot := s.newRunningBot(t, owner.ID)

	s.clock.Advance(25 * time.Hour)
	require.NoError(t, s.billing.CheckDailyPayments(context.Background()))

	got := s.getBot(t, bot.ID)
	assert.Equal(t, entities.StatusSuspended, got.Status)
	assert.Equal(t, s.clock.Now().Add(testSuspendGraceDays*24*time.Hour), got.DeletionDueAt)
	// Balance untouched by the failed debit.
	assert.Equal(t, int64(500), s.getOwner(t, owner.ID).Balance)
	assert.NotEmpty(t, s.notifier.messages())
	assert.Nil(t, s.supervisor.Process(bot.ID))
}

func TestPaymentDuringGraceReinstates(t *testing.T) {
	s := newStack(t)
	owner := s.addOwner(t, 500)
	bot := s.newRunningBot(t, owner.ID)

	s.clock.Advance(25 * time.Hour)
	require.NoError(t, s.billing.CheckDailyPayments(context.Background()))
	require.Equal(t, entities.StatusSuspended, s.getBot(t, bot.ID).Status)

	// Owner tops up; next pass finds the fee covered.
	ownerRow := s.getOwner(t, owner.ID)
	ownerRow.Balance += 2000
	require.NoError(t, s.store.UpdateOwner(context.Background(), ownerRow))

	require.NoError(t, s.billing.CheckDailyPayments(context.Background()))

	got := s.getBot(t, bot.ID)
	assert.Equal(t, entities.StatusRunning, got.Status)
	assert.True(t, got.SuspendedAt.IsZero())
	assert.NotNil(t, s.supervisor.Process(bot.ID))
	assert.Equal(t, int64(1500), s.getOwner(t, owner.ID).Balance)
}

func TestGraceExpiryMarksForDeletion(t *testing.T) {
	s := newStack(t)
	owner := s.addOwner(t, 500)
	bot := s.newRunningBot(t, owner.ID)

	s.clock.Advance(25 * time.Hour)
	require.NoError(t, s.billing.CheckDailyPayments(context.Background()))
	require.Equal(t, entities.StatusSuspended, s.getBot(t, bot.ID).Status)

	s.clock.Advance((testSuspendGraceDays*24 + 1) * time.Hour)
	require.NoError(t, s.billing.CheckDailyPayments(context.Background()))

	got := s.getBot(t, bot.ID)
	assert.Equal(t, entities.StatusPendingDeletion, got.Status)
	assert.Equal(t, s.clock.Now(), got.DeleteMarkedAt)
}

func TestRemindersFireOnConfiguredDaysOnce(t *testing.T) {
	s := newStack(t)
	owner := s.addOwner(t, 500)
	bot := s.newRunningBot(t, owner.ID)

	s.clock.Advance(25 * time.Hour)
	require.NoError(t, s.billing.CheckDailyPayments(context.Background()))
	base := len(s.notifier.messages()) // suspension notice

	// 12 days into the 15-day grace window: 3 days left, reminder due.
	s.clock.Advance(12 * 24 * time.Hour)
	require.NoError(t, s.billing.CheckDailyPayments(context.Background()))
	assert.Len(t, s.notifier.messages(), base+1)

	// Same day again: no duplicate.
	s.clock.Advance(time.Hour)
	require.NoError(t, s.billing.CheckDailyPayments(context.Background()))
	assert.Len(t, s.notifier.messages(), base+1)

	// Two days left is not a configured offset.
	s.clock.Advance(23 * time.Hour)
	require.NoError(t, s.billing.CheckDailyPayments(context.Background()))
	assert.Len(t, s.notifier.messages(), base+1)

	// One day left: second reminder.
	s.clock.Advance(24 * time.Hour)
	require.NoError(t, s.billing.CheckDailyPayments(context.Background()))
	assert.Len(t, s.notifier.messages(), base+2)

	assert.Equal(t, entities.StatusSuspended, s.getBot(t, bot.ID).Status)
}

func TestChargeAndRefundCreationFee(t *testing.T) {
	s := newStack(t)
	owner := s.addOwner(t, 60000)
	ctx := context.Background()

	p, err := s.billing.ChargeCreationFee(ctx, owner.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), p.Amount)
	assert.Equal(t, int64(10000), s.getOwner(t, owner.ID).Balance)
	assert.Equal(t, int64(50000), s.getOwner(t, owner.ID).TotalSpent)

	s.billing.RefundCreationFee(ctx, p)
	assert.Equal(t, int64(60000), s.getOwner(t, owner.ID).Balance)
	assert.Equal(t, int64(0), s.getOwner(t, owner.ID).TotalSpent)

	refunded, err := s.store.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.PaymentFailed, refunded.Status)
}

func TestCreationFeeInsufficientBalance(t *testing.T) {
	s := newStack(t)
	owner := s.addOwner(t, 100)

	_, err := s.billing.ChargeCreationFee(context.Background(), owner.ID, 1)
	assert.ErrorIs(t, err, entities.ErrInsufficientBalance)
	assert.Equal(t, int64(100), s.getOwner(t, owner.ID).Balance)
}

func TestApproveTopupCreditsAndReinstates(t *testing.T) {
	s := newStack(t)
	owner := s.addOwner(t, 500)
	bot := s.newRunningBot(t, owner.ID)
	ctx := context.Background()

	s.clock.Advance(25 * time.Hour)
	require.NoError(t, s.billing.CheckDailyPayments(ctx))
	require.Equal(t, entities.StatusSuspended, s.getBot(t, bot.ID).Status)

	topup, err := s.billing.CreateTopup(ctx, owner.ID, 10000, "card")
	require.NoError(t, err)
	assert.Equal(t, entities.PaymentPending, topup.Status)
	// Pending payments do not touch the balance.
	assert.Equal(t, int64(500), s.getOwner(t, owner.ID).Balance)

	require.NoError(t, s.billing.ApprovePayment(ctx, topup.ID))

	// Credited 10000, then the suspended bot's fee was taken out.
	assert.Equal(t, int64(9500), s.getOwner(t, owner.ID).Balance)
	assert.Equal(t, entities.StatusRunning, s.getBot(t, bot.ID).Status)

	// Approval is not repeatable.
	assert.Error(t, s.billing.ApprovePayment(ctx, topup.ID))
}

func TestGenerateDailyReport(t *testing.T) {
	s := newStack(t)
	owner := s.addOwner(t, 10000)
	s.newRunningBot(t, owner.ID)

	s.clock.Advance(25 * time.Hour)
	require.NoError(t, s.billing.CheckDailyPayments(context.Background()))

	// This signup lands "yesterday" relative to the report; the first owner
	// predates the window.
	s.addOwner(t, 500)

	// The charge lands "yesterday" relative to the report run a day later.
	s.clock.Advance(24 * time.Hour)
	report, err := s.billing.GenerateDailyReport(context.Background(), []int64{42})
	require.NoError(t, err)

	assert.Equal(t, int64(1000), report.Revenue)
	assert.Equal(t, 1, report.Payments)
	assert.Equal(t, 1, report.Running)
	assert.Equal(t, 1, report.TotalBots)
	assert.Equal(t, 2, report.TotalUsers)
	assert.Equal(t, 1, report.NewUsers)
}
