package scheduler

import "time"

// Kind identifies a job type. The set is closed: there is no dynamic job
// registration at runtime beyond attaching handlers for the kinds below.
type Kind int

const (
	KindCheckDailyPayments Kind = iota
	KindCheckBotHealth
	KindMonitorPerformance
	KindCollectAnalytics
	KindCleanupFiles
	KindDailyCleanup
	KindGenerateDailyReport
	KindCheckSystemHealth
	KindWeeklyCleanup
	KindStartBot
	KindStopBot
	KindRestartBot
	KindDeleteBot
	KindSettlePayment
	KindEmergencyCleanup
)

var kindNames = map[Kind]string{
	KindCheckDailyPayments:  "check_daily_payments",
	KindCheckBotHealth:      "check_bot_health",
	KindMonitorPerformance:  "monitor_performance",
	KindCollectAnalytics:    "collect_analytics",
	KindCleanupFiles:        "cleanup_files",
	KindDailyCleanup:        "daily_cleanup",
	KindGenerateDailyReport: "generate_daily_report",
	KindCheckSystemHealth:   "check_system_health",
	KindWeeklyCleanup:       "weekly_cleanup",
	KindStartBot:            "start_bot",
	KindStopBot:             "stop_bot",
	KindRestartBot:          "restart_bot",
	KindDeleteBot:           "delete_bot",
	KindSettlePayment:       "settle_payment",
	KindEmergencyCleanup:    "emergency_cleanup",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Queue names.
const (
	QueuePayments   = "payments"
	QueueMonitoring = "monitoring"
	QueueCleanup    = "cleanup"
)

// Schedule describes when a periodic job fires: a fixed interval or a
// wall-clock cron spec (standard five-field format). Ad-hoc kinds leave both
// zero.
type Schedule struct {
	Every time.Duration
	Cron  string
}

func (s Schedule) periodic() bool { return s.Every > 0 || s.Cron != "" }

// targetKind namespaces the serialization key so jobs aimed at the same bot
// stay ordered across kinds, while payment settlements key on the payment row.
type targetKind string

const (
	targetNone    targetKind = ""
	targetBot     targetKind = "bot"
	targetPayment targetKind = "payment"
)

// registration is one row of the dispatch table: static metadata for a kind,
// plus the handler attached at wiring time.
type registration struct {
	kind       Kind
	queue      string
	schedule   Schedule
	target     targetKind
	priority   int
	maxRetries int
	handler    Handler
}

// catalog fixes queue, cadence, priority and retry policy per kind. Periodic
// cadence mirrors the production beat schedule; ad-hoc kinds get one automatic
// redelivery, periodic kinds rely on their next scheduled run instead.
var catalog = map[Kind]registration{
	KindCheckDailyPayments:  {kind: KindCheckDailyPayments, queue: QueuePayments, schedule: Schedule{Every: time.Hour}},
	KindCheckBotHealth:      {kind: KindCheckBotHealth, queue: QueueMonitoring, schedule: Schedule{Every: 5 * time.Minute}},
	KindMonitorPerformance:  {kind: KindMonitorPerformance, queue: QueueMonitoring, schedule: Schedule{Every: 15 * time.Minute}},
	KindCollectAnalytics:    {kind: KindCollectAnalytics, queue: QueueMonitoring, schedule: Schedule{Every: 30 * time.Minute}},
	KindCleanupFiles:        {kind: KindCleanupFiles, queue: QueueCleanup, schedule: Schedule{Every: 6 * time.Hour}},
	KindDailyCleanup:        {kind: KindDailyCleanup, queue: QueueCleanup, schedule: Schedule{Cron: "0 2 * * *"}},
	KindGenerateDailyReport: {kind: KindGenerateDailyReport, queue: QueuePayments, schedule: Schedule{Cron: "0 9 * * *"}},
	KindCheckSystemHealth:   {kind: KindCheckSystemHealth, queue: QueueMonitoring, schedule: Schedule{Every: 10 * time.Minute}},
	KindWeeklyCleanup:       {kind: KindWeeklyCleanup, queue: QueueCleanup, schedule: Schedule{Cron: "0 3 * * 0"}},

	KindStartBot:         {kind: KindStartBot, queue: QueueMonitoring, target: targetBot, maxRetries: 1},
	KindStopBot:          {kind: KindStopBot, queue: QueueMonitoring, target: targetBot, maxRetries: 1},
	KindRestartBot:       {kind: KindRestartBot, queue: QueueMonitoring, target: targetBot, priority: PriorityEmergency, maxRetries: 1},
	KindDeleteBot:        {kind: KindDeleteBot, queue: QueueMonitoring, target: targetBot, maxRetries: 1},
	KindSettlePayment:    {kind: KindSettlePayment, queue: QueuePayments, target: targetPayment, maxRetries: 1},
	KindEmergencyCleanup: {kind: KindEmergencyCleanup, queue: QueueCleanup, priority: PriorityEmergency},
}
