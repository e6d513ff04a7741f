package config

import "time"

const (
	// Invoice expiry sweep interval
	ExpirySweepInterval = 60 * time.Second

	// Stuck-job gauge refresh interval
	HealthRefreshInterval = 30 * time.Second

	// Redis channel for claim nudges
	NudgeChannel = "notification_jobs:enqueued"

	// Telegram message hard limit
	MaxAlertLen = 4096

	// Mail provider request timeout
	MailerTimeout = 30 * time.Second

	// Actor recorded for automatic transitions
	SystemActor = "system"
)
