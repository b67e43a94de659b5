package models

const (
	StatusPending               = "pending"
	StatusApproved              = "approved"
	StatusRejected              = "rejected"
	StatusCancelled             = "cancelled"
	StatusCancellationRequested = "cancellation_requested"
)

const (
	VisibilityPublic    = "public"
	VisibilityAnonymous = "anonymous"
)

const (
	// DefaultSessionTTL время жизни refresh-сессии, если не задано в конфиге
	DefaultSessionTTLDays = 30

	// DefaultAccessTokenTTL время жизни access-токена
	DefaultAccessTokenTTLMinutes = 15

	// DefaultBcryptCost стоимость bcrypt по умолчанию
	DefaultBcryptCost = 12

	// DefaultExportRangeMonths диапазон экспорта расписания по умолчанию
	DefaultExportRangeMonthsBefore = 1
	DefaultExportRangeMonthsAfter  = 2

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 1000

	// RateLimitRequests количество запросов в окне по умолчанию
	RateLimitRequests = 30
	RateLimitWindow   = 60 // секунды
)

// ValidStatuses enumerates every lifecycle status.
var ValidStatuses = []string{
	StatusPending,
	StatusApproved,
	StatusRejected,
	StatusCancelled,
	StatusCancellationRequested,
}

// IsValidStatus reports whether s is a known lifecycle status.
func IsValidStatus(s string) bool {
	for _, v := range ValidStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsValidVisibility reports whether v is a known visibility level.
func IsValidVisibility(v string) bool {
	return v == VisibilityPublic || v == VisibilityAnonymous
}
