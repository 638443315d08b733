package logger_wrapper

import "time"

type LogEntry struct {
	Msg       string
	Name      string // имя блокировки, если запись относится к ней
	Args      any
	Result    any
	Error     error
	Component string
	Method    string
	Start     *time.Time
}
