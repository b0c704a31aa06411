package models

import "time"

// HeartbeatStatus is the supervisor's status record, rewritten atomically to
// the heartbeat file every interval. Readers tolerate absence and stale reads.
type HeartbeatStatus struct {
	Timestamp         int64     `json:"ts"` // Unix seconds of last write
	SupervisorPID     int       `json:"supervisor_pid"`
	SupervisorRunning bool      `json:"supervisor_running"`
	StartTime         time.Time `json:"start_time"`
	RestartCount      int       `json:"restart_count"`
	InternetOnline    bool      `json:"internet_online"`
	ChildRunning      bool      `json:"child_running"`
	ChildPID          int       `json:"child_pid"`
	ChildExitCode     int       `json:"child_exit_code"`
	LastExitTime      time.Time `json:"last_exit_time,omitzero"`
}
