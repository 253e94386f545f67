package types

import (
	"os"
	"strings"
	"time"
)

type TaskStatus string

const (
	TaskRunning   TaskStatus = "RUNNING"
	TaskStopped   TaskStatus = "STOPPED"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskFailed    TaskStatus = "FAILED"
)

type WriteMode string

const (
	ModeOverwrite WriteMode = "OVERWRITE"
	ModeAppend    WriteMode = "APPEND"
	ModeUpdate    WriteMode = "UPDATE"
)

type TargetType string

const (
	TargetTable TargetType = "TABLE"
	TargetTopic TargetType = "TOPIC"
)

type ExecutionStatus string

const (
	ExecutionRunning ExecutionStatus = "RUNNING"
	ExecutionSuccess ExecutionStatus = "SUCCESS"
	ExecutionFailed  ExecutionStatus = "FAILED"
	ExecutionStopped ExecutionStatus = "STOPPED"
)

type Task struct {
	ID           int64      `json:"id" yaml:"id"`
	Name         string     `json:"name" yaml:"name"`
	DataSourceID int64      `json:"data_source_id" yaml:"data_source_id"`
	TargetType   TargetType `json:"target_type" yaml:"target_type"`
	TargetName   string     `json:"target_name" yaml:"target_name"` // comma separated tables, or a topic
	WriteMode    WriteMode  `json:"write_mode" yaml:"write_mode"`
	DataFormat   string     `json:"data_format,omitempty" yaml:"data_format,omitempty"`
	Template     string     `json:"template" yaml:"template"`
	BatchSize    int        `json:"batch_size" yaml:"batch_size"`
	Frequency    int        `json:"frequency" yaml:"frequency"` // seconds between runs
	Status       TaskStatus `json:"status" yaml:"status"`
	UpdatedAt    time.Time  `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// Targets splits TargetName into trimmed, non-empty names.
func (t *Task) Targets() []string {
	var names []string
	for _, part := range strings.Split(t.TargetName, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func (t *Task) Mode() WriteMode {
	switch WriteMode(strings.ToUpper(strings.TrimSpace(string(t.WriteMode)))) {
	case ModeOverwrite:
		return ModeOverwrite
	case ModeUpdate:
		return ModeUpdate
	default:
		return ModeAppend
	}
}

func (t *Task) IsRunning() bool {
	return TaskStatus(strings.ToUpper(string(t.Status))) == TaskRunning
}

// Interval is the fixed delay between the end of one run and the start of the next.
func (t *Task) Interval() time.Duration {
	if t.Frequency <= 0 {
		return time.Second
	}
	return time.Duration(t.Frequency) * time.Second
}

type DataSource struct {
	ID          int64  `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"` // MYSQL, POSTGRESQL, SQLITE, KAFKA
	URL         string `json:"url" yaml:"url"`
	Username    string `json:"username,omitempty" yaml:"username,omitempty"`
	Password    string `json:"password,omitempty" yaml:"password,omitempty"`
	PasswordEnv string `json:"password_env,omitempty" yaml:"password_env,omitempty"`
	Driver      string `json:"driver,omitempty" yaml:"driver,omitempty"` // optional driver override, e.g. "pq"
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Provider maps the data source type onto an adapter provider name.
func (s *DataSource) Provider() string {
	switch strings.ToLower(s.Type) {
	case "mysql", "mariadb":
		return "mysql"
	case "postgresql", "postgres", "pg":
		return "postgresql"
	case "sqlite", "sqlite3":
		return "sqlite"
	case "kafka":
		return "kafka"
	default:
		return strings.ToLower(s.Type)
	}
}

func (s *DataSource) IsStream() bool {
	return s.Provider() == "kafka"
}

// Secret returns the password, resolving PasswordEnv when set.
func (s *DataSource) Secret() string {
	if s.PasswordEnv != "" {
		if v := os.Getenv(s.PasswordEnv); v != "" {
			return v
		}
	}
	return s.Password
}

type ExecutionRecord struct {
	ID           int64           `json:"id" yaml:"id"`
	TaskID       int64           `json:"task_id" yaml:"task_id"`
	StartTime    time.Time       `json:"start_time" yaml:"start_time"`
	EndTime      *time.Time      `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	Status       ExecutionStatus `json:"status" yaml:"status"`
	TotalCount   int64           `json:"total_count" yaml:"total_count"`
	SuccessCount int64           `json:"success_count" yaml:"success_count"`
	ErrorCount   int64           `json:"error_count" yaml:"error_count"`
	ErrorMessage string          `json:"error_message,omitempty" yaml:"error_message,omitempty"`
}
