package models

import "time"

// AgentLinkModel persists one delegation permission edge.
type AgentLinkModel struct {
	ID            string `gorm:"primaryKey;size:64"`
	Source        string `gorm:"size:64;index;not null"`
	Target        string `gorm:"size:64;index;not null"`
	Direction     string `gorm:"size:16;not null"`
	MaxConcurrent int
	Settings      string `gorm:"type:text"` // JSON encoded
	CreatedAt     time.Time
}

func (AgentLinkModel) TableName() string { return "agent_links" }

// DelegationModel persists one delegated task between named agents.
type DelegationModel struct {
	ID          string `gorm:"primaryKey;size:64"`
	SessionID   string `gorm:"size:64;index;not null"`
	From        string `gorm:"size:64;index;not null"`
	To          string `gorm:"size:64;index;not null"`
	Mode        string `gorm:"size:16;not null"`
	Status      string `gorm:"size:16;index;not null"`
	Task        string `gorm:"type:text"`
	Result      string `gorm:"type:text"`
	Error       string `gorm:"type:text"`
	CreatedAt   time.Time
	CompletedAt *time.Time
}

func (DelegationModel) TableName() string { return "delegations" }

// HandoffModel persists one conversation ownership transfer.
type HandoffModel struct {
	ID             string `gorm:"primaryKey;size:64"`
	SessionID      string `gorm:"size:64;index;not null"`
	From           string `gorm:"size:64;not null"`
	To             string `gorm:"size:64;not null"`
	Reason         string `gorm:"type:text"`
	ContextSummary string `gorm:"type:text"`
	Active         bool   `gorm:"index"`
	CreatedAt      time.Time
}

func (HandoffModel) TableName() string { return "handoffs" }

// TeamModel persists an agent team's identity.
type TeamModel struct {
	ID          string `gorm:"primaryKey;size:64"`
	Name        string `gorm:"size:128;not null"`
	Description string `gorm:"type:text"`
}

func (TeamModel) TableName() string { return "teams" }

// TeamMemberModel persists one team membership row.
type TeamMemberModel struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"`
	TeamID   string `gorm:"size:64;index;not null"`
	Agent    string `gorm:"size:64;not null"`
	Role     string `gorm:"size:16;not null"`
	JoinedAt time.Time
}

func (TeamMemberModel) TableName() string { return "team_members" }

// TeamTaskModel persists one task-board entry.
type TeamTaskModel struct {
	ID          string `gorm:"primaryKey;size:64"`
	TeamID      string `gorm:"size:64;index;not null"`
	Title       string `gorm:"size:255;not null"`
	Description string `gorm:"type:text"`
	Status      string `gorm:"size:16;index;not null"`
	CreatedBy   string `gorm:"size:64"`
	AssignedTo  string `gorm:"size:64;index"`
	BlockedBy   string `gorm:"type:text"` // JSON encoded list of task IDs
	Result      string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (TeamTaskModel) TableName() string { return "team_tasks" }

// TeamMessageModel persists one message on a team's shared channel.
type TeamMessageModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	TeamID    string `gorm:"size:64;index;not null"`
	From      string `gorm:"size:64;not null"`
	To        string `gorm:"size:64;index"`
	Content   string `gorm:"type:text;not null"`
	Read      bool
	CreatedAt time.Time
}

func (TeamMessageModel) TableName() string { return "team_messages" }

// LlmTraceModel persists one LLM call's usage for cost accounting.
type LlmTraceModel struct {
	ID               string `gorm:"primaryKey;size:64"`
	Agent            string `gorm:"size:64;index"`
	Provider         string `gorm:"size:32"`
	Model            string `gorm:"size:128"`
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	LatencyMS        int64
	CacheHitTokens   int
	CacheReadTokens  int
	CacheWriteTokens int
	Status           string `gorm:"size:16"`
	Error            string `gorm:"type:text"`
	Metadata         string `gorm:"type:text"` // JSON encoded
	CreatedAt        time.Time `gorm:"index"`
}

func (LlmTraceModel) TableName() string { return "llm_traces" }
