package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bizclaw/bizclaw/internal/domain/entity"
	"github.com/bizclaw/bizclaw/internal/domain/repository"
	"github.com/bizclaw/bizclaw/internal/infrastructure/persistence/models"
	domainErrors "github.com/bizclaw/bizclaw/pkg/errors"
	"gorm.io/gorm"
)

// GormAgentLinkRepository is the GORM-backed AgentLinkRepository.
type GormAgentLinkRepository struct {
	db *gorm.DB
}

func NewGormAgentLinkRepository(db *gorm.DB) repository.AgentLinkRepository {
	return &GormAgentLinkRepository{db: db}
}

func (r *GormAgentLinkRepository) FindByID(ctx context.Context, id string) (*entity.AgentLink, error) {
	var m models.AgentLinkModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.New(domainErrors.KindNotFound, "agent link not found", err)
		}
		return nil, domainErrors.New(domainErrors.KindDatabase, "failed to find agent link", err)
	}
	return toAgentLinkEntity(&m), nil
}

func (r *GormAgentLinkRepository) FindBetween(ctx context.Context, source, target string) (*entity.AgentLink, error) {
	var m models.AgentLinkModel
	query := r.db.WithContext(ctx).Where(
		"(source = ? AND target = ?) OR (source = ? AND target = ?)",
		source, target, target, source,
	)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.New(domainErrors.KindNotFound, "agent link not found", err)
		}
		return nil, domainErrors.New(domainErrors.KindDatabase, "failed to find agent link", err)
	}
	return toAgentLinkEntity(&m), nil
}

func (r *GormAgentLinkRepository) FindAll(ctx context.Context) ([]*entity.AgentLink, error) {
	var list []models.AgentLinkModel
	if err := r.db.WithContext(ctx).Find(&list).Error; err != nil {
		return nil, domainErrors.New(domainErrors.KindDatabase, "failed to find agent links", err)
	}
	links := make([]*entity.AgentLink, 0, len(list))
	for _, m := range list {
		links = append(links, toAgentLinkEntity(&m))
	}
	return links, nil
}

func (r *GormAgentLinkRepository) Save(ctx context.Context, link *entity.AgentLink) error {
	var settingsJSON []byte
	if link.Settings != nil {
		settingsJSON, _ = json.Marshal(link.Settings)
	}
	m := &models.AgentLinkModel{
		ID:            link.ID,
		Source:        link.Source,
		Target:        link.Target,
		Direction:     string(link.Direction),
		MaxConcurrent: link.MaxConcurrent,
		Settings:      string(settingsJSON),
		CreatedAt:     link.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return domainErrors.New(domainErrors.KindDatabase, "failed to save agent link", err)
	}
	return nil
}

func (r *GormAgentLinkRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.AgentLinkModel{}, "id = ?", id)
	if result.Error != nil {
		return domainErrors.New(domainErrors.KindDatabase, "failed to delete agent link", result.Error)
	}
	if result.RowsAffected == 0 {
		return domainErrors.New(domainErrors.KindNotFound, "agent link not found", nil)
	}
	return nil
}

func toAgentLinkEntity(m *models.AgentLinkModel) *entity.AgentLink {
	var settings map[string]interface{}
	if m.Settings != "" {
		_ = json.Unmarshal([]byte(m.Settings), &settings)
	}
	return &entity.AgentLink{
		ID:            m.ID,
		Source:        m.Source,
		Target:        m.Target,
		Direction:     entity.ParseLinkDirection(m.Direction),
		MaxConcurrent: m.MaxConcurrent,
		Settings:      settings,
		CreatedAt:     m.CreatedAt,
	}
}

// GormDelegationRepository is the GORM-backed DelegationRepository.
type GormDelegationRepository struct {
	db *gorm.DB
}

func NewGormDelegationRepository(db *gorm.DB) repository.DelegationRepository {
	return &GormDelegationRepository{db: db}
}

func (r *GormDelegationRepository) FindByID(ctx context.Context, id string) (*entity.Delegation, error) {
	var m models.DelegationModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.New(domainErrors.KindNotFound, "delegation not found", err)
		}
		return nil, domainErrors.New(domainErrors.KindDatabase, "failed to find delegation", err)
	}
	return toDelegationEntity(&m), nil
}

func (r *GormDelegationRepository) FindPendingByTarget(ctx context.Context, target string) ([]*entity.Delegation, error) {
	var list []models.DelegationModel
	if err := r.db.WithContext(ctx).Where("\"to\" = ? AND status = ?", target, string(entity.DelegationPending)).Find(&list).Error; err != nil {
		return nil, domainErrors.New(domainErrors.KindDatabase, "failed to find pending delegations", err)
	}
	return toDelegationEntities(list), nil
}

// ActiveDelegationCount counts delegations targeting "to" that are still
// pending or running, used by the Orchestrator to gate against overloading
// a target agent past an AgentLink's max_concurrent.
func (r *GormDelegationRepository) ActiveDelegationCount(ctx context.Context, to string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.DelegationModel{}).
		Where("\"to\" = ? AND status IN ?", to, []string{string(entity.DelegationPending), string(entity.DelegationRunning)}).
		Count(&count).Error
	if err != nil {
		return 0, domainErrors.New(domainErrors.KindDatabase, "failed to count active delegations", err)
	}
	return count, nil
}

func (r *GormDelegationRepository) FindBySession(ctx context.Context, sessionID string) ([]*entity.Delegation, error) {
	var list []models.DelegationModel
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Find(&list).Error; err != nil {
		return nil, domainErrors.New(domainErrors.KindDatabase, "failed to find delegations for session", err)
	}
	return toDelegationEntities(list), nil
}

func (r *GormDelegationRepository) Save(ctx context.Context, d *entity.Delegation) error {
	m := &models.DelegationModel{
		ID:          d.ID(),
		SessionID:   d.SessionID(),
		From:        d.From(),
		To:          d.To(),
		Mode:        string(d.Mode()),
		Status:      string(d.Status()),
		Task:        d.Task(),
		Result:      d.Result(),
		Error:       d.ErrorMessage(),
		CreatedAt:   d.CreatedAt(),
		CompletedAt: d.CompletedAt(),
	}
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return domainErrors.New(domainErrors.KindDatabase, "failed to save delegation", err)
	}
	return nil
}

func (r *GormDelegationRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.DelegationModel{}, "id = ?", id)
	if result.Error != nil {
		return domainErrors.New(domainErrors.KindDatabase, "failed to delete delegation", result.Error)
	}
	if result.RowsAffected == 0 {
		return domainErrors.New(domainErrors.KindNotFound, "delegation not found", nil)
	}
	return nil
}

func toDelegationEntities(list []models.DelegationModel) []*entity.Delegation {
	out := make([]*entity.Delegation, 0, len(list))
	for _, m := range list {
		out = append(out, toDelegationEntity(&m))
	}
	return out
}

func toDelegationEntity(m *models.DelegationModel) *entity.Delegation {
	return entity.ReconstructDelegation(
		m.ID, m.SessionID, m.From, m.To, entity.DelegationMode(m.Mode),
		entity.DelegationStatus(m.Status), m.Task, m.Result, m.Error,
		m.CreatedAt, m.CompletedAt,
	)
}

// GormHandoffRepository is the GORM-backed HandoffRepository.
type GormHandoffRepository struct {
	db *gorm.DB
}

func NewGormHandoffRepository(db *gorm.DB) repository.HandoffRepository {
	return &GormHandoffRepository{db: db}
}

func (r *GormHandoffRepository) FindActiveBySession(ctx context.Context, sessionID string) (*entity.Handoff, error) {
	var m models.HandoffModel
	err := r.db.WithContext(ctx).Where("session_id = ? AND active = ?", sessionID, true).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.New(domainErrors.KindNotFound, "handoff not found", err)
		}
		return nil, domainErrors.New(domainErrors.KindDatabase, "failed to find handoff", err)
	}
	return &entity.Handoff{
		ID: m.ID, From: m.From, To: m.To, SessionID: m.SessionID,
		Reason: m.Reason, ContextSummary: m.ContextSummary, Active: m.Active, CreatedAt: m.CreatedAt,
	}, nil
}

func (r *GormHandoffRepository) Save(ctx context.Context, h *entity.Handoff) error {
	m := &models.HandoffModel{
		ID: h.ID, SessionID: h.SessionID, From: h.From, To: h.To,
		Reason: h.Reason, ContextSummary: h.ContextSummary, Active: h.Active, CreatedAt: h.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return domainErrors.New(domainErrors.KindDatabase, "failed to save handoff", err)
	}
	return nil
}

func (r *GormHandoffRepository) DeactivateBySession(ctx context.Context, sessionID string) error {
	err := r.db.WithContext(ctx).Model(&models.HandoffModel{}).
		Where("session_id = ? AND active = ?", sessionID, true).
		Update("active", false).Error
	if err != nil {
		return domainErrors.New(domainErrors.KindDatabase, "failed to deactivate handoff", err)
	}
	return nil
}

// CreateActive deactivates every prior active handoff for the session and
// inserts h inside one transaction, so a concurrent reader never observes
// two active rows for the same session.
func (r *GormHandoffRepository) CreateActive(ctx context.Context, h *entity.Handoff) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.HandoffModel{}).
			Where("session_id = ? AND active = ?", h.SessionID, true).
			Update("active", false).Error; err != nil {
			return err
		}
		m := &models.HandoffModel{
			ID: h.ID, SessionID: h.SessionID, From: h.From, To: h.To,
			Reason: h.Reason, ContextSummary: h.ContextSummary, Active: h.Active, CreatedAt: h.CreatedAt,
		}
		return tx.Save(m).Error
	})
	if err != nil {
		return domainErrors.New(domainErrors.KindDatabase, "failed to create handoff", err)
	}
	return nil
}

// GormLlmTraceRepository is the GORM-backed LlmTraceRepository.
type GormLlmTraceRepository struct {
	db *gorm.DB
}

func NewGormLlmTraceRepository(db *gorm.DB) repository.LlmTraceRepository {
	return &GormLlmTraceRepository{db: db}
}

func (r *GormLlmTraceRepository) Save(ctx context.Context, t *entity.LlmTrace) error {
	metaJSON, _ := json.Marshal(t.Metadata)
	m := &models.LlmTraceModel{
		ID: t.ID, Agent: t.Agent, Provider: t.Provider, Model: t.Model,
		PromptTokens: t.PromptTokens, CompletionTokens: t.CompletionTokens, TotalTokens: t.TotalTokens,
		LatencyMS: t.LatencyMS, CacheHitTokens: t.CacheHitTokens, CacheReadTokens: t.CacheReadTokens,
		CacheWriteTokens: t.CacheWriteTokens, Status: t.Status, Error: t.Error,
		Metadata: string(metaJSON), CreatedAt: t.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return domainErrors.New(domainErrors.KindDatabase, "failed to save llm trace", err)
	}
	return nil
}

func (r *GormLlmTraceRepository) FindByAgent(ctx context.Context, agent string, limit int) ([]*entity.LlmTrace, error) {
	var list []models.LlmTraceModel
	query := r.db.WithContext(ctx).Where("agent = ?", agent).Order("created_at desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&list).Error; err != nil {
		return nil, domainErrors.New(domainErrors.KindDatabase, "failed to find llm traces", err)
	}
	traces := make([]*entity.LlmTrace, 0, len(list))
	for _, m := range list {
		var meta map[string]interface{}
		if m.Metadata != "" {
			_ = json.Unmarshal([]byte(m.Metadata), &meta)
		}
		traces = append(traces, &entity.LlmTrace{
			ID: m.ID, Agent: m.Agent, Provider: m.Provider, Model: m.Model,
			PromptTokens: m.PromptTokens, CompletionTokens: m.CompletionTokens, TotalTokens: m.TotalTokens,
			LatencyMS: m.LatencyMS, CacheHitTokens: m.CacheHitTokens, CacheReadTokens: m.CacheReadTokens,
			CacheWriteTokens: m.CacheWriteTokens, Status: m.Status, Error: m.Error,
			Metadata: meta, CreatedAt: m.CreatedAt,
		})
	}
	return traces, nil
}

func (r *GormLlmTraceRepository) SumTokensSince(ctx context.Context, sinceUnix int64) (int64, error) {
	var total int64
	since := time.Unix(sinceUnix, 0).UTC()
	row := r.db.WithContext(ctx).Model(&models.LlmTraceModel{}).
		Where("created_at >= ?", since).
		Select("COALESCE(SUM(total_tokens), 0)").Row()
	if err := row.Scan(&total); err != nil {
		return 0, domainErrors.New(domainErrors.KindDatabase, "failed to sum tokens", err)
	}
	return total, nil
}

func (r *GormLlmTraceRepository) ListRecent(ctx context.Context, limit int) ([]*entity.LlmTrace, error) {
	if limit <= 0 {
		limit = 100
	}
	var list []models.LlmTraceModel
	if err := r.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&list).Error; err != nil {
		return nil, domainErrors.New(domainErrors.KindDatabase, "failed to list llm traces", err)
	}
	traces := make([]*entity.LlmTrace, 0, len(list))
	for _, m := range list {
		var meta map[string]interface{}
		if m.Metadata != "" {
			_ = json.Unmarshal([]byte(m.Metadata), &meta)
		}
		traces = append(traces, &entity.LlmTrace{
			ID: m.ID, Agent: m.Agent, Provider: m.Provider, Model: m.Model,
			PromptTokens: m.PromptTokens, CompletionTokens: m.CompletionTokens, TotalTokens: m.TotalTokens,
			LatencyMS: m.LatencyMS, CacheHitTokens: m.CacheHitTokens, CacheReadTokens: m.CacheReadTokens,
			CacheWriteTokens: m.CacheWriteTokens, Status: m.Status, Error: m.Error,
			Metadata: meta, CreatedAt: m.CreatedAt,
		})
	}
	return traces, nil
}

func (r *GormLlmTraceRepository) CostByModel(ctx context.Context, sinceUnix int64) ([]*entity.ModelCostSummary, error) {
	since := time.Unix(sinceUnix, 0).UTC()
	var rows []struct {
		Provider         string
		Model            string
		Calls            int64
		PromptTokens     int64
		CompletionTokens int64
		TotalTokens      int64
	}
	err := r.db.WithContext(ctx).Model(&models.LlmTraceModel{}).
		Select("provider, model, COUNT(*) AS calls, COALESCE(SUM(prompt_tokens),0) AS prompt_tokens, "+
			"COALESCE(SUM(completion_tokens),0) AS completion_tokens, COALESCE(SUM(total_tokens),0) AS total_tokens").
		Where("created_at >= ?", since).
		Group("provider, model").
		Scan(&rows).Error
	if err != nil {
		return nil, domainErrors.New(domainErrors.KindDatabase, "failed to aggregate trace cost", err)
	}
	summaries := make([]*entity.ModelCostSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, &entity.ModelCostSummary{
			Provider: row.Provider, Model: row.Model, Calls: row.Calls,
			PromptTokens: row.PromptTokens, CompletionTokens: row.CompletionTokens, TotalTokens: row.TotalTokens,
		})
	}
	return summaries, nil
}
