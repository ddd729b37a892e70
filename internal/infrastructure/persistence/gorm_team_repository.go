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

// GormTeamRepository is the GORM-backed TeamRepository, covering teams,
// their membership rows, the shared task board and the team channel.
type GormTeamRepository struct {
	db *gorm.DB
}

func NewGormTeamRepository(db *gorm.DB) repository.TeamRepository {
	return &GormTeamRepository{db: db}
}

func (r *GormTeamRepository) FindByID(ctx context.Context, id string) (*entity.AgentTeam, error) {
	var team models.TeamModel
	if err := r.db.WithContext(ctx).First(&team, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.New(domainErrors.KindNotFound, "team not found", err)
		}
		return nil, domainErrors.New(domainErrors.KindDatabase, "failed to find team", err)
	}
	var members []models.TeamMemberModel
	if err := r.db.WithContext(ctx).Where("team_id = ?", id).Find(&members).Error; err != nil {
		return nil, domainErrors.New(domainErrors.KindDatabase, "failed to find team members", err)
	}
	return toTeamEntity(&team, members), nil
}

func (r *GormTeamRepository) FindAll(ctx context.Context) ([]*entity.AgentTeam, error) {
	var teams []models.TeamModel
	if err := r.db.WithContext(ctx).Find(&teams).Error; err != nil {
		return nil, domainErrors.New(domainErrors.KindDatabase, "failed to find teams", err)
	}
	out := make([]*entity.AgentTeam, 0, len(teams))
	for _, team := range teams {
		var members []models.TeamMemberModel
		if err := r.db.WithContext(ctx).Where("team_id = ?", team.ID).Find(&members).Error; err != nil {
			return nil, domainErrors.New(domainErrors.KindDatabase, "failed to find team members", err)
		}
		out = append(out, toTeamEntity(&team, members))
	}
	return out, nil
}

func (r *GormTeamRepository) Save(ctx context.Context, team *entity.AgentTeam) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m := &models.TeamModel{ID: team.ID, Name: team.Name, Description: team.Description}
		if err := tx.Save(m).Error; err != nil {
			return domainErrors.New(domainErrors.KindDatabase, "failed to save team", err)
		}
		if err := tx.Where("team_id = ?", team.ID).Delete(&models.TeamMemberModel{}).Error; err != nil {
			return domainErrors.New(domainErrors.KindDatabase, "failed to clear team members", err)
		}
		for _, member := range team.Members {
			row := &models.TeamMemberModel{
				TeamID: team.ID, Agent: member.Agent, Role: string(member.Role), JoinedAt: member.JoinedAt,
			}
			if err := tx.Create(row).Error; err != nil {
				return domainErrors.New(domainErrors.KindDatabase, "failed to save team member", err)
			}
		}
		return nil
	})
}

func (r *GormTeamRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.TeamModel{}, "id = ?", id)
	if result.Error != nil {
		return domainErrors.New(domainErrors.KindDatabase, "failed to delete team", result.Error)
	}
	if result.RowsAffected == 0 {
		return domainErrors.New(domainErrors.KindNotFound, "team not found", nil)
	}
	return nil
}

func toTeamEntity(m *models.TeamModel, memberRows []models.TeamMemberModel) *entity.AgentTeam {
	members := make([]entity.TeamMember, 0, len(memberRows))
	for _, row := range memberRows {
		members = append(members, entity.TeamMember{
			Agent: row.Agent, Role: entity.TeamMemberRole(row.Role), JoinedAt: row.JoinedAt,
		})
	}
	return &entity.AgentTeam{ID: m.ID, Name: m.Name, Description: m.Description, Members: members}
}

func (r *GormTeamRepository) FindTask(ctx context.Context, id string) (*entity.TeamTask, error) {
	var m models.TeamTaskModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.New(domainErrors.KindNotFound, "team task not found", err)
		}
		return nil, domainErrors.New(domainErrors.KindDatabase, "failed to find team task", err)
	}
	return toTeamTaskEntity(&m), nil
}

func (r *GormTeamRepository) FindTasksByTeam(ctx context.Context, teamID string) ([]*entity.TeamTask, error) {
	var list []models.TeamTaskModel
	if err := r.db.WithContext(ctx).Where("team_id = ?", teamID).Find(&list).Error; err != nil {
		return nil, domainErrors.New(domainErrors.KindDatabase, "failed to find team tasks", err)
	}
	tasks := make([]*entity.TeamTask, 0, len(list))
	for _, m := range list {
		tasks = append(tasks, toTeamTaskEntity(&m))
	}
	return tasks, nil
}

func (r *GormTeamRepository) SaveTask(ctx context.Context, task *entity.TeamTask) error {
	blockedByJSON, _ := json.Marshal(task.BlockedBy)
	m := &models.TeamTaskModel{
		ID: task.ID, TeamID: task.TeamID, Title: task.Title, Description: task.Description,
		Status: string(task.Status), CreatedBy: task.CreatedBy, AssignedTo: task.AssignedTo,
		BlockedBy: string(blockedByJSON), Result: task.Result,
		CreatedAt: task.CreatedAt, UpdatedAt: task.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return domainErrors.New(domainErrors.KindDatabase, "failed to save team task", err)
	}
	return nil
}

// ClaimTask performs the claim as a single conditional UPDATE so that two
// concurrent callers racing on the same task can never both succeed: only
// the row that still matches status=pending AND assigned_to='' at the
// instant of the write is updated.
func (r *GormTeamRepository) ClaimTask(ctx context.Context, taskID, agentName string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.TeamTaskModel{}).
		Where("id = ? AND status = ? AND assigned_to = ?", taskID, string(entity.TeamTaskPending), "").
		Updates(map[string]interface{}{
			"assigned_to": agentName,
			"status":      string(entity.TeamTaskInProgress),
			"updated_at":  time.Now().UTC(),
		})
	if result.Error != nil {
		return false, domainErrors.New(domainErrors.KindDatabase, "failed to claim team task", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func toTeamTaskEntity(m *models.TeamTaskModel) *entity.TeamTask {
	var blockedBy []string
	if m.BlockedBy != "" {
		_ = json.Unmarshal([]byte(m.BlockedBy), &blockedBy)
	}
	return &entity.TeamTask{
		ID: m.ID, TeamID: m.TeamID, Title: m.Title, Description: m.Description,
		Status: entity.TeamTaskStatus(m.Status), CreatedBy: m.CreatedBy, AssignedTo: m.AssignedTo,
		BlockedBy: blockedBy, Result: m.Result, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func (r *GormTeamRepository) FindMessagesByTeam(ctx context.Context, teamID string, since int64) ([]*entity.TeamMessage, error) {
	var list []models.TeamMessageModel
	query := r.db.WithContext(ctx).Where("team_id = ?", teamID)
	if since > 0 {
		query = query.Where("created_at >= ?", time.Unix(since, 0).UTC())
	}
	if err := query.Order("created_at asc").Find(&list).Error; err != nil {
		return nil, domainErrors.New(domainErrors.KindDatabase, "failed to find team messages", err)
	}
	out := make([]*entity.TeamMessage, 0, len(list))
	for _, m := range list {
		out = append(out, &entity.TeamMessage{
			ID: m.ID, TeamID: m.TeamID, From: m.From, To: m.To,
			Content: m.Content, Read: m.Read, CreatedAt: m.CreatedAt,
		})
	}
	return out, nil
}

func (r *GormTeamRepository) SaveMessage(ctx context.Context, msg *entity.TeamMessage) error {
	m := &models.TeamMessageModel{
		ID: msg.ID, TeamID: msg.TeamID, From: msg.From, To: msg.To,
		Content: msg.Content, Read: msg.Read, CreatedAt: msg.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return domainErrors.New(domainErrors.KindDatabase, "failed to save team message", err)
	}
	return nil
}
