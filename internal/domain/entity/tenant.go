package entity

import (
	"crypto/rand"
	"fmt"
	"time"
)

// TenantStatus 租户生命周期状态
type TenantStatus string

const (
	TenantStatusCreated TenantStatus = "created"
	TenantStatusRunning TenantStatus = "running"
	TenantStatusStopped TenantStatus = "stopped"
	TenantStatusError   TenantStatus = "error"
)

// TenantLimits 租户配额
type TenantLimits struct {
	MessagesDay int
	Channels    int
	Members     int
}

// ResourceSample 最近一次采样的资源占用
type ResourceSample struct {
	CPUPercent float64
	MemBytes   uint64
	DiskBytes  uint64
	SampledAt  time.Time
}

// Tenant 租户聚合根 — 绑定一个独立的 per-tenant agent 进程
type Tenant struct {
	id           string
	name         string
	slug         string
	status       TenantStatus
	port         int
	plan         string
	provider     string
	model        string
	limits       TenantLimits
	pairingCode  string // 空字符串表示已兑换或从未生成
	pid          int    // 0 = 未运行
	resource     ResourceSample
	ownerID      string
	createdAt    time.Time
}

// NewTenant 创建新租户（工厂方法）
func NewTenant(id, name, slug string, limits TenantLimits) (*Tenant, error) {
	if id == "" {
		return nil, ErrInvalidTenantID
	}
	if slug == "" {
		return nil, ErrInvalidTenantSlug
	}
	return &Tenant{
		id:        id,
		name:      name,
		slug:      slug,
		status:    TenantStatusCreated,
		limits:    limits,
		createdAt: time.Now().UTC(),
	}, nil
}

// ReconstructTenant rebuilds a Tenant from persisted fields.
func ReconstructTenant(id, name, slug string, status TenantStatus, port int, plan, provider, model string, limits TenantLimits, pairingCode string, pid int, resource ResourceSample, ownerID string, createdAt time.Time) *Tenant {
	return &Tenant{
		id: id, name: name, slug: slug, status: status, port: port,
		plan: plan, provider: provider, model: model, limits: limits,
		pairingCode: pairingCode, pid: pid, resource: resource, ownerID: ownerID, createdAt: createdAt,
	}
}

func (t *Tenant) ID() string                { return t.id }
func (t *Tenant) Name() string              { return t.name }
func (t *Tenant) Slug() string              { return t.slug }
func (t *Tenant) Status() TenantStatus      { return t.status }
func (t *Tenant) Port() int                 { return t.port }
func (t *Tenant) Plan() string              { return t.plan }
func (t *Tenant) Provider() string          { return t.provider }
func (t *Tenant) Model() string             { return t.model }
func (t *Tenant) Limits() TenantLimits      { return t.limits }
func (t *Tenant) PID() int                  { return t.pid }
func (t *Tenant) Resource() ResourceSample  { return t.resource }
func (t *Tenant) OwnerID() string           { return t.ownerID }
func (t *Tenant) CreatedAt() time.Time      { return t.createdAt }

// HasActivePairingCode 判断是否存在尚未兑换的配对码
func (t *Tenant) HasActivePairingCode() bool {
	return t.pairingCode != ""
}

// PairingCode 返回当前配对码（可能为空）
func (t *Tenant) PairingCode() string {
	return t.pairingCode
}

// GeneratePairingCode 生成一个新的六位数配对码，替换任何既有的码。
// 只允许同时存在一个未兑换的配对码（聚合不变量）。
func (t *Tenant) GeneratePairingCode() (string, error) {
	code, err := randomSixDigits()
	if err != nil {
		return "", err
	}
	t.pairingCode = code
	return code, nil
}

// RedeemPairingCode 尝试用给定的码兑换。首次匹配即清空配对码；
// 之后再次提交同一个码一律视为未找到。
func (t *Tenant) RedeemPairingCode(code string) bool {
	if t.pairingCode == "" || code == "" || code != t.pairingCode {
		return false
	}
	t.pairingCode = ""
	return true
}

// SetPort 分配端口（租户生命周期内固定不变）
func (t *Tenant) SetPort(port int) {
	t.port = port
}

// MarkRunning 将租户标记为运行中，记录其 OS 进程号
func (t *Tenant) MarkRunning(pid int) {
	t.status = TenantStatusRunning
	t.pid = pid
}

// MarkStopped 将租户标记为已停止
func (t *Tenant) MarkStopped() {
	t.status = TenantStatusStopped
	t.pid = 0
}

// MarkError 将租户标记为错误状态
func (t *Tenant) MarkError() {
	t.status = TenantStatusError
}

// RecordResourceSample 更新最近一次资源采样
func (t *Tenant) RecordResourceSample(s ResourceSample) {
	t.resource = s
}

// UpdateConfig applies an Admin API config-set edit to the tenant's
// provider/model/plan/limits. Port, slug and pairing state are excluded —
// those have their own dedicated operations.
func (t *Tenant) UpdateConfig(plan, provider, model string, limits TenantLimits) {
	t.plan = plan
	t.provider = provider
	t.model = model
	t.limits = limits
}

func randomSixDigits() (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	n := (uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])) % 1000000
	return fmt.Sprintf("%06d", n), nil
}
