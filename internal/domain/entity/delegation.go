package entity

import "time"

// DelegationMode controls whether delegate() blocks for a result.
type DelegationMode string

const (
	DelegationSync  DelegationMode = "sync"
	DelegationAsync DelegationMode = "async"
)

// DelegationStatus is a monotone non-decreasing member of
// pending < running < {completed, failed, cancelled}.
type DelegationStatus string

const (
	DelegationPending   DelegationStatus = "pending"
	DelegationRunning   DelegationStatus = "running"
	DelegationCompleted DelegationStatus = "completed"
	DelegationFailed    DelegationStatus = "failed"
	DelegationCancelled DelegationStatus = "cancelled"
)

var delegationRank = map[DelegationStatus]int{
	DelegationPending:   0,
	DelegationRunning:   1,
	DelegationCompleted: 2,
	DelegationFailed:    2,
	DelegationCancelled: 2,
}

// IsTerminal reports whether the status is one of the terminal states.
func (s DelegationStatus) IsTerminal() bool {
	return s == DelegationCompleted || s == DelegationFailed || s == DelegationCancelled
}

// Delegation records one agent asking another to perform a task.
type Delegation struct {
	id          string
	sessionID   string
	from        string
	to          string
	task        string
	mode        DelegationMode
	status      DelegationStatus
	result      string
	errMsg      string
	createdAt   time.Time
	completedAt *time.Time
}

// NewDelegation creates a pending delegation.
func NewDelegation(id, sessionID, from, to, task string, mode DelegationMode) *Delegation {
	return &Delegation{
		id:        id,
		sessionID: sessionID,
		from:      from,
		to:        to,
		task:      task,
		mode:      mode,
		status:    DelegationPending,
		createdAt: time.Now().UTC(),
	}
}

// ReconstructDelegation rebuilds a Delegation from persisted fields.
func ReconstructDelegation(id, sessionID, from, to string, mode DelegationMode, status DelegationStatus, task, result, errMsg string, createdAt time.Time, completedAt *time.Time) *Delegation {
	return &Delegation{id: id, sessionID: sessionID, from: from, to: to, task: task, mode: mode, status: status, result: result, errMsg: errMsg, createdAt: createdAt, completedAt: completedAt}
}

func (d *Delegation) ID() string                  { return d.id }
func (d *Delegation) SessionID() string           { return d.sessionID }
func (d *Delegation) From() string                { return d.from }
func (d *Delegation) To() string                  { return d.to }
func (d *Delegation) Task() string                { return d.task }
func (d *Delegation) Mode() DelegationMode         { return d.mode }
func (d *Delegation) Status() DelegationStatus     { return d.status }
func (d *Delegation) Result() string               { return d.result }
func (d *Delegation) ErrorMessage() string         { return d.errMsg }
func (d *Delegation) CreatedAt() time.Time         { return d.createdAt }
func (d *Delegation) CompletedAt() *time.Time      { return d.completedAt }

// Advance moves the delegation to a new status. Returns an error if the move
// would violate the pending < running < terminal ordering.
func (d *Delegation) Advance(next DelegationStatus) error {
	if delegationRank[next] < delegationRank[d.status] {
		return ErrDelegationStatusRegression
	}
	d.status = next
	if next.IsTerminal() {
		now := time.Now().UTC()
		d.completedAt = &now
	}
	return nil
}

// Complete marks the delegation completed with a result.
func (d *Delegation) Complete(result string) error {
	if err := d.Advance(DelegationCompleted); err != nil {
		return err
	}
	d.result = result
	return nil
}

// Fail marks the delegation failed with an error message.
func (d *Delegation) Fail(errMsg string) error {
	if err := d.Advance(DelegationFailed); err != nil {
		return err
	}
	d.errMsg = errMsg
	return nil
}
