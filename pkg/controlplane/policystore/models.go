// Package policystore persists the control plane's runtime-mutable policy
// knobs (spec.md §6 `policy`/`interpose`, set via the PolicySet/InterposeSet
// ops) across daemon restarts, so a PolicySet call survives agentfsd being
// restarted the way spec.md's other durable state (snapshots) does.
//
// Grounded on the teacher's pkg/controlplane/store.GORMStore: a single
// key/value Setting table reached through gorm, using glebarez/sqlite's
// pure-Go driver rather than the teacher's optional Postgres path -- AgentFS
// is a single-node daemon, so the HA-capable backend the teacher's Config
// exposes has no role here (see DESIGN.md).
package policystore

import "time"

// Setting is the persisted row shape, equivalent to the teacher's
// models.Setting.
type Setting struct {
	Key       string `gorm:"primaryKey"`
	Value     string
	UpdatedAt time.Time
}

// AllModels lists every model AutoMigrate must create, mirroring the
// teacher's models.AllModels().
func AllModels() []any {
	return []any{&Setting{}}
}
