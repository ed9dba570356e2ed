package domain

import "time"

// ResourceOp is the operation the simulator predicts for one resource.
type ResourceOp string

const (
	OpCreate  ResourceOp = "create"
	OpModify  ResourceOp = "modify"
	OpDelete  ResourceOp = "delete"
	OpRead    ResourceOp = "read"
	OpUnknown ResourceOp = "unknown"
)

// PredictedChange is one resource-level effect the simulator expects.
type PredictedChange struct {
	Resource    ResourceDescriptor `json:"resource"`
	Operation   ResourceOp         `json:"operation"`
	Detail      string             `json:"detail,omitempty"`
	Destructive bool               `json:"destructive"`
}

// PredictedChangeSet is the dry-run result for one command. Producing it
// never mutates host state; the same command text always yields the same
// prediction.
type PredictedChangeSet struct {
	CommandText       string            `json:"command_text"`
	Changes           []PredictedChange `json:"changes"`
	EstimatedDuration time.Duration     `json:"estimated_duration"`
	RequiresAdmin     bool              `json:"requires_admin"`
	Notes             []string          `json:"notes,omitempty"`
}

// MutatingResources returns the resources predicted to change, in forward
// order. Read-only predictions are excluded; these are the resources the
// backup manager must snapshot before execution.
func (p PredictedChangeSet) MutatingResources() []ResourceDescriptor {
	var out []ResourceDescriptor
	for _, c := range p.Changes {
		if c.Operation == OpRead {
			continue
		}
		out = append(out, c.Resource)
	}
	return out
}
