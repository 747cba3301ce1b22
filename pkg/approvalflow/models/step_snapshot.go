package models

import (
	"encoding/json"

	"github.com/nexcrm/approvalflow/pkg/approvalflow/domain"
)

// StepSnapshot is the per-record copy of one step template, stored as JSON on
// the approval record at start time. The live step_templates rows may change
// afterwards; the snapshot never does.
type StepSnapshot struct {
	StepOrder    int    `json:"stepOrder"`
	ApproverType string `json:"approverType"`
	ApproverRef  string `json:"approverRef"`
	CanDelegate  bool   `json:"canDelegate"`
}

func SnapshotSteps(steps []domain.StepTemplate) ([]StepSnapshot, error) {
	snaps := make([]StepSnapshot, 0, len(steps))
	for _, s := range steps {
		snaps = append(snaps, StepSnapshot{
			StepOrder:    s.StepOrder,
			ApproverType: s.ApproverType,
			ApproverRef:  s.ApproverRef,
			CanDelegate:  s.CanDelegate,
		})
	}
	return snaps, nil
}

func EncodeSteps(snaps []StepSnapshot) (string, error) {
	b, err := json.Marshal(snaps)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeSteps(raw string) ([]StepSnapshot, error) {
	var snaps []StepSnapshot
	if err := json.Unmarshal([]byte(raw), &snaps); err != nil {
		return nil, err
	}
	return snaps, nil
}
