package ledger

import "time"

// Status of a tracked resource issue.
type Status string

const (
	StatusPending Status = "pending"
	StatusFixed   Status = "fixed"
)

// IssueRecord is one persistent row per distinct reported resource name.
// Cause and description come from the report that created the record; later
// reports only bump the counter and the last-reported timestamp.
type IssueRecord struct {
	ResourceName string     `json:"resourceName"`
	Cause        string     `json:"cause"`
	Description  string     `json:"description"`
	CrashCount   int64      `json:"crashCount"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastReported time.Time  `json:"lastReported"`
	FixedAt      *time.Time `json:"fixedAt,omitempty"`
	FixedBy      string     `json:"fixedBy,omitempty"`
}

func issueFromProps(props map[string]any) IssueRecord {
	rec := IssueRecord{
		ResourceName: propString(props, "resourceName"),
		Cause:        propString(props, "cause"),
		Description:  propString(props, "description"),
		Status:       Status(propString(props, "status")),
		FixedBy:      propString(props, "fixedBy"),
	}
	if n, ok := props["crashCount"].(int64); ok {
		rec.CrashCount = n
	}
	rec.CreatedAt = propTime(props, "createdAt")
	rec.LastReported = propTime(props, "lastReported")
	if t := propTime(props, "fixedAt"); !t.IsZero() {
		rec.FixedAt = &t
	}
	return rec
}

func propString(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func propTime(props map[string]any, key string) time.Time {
	t, _ := props[key].(time.Time)
	return t
}
