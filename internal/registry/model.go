package registry

import (
	"encoding/json"
	"fmt"
	"time"
)

// Model content types.
const (
	TypeText  = 0
	TypeImage = 1
	TypeAudio = 2
	TypeVideo = 3
)

// Model is one registered upstream LLM endpoint. Parameters holds the
// provider-shaped static request fields as a JSON object; AllowRoles
// holds a JSON array of role names like ["ROLE_NORMAL","ROLE_MEMBER"].
type Model struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Name          string `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	Type          int    `gorm:"type:tinyint;default:0" json:"type"`
	Provider      string `gorm:"type:varchar(32);not null;index" json:"provider"`
	URL           string `gorm:"type:varchar(255);not null" json:"url"`
	Parameters    string `gorm:"type:text" json:"parameters"`
	AllowRoles    string `gorm:"type:varchar(255)" json:"allowRoles"`
	RecordNumbers int    `gorm:"default:10" json:"recordNumbers"`
	CreatedAt     time.Time
}

func (Model) TableName() string { return "models" }

// Params decodes the static provider parameters.
func (m *Model) Params() (map[string]any, error) {
	params := map[string]any{}
	if m.Parameters == "" {
		return params, nil
	}
	if err := json.Unmarshal([]byte(m.Parameters), &params); err != nil {
		return nil, fmt.Errorf("model %s parameters: %w", m.Name, err)
	}
	return params, nil
}

// AllowedRoles decodes the allow-list role names.
func (m *Model) AllowedRoles() []string {
	var roles []string
	if m.AllowRoles == "" {
		return roles
	}
	if err := json.Unmarshal([]byte(m.AllowRoles), &roles); err != nil {
		return nil
	}
	return roles
}

// Allows reports whether a token role name (e.g. "ROLE_MEMBER") is on
// the model's allow-list.
func (m *Model) Allows(roleName string) bool {
	for _, r := range m.AllowedRoles() {
		if r == roleName {
			return true
		}
	}
	return false
}
