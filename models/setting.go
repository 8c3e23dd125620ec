package models

import "time"

// SettingType describes how a stored setting value should be interpreted
type SettingType string

const (
	SettingTypeString  SettingType = "string"
	SettingTypeSecret  SettingType = "secret"
	SettingTypeInteger SettingType = "integer"
	SettingTypeBoolean SettingType = "boolean"
)

// Setting is a persisted key/value configuration entry.
// Keys follow a dotted namespace, e.g. ai.openai.api_key.
type Setting struct {
	Key         string      `json:"key" db:"key"`
	Value       string      `json:"value" db:"value"`
	Type        SettingType `json:"type" db:"type"`
	Description string      `json:"description,omitempty" db:"description"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Setting model
func (Setting) TableName() string {
	return "settings"
}
