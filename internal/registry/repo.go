package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) GetByName(ctx context.Context, name string) (*Model, error) {
	var m Model
	if err := r.db.WithContext(ctx).
		Where("name = ?", name).
		First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repo) Names(ctx context.Context) ([]string, error) {
	var names []string
	if err := r.db.WithContext(ctx).Model(&Model{}).
		Order("name ASC").
		Pluck("name", &names).Error; err != nil {
		return nil, err
	}
	return names, nil
}

func (r *Repo) ByProvider(ctx context.Context, provider string) ([]Model, error) {
	var ms []Model
	if err := r.db.WithContext(ctx).
		Where("provider = ?", provider).
		Find(&ms).Error; err != nil {
		return nil, err
	}
	return ms, nil
}

// Register validates and inserts a new model row.
func (r *Repo) Register(ctx context.Context, m *Model) error {
	if m.Name == "" || m.URL == "" || m.Provider == "" {
		return errors.New("model name, provider and url are required")
	}
	if m.Parameters == "" {
		m.Parameters = "{}"
	}
	if m.AllowRoles == "" {
		m.AllowRoles = "[]"
	}
	if !json.Valid([]byte(m.Parameters)) {
		return fmt.Errorf("model %s: parameters is not valid JSON", m.Name)
	}
	if !json.Valid([]byte(m.AllowRoles)) {
		return fmt.Errorf("model %s: allowRoles is not valid JSON", m.Name)
	}
	if m.RecordNumbers <= 0 {
		m.RecordNumbers = 10
	}
	return r.db.WithContext(ctx).Create(m).Error
}
