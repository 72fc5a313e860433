package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/agng-dev/montron/internal/model"
)

type LayoutStore struct {
	db *sql.DB
}

func NewLayoutStore(db *sql.DB) *LayoutStore {
	return &LayoutStore{db: db}
}

func (s *LayoutStore) Get(name string) (*model.WorkdayLayout, error) {
	row := s.db.QueryRow(
		`SELECT name, document_type_tb, document_type_rs, config FROM workday_layouts WHERE name = ?`,
		name,
	)
	var l model.WorkdayLayout
	var config string
	err := row.Scan(&l.Name, &l.DocumentTypeTb, &l.DocumentTypeRs, &config)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get layout: %w", err)
	}
	if err := json.Unmarshal([]byte(config), &l.Config); err != nil {
		return nil, fmt.Errorf("decode layout config: %w", err)
	}
	return &l, nil
}

func (s *LayoutStore) List() ([]model.WorkdayLayout, error) {
	rows, err := s.db.Query(`SELECT name, document_type_tb, document_type_rs, config FROM workday_layouts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list layouts: %w", err)
	}
	defer rows.Close()

	var layouts []model.WorkdayLayout
	for rows.Next() {
		var l model.WorkdayLayout
		var config string
		if err := rows.Scan(&l.Name, &l.DocumentTypeTb, &l.DocumentTypeRs, &config); err != nil {
			return nil, fmt.Errorf("scan layout: %w", err)
		}
		if err := json.Unmarshal([]byte(config), &l.Config); err != nil {
			return nil, fmt.Errorf("decode layout config: %w", err)
		}
		layouts = append(layouts, l)
	}
	return layouts, rows.Err()
}

func (s *LayoutStore) Upsert(l model.WorkdayLayout) error {
	config, err := json.Marshal(l.Config)
	if err != nil {
		return fmt.Errorf("encode layout config: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO workday_layouts (name, document_type_tb, document_type_rs, config) VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET document_type_tb = excluded.document_type_tb,
			document_type_rs = excluded.document_type_rs, config = excluded.config,
			updated_at = CURRENT_TIMESTAMP`,
		l.Name, l.DocumentTypeTb, l.DocumentTypeRs, string(config),
	)
	if err != nil {
		return fmt.Errorf("upsert layout: %w", err)
	}
	return nil
}
