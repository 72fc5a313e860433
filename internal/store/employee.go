package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/agng-dev/montron/internal/model"
)

type EmployeeStore struct {
	db *sql.DB
}

func NewEmployeeStore(db *sql.DB) *EmployeeStore {
	return &EmployeeStore{db: db}
}

func scanEmployee(scanner interface{ Scan(...any) error }) (*model.Employee, error) {
	var e model.Employee
	err := scanner.Scan(&e.ID, &e.Username, &e.FirstName, &e.LastName, &e.Department, &e.Active, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

const employeeCols = `id, username, first_name, last_name, department, active, updated_at`

func (s *EmployeeStore) List(activeOnly bool) ([]model.Employee, error) {
	query := `SELECT ` + employeeCols + ` FROM employees`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY last_name ASC, first_name ASC, username ASC`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()

	var employees []model.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		employees = append(employees, *e)
	}
	return employees, rows.Err()
}

func (s *EmployeeStore) GetByID(id string) (*model.Employee, error) {
	row := s.db.QueryRow(`SELECT `+employeeCols+` FROM employees WHERE id = ?`, id)
	e, err := scanEmployee(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get employee: %w", err)
	}
	return e, nil
}

func (s *EmployeeStore) GetByUsername(username string) (*model.Employee, error) {
	row := s.db.QueryRow(`SELECT `+employeeCols+` FROM employees WHERE username = ?`, username)
	e, err := scanEmployee(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get employee by username: %w", err)
	}
	return e, nil
}

// Upsert inserts or refreshes an employee from the Form Builder feed, keyed
// by username. Returns the stored row.
func (s *EmployeeStore) Upsert(e model.Employee) (*model.Employee, error) {
	existing, err := s.GetByUsername(e.Username)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		id := e.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err := s.db.Exec(
			`INSERT INTO employees (id, username, first_name, last_name, department, active) VALUES (?, ?, ?, ?, ?, ?)`,
			id, e.Username, e.FirstName, e.LastName, e.Department, e.Active,
		)
		if err != nil {
			return nil, fmt.Errorf("insert employee: %w", err)
		}
		return s.GetByID(id)
	}

	_, err = s.db.Exec(
		`UPDATE employees SET first_name = ?, last_name = ?, department = ?, active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		e.FirstName, e.LastName, e.Department, e.Active, existing.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update employee: %w", err)
	}
	return s.GetByID(existing.ID)
}

func (s *EmployeeStore) SetActive(id string, active bool) error {
	_, err := s.db.Exec(
		`UPDATE employees SET active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		active, id,
	)
	if err != nil {
		return fmt.Errorf("set employee active: %w", err)
	}
	return nil
}
