package formapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestValidateServiceToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/token/info" {
			t.Errorf("unexpected path: %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer svc_good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(TokenInfo{
			CompanyID:   "c-77",
			CompanyName: "Tiefbau Huber GmbH",
			Scopes:      []string{"submissions:read"},
		})
	}))
	defer server.Close()

	c := NewClient(Config{})

	info, err := c.ValidateServiceToken(context.Background(), server.URL, "svc_good")
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if info.CompanyName != "Tiefbau Huber GmbH" {
		t.Errorf("company = %q, want Tiefbau Huber GmbH", info.CompanyName)
	}

	_, err = c.ValidateServiceToken(context.Background(), server.URL, "svc_bad")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestListSubmissionsSendsCursor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("updatedAfter"); got != "2026-03-01T00:00:00Z" {
			t.Errorf("updatedAfter = %q", got)
		}
		json.NewEncoder(w).Encode(submissionPage{Items: []Submission{
			{ID: "s-1", DocumentType: "TB", Username: "mmeier", Date: "2026-03-02"},
		}})
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL, ServiceToken: "svc_good"})

	subs, err := c.ListSubmissions(context.Background(), "2026-03-01T00:00:00Z")
	if err != nil {
		t.Fatalf("list submissions: %v", err)
	}
	if len(subs) != 1 || subs[0].ID != "s-1" {
		t.Errorf("submissions = %+v, want one s-1", subs)
	}
}

func TestListEmployees(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(employeePage{Items: []Employee{
			{ID: "e-1", Username: "mmeier", Active: true},
		}})
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL, ServiceToken: "svc_good"})

	employees, err := c.ListEmployees(context.Background(), "")
	if err != nil {
		t.Fatalf("list employees: %v", err)
	}
	if len(employees) != 1 || employees[0].Username != "mmeier" {
		t.Errorf("employees = %+v, want one mmeier", employees)
	}
}

func TestNotConfigured(t *testing.T) {
	c := NewClient(Config{})

	if _, err := c.ListEmployees(context.Background(), ""); err == nil {
		t.Error("expected error without a base url")
	}
}

func TestRegeneratePdf(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		var body struct {
			Fields map[string]any `json:"fields"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Fields["endTime"] != "16:30" {
			t.Errorf("fields = %v", body.Fields)
		}
		json.NewEncoder(w).Encode(map[string]string{"objectKey": "pdf/s-1-v2.pdf"})
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL, ServiceToken: "svc_good"})

	key, err := c.RegeneratePdf(context.Background(), "s-1", map[string]any{"endTime": "16:30"})
	if err != nil {
		t.Fatalf("regenerate pdf: %v", err)
	}
	if key != "pdf/s-1-v2.pdf" {
		t.Errorf("object key = %q", key)
	}
}
