package auth

import (
	"errors"
	"testing"
	"time"
)

const testSecret = "test-secret-key-for-jwt-signing-000"

func TestIssueAndParse(t *testing.T) {
	iss := NewIssuer(testSecret, "", 15*time.Minute)

	token, err := iss.Issue("ui-1", RoleOperator)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := iss.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims.Subject != "ui-1" {
		t.Errorf("Subject = %q, want ui-1", claims.Subject)
	}
	if claims.Role != RoleOperator {
		t.Errorf("Role = %q, want operator", claims.Role)
	}
	if claims.ID == "" {
		t.Error("JTI should not be empty")
	}
}

func TestParse_WrongSecret(t *testing.T) {
	token, err := NewIssuer("correct-secret", "", 0).Issue("ui", RoleViewer)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewIssuer("wrong-secret", "", 0).Parse(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Parse() error = %v, want ErrTokenInvalid", err)
	}
}

func TestParse_Expired(t *testing.T) {
	iss := NewIssuer(testSecret, "", time.Minute)
	base := time.Now()
	iss.now = func() time.Time { return base.Add(-2 * time.Hour) }

	token, err := iss.Issue("ui", RoleViewer)
	if err != nil {
		t.Fatal(err)
	}

	iss.now = func() time.Time { return base }
	if _, err := iss.Parse(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Parse() expired error = %v, want ErrTokenInvalid", err)
	}
}

func TestParse_Garbage(t *testing.T) {
	if _, err := NewIssuer(testSecret, "", 0).Parse("not-a-valid-jwt"); err == nil {
		t.Error("Parse() accepted garbage")
	}
}

func TestIssue_RejectsUnknownRole(t *testing.T) {
	if _, err := NewIssuer(testSecret, "", 0).Issue("ui", Role("root")); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Issue() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestExchange(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		given   string
		wantErr error
	}{
		{"matching key", "k-123", "k-123", nil},
		{"wrong key", "k-123", "k-999", ErrInvalidCredentials},
		{"disabled", "", "anything", ErrNoAPIKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iss := NewIssuer(testSecret, tt.apiKey, 0)
			token, err := iss.Exchange(tt.given, "")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Exchange() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			claims, err := iss.Parse(token)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if claims.Role != RoleAdmin || claims.Subject != "api-key" {
				t.Errorf("claims = %+v", claims)
			}
		})
	}
}
