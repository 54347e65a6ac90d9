package userutil

import (
	"errors"
	"os/user"
	"testing"
)

func TestSanitizeUsername(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "alice", want: "alice"},
		{name: "domain user", input: "DOMAIN\\user", want: "DOMAIN_user"},
		{name: "email", input: "user@domain.com", want: "user_domain.com"},
		{name: "empty", input: "", want: "unknown"},
		{name: "whitespace", input: "  ", want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeUsername(tt.input); got != tt.want {
				t.Fatalf("SanitizeUsername(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCurrentUsername(t *testing.T) {
	t.Run("USERNAME wins", func(t *testing.T) {
		t.Setenv("USERNAME", "win user")
		t.Setenv("USER", "unix")
		if got := CurrentUsername(); got != "win_user" {
			t.Fatalf("CurrentUsername() = %q, want win_user", got)
		}
	})

	t.Run("USER fallback", func(t *testing.T) {
		t.Setenv("USERNAME", "")
		t.Setenv("USER", "bob")
		if got := CurrentUsername(); got != "bob" {
			t.Fatalf("CurrentUsername() = %q, want bob", got)
		}
	})

	t.Run("account lookup failure", func(t *testing.T) {
		t.Setenv("USERNAME", "")
		t.Setenv("USER", "")
		original := currentUserFn
		t.Cleanup(func() { currentUserFn = original })
		currentUserFn = func() (*user.User, error) { return nil, errors.New("no passwd entry") }
		if got := CurrentUsername(); got != "unknown" {
			t.Fatalf("CurrentUsername() = %q, want unknown", got)
		}
	})
}
