package auth

import (
	"testing"
	"time"
)

func TestIssueParseRoundTrip(t *testing.T) {
	token, err := Issue("s3cret", Claims{UserID: "u1", TenantID: "t1", Email: "a@b.c", Role: "admin"}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	c, err := Parse("s3cret", token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.UserID != "u1" || c.TenantID != "t1" || c.Email != "a@b.c" || c.Role != "admin" {
		t.Fatalf("unexpected claims %+v", c)
	}
}

func TestParseRejects(t *testing.T) {
	token, _ := Issue("s3cret", Claims{UserID: "u1", TenantID: "t1"}, time.Hour)
	if _, err := Parse("other", token); err == nil {
		t.Fatalf("expected wrong secret to fail")
	}
	expired, _ := Issue("s3cret", Claims{UserID: "u1", TenantID: "t1"}, -time.Minute)
	if _, err := Parse("s3cret", expired); err == nil {
		t.Fatalf("expected expired token to fail")
	}
	noTenant, _ := Issue("s3cret", Claims{UserID: "u1"}, time.Hour)
	if _, err := Parse("s3cret", noTenant); err == nil {
		t.Fatalf("expected token without tenant to fail")
	}
	if _, err := Parse("", token); err != ErrNoSecret {
		t.Fatalf("expected ErrNoSecret, got %v", err)
	}
}
