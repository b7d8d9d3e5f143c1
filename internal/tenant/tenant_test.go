package tenant

import (
	"context"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
		none    bool
	}{
		{"", false, true},
		{"acme", false, false},
		{"acme-eu.1", false, false},
		{"-leading", true, false},
		{"has space", true, false},
		{"a/b", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			c, err := New(tt.id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
			if err == nil && c.IsNone() != tt.none {
				t.Errorf("IsNone() = %v, want %v", c.IsNone(), tt.none)
			}
		})
	}
}

func TestNoneEqualsZero(t *testing.T) {
	if None() != (Context{}) {
		t.Error("None() should equal the zero value")
	}
	if None().String() != "(none)" {
		t.Errorf("String() = %q", None().String())
	}
	if MustNew("acme") == None() {
		t.Error("tenant acme should differ from none")
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := With(context.Background(), MustNew("acme"))
	got, ok := From(ctx)
	if !ok {
		t.Fatal("expected tenant in context")
	}
	if got.ID() != "acme" {
		t.Errorf("ID() = %q, want acme", got.ID())
	}
	if _, ok := From(context.Background()); ok {
		t.Error("expected no tenant in empty context")
	}
}
