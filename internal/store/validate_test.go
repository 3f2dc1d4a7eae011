package store

import (
	"errors"
	"testing"

	"github.com/TimurManjosov/mockflow/internal/rules"
)

func TestValidateScenarioID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"auth-flow", false},
		{"shop_2", false},
		{"", true},
		{"-leading", true},
		{"has space", true},
		{"a/b", true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := ValidateScenarioID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateScenarioID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidScenarioID) {
				t.Fatalf("error %v does not wrap ErrInvalidScenarioID", err)
			}
		})
	}
}

func TestTransitionValidate(t *testing.T) {
	tests := []struct {
		name    string
		tr      Transition
		wantErr error
	}{
		{
			name: "valid",
			tr:   Transition{Path: "/orders/:id", Method: "get"},
		},
		{
			name:    "bad method",
			tr:      Transition{Path: "/x", Method: "BREW"},
			wantErr: rules.ErrInvalidRoute,
		},
		{
			name: "bad operator",
			tr: Transition{Path: "/x", Method: "GET", Conditions: rules.ListConditions(
				rules.Condition{Type: "matches", Field: "state.x"},
			)},
			wantErr: rules.ErrInvalidOperator,
		},
		{
			name:    "push without table",
			tr:      Transition{Path: "/x", Method: "POST", Effects: rules.EffectList(rules.DBPush{Value: 1})},
			wantErr: rules.ErrInvalidEffect,
		},
		{
			name:    "status out of range",
			tr:      Transition{Path: "/x", Method: "GET", Response: Response{Status: 700}},
			wantErr: rules.ErrInvalidResponse,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tr.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
