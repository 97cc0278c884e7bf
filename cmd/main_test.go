package main

import (
	"reflect"
	"testing"

	"github.com/rollwatch/rollwatch/internal/rollout"
)

func TestParseWorkloadRef(t *testing.T) {
	tests := []struct {
		name          string
		ref           string
		wantNamespace string
		wantKind      rollout.Kind
		wantName      string
		wantErr       bool
	}{
		{
			name:          "fully qualified",
			ref:           "prod/deployment/api",
			wantNamespace: "prod",
			wantKind:      rollout.KindDeployment,
			wantName:      "api",
		},
		{
			name:          "namespace defaulted",
			ref:           "sts/db",
			wantNamespace: "default",
			wantKind:      rollout.KindStatefulSet,
			wantName:      "db",
		},
		{
			name:          "daemonset alias",
			ref:           "kube-system/ds/node-agent",
			wantNamespace: "kube-system",
			wantKind:      rollout.KindDaemonSet,
			wantName:      "node-agent",
		},
		{
			name:    "bare name",
			ref:     "api",
			wantErr: true,
		},
		{
			name:    "too many segments",
			ref:     "a/b/c/d",
			wantErr: true,
		},
		{
			name:    "unknown kind",
			ref:     "prod/cronjob/api",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := parseWorkloadRef(tt.ref, "default", nil, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseWorkloadRef(%q) expected an error", tt.ref)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseWorkloadRef(%q) unexpected error: %v", tt.ref, err)
			}
			if r.Namespace != tt.wantNamespace || r.Kind != tt.wantKind || r.Name != tt.wantName {
				t.Errorf("parseWorkloadRef(%q) = %s/%s %s, want %s/%s %s",
					tt.ref, r.Namespace, r.Name, r.Kind, tt.wantNamespace, tt.wantName, tt.wantKind)
			}
		})
	}
}

func TestSplitAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "single element",
			input:    "prod/deploy/api",
			expected: []string{"prod/deploy/api"},
		},
		{
			name:     "multiple with whitespace",
			input:    " prod/deploy/api , sts/db ",
			expected: []string{"prod/deploy/api", "sts/db"},
		},
		{
			name:     "empty elements dropped",
			input:    "a,,b,",
			expected: []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitAndTrim(tt.input)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("splitAndTrim(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}
