package pubsub

import "testing"

func TestParseTopicPath(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		wantProject string
		wantTopic   string
		wantErr     bool
	}{
		{
			name:        "valid path",
			path:        "projects/my-project/topics/rollout-events",
			wantProject: "my-project",
			wantTopic:   "rollout-events",
		},
		{
			name:    "bare topic name",
			path:    "rollout-events",
			wantErr: true,
		},
		{
			name:    "wrong resource type",
			path:    "projects/my-project/subscriptions/rollout-events",
			wantErr: true,
		},
		{
			name:    "trailing segment",
			path:    "projects/my-project/topics/rollout-events/extra",
			wantErr: true,
		},
		{
			name:    "empty",
			path:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			project, topic, err := ParseTopicPath(tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseTopicPath(%q) expected an error", tt.path)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTopicPath(%q) unexpected error: %v", tt.path, err)
			}
			if project != tt.wantProject || topic != tt.wantTopic {
				t.Errorf("ParseTopicPath(%q) = %q, %q, want %q, %q",
					tt.path, project, topic, tt.wantProject, tt.wantTopic)
			}
		})
	}
}
