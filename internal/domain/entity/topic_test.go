package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/claim-workflow/internal/domain/workflow"
)

func TestParseTopic(t *testing.T) {
	tests := []struct {
		input   string
		want    Topic
		wantErr bool
	}{
		{"Coordinators", TopicCoordinators, false},
		{"Managers", TopicManagers, false},
		{"HR", TopicHR, false},
		{"All", TopicAll, false},
		{"Lecturer_42", LecturerTopic(42), false},
		{"Lecturer_", "", true},
		{"Lecturer_-1", "", true},
		{"Lecturer_abc", "", true},
		{"Deans", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTopic(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, workflow.ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoleTopic(t *testing.T) {
	topic, ok := RoleTopic(workflow.RoleManager)
	assert.True(t, ok)
	assert.Equal(t, TopicManagers, topic)

	_, ok = RoleTopic(workflow.RoleLecturer)
	assert.False(t, ok)
}
