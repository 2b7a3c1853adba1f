package entity

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/garyjia/claim-workflow/internal/domain/workflow"
)

// Topic names a group of notification subscribers
type Topic string

const (
	TopicCoordinators Topic = "Coordinators"
	TopicManagers     Topic = "Managers"
	TopicHR           Topic = "HR"
	TopicAll          Topic = "All"

	lecturerTopicPrefix = "Lecturer_"
)

// LecturerTopic returns the owner topic for a lecturer
func LecturerTopic(lecturerID int64) Topic {
	return Topic(lecturerTopicPrefix + strconv.FormatInt(lecturerID, 10))
}

// RoleTopic returns the group topic for an approver role
func RoleTopic(role workflow.Role) (Topic, bool) {
	switch role {
	case workflow.RoleCoordinator:
		return TopicCoordinators, true
	case workflow.RoleManager:
		return TopicManagers, true
	case workflow.RoleHR:
		return TopicHR, true
	default:
		return "", false
	}
}

// String returns the string representation of the topic
func (t Topic) String() string {
	return string(t)
}

// ParseTopic validates a topic name sent by a client
func ParseTopic(s string) (Topic, error) {
	switch Topic(s) {
	case TopicCoordinators, TopicManagers, TopicHR, TopicAll:
		return Topic(s), nil
	}
	if rest, ok := strings.CutPrefix(s, lecturerTopicPrefix); ok {
		id, err := strconv.ParseInt(rest, 10, 64)
		if err == nil && id > 0 {
			return LecturerTopic(id), nil
		}
	}
	return "", fmt.Errorf("%w: unknown topic %q", workflow.ErrInvalidArgument, s)
}
