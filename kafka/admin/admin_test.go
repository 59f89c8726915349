package admin

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/twmb/franz-go/pkg/kerr"
)

func TestIsTopicExistsMatchesKerrTopicAlreadyExists(t *testing.T) {
	assert.True(t, isTopicExists(kerr.TopicAlreadyExists))
	assert.True(t, isTopicExists(fmt.Errorf("wrapped: %w", kerr.TopicAlreadyExists)))
}

func TestIsTopicExistsRejectsUnrelatedErrors(t *testing.T) {
	assert.False(t, isTopicExists(errors.New("boom")))
	assert.False(t, isTopicExists(kerr.UnknownTopicOrPartition))
}
