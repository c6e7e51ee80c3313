// internal/runtime/docker_test.go
package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/FairForge/greenlight/internal/environment"
)

func TestContainerName(t *testing.T) {
	assert.Equal(t, "jenkins-devops-blue", ContainerName("devops", environment.Blue))
	assert.Equal(t, "jenkins-qa-green", ContainerName("qa", environment.Green))
}
