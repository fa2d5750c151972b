package tasks_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestlist/internal/tasks"
)

func TestNewImageProcessTask(t *testing.T) {
	task, err := tasks.NewImageProcessTask("uploads/abc/def_house.jpg")
	require.NoError(t, err)
	assert.Equal(t, tasks.TypeImageProcess, task.Type())

	var payload tasks.ImageProcessPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "uploads/abc/def_house.jpg", payload.S3Key)
}

func TestNewImageCleanupTask(t *testing.T) {
	urls := []string{
		"https://bucket.s3.amazonaws.com/uploads/a.jpg",
		"https://bucket.s3.amazonaws.com/uploads/b.jpg",
	}
	task, err := tasks.NewImageCleanupTask(urls)
	require.NoError(t, err)
	assert.Equal(t, tasks.TypeImageCleanup, task.Type())

	var payload tasks.ImageCleanupPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, urls, payload.ImageURLs)
}
