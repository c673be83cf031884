package task

import (
	"testing"

	"eventrec/recommender/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveItemsTaskKeepsCategories(t *testing.T) {
	saveTask := &SaveItemsTask{
		Keyword: "music",
		Items: []domain.Item{
			{ID: "a", Name: "A", Distance: 1.5, Categories: domain.NewStringSet("Music", "Jazz")},
		},
	}
	assert.Equal(t, SaveItemsTaskType, saveTask.TaskType())

	data, err := saveTask.TaskValue()
	require.NoError(t, err)

	decoded, err := UnmarshalTask[*SaveItemsTask](data)
	require.NoError(t, err)
	require.Len(t, decoded.Items, 1)
	assert.Equal(t, "music", decoded.Keyword)
	assert.Equal(t, []string{"Jazz", "Music"}, decoded.Items[0].Categories.Sorted())
	assert.Equal(t, 1.5, decoded.Items[0].Distance)
}
