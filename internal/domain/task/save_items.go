package task

import "eventrec/recommender/internal/domain"

const SaveItemsTaskType = "SaveItemsTask"

// SaveItemsTask carries search results to be written to the item catalog.
type SaveItemsTask struct {
	Keyword string        `json:"keyword"` // search keyword that produced the items
	Items   []domain.Item `json:"items"`
}

func (t *SaveItemsTask) TaskType() string {
	return SaveItemsTaskType
}

func (t *SaveItemsTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}
