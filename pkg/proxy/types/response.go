package types

// Model is a single entry in an OpenAI-compatible model listing.
type Model struct {
	// ID is the model name as reported by the serving backend.
	ID string `json:"id"`

	// Object is always "model".
	Object string `json:"object"`

	// Created is the Unix timestamp the backend reported for the model.
	Created int64 `json:"created"`

	// OwnedBy identifies the operator of the serving fleet.
	OwnedBy string `json:"owned_by"`
}

// ModelList is the response body for GET /v1/models.
type ModelList struct {
	// Object is always "list".
	Object string `json:"object"`

	// Data holds one entry per distinct model visible to the caller.
	Data []Model `json:"data"`
}

// NewModelList builds a listing response from the given models.
// A nil or empty slice yields an empty (non-null) data array.
func NewModelList(models []Model) *ModelList {
	if models == nil {
		models = []Model{}
	}
	return &ModelList{Object: "list", Data: models}
}
