package server

import "github.com/tarungka/couchstream/pipeline"

type ResponseModel struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// StatusProvider is implemented by *pipeline.Replicator.
type StatusProvider interface {
	Stats() pipeline.Stats
}
