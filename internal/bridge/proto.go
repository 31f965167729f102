package bridge

import "encoding/json"

// The drafting service speaks JSON frames tagged with an event name. Only the
// handful of events the keep-alive bridge cares about are modeled here.
const (
	eventImportCube    = "importCube"
	eventImportCubeAck = "importCubeAck"
	eventGetUsers      = "getUsers"
	eventSessionUsers  = "sessionUsers"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type importCubeData struct {
	Service       string `json:"service"`
	CubeID        string `json:"cubeID"`
	MatchVersions bool   `json:"matchVersions"`
}

type importCubeAckData struct {
	Error string `json:"error,omitempty"`
}

type sessionUser struct {
	UserID   string `json:"userID"`
	UserName string `json:"userName"`
}
