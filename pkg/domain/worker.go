package domain

// WorkerInfo is the public, serializable description of a registered worker.
type WorkerInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tasks       []string `json:"tasks"`
}
