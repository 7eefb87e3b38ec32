package location

// Environment is a building or site shared by its members.
type Environment struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Room is a physical space, optionally owned by an environment.
type Room struct {
	ID            int64  `json:"id"`
	EnvironmentID *int64 `json:"environment_id,omitempty"`
	Name          string `json:"name"`
}
