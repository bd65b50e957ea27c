package dto

// AssignRequest payload for POST /incidents/{id}/assign.
type AssignRequest struct {
	AssignedTo string `json:"assigned_to"`
}

// ResolveRequest payload for POST /incidents/{id}/resolve.
type ResolveRequest struct {
	CloseNotes string `json:"close_notes"`
}
