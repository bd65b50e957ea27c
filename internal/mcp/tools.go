package mcp

// Schema fragments shared across tool definitions.
func idProperty() map[string]any {
	return map[string]any{
		"type":        "string",
		"description": "Incident sys_id or incident number (e.g. INC0010001)",
	}
}

func fieldProperties() map[string]any {
	return map[string]any{
		"short_description": map[string]any{
			"type":        "string",
			"description": "One-line summary of the incident",
		},
		"description": map[string]any{
			"type":        "string",
			"description": "Full description of the incident",
		},
		"priority": map[string]any{
			"type":        "string",
			"enum":        []string{"1", "2", "3", "4", "5"},
			"description": "1 (critical) to 5 (planning)",
		},
		"urgency": map[string]any{
			"type":        "string",
			"enum":        []string{"1", "2", "3"},
			"description": "1 (high) to 3 (low)",
		},
		"impact": map[string]any{
			"type":        "string",
			"enum":        []string{"1", "2", "3"},
			"description": "1 (high) to 3 (low)",
		},
		"category": map[string]any{
			"type":        "string",
			"description": "Incident category",
		},
		"caller_id": map[string]any{
			"type":        "string",
			"description": "User the incident is opened on behalf of",
		},
		"assigned_to": map[string]any{
			"type":        "string",
			"description": "User or group the incident is assigned to",
		},
		"state": map[string]any{
			"type":        "string",
			"description": "Incident state value",
		},
		"close_notes": map[string]any{
			"type":        "string",
			"description": "Resolution notes",
		},
	}
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// toolCatalog lists every incident tool the server exposes. The catalog
// is rebuilt per call; the server holds no tool state.
func toolCatalog() []toolDescription {
	withID := func(extra map[string]any) map[string]any {
		props := map[string]any{"id": idProperty()}
		for name, schema := range extra {
			props[name] = schema
		}
		return props
	}

	return []toolDescription{
		{
			Name:        "incident_list",
			Description: "List incidents, optionally filtered by an encoded query and/or priority.",
			InputSchema: objectSchema(map[string]any{
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of incidents to return",
				},
				"query": map[string]any{
					"type":        "string",
					"description": "Encoded filter query, e.g. state=2^urgency=1",
				},
				"priority": map[string]any{
					"type":        "string",
					"enum":        []string{"1", "2", "3", "4", "5"},
					"description": "Restrict results to a single priority",
				},
			}),
		},
		{
			Name:        "incident_get",
			Description: "Get a single incident by sys_id or incident number.",
			InputSchema: objectSchema(withID(nil), "id"),
		},
		{
			Name:        "incident_create",
			Description: "Create a new incident. short_description and description are required.",
			InputSchema: objectSchema(fieldProperties(), "short_description", "description"),
		},
		{
			Name:        "incident_update",
			Description: "Update fields on an existing incident.",
			InputSchema: objectSchema(withID(fieldProperties()), "id"),
		},
		{
			Name:        "incident_delete",
			Description: "Delete an incident.",
			InputSchema: objectSchema(withID(nil), "id"),
		},
		{
			Name:        "incident_assign",
			Description: "Assign an incident to a user or group.",
			InputSchema: objectSchema(withID(map[string]any{
				"assigned_to": map[string]any{
					"type":        "string",
					"description": "Assignee user or group",
				},
			}), "id", "assigned_to"),
		},
		{
			Name:        "incident_resolve",
			Description: "Resolve an incident with close notes.",
			InputSchema: objectSchema(withID(map[string]any{
				"close_notes": map[string]any{
					"type":        "string",
					"description": "Resolution notes",
				},
			}), "id", "close_notes"),
		},
	}
}
