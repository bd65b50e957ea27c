package domain

// Incident field values accepted by the external Table API. Priority runs
// 1 (critical) to 5 (planning); urgency and impact run 1 (high) to 3 (low).
// The external system takes them as strings.
var (
	validPriorities = map[string]struct{}{"1": {}, "2": {}, "3": {}, "4": {}, "5": {}}
	validScale3     = map[string]struct{}{"1": {}, "2": {}, "3": {}}
)

// The resolved state value in the incident table.
const IncidentStateResolved = "6"

// IncidentRecord is an incident as held by the external ticketing system.
// It carries both identifiers: SysID is the opaque immutable id, Number the
// human-readable sequence number. The gateway never caches records beyond a
// single request/response.
type IncidentRecord struct {
	SysID            string `json:"sys_id"`
	Number           string `json:"number"`
	ShortDescription string `json:"short_description"`
	Description      string `json:"description"`
	Priority         string `json:"priority"`
	Urgency          string `json:"urgency"`
	Impact           string `json:"impact"`
	Category         string `json:"category,omitempty"`
	State            string `json:"state"`
	AssignedTo       string `json:"assigned_to,omitempty"`
	CallerID         string `json:"caller_id,omitempty"`
	OpenedAt         string `json:"opened_at,omitempty"`
}

// IncidentFields is the bounded set of writable incident fields. It replaces
// the free-form dictionaries the Table API would otherwise accept: unknown
// fields are rejected at the transport boundary, not passed through.
type IncidentFields struct {
	ShortDescription string `json:"short_description"`
	Description      string `json:"description"`
	Priority         string `json:"priority,omitempty"`
	Urgency          string `json:"urgency,omitempty"`
	Impact           string `json:"impact,omitempty"`
	Category         string `json:"category,omitempty"`
	CallerID         string `json:"caller_id,omitempty"`
	AssignedTo       string `json:"assigned_to,omitempty"`
	State            string `json:"state,omitempty"`
	CloseNotes       string `json:"close_notes,omitempty"`
}

// ValidateForCreate checks the fields required to open a new incident.
func (f IncidentFields) ValidateForCreate() map[string]any {
	problems := map[string]any{}
	if f.ShortDescription == "" {
		problems["short_description"] = "required"
	}
	if f.Description == "" {
		problems["description"] = "required"
	}
	for field, problem := range f.validateRanges() {
		problems[field] = problem
	}
	if len(problems) == 0 {
		return nil
	}
	return problems
}

// ValidateForUpdate checks a partial field set; empty fields are untouched.
func (f IncidentFields) ValidateForUpdate() map[string]any {
	problems := f.validateRanges()
	if len(problems) == 0 {
		return nil
	}
	return problems
}

func (f IncidentFields) validateRanges() map[string]any {
	problems := map[string]any{}
	if f.Priority != "" {
		if _, ok := validPriorities[f.Priority]; !ok {
			problems["priority"] = "must be 1-5"
		}
	}
	if f.Urgency != "" {
		if _, ok := validScale3[f.Urgency]; !ok {
			problems["urgency"] = "must be 1-3"
		}
	}
	if f.Impact != "" {
		if _, ok := validScale3[f.Impact]; !ok {
			problems["impact"] = "must be 1-3"
		}
	}
	return problems
}

// TableValues renders the non-empty fields as the flat string map the
// Table API expects in request bodies.
func (f IncidentFields) TableValues() map[string]string {
	values := map[string]string{}
	set := func(key, val string) {
		if val != "" {
			values[key] = val
		}
	}
	set("short_description", f.ShortDescription)
	set("description", f.Description)
	set("priority", f.Priority)
	set("urgency", f.Urgency)
	set("impact", f.Impact)
	set("category", f.Category)
	set("caller_id", f.CallerID)
	set("assigned_to", f.AssignedTo)
	set("state", f.State)
	set("close_notes", f.CloseNotes)
	return values
}
