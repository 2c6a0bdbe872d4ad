package envelope

import "time"

// Text returns the value at key when it is a string, otherwise "".
func (p Payload) Text(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

// Map returns the value at key when it is an object, otherwise nil.
func (p Payload) Map(key string) map[string]any {
	if v, ok := p[key].(map[string]any); ok {
		return v
	}
	return nil
}

// Time parses an RFC 3339 string at key. Missing or malformed values yield nil.
func (p Payload) Time(key string) *time.Time {
	s := p.Text(key)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

// Delegation reads a task_delegate payload. Title falls back to the packet content.
func (p Packet) Delegation() Delegation {
	d := Delegation{
		TaskID:      p.Payload.Text("taskId"),
		Title:       p.Payload.Text("title"),
		Description: p.Payload.Text("description"),
		Input:       p.Payload.Map("inputData"),
		Priority:    p.Payload.Text("priority"),
		Deadline:    p.Payload.Time("deadline"),
	}
	if d.Title == "" {
		d.Title = p.Content
	}
	return d
}

// Outcome reads a task_result payload. Status defaults to completed.
func (p Packet) Outcome() Outcome {
	o := Outcome{
		TaskID:  p.Payload.Text("taskId"),
		Status:  p.Payload.Text("status"),
		Output:  p.Payload.Map("outputData"),
		Message: p.Payload.Text("message"),
	}
	if o.Status == "" {
		o.Status = "completed"
	}
	if o.Message == "" {
		o.Message = p.Content
	}
	return o
}
