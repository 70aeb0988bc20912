package events

// LogFields returns structured log fields describing evt.
func LogFields(evt Event) map[string]any {
	if evt == nil {
		return nil
	}
	meta := evt.Meta()
	f := fieldVisitor{fields: map[string]any{
		"kind":     string(evt.EventKind()),
		"trace_id": meta.TraceID,
		"v":        meta.SchemaVersion,
	}}
	_ = evt.Accept(&f)
	return f.fields
}

type fieldVisitor struct {
	fields map[string]any
}

func (f *fieldVisitor) VisitIntake(e IntakeEvent) error {
	f.fields["source"] = e.Source
	f.fields["external_id"] = e.ExternalID
	f.fields["sender"] = e.Sender
	f.fields["body_chars"] = len([]rune(e.Body))
	return nil
}

func (f *fieldVisitor) VisitClassification(e ClassificationEvent) error {
	f.fields["priority"] = string(e.Priority)
	return nil
}

func (f *fieldVisitor) VisitPlan(e PlanEvent) error {
	f.fields["detail_keys"] = len(e.Detail)
	return nil
}

func (f *fieldVisitor) VisitApproval(e ApprovalEvent) error {
	f.fields["detail_keys"] = len(e.Detail)
	return nil
}

func (f *fieldVisitor) VisitExecution(e ExecutionEvent) error {
	f.fields["detail_keys"] = len(e.Detail)
	return nil
}
