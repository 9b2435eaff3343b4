package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"domainflow/internal/domain"
)

// Change types written by the engine.
const (
	DomainCreated          = "domain.created"
	DomainUpdated          = "domain.updated"
	DomainClosed           = "domain.closed"
	DomainReopened         = "domain.reopened"
	DomainPinned           = "domain.pinned"
	DomainUnpinned         = "domain.unpinned"
	DomainDeleted          = "domain.deleted"
	TaskCreated            = "task.created"
	TaskUpdated            = "task.updated"
	TaskCompleted          = "task.completed"
	TaskReopened           = "task.reopened"
	TaskDeleted            = "task.deleted"
	SubtaskCreated         = "subtask.created"
	SubtaskUpdated         = "subtask.updated"
	SubtaskDeleted         = "subtask.deleted"
	CommentCreated         = "comment.created"
	CommentDeleted         = "comment.deleted"
	TemplateCreated        = "template.created"
	TemplateUpdated        = "template.updated"
	TemplateDeleted        = "template.deleted"
	TemplateSubtaskCreated = "template_subtask.created"
	TemplateSubtaskUpdated = "template_subtask.updated"
	TemplateSubtaskMoved   = "template_subtask.moved"
	TemplateSubtaskDeleted = "template_subtask.deleted"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type Payload map[string]any

// Append writes one change row inside tx so it commits with the mutation.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, changeType, domainID, entityKind, entityID string, payload Payload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal change payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO changes(ts,type,domain_id,entity_kind,entity_id,payload_json) VALUES (?,?,?,?,?,?)`,
		domain.FormatTime(w.Now()), changeType, nullable(domainID), entityKind, nullable(entityID), string(data))
	if err != nil {
		return fmt.Errorf("append change %s: %w", changeType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
