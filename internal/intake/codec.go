package intake

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/runger/bikeshare/internal/domain"
	"github.com/runger/bikeshare/internal/orchestrator"
)

// ErrBadRequest is returned when a request struct is missing a field or
// carries a field of the wrong kind.
var ErrBadRequest = errors.New("malformed intake request")

// Request and reply field names.
const (
	fieldOperation   = "operation"
	fieldResponses   = "responses"
	fieldSourceRange = "source_range"
	fieldSubmittedAt = "submitted_at"

	fieldTable  = "table"
	fieldRow    = "row"
	fieldColumn = "column"
	fieldValue  = "value"

	fieldRunID    = "run_id"
	fieldPhase    = "phase"
	fieldCode     = "code"
	fieldEventKey = "event_key"
	fieldOK       = "ok"
	fieldMessage  = "message"
	fieldAction   = "action"
)

// Reply is the client-side view of a submitted event's outcome.
type Reply struct {
	RunID     string
	Operation string
	Phase     string
	Code      string
	EventKey  string
	Message   string
	OK        bool
}

// EncodeEvent converts a raw submission to its wire form.
func EncodeEvent(raw domain.RawEvent) (*structpb.Struct, error) {
	responses := make([]any, len(raw.Responses))
	for i, r := range raw.Responses {
		responses[i] = r
	}
	m := map[string]any{
		fieldOperation:   raw.Operation,
		fieldResponses:   responses,
		fieldSourceRange: raw.SourceRange,
	}
	if !raw.SubmittedAt.IsZero() {
		m[fieldSubmittedAt] = raw.SubmittedAt.UTC().Format(time.RFC3339Nano)
	}
	return structpb.NewStruct(m)
}

// DecodeEvent converts the wire form back to a raw submission. A missing
// submitted_at leaves the time zero so the pipeline stamps it.
func DecodeEvent(s *structpb.Struct) (domain.RawEvent, error) {
	var raw domain.RawEvent
	fields := s.GetFields()

	op, ok := fields[fieldOperation]
	if !ok {
		return raw, fmt.Errorf("%w: %s is required", ErrBadRequest, fieldOperation)
	}
	raw.Operation = op.GetStringValue()
	raw.SourceRange = fields[fieldSourceRange].GetStringValue()

	if v, ok := fields[fieldResponses]; ok {
		list := v.GetListValue()
		if list == nil {
			return raw, fmt.Errorf("%w: %s must be a list", ErrBadRequest, fieldResponses)
		}
		for _, item := range list.GetValues() {
			raw.Responses = append(raw.Responses, item.GetStringValue())
		}
	}

	if v := fields[fieldSubmittedAt].GetStringValue(); v != "" {
		at, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return raw, fmt.Errorf("%w: %s: %w", ErrBadRequest, fieldSubmittedAt, err)
		}
		raw.SubmittedAt = at
	}
	return raw, nil
}

// EncodeEdit converts a manual edit to its wire form.
func EncodeEdit(e orchestrator.Edit) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		fieldTable:  e.Table,
		fieldRow:    e.Row,
		fieldColumn: e.Column,
		fieldValue:  e.Value,
	})
}

// DecodeEdit converts the wire form back to a manual edit.
func DecodeEdit(s *structpb.Struct) (orchestrator.Edit, error) {
	fields := s.GetFields()
	table := fields[fieldTable].GetStringValue()
	if table == "" {
		return orchestrator.Edit{}, fmt.Errorf("%w: %s is required", ErrBadRequest, fieldTable)
	}
	e := orchestrator.Edit{
		Table:  table,
		Row:    int(fields[fieldRow].GetNumberValue()),
		Column: int(fields[fieldColumn].GetNumberValue()),
	}
	if e.Row < 1 || e.Column < 1 {
		return orchestrator.Edit{}, fmt.Errorf("%w: row and column are 1-based", ErrBadRequest)
	}
	if v, ok := fields[fieldValue]; ok {
		e.Value = v.AsInterface()
	}
	return e, nil
}

// NewReply summarizes a run result the way it travels over the wire.
func NewReply(res *orchestrator.Result) Reply {
	return Reply{
		RunID:     res.RunID,
		Operation: string(res.Operation),
		Phase:     string(res.Phase),
		Code:      res.Code(),
		EventKey:  res.EventKey,
		Message:   res.Intent.Message,
		OK:        res.OK(),
	}
}

func encodeResult(res *orchestrator.Result) (*structpb.Struct, error) {
	r := NewReply(res)
	return structpb.NewStruct(map[string]any{
		fieldRunID:     r.RunID,
		fieldOperation: r.Operation,
		fieldPhase:     r.Phase,
		fieldCode:      r.Code,
		fieldEventKey:  r.EventKey,
		fieldMessage:   r.Message,
		fieldOK:        r.OK,
	})
}

func decodeReply(s *structpb.Struct) Reply {
	f := s.GetFields()
	return Reply{
		RunID:     f[fieldRunID].GetStringValue(),
		Operation: f[fieldOperation].GetStringValue(),
		Phase:     f[fieldPhase].GetStringValue(),
		Code:      f[fieldCode].GetStringValue(),
		EventKey:  f[fieldEventKey].GetStringValue(),
		Message:   f[fieldMessage].GetStringValue(),
		OK:        f[fieldOK].GetBoolValue(),
	}
}
