package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/wagiedev/claude-supervisor-go/internal/errors"
	"github.com/wagiedev/claude-supervisor-go/internal/usage"
)

const (
	// Terminator is the line that logically ends the stream, independent
	// of end-of-file.
	Terminator = "$"

	// maxFragmentSize caps the multi-line fragment buffer. One oversized
	// object is dropped rather than letting the buffer grow without bound.
	maxFragmentSize = 100 * 1024
)

// Parser decodes newline-delimited JSON lines into events. Lines that are
// not complete JSON accumulate in a fragment buffer until brace depth
// returns to zero, at which point the whole group is parsed as one object.
// The parser never holds more than one in-flight fragment.
//
// Not safe for concurrent use; each run owns one Parser.
type Parser struct {
	log      *slog.Logger
	fragment bytes.Buffer
}

// NewParser creates a parser logging skipped and malformed input to log.
func NewParser(log *slog.Logger) *Parser {
	return &Parser{log: log.With("component", "parser")}
}

// ProcessLine consumes one line of child stdout and returns the events it
// yields, in stream order. A single line may produce several events (an
// assistant message carries both content and usage). Malformed input
// yields a ParseError event and the stream continues.
func (p *Parser) ProcessLine(line []byte) []Event {
	trimmed := bytes.TrimSpace(line)

	if len(trimmed) == 0 {
		return nil
	}

	if string(trimmed) == Terminator {
		if p.fragment.Len() > 0 {
			p.log.Warn("Discarding partial fragment at stream terminator", "size", p.fragment.Len())
			p.fragment.Reset()
		}

		p.log.Debug("Received stream terminator")

		return []Event{Completed{}}
	}

	// Fast path: the line is one complete JSON value.
	if p.fragment.Len() == 0 && json.Valid(trimmed) {
		return p.parseObject(trimmed)
	}

	// Fragment path: accumulate until brace depth returns to zero.
	if p.fragment.Len()+len(line)+1 > maxFragmentSize {
		size := p.fragment.Len() + len(line) + 1
		p.fragment.Reset()

		p.log.Warn("Fragment buffer limit exceeded, dropping fragment", "size", size)

		return []Event{ParseError{
			Line: string(line),
			Err:  fmt.Errorf("%w: %d bytes", errors.ErrFragmentOverflow, size),
		}}
	}

	p.fragment.Write(line)
	p.fragment.WriteByte('\n')

	if !isCompleteJSON(p.fragment.Bytes()) {
		return nil
	}

	group := append([]byte(nil), p.fragment.Bytes()...)
	p.fragment.Reset()

	if !json.Valid(bytes.TrimSpace(group)) {
		p.log.Warn("Failed to parse buffered fragment", "size", len(group))

		var probe any
		err := json.Unmarshal(bytes.TrimSpace(group), &probe)

		return []Event{ParseError{
			Line: string(group),
			Err:  &errors.JSONDecodeError{RawData: string(group), Err: err},
		}}
	}

	return p.parseObject(bytes.TrimSpace(group))
}

// isCompleteJSON reports whether buf's brace/bracket depth has returned to
// zero outside of any string. Quotes toggle string state; a backslash
// inside a string escapes the next byte. Structural characters are all
// ASCII, so byte iteration is safe over UTF-8 content.
func isCompleteJSON(buf []byte) bool {
	depth := 0
	inString := false
	escaped := false

	for _, b := range buf {
		if escaped {
			escaped = false

			continue
		}

		if b == '\\' && inString {
			escaped = true

			continue
		}

		if b == '"' {
			inString = !inString
		}

		if inString {
			continue
		}

		switch b {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
		}
	}

	return depth == 0
}

// envelope is the minimal shape decoded first to route a message.
type envelope struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
}

// contentBlock is one entry of a message's content array.
type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

// nestedMessage is the message object carried by assistant/user lines.
type nestedMessage struct {
	Message struct {
		Model   string          `json:"model"`
		Content []contentBlock  `json:"content"`
		Usage   *usage.Counters `json:"usage"`
	} `json:"message"`
}

// modelUsageWire is the per-model usage entry of result lines. Unlike
// every other usage report, these fields are camelCase on the wire.
type modelUsageWire struct {
	InputTokens              int64 `json:"inputTokens"`
	OutputTokens             int64 `json:"outputTokens"`
	CacheReadInputTokens     int64 `json:"cacheReadInputTokens"`
	CacheCreationInputTokens int64 `json:"cacheCreationInputTokens"`
}

func (w modelUsageWire) counters() usage.Counters {
	return usage.Counters{
		Input:         w.InputTokens,
		Output:        w.OutputTokens,
		CacheRead:     w.CacheReadInputTokens,
		CacheCreation: w.CacheCreationInputTokens,
	}
}

// parseObject routes one complete JSON value by its type field.
func (p *Parser) parseObject(data []byte) []Event {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		p.log.Debug("Skipping non-object JSON value")

		return nil
	}

	switch env.Type {
	case "":
		p.log.Debug("Skipping message without type field")

		return nil

	case "system":
		// Init is consumed during session-id extraction; other system
		// messages carry nothing the consumer needs.
		p.log.Debug("Skipping system message", "subtype", env.Subtype)

		return nil

	case "assistant":
		return p.parseAssistant(data)

	case "user":
		return p.parseUser(data)

	case "result":
		return p.parseResult(data)

	case "text":
		var msg struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return p.decodeError(data, err)
		}

		return []Event{TextDelta{Text: msg.Content}}

	case "usage":
		var counters usage.Counters
		if err := json.Unmarshal(data, &counters); err != nil {
			return p.decodeError(data, err)
		}

		return []Event{UsageUpdate{Counters: counters}}

	case "tool_use":
		var msg struct {
			ID    string          `json:"id"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return p.decodeError(data, err)
		}

		return []Event{ToolInvocation{ID: msg.ID, Name: msg.Name, Input: msg.Input}}

	case "tool_result":
		var msg struct {
			ToolUseID string          `json:"tool_use_id"`
			Content   json.RawMessage `json:"content"`
			IsError   bool            `json:"is_error"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return p.decodeError(data, err)
		}

		return []Event{ToolResult{
			ToolUseID: msg.ToolUseID,
			Content:   flattenContent(msg.Content),
			IsError:   msg.IsError,
		}}

	case "error":
		var msg struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return p.decodeError(data, err)
		}

		return []Event{StreamError{Message: msg.Message}}

	case "stream_event":
		return p.parseStreamEvent(data)

	default:
		p.log.Debug("Skipping unknown message type", "type", env.Type)

		return nil
	}
}

func (p *Parser) parseAssistant(data []byte) []Event {
	var msg nestedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return p.decodeError(data, err)
	}

	events := make([]Event, 0, len(msg.Message.Content)+1)

	for _, block := range msg.Message.Content {
		switch block.Type {
		case "text":
			events = append(events, TextDelta{Text: block.Text})
		case "tool_use":
			events = append(events, ToolInvocation{
				ID:    block.ID,
				Name:  block.Name,
				Input: block.Input,
			})
		default:
			p.log.Debug("Skipping assistant content block", "block_type", block.Type)
		}
	}

	if msg.Message.Usage != nil {
		events = append(events, UsageUpdate{
			Model:    msg.Message.Model,
			Counters: *msg.Message.Usage,
		})
	}

	return events
}

func (p *Parser) parseUser(data []byte) []Event {
	var msg nestedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return p.decodeError(data, err)
	}

	var events []Event

	for _, block := range msg.Message.Content {
		if block.Type != "tool_result" {
			continue
		}

		events = append(events, ToolResult{
			ToolUseID: block.ToolUseID,
			Content:   flattenContent(block.Content),
			IsError:   block.IsError,
		})
	}

	return events
}

// parseResult emits usage updates first, then the completion, so totals
// are final by the time the consumer sees Completed.
func (p *Parser) parseResult(data []byte) []Event {
	var msg struct {
		IsError    bool                      `json:"is_error"`
		Result     string                    `json:"result"`
		Usage      *usage.Counters           `json:"usage"`
		ModelUsage map[string]modelUsageWire `json:"modelUsage"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return p.decodeError(data, err)
	}

	var events []Event

	if len(msg.ModelUsage) > 0 {
		// Sorted so delivery order is deterministic.
		models := make([]string, 0, len(msg.ModelUsage))
		for model := range msg.ModelUsage {
			models = append(models, model)
		}

		sort.Strings(models)

		for _, model := range models {
			events = append(events, UsageUpdate{
				Model:    model,
				Counters: msg.ModelUsage[model].counters(),
			})
		}
	} else if msg.Usage != nil {
		events = append(events, UsageUpdate{Counters: *msg.Usage})
	}

	events = append(events, Completed{IsError: msg.IsError, Result: msg.Result})

	return events
}

func (p *Parser) parseStreamEvent(data []byte) []Event {
	var msg struct {
		Event struct {
			Type  string `json:"type"`
			Delta struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"delta"`
		} `json:"event"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return p.decodeError(data, err)
	}

	if msg.Event.Type == "content_block_delta" && msg.Event.Delta.Type == "text_delta" {
		return []Event{TextDelta{Text: msg.Event.Delta.Text}}
	}

	p.log.Debug("Skipping stream event", "event_type", msg.Event.Type)

	return nil
}

func (p *Parser) decodeError(data []byte, err error) []Event {
	p.log.Warn("Failed to decode message", "error", err)

	return []Event{ParseError{
		Line: string(data),
		Err:  &errors.JSONDecodeError{RawData: string(data), Err: err},
	}}
}

// flattenContent renders a tool-result content field as plain text. The
// field is a string on some lines and an array of text blocks on others.
func flattenContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return string(raw)
	}

	var buf bytes.Buffer

	for _, block := range blocks {
		if block.Type == "text" {
			buf.WriteString(block.Text)
		}
	}

	return buf.String()
}
