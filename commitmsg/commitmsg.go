// Package commitmsg builds and parses the self-describing
// commit messages that trace a synthetic commit back to
// its source contribution.
package commitmsg

import (
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasttemplate"

	"github.com/byte4ever/contribgraph/contrib"
)

// DefaultTemplate is the commit message layout. Tags are
// substituted with valyala/fasttemplate.
const DefaultTemplate = "{{message}}\n" +
	"\n" +
	"Type: {{type}}\n" +
	"Date: {{date}}\n" +
	"(Project ID: {{project_id}}, Instance: {{instance}})"

const (
	typePrefix  = "Type: "
	datePrefix  = "Date: "
	tracePrefix = "(Project ID: "
	traceMiddle = ", Instance: "
	traceSuffix = ")"
)

var defaultTpl = fasttemplate.New(
	DefaultTemplate, "{{", "}}",
)

// Format renders the default commit message for a
// contribution. Dates render as RFC 3339 UTC so the
// message parses back without loss.
func Format(ctb contrib.Contribution) string {
	return render(defaultTpl, ctb)
}

// Formatter renders commit messages from a custom
// template using the same tag set as DefaultTemplate.
type Formatter struct {
	tpl *fasttemplate.Template
}

// NewFormatter compiles a custom template.
func NewFormatter(template string) (*Formatter, error) {
	const errCtx = "compiling message template"

	tpl, err := fasttemplate.NewTemplate(
		template, "{{", "}}",
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, err,
		)
	}

	return &Formatter{tpl: tpl}, nil
}

// Format renders the commit message for a contribution.
func (f *Formatter) Format(
	ctb contrib.Contribution,
) string {
	return render(f.tpl, ctb)
}

func render(
	tpl *fasttemplate.Template,
	ctb contrib.Contribution,
) string {
	return tpl.ExecuteString(map[string]any{
		"message": ctb.Message,
		"type":    string(ctb.Type),
		"date": ctb.Date.UTC().Format(
			time.RFC3339,
		),
		"project_id": fmt.Sprintf(
			"%d", ctb.ProjectID,
		),
		"instance": ctb.Instance,
	})
}

// Parsed is a contribution recovered from a commit
// message.
type Parsed struct {
	Message   string
	Type      contrib.Type
	Date      time.Time
	ProjectID int64
	Instance  string
}

// Contribution converts the parsed fields back to the
// uniform schema.
func (p *Parsed) Contribution() contrib.Contribution {
	return contrib.Contribution{
		Type:      p.Type,
		Message:   p.Message,
		ProjectID: p.ProjectID,
		Date:      p.Date,
		Instance:  p.Instance,
	}
}

// Parse recovers the contribution fields from a commit
// message produced with DefaultTemplate. Returns false
// when the message does not carry all trace lines.
func Parse(msg string) (*Parsed, bool) {
	var (
		parsed    Parsed
		msgLines  []string
		gotType   bool
		gotDate   bool
		gotTrace  bool
		inTrailer bool
	)

	for _, line := range strings.Split(msg, "\n") {
		switch {
		case strings.HasPrefix(line, typePrefix):
			parsed.Type = contrib.Type(
				strings.TrimPrefix(line, typePrefix),
			)
			gotType = true
			inTrailer = true

		case strings.HasPrefix(line, datePrefix):
			date, err := time.Parse(
				time.RFC3339,
				strings.TrimPrefix(line, datePrefix),
			)
			if err != nil {
				return nil, false
			}

			parsed.Date = date
			gotDate = true
			inTrailer = true

		case strings.HasPrefix(line, tracePrefix):
			pid, inst, ok := parseTrace(line)
			if !ok {
				return nil, false
			}

			parsed.ProjectID = pid
			parsed.Instance = inst
			gotTrace = true
			inTrailer = true

		default:
			if !inTrailer {
				msgLines = append(msgLines, line)
			}
		}
	}

	if !gotType || !gotDate || !gotTrace {
		return nil, false
	}

	parsed.Message = strings.TrimSpace(
		strings.Join(msgLines, "\n"),
	)

	return &parsed, true
}

// parseTrace splits "(Project ID: N, Instance: S)" into
// its two fields.
func parseTrace(line string) (int64, string, bool) {
	rest := strings.TrimPrefix(line, tracePrefix)

	idx := strings.Index(rest, traceMiddle)
	if idx < 0 {
		return 0, "", false
	}

	var pid int64

	if _, err := fmt.Sscanf(
		rest[:idx], "%d", &pid,
	); err != nil {
		return 0, "", false
	}

	inst := strings.TrimSuffix(
		rest[idx+len(traceMiddle):], traceSuffix,
	)
	if inst == rest[idx+len(traceMiddle):] {
		return 0, "", false
	}

	return pid, inst, true
}
