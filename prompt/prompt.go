// Package prompt loads .prompt template files and renders pipeline inputs
// into chat messages.
//
// A .prompt file has three heading-delimited sections:
//
//	# system
//	<system prompt text>
//
//	# instructions
//	<per-call instruction text>
//
//	# few-shot
//	> user
//	<example input>
//	> assistant
//	<example output>
//
// Few-shot blocks are optional; system and instructions are required.
package prompt

import (
	"fmt"
	"os"
	"strings"

	"github.com/hazyhaar/scribe/llm"
)

// Template is one loaded prompt: a system message, an instruction block,
// and optional few-shot example turns.
type Template struct {
	System      string
	Instruction string
	Shots       []llm.Message
}

// Load reads and parses a .prompt file.
func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("prompt: read %s: %w", path, err)
	}
	t, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("prompt: %s: %w", path, err)
	}
	return t, nil
}

// Parse parses prompt file content.
func Parse(content string) (*Template, error) {
	sections := map[string][]string{}
	var shots []llm.Message
	var section string
	var shot *llm.Message

	flushShot := func() {
		if shot != nil {
			shot.Content = strings.TrimSpace(shot.Content)
			shots = append(shots, *shot)
			shot = nil
		}
	}

	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "# ") {
			flushShot()
			section = strings.ToLower(strings.TrimSpace(line[2:]))
			continue
		}

		if section == "few-shot" {
			if strings.HasPrefix(line, "> ") {
				flushShot()
				shot = &llm.Message{Role: strings.TrimSpace(line[2:])}
			} else if shot != nil {
				shot.Content += line + "\n"
			}
			continue
		}

		sections[section] = append(sections[section], line)
	}
	flushShot()

	t := &Template{
		System:      strings.TrimSpace(strings.Join(sections["system"], "\n")),
		Instruction: strings.TrimSpace(strings.Join(sections["instructions"], "\n")),
		Shots:       shots,
	}
	if t.System == "" {
		return nil, fmt.Errorf("system section is empty")
	}
	if t.Instruction == "" {
		return nil, fmt.Errorf("instructions section is empty")
	}
	for _, s := range t.Shots {
		if s.Role != "user" && s.Role != "assistant" {
			return nil, fmt.Errorf("few-shot role %q (want user or assistant)", s.Role)
		}
	}
	return t, nil
}

// Messages assembles the chat sequence for one call: system prompt, static
// few-shot turns, then a final user message combining the instructions with
// the call-specific context. Context goes last so the static prefix stays
// cacheable across calls.
func (t *Template) Messages(context string) []llm.Message {
	msgs := make([]llm.Message, 0, len(t.Shots)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: t.System})
	msgs = append(msgs, t.Shots...)
	msgs = append(msgs, llm.Message{
		Role:    "user",
		Content: "## Instructions\n" + t.Instruction + "\n\n" + context,
	})
	return msgs
}
