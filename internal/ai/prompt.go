package ai

import (
	"encoding/json"
	"regexp"
	"strings"
)

const actSystemPrompt = `
# Instructions
You are a browser automation assistant. Your job is to accomplish the user's goal across multiple model calls.

You are given:
1. the user's overall goal
2. the steps that you've taken so far
3. a list of active DOM elements in this chunk to consider to get closer to the goal.

You have 2 tools that you can call: doAction, and skipSection. Do action only performs element actions (click, fill, type, press, hover, focus, dblclick, selectOption, check, uncheck, scrollIntoView). Do not perform any other actions.

Also, verify if the goal has been accomplished already. Do this by checking if the goal has been accomplished based on the previous steps completed, the current page DOM elements and the current page URL / starting page URL. If it has, set completed to true and finish the task.
`

const verifySystemPrompt = `
You are a browser automation assistant. The job has given you a goal and a list of steps that have been taken so far. Your job is to determine if the user's goal has been completed based on the provided information.

# Input
You will receive:
1. The user's goal: A clear description of what the user wants to achieve.
2. Steps taken so far: A list of actions that have been performed up to this point.
3. An image of the current page, or the active DOM elements of the current page

# Your Task
Analyze the provided information to determine if the user's goal has been fully completed.

# Output
Call the verify tool with completed set to:
- true: If the goal has been definitively completed based on the steps taken and the current page.
- false: If the goal has not been completed or if there's any uncertainty about its completion.

# Important Considerations
- False positives are okay. False negatives are not okay.
- Look for evidence of errors on the page or something having gone wrong in completing the goal. If one does not exist, return true.
`

const extractSystemPrompt = `you are extracting content on behalf of a user. You will be given an instruction, progress so far, and a list of DOM elements to extract from. Where applicable, return the exact text from the DOM elements with all symbols, characters and endlines as is. Only extract new information that has not already been extracted. Make sure you include the extraction in your response. Return null or an empty string if no new information is found for a string variable`

const observeSystemPrompt = `
You are helping the user automate the browser by finding elements based on what the user wants to observe in the page.
You will be given:
1. a instruction of elements to observe
2. a numbered list of possible elements or an annotated image of the page

Return an array of elements that match the instruction.
`

const askSystemPrompt = `
you are a simple question answering assistent given the user's question. respond with only the answer.
`

// DefaultObservation is used when Observe gets no instruction
const DefaultObservation = `Find elements that can be used for any future actions in the page. These may be navigation links, related pages, section/subsection links, buttons, or other interactive elements. Be comprehensive: if there are multiple elements that may be relevant for future actions, return all of them.`

// NoDOMWithImage replaces the dom text when the oracle works from an annotated screenshot
const NoDOMWithImage = "n/a. use the image to find the elements."

var whitespace = regexp.MustCompile(`\s+`)

func squash(s string) string {
	return whitespace.ReplaceAllString(s, " ")
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}

func buildActUserPrompt(goal, steps, dom string) string {
	return "\n# My Goal\n" + goal +
		"\n\n# Steps You've Taken So Far\n" + orNone(steps) +
		"\n\n# Current Active Dom Elements\n" + dom + "\n"
}

func buildVerifyUserPrompt(goal, steps, dom string) string {
	prompt := "\n# My Goal\n" + goal + "\n\n# Steps You've Taken So Far\n" + orNone(steps) + "\n"
	if dom != "" {
		prompt += "\n# Active DOM Elements on the current page\n" + dom + "\n"
	}
	return prompt
}

func buildExtractUserPrompt(instruction, progress string, content map[string]any, dom string) string {
	if content == nil {
		content = map[string]any{}
	}
	prior, _ := json.MarshalIndent(content, "", "  ")
	var sb strings.Builder
	sb.WriteString("instruction: ")
	sb.WriteString(instruction)
	sb.WriteString("\nprogress: ")
	sb.WriteString(progress)
	sb.WriteString("\nPreviously Extracted Content:\n")
	sb.Write(prior)
	sb.WriteString("\nDOM: ")
	sb.WriteString(dom)
	return sb.String()
}

func buildObserveUserPrompt(instruction, dom string) string {
	return "instruction: " + instruction + "\nDOM: " + dom
}

func buildAskUserPrompt(question string) string {
	return "question: " + question
}

// tool is a provider-neutral function tool definition
type tool struct {
	Name        string
	Description string
	Properties  map[string]any
	Required    []string
}

func (t tool) schema() map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": t.Properties,
	}
	if len(t.Required) > 0 {
		s["required"] = t.Required
	}
	return s
}

const (
	toolDoAction    = "doAction"
	toolSkipSection = "skipSection"
	toolVerify      = "verify"
	toolExtract     = "extract"
	toolObserve     = "observe"
)

var actTools = []tool{
	{
		Name:        toolDoAction,
		Description: "execute the next element action that directly accomplishes the goal",
		Required:    []string{"method", "element", "args", "step", "completed"},
		Properties: map[string]any{
			"method": map[string]any{
				"type":        "string",
				"description": "The element method to call.",
			},
			"element": map[string]any{
				"type":        "number",
				"description": "The element number to act on",
			},
			"args": map[string]any{
				"type":        "array",
				"description": "The required arguments",
				"items": map[string]any{
					"type":        "string",
					"description": "The argument to pass to the function",
				},
			},
			"step": map[string]any{
				"type":        "string",
				"description": "human readable description of the step that is taken in the past tense. Please be very detailed.",
			},
			"why": map[string]any{
				"type":        "string",
				"description": "why is this step taken? how does it advance the goal?",
			},
			"completed": map[string]any{
				"type":        "boolean",
				"description": "true if the goal should be accomplished after this step",
			},
		},
	},
	{
		Name:        toolSkipSection,
		Description: "skips this area of the webpage because the current goal cannot be accomplished here",
		Properties: map[string]any{
			"reason": map[string]any{
				"type":        "string",
				"description": "reason that no action is taken",
			},
		},
	},
}

var verifyTool = tool{
	Name:        toolVerify,
	Description: "report whether the user's goal has been completed",
	Required:    []string{"completed"},
	Properties: map[string]any{
		"completed": map[string]any{
			"type":        "boolean",
			"description": "true if the goal has been completed",
		},
	},
}

var observeTool = tool{
	Name:        toolObserve,
	Description: "return the elements that match the instruction",
	Required:    []string{"elements"},
	Properties: map[string]any{
		"elements": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"elementId": map[string]any{
						"type":        "number",
						"description": "the number identifying the element",
					},
					"description": map[string]any{
						"type":        "string",
						"description": "a description of the element and what it is relevant for",
					},
				},
				"required": []string{"elementId", "description"},
			},
		},
	},
}

// extractTool wraps the caller's content schema with the progress metadata the loop needs.
func extractTool(schema map[string]any) tool {
	props := map[string]any{}
	var required []string
	if p, ok := schema["properties"].(map[string]any); ok {
		for k, v := range p {
			props[k] = v
		}
	}
	switch r := schema["required"].(type) {
	case []string:
		required = append(required, r...)
	case []any:
		for _, v := range r {
			if s, ok := v.(string); ok {
				required = append(required, s)
			}
		}
	}
	props["metadata"] = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"progress": map[string]any{
				"type":        "string",
				"description": "progress of what has been extracted so far",
			},
			"completed": map[string]any{
				"type":        "boolean",
				"description": "true if the goal is now accomplished",
			},
		},
		"required": []string{"progress", "completed"},
	}
	required = append(required, "metadata")
	return tool{
		Name:        toolExtract,
		Description: "extract the requested content from the DOM elements",
		Properties:  props,
		Required:    required,
	}
}

// extractJSONObject pulls the first balanced JSON object out of text a model wrapped in prose.
func extractJSONObject(text string) (json.RawMessage, bool) {
	if json.Valid([]byte(text)) {
		return json.RawMessage(text), true
	}
	start := strings.Index(text, "{")
	if start == -1 {
		return nil, false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				candidate := text[start : i+1]
				if json.Valid([]byte(candidate)) {
					return json.RawMessage(candidate), true
				}
				return nil, false
			}
		}
	}
	return nil, false
}
