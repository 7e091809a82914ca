package agent

import (
	"fmt"
	"strings"
	"time"
)

// PromptConfig holds everything needed to build the intent system prompt.
type PromptConfig struct {
	Language     string    // answer language, e.g. "Vietnamese"
	Currency     string    // e.g. "VND"
	Today        time.Time // zero means time.Now at build time
	Instructions string    // optional operator-supplied persona text
	TextualCalls bool      // describe the name(arg: "value") fallback syntax
	ToolNames    []string  // listed for models that rely on TextualCalls
}

// BuildSystemPrompt constructs the system prompt for the tool-selection call.
func BuildSystemPrompt(cfg PromptConfig) string {
	var b strings.Builder

	language := cfg.Language
	if language == "" {
		language = "Vietnamese"
	}
	today := cfg.Today
	if today.IsZero() {
		today = time.Now()
	}

	// 1. Role identification
	b.WriteString("You are a helpful financial assistant. Analyze the user's query and call the appropriate functions ")
	b.WriteString("to retrieve the necessary information. Then, provide a concise summary of the results in ")
	b.WriteString(language)
	b.WriteString(".\n\n")

	// 2. Context the model cannot infer
	b.WriteString("## Context\n")
	fmt.Fprintf(&b, "Today is %s.\n", today.Format("2006-01-02"))
	if cfg.Currency != "" {
		fmt.Fprintf(&b, "All amounts are in %s.\n", cfg.Currency)
	}
	b.WriteString("Dates passed to functions use the YYYY-MM-DD format.\n\n")

	// 3. Operator instructions
	if s := strings.TrimSpace(cfg.Instructions); s != "" {
		fmt.Fprintf(&b, "## Instructions\n%s\n\n", s)
	}

	// 4. Calling rules
	b.WriteString(`## Function Calls
- Only call functions that are listed; never invent a function or a parameter.
- Pass only the arguments the user's query justifies. Omit optional arguments you do not need.
- If no function can answer the query, do not call any.
`)

	// 5. Textual fallback for models without native tool calls
	if cfg.TextualCalls {
		b.WriteString("\nIf you cannot emit native tool calls, write each call on its own line as\n")
		b.WriteString(`function_name(param: "value", other: "value")` + "\n")
		if len(cfg.ToolNames) > 0 {
			b.WriteString("Available functions:\n")
			for _, name := range cfg.ToolNames {
				fmt.Fprintf(&b, "  - %s\n", name)
			}
		}
	}

	return b.String()
}
