package templates

import "chatextract/internal/transcript"

// GenericID names the built-in template used when no template is requested.
const GenericID = "generic"

// AutoAlias is accepted anywhere a template name is and resolves to GenericID.
const AutoAlias = "auto"

// builtins is the static registry. Adding a platform is a data change here
// (or in a templates file), never an engine change.
var builtins = []Template{
	{
		ID:            GenericID,
		Name:          "Generic",
		Style:         StyleAttribute,
		Container:     "[data-message-author-role]",
		RoleAttribute: "data-message-author-role",
		RoleValues: map[string]transcript.Role{
			"user":      transcript.User,
			"human":     transcript.User,
			"assistant": transcript.Model,
			"model":     transcript.Model,
			"ai":        transcript.Model,
			"bot":       transcript.Model,
		},
		UserSelector:  "[class*='user'], [class*='query'], [class*='human']",
		ModelSelector: "[class*='model'], [class*='response'], [class*='assistant']",
		Description:   "Author-role attribute first, then common user/model class substrings, then alternation.",
	},
	{
		ID:            "gemini",
		Name:          "Google Gemini",
		Style:         StyleClass,
		Container:     "user-query, model-response",
		UserSelector:  "user-query",
		ModelSelector: "model-response",
		Content:       ".query-text, message-content, .markdown",
		Description:   "Gemini app and share pages: <user-query> and <model-response> custom elements.",
	},
	{
		ID:            "chatgpt",
		Name:          "OpenAI ChatGPT",
		Style:         StyleAttribute,
		Container:     "[data-message-author-role]",
		RoleAttribute: "data-message-author-role",
		RoleValues: map[string]transcript.Role{
			"user":      transcript.User,
			"assistant": transcript.Model,
		},
		Content:     ".markdown, .whitespace-pre-wrap",
		Description: "ChatGPT conversations and shared links: data-message-author-role on each message.",
	},
	{
		ID:            "claude",
		Name:          "Anthropic Claude",
		Style:         StyleClass,
		Container:     "[data-testid='user-message'], .font-claude-message, .font-claude-response",
		UserSelector:  "[data-testid='user-message']",
		ModelSelector: ".font-claude-message, .font-claude-response",
		Description:   "claude.ai chats: user messages by test id, responses by font-claude-* classes.",
	},
	{
		ID:          "alternating",
		Name:        "Alternating blocks",
		Style:       StyleAlternating,
		Container:   "[class*='message']",
		Description: "No role markup; roles alternate starting with the user.",
	},
}
