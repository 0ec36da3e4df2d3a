package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// Configuration errors (E100-E119)

	"E101": {
		Category: CategoryConfig,
		Message:  "Configuration file not found",
		Detail:   "No slate.json was found at the given path or in any parent directory.",
		DocURL:   "https://slatelisp.dev/docs/errors/E101",
	},
	"E102": {
		Category: CategoryConfig,
		Message:  "Configuration file is not valid JSON",
		Detail:   "slate.json exists but could not be parsed.",
		DocURL:   "https://slatelisp.dev/docs/errors/E102",
	},
	"E103": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
		Detail:   "A configuration field holds a value outside its allowed range.",
		DocURL:   "https://slatelisp.dev/docs/errors/E103",
	},
	"E104": {
		Category: CategoryConfig,
		Message:  "Configuration file could not be read",
		DocURL:   "https://slatelisp.dev/docs/errors/E104",
	},

	// Server errors (E120-E139)

	"E121": {
		Category: CategoryServer,
		Message:  "Could not bind listener",
		Detail:   "The configured host and port could not be bound. The port may be in use or the host unavailable.",
		DocURL:   "https://slatelisp.dev/docs/errors/E121",
	},
	"E122": {
		Category: CategoryServer,
		Message:  "Could not write port file",
		Detail:   "The bound port could not be recorded at the configured port-file path.",
		DocURL:   "https://slatelisp.dev/docs/errors/E122",
	},
	"E123": {
		Category: CategoryServer,
		Message:  "Transcript store unavailable",
		Detail:   "The configured transcript bucket could not be reached.",
		DocURL:   "https://slatelisp.dev/docs/errors/E123",
	},

	// CLI errors (E140-E159)

	"E141": {
		Category: CategoryCLI,
		Message:  "Source file could not be read",
		DocURL:   "https://slatelisp.dev/docs/errors/E141",
	},
}

// Register adds or replaces an error template. Intended for tests and
// embedding code that carries its own codes.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
