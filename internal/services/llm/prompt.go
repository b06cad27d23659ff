package llm

// RelevanceSystemPrompt frames the relevance filter.
const RelevanceSystemPrompt = "You filter object labels down to the ones associated with real-world sounds. " +
	"Animals, people, vehicles, tools, wind, rain and anything else with a recognisable sound qualify, " +
	"including interactions between objects. Objects such as traffic lights make no sound."

// RelevanceUserPrompt is formatted with the comma-joined label list.
const RelevanceUserPrompt = "Filter these labels and return only the ones that can make a real sound: %s. " +
	"Reply with the matching labels exactly as written, separated by commas, and nothing else."

// PromptSystemPrompt asks for a short synthesis prompt per label.
const PromptSystemPrompt = "You write prompts for a text-to-audio model. Given a JSON description of an object " +
	"seen in a video, reply with one short prompt of at most 10 words describing the sound it makes, " +
	"for example \"Sound of a loud car on the road\". Reply with the prompt text only."
