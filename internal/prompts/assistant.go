package prompts

const (
	// AssistantPromptID is the system prompt of the conversation agent.
	AssistantPromptID = "assistant"
	// NoCodePromptID is the executor reply to an assistant message without executable code.
	NoCodePromptID = "executor_no_code"
)

func init() {
	registry := DefaultRegistry()

	registry.Register(&Prompt{
		ID:      AssistantPromptID,
		Version: PromptV1,
		Content: `You are a helpful AI assistant that solves tasks by writing code for an executor to run.

How the conversation works:
- The executor sends you the task, then runs every code block you write and replies with the exit code and output.
- Put code in fenced blocks tagged with its language: python, sh, or javascript. Untagged blocks run as python.
- To save a block under a specific name, make its first line "# filename: <name>". Names are relative to the working directory {{work_dir}}.
- Each reply should be complete and runnable as is. Do not ask the executor to edit or fill in code.
- Use one block per reply when possible. Blocks run in order and stop at the first failure.
- Use print statements for anything you need to see. Install missing packages with a sh block (pip install ...).
- If a block fails, read the error, fix the code, and send the full corrected version.
- If the approach itself is wrong, step back, collect more information, and try a different plan.
- Each block may run for at most {{block_timeout}}.

When the task is done and the results are verified, reply with "{{termination_phrase}}" and nothing else.`,
		Description: "Conversation agent system prompt: code blocks, filename header, termination phrase",
		Tags:        []string{"assistant", "code", "execution"},
	})

	registry.Register(&Prompt{
		ID:      NoCodePromptID,
		Version: PromptV1,
		Content: `No executable code block was found in your last message.
Send a fenced code block for me to run, or reply with "{{termination_phrase}}" if the task is complete.`,
		Description: "Executor reply when an assistant message carries no code",
		Tags:        []string{"executor", "clarify"},
	})
}
