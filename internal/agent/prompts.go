package agent

import (
	"fmt"
	"strings"
)

const reactTemplate = `You are a smart Trading Analytics Agent. Your goal is to help the user by answering questions using the tools provided.

TOOLS AVAILABLE:
%s

FORMAT:
To use a tool, please use the following format:

Thought: Do I need to use a tool? Yes
Action: the action to take, should be one of [%s]
Action Input: the input to the action
Observation: the result of the action

When you have a response to say to the Human, or if you do not need to use a tool, you MUST use the format:

Thought: Do I need to use a tool? No
Final Answer: [your response here]

EXAMPLE:
Question: What is 100 * 2?
Thought: I need to calculate this.
Action: Calculator
Action Input: 100 * 2
Observation: 200
Thought: I have the answer.
Final Answer: The result is 200.

Begin!
`

const nudgeText = "Your last response contained neither an Action with an Action Input nor a Final Answer. " +
	"Either use a tool in the required format or reply with \"Final Answer:\".\nThought:"

// StepLimitMessage is returned when the step budget runs out.
const StepLimitMessage = "Agent could not find an answer within the step limit."

func systemPrompt(tools *Registry) string {
	return fmt.Sprintf(reactTemplate, tools.Describe(), strings.Join(tools.Names(), ", "))
}

func historyText(ex Exchange) string {
	return fmt.Sprintf("Previous question: %s\nPrevious answer: %s\n", ex.Question, ex.Answer)
}

func questionText(q string) string {
	return "Question: " + q
}

func observationText(obs string) string {
	return "Observation: " + obs + "\nThought:"
}

func notFoundText(name string, tools *Registry) string {
	return fmt.Sprintf("Tool '%s' not found. Available tools: %s", name, strings.Join(tools.Names(), ", "))
}
