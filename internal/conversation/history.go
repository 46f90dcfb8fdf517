package conversation

// DefaultWindowSize is the number of messages sent to the analyst with each
// question, counting the question itself.
const DefaultWindowSize = 5

// BuildHistory returns the window of messages to send for question. The last
// entry of messages is skipped because callers append the question to the log
// before windowing; the question is then appended as a fresh user message.
// The result holds at most windowSize entries and shares nothing with messages.
func BuildHistory(messages []Message, question string, windowSize int) []Message {
	if windowSize < 1 {
		windowSize = 1
	}
	start := max(0, len(messages)-windowSize)
	end := max(start, len(messages)-1)

	out := make([]Message, 0, end-start+1)
	for _, message := range messages[start:end] {
		out = append(out, message.Clone())
	}
	return append(out, UserQuestion(question))
}
