package llm

import "context"

// MockClient is a test double for the LLM Client interface.
// It can also be used for dry-run mode.
type MockClient struct {
	Response  *Response
	Responses []*Response // consumed in order when set
	Err       error
	Calls     []string // records prompts sent
}

// Complete records the call and returns the mock response.
func (m *MockClient) Complete(ctx context.Context, prompt string) (*Response, error) {
	m.Calls = append(m.Calls, prompt)
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Responses) > 0 {
		resp := m.Responses[0]
		m.Responses = m.Responses[1:]
		return resp, nil
	}
	return m.Response, nil
}
