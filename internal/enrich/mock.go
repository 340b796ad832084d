package enrich

import "context"

// MockClient is a canned Client for tests.
type MockClient struct {
	Response string
	Err      error
	// Calls counts Complete invocations.
	Calls int
}

func (m *MockClient) Complete(ctx context.Context, system, user string) (string, error) {
	m.Calls++
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}
