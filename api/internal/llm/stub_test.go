package llm

import "context"

type stubEngine struct{ name string }

func (s *stubEngine) Name() string  { return s.name }
func (s *stubEngine) Model() string { return s.name + "-model" }

func (s *stubEngine) Complete(context.Context, CompletionRequest) (Completion, error) {
	return Completion{}, nil
}

func (s *stubEngine) Stream(context.Context, CompletionRequest, func(string) error) error {
	return nil
}
