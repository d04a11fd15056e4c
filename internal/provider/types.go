package provider

import "context"

// TextRequest is the normalized parameter set for one upstream text
// generation attempt. A fallback attempt uses Relaxed() so the backend is
// free to auto-select provider and model.
type TextRequest struct {
	Prompt      string
	Provider    string
	Model       string
	Temperature float32
	MaxTokens   int
	UserID      string
}

// Relaxed returns a copy with the explicit provider/model stripped, keeping
// prompt, limits and user identity.
func (r TextRequest) Relaxed() TextRequest {
	r.Provider = ""
	r.Model = ""
	return r
}

// TokenHandler receives incremental tokens in arrival order.
type TokenHandler func(token string) error

// Invoker streams a completion for one request. A single invocation may
// deliver zero, one, or many tokens before returning.
type Invoker interface {
	Name() string
	StreamText(ctx context.Context, req TextRequest, onToken TokenHandler) error
}
