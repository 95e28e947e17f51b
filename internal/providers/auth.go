package providers

import "net/http"

// CredentialApplier attaches a provider's credential to an outgoing
// request. Adapters that need no credential (LocalLLM) simply never build
// one.
type CredentialApplier interface {
	Apply(req *http.Request)
}

// BearerKeyAuth sets the Authorization header with a "Bearer " prefix, the
// scheme Groq and DeepSeek both expect.
type BearerKeyAuth struct {
	Key string
}

func NewBearerKeyAuth(key string) *BearerKeyAuth {
	return &BearerKeyAuth{Key: key}
}

func (a *BearerKeyAuth) Apply(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+a.Key)
}

// QueryParamKeyAuth appends the credential as a URL query parameter, the
// scheme Gemini expects ("?key=...").
type QueryParamKeyAuth struct {
	Key   string
	Param string
}

func NewQueryParamKeyAuth(key, param string) *QueryParamKeyAuth {
	if param == "" {
		param = "key"
	}
	return &QueryParamKeyAuth{Key: key, Param: param}
}

func (a *QueryParamKeyAuth) Apply(req *http.Request) {
	q := req.URL.Query()
	q.Set(a.Param, a.Key)
	req.URL.RawQuery = q.Encode()
}
