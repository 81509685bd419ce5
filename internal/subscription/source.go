package subscription

// Source provides the clientState expected for a subscription. ok is false
// when no secret is configured, in which case the check is skipped.
// Lookups run on the request path and must not perform network I/O.
type Source interface {
	ClientState(subscriptionID string) (secret string, ok bool)
}

// Static is a fixed set of secrets with an optional fallback applied to
// subscriptions that have no explicit entry.
type Static struct {
	secrets  map[string]string
	fallback string
}

func NewStatic(secrets map[string]string, fallback string) *Static {
	copied := make(map[string]string, len(secrets))
	for k, v := range secrets {
		copied[k] = v
	}
	return &Static{secrets: copied, fallback: fallback}
}

func (s *Static) ClientState(subscriptionID string) (string, bool) {
	if secret, ok := s.secrets[subscriptionID]; ok && secret != "" {
		return secret, true
	}
	if s.fallback != "" {
		return s.fallback, true
	}
	return "", false
}

// Chain consults each source in order and returns the first match
type Chain []Source

func (c Chain) ClientState(subscriptionID string) (string, bool) {
	for _, s := range c {
		if secret, ok := s.ClientState(subscriptionID); ok {
			return secret, true
		}
	}
	return "", false
}
