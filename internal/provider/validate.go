package provider

import (
	"fmt"
	"math"

	"github.com/felipepmaragno/chatgw/internal/descriptor"
	"github.com/felipepmaragno/chatgw/internal/domain"
)

const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
)

// Validate checks a request against a descriptor without any I/O. Checks run
// in a fixed order and the first failure is returned.
func Validate(d *descriptor.Descriptor, req domain.UnifiedRequest) error {
	if req.Model != "" && !d.HasModel(req.Model) {
		return domain.NewProviderError(domain.KindUnsupportedModel, d.ID,
			fmt.Sprintf("model %q is not offered by %s", req.Model, d.ID))
	}

	if len(req.Messages) == 0 {
		return domain.NewProviderError(domain.KindInvalidRequest, d.ID, "messages must not be empty")
	}

	if t := req.Temperature; t != nil {
		if math.IsNaN(*t) || *t < MinTemperature || *t > MaxTemperature {
			return domain.NewProviderError(domain.KindInvalidRequest, d.ID,
				fmt.Sprintf("temperature %v is outside [%v, %v]", *t, MinTemperature, MaxTemperature))
		}
	}

	if mt := req.MaxTokens; mt != nil {
		if *mt <= 0 {
			return domain.NewProviderError(domain.KindInvalidRequest, d.ID,
				fmt.Sprintf("max_tokens must be positive, got %d", *mt))
		}
		if d.MaxTokens > 0 && *mt > d.MaxTokens {
			return domain.NewProviderError(domain.KindInvalidRequest, d.ID,
				fmt.Sprintf("max_tokens %d exceeds the %s limit of %d", *mt, d.ID, d.MaxTokens))
		}
	}

	if wantsFunctions(req) && !d.SupportsFunctions {
		return domain.NewProviderError(domain.KindUnsupportedFeature, d.ID,
			fmt.Sprintf("%s does not support function calling", d.ID))
	}

	for i, m := range req.Messages {
		if !m.Role.Valid() {
			return domain.NewProviderError(domain.KindInvalidRequest, d.ID,
				fmt.Sprintf("message %d has unknown role %q", i, m.Role))
		}
	}

	return nil
}

func wantsFunctions(req domain.UnifiedRequest) bool {
	if len(req.Functions) > 0 {
		return true
	}
	return req.FunctionCall != nil && req.FunctionCall.Mode != "none"
}
