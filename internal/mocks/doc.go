// Package mocks provides centralized mock implementations for testing.
//
// The mocks cover the boundaries the orchestrator and HTTP handlers depend
// on: provider gateways, the event emitter and the JWT service. Each mock
// records its calls and lets a test replace any method with a function
// field.
//
// Usage:
//
//	gw := &mocks.MockGateway{
//	    GatewayName: "kie_veo",
//	    SubmitFn: func(ctx context.Context, kind domain.GenerationKind,
//	        params domain.GenerationParameters, callbackURL string) (string, error) {
//	        return "", generation.ErrProviderUnavailable
//	    },
//	}
//
// When adding a new mock to this package:
//  1. Create a new file named after the interface being mocked
//  2. Implement the mock struct with function fields for each interface method
//  3. Document any helper methods or special functionality
package mocks
