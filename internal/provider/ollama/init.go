package ollama

import "chatdigest/internal/provider"

// Name is the registry name of this provider.
const Name = "ollama"

func init() {
	provider.Register(Name, func(opts provider.Options) (provider.Provider, error) {
		return New(Config{
			Endpoint:    opts.Endpoint,
			Model:       opts.Model,
			Timeout:     opts.Timeout,
			KeepAlive:   opts.KeepAlive,
			Temperature: opts.Temperature,
		}, opts.Log), nil
	})
}
