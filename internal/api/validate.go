package api

import (
	"fmt"
	"net/url"

	"wavebatch/internal/model"
	"wavebatch/internal/opt"
)

func validateSolveRequest(req *model.SolveRequest) error {
	if (req.InstanceID == "") == (req.Instance == "") {
		return fmt.Errorf("exactly one of instanceId or instance is required")
	}
	if req.Algorithm != "" && !opt.ValidAlgorithm(req.Algorithm) {
		return fmt.Errorf("invalid algorithm: %s (allowed: %v)", req.Algorithm, opt.Algorithms())
	}
	if req.Iterations < 0 || req.Particles < 0 || req.TopK < 0 || req.MaxAisles < 0 {
		return fmt.Errorf("iterations, particles, topK and maxAisles must be >= 0")
	}
	if req.MutationRate < 0 || req.MutationRate > 1 {
		return fmt.Errorf("mutationRate must be in [0,1]")
	}
	if req.TimeoutMs < 0 {
		return fmt.Errorf("timeoutMs must be >= 0")
	}
	if req.CallbackURL != "" {
		u, err := url.Parse(req.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("callbackUrl must be an absolute http(s) URL")
		}
	}
	if req.CallbackSecret != "" && req.CallbackURL == "" {
		return fmt.Errorf("callbackSecret requires callbackUrl")
	}
	return nil
}

func validateValidateRequest(req *model.ValidateRequest) error {
	if (req.InstanceID == "") == (req.Instance == "") {
		return fmt.Errorf("exactly one of instanceId or instance is required")
	}
	if req.Solution == "" {
		return fmt.Errorf("solution is required")
	}
	return nil
}
