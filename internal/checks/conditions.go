package checks

import (
	"fmt"
	"strings"

	"github.com/pideploy/pideploy/internal/config"
)

// Condition decides whether a check applies. It returns a SkipError when
// the check should be skipped, another error when the decision cannot be
// made, or nil.
type Condition func(env *Environment, pi config.PIConfig) error

// RequiresSetting skips the check unless every named setting is present.
func RequiresSetting(names ...string) Condition {
	return func(_ *Environment, pi config.PIConfig) error {
		if err := pi.Require(names...); err != nil {
			return &SkipError{Reason: err.Error()}
		}
		return nil
	}
}

// RequiresWebAPI skips the check when no PI Web API is configured.
func RequiresWebAPI() Condition {
	return RequiresSetting("PIWebAPI")
}

// RequiresCertificateValidation skips the check when certificate
// validation is turned off.
func RequiresCertificateValidation() Condition {
	return func(_ *Environment, pi config.PIConfig) error {
		if pi.SkipCertificateValidation {
			return Skipf("certificate validation is disabled (SkipCertificateValidation is true)")
		}
		return nil
	}
}

// RequiresWrites skips the check when PI Web API has writes disabled.
func RequiresWrites() Condition {
	return func(env *Environment, _ config.PIConfig) error {
		if env.ConfigErr != nil {
			return fmt.Errorf("read system configuration: %w", env.ConfigErr)
		}
		if env.Configuration.DisableWrites() {
			return Skipf("PI Web API writes are disabled (DisableWrites is true)")
		}
		return nil
	}
}

// RequiresAuthentication skips the check when anonymous access is the
// primary authentication method.
func RequiresAuthentication() Condition {
	return func(env *Environment, pi config.PIConfig) error {
		if strings.EqualFold(pi.AuthMethod, config.AuthAnonymous) {
			return Skipf("the client is configured for anonymous authentication")
		}
		if env.ConfigErr != nil {
			return fmt.Errorf("read system configuration: %w", env.ConfigErr)
		}
		if env.Configuration.AllowsAnonymous() {
			return Skipf("PI Web API allows anonymous authentication")
		}
		return nil
	}
}

// RequiresSearch skips the check when the home page does not advertise
// indexed search.
func RequiresSearch() Condition {
	return requiresLink("Search", "indexed search is not installed")
}

// RequiresOMF skips the check when the home page does not advertise OMF.
func RequiresOMF() Condition {
	return requiresLink("Omf", "OMF is not installed")
}

func requiresLink(link, reason string) Condition {
	return func(env *Environment, _ config.PIConfig) error {
		if env.HomeErr != nil {
			return fmt.Errorf("load home page: %w", env.HomeErr)
		}
		if !env.Home.HasLink(link) {
			return Skipf("%s", reason)
		}
		return nil
	}
}
