package checks

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"net"
	"strconv"
	"strings"

	"github.com/pideploy/pideploy/internal/piwebapi"
)

func manualLoggerChecks() []*Check {
	requires := []Condition{RequiresSetting("PIManualLogger")}
	return []*Check{
		{
			ID:          "ml-home-page",
			Suite:       SuiteManualLogger,
			Description: "PI Manual Logger Web home page loads",
			Requires:    requires,
			Run:         checkManualLoggerHome,
		},
		{
			ID:          "ml-api-connection",
			Suite:       SuiteManualLogger,
			Description: "PI Manual Logger Web API is online",
			Requires:    requires,
			Run:         checkManualLoggerAPI,
		},
		{
			ID:          "ml-db-connection",
			Suite:       SuiteManualLogger,
			Description: "PI Manual Logger Web reaches its database",
			Requires:    requires,
			Run:         checkManualLoggerDatabase,
		},
		{
			ID:          "ml-username",
			Suite:       SuiteManualLogger,
			Description: "PI Manual Logger Web resolves the caller's account",
			Requires:    requires,
			Run:         checkManualLoggerUsername,
		},
		{
			ID:          "ml-https-certificate",
			Suite:       SuiteManualLogger,
			Description: "PI Manual Logger Web serves a valid, trusted certificate",
			Requires:    append([]Condition{RequiresCertificateValidation()}, requires...),
			Run:         checkManualLoggerCertificate,
		},
	}
}

func checkManualLoggerHome(c *Context) error {
	ml, err := c.ManualLogger()
	if err != nil {
		return err
	}
	c.Step("Load PI Manual Logger Web home page %s", ml.BaseURL())
	page, err := ml.GetPage(c.Context(), "")
	if err != nil {
		if piwebapi.IsCertificateError(err) {
			return Failf("Failed to load PI Manual Logger Web home page: the server certificate is not trusted. "+
				"Install a trusted certificate or enable skip_certificate_validation. (%v)", err)
		}
		return Failf("Failed to load PI Manual Logger Web home page. (%v)", err)
	}
	if len(bytes.TrimSpace(page)) == 0 {
		return Failf("PI Manual Logger Web home page at %s is empty", ml.BaseURL())
	}
	return nil
}

func checkManualLoggerAPI(c *Context) error {
	ml, err := c.ManualLogger()
	if err != nil {
		return err
	}
	online, err := ml.ManualLoggerConnection(c.Context())
	if err != nil {
		return Failf("Failed to query PI Manual Logger Web API connection: %v", err)
	}
	if !online {
		return Failf("PI Manual Logger API is not online. Check the PI Manual Logger Web logs and the connection to the PI servers.")
	}
	return nil
}

func checkManualLoggerDatabase(c *Context) error {
	ml, err := c.ManualLogger()
	if err != nil {
		return err
	}
	online, err := ml.ManualLoggerDatabaseConnection(c.Context())
	if err != nil {
		return Failf("Failed to query PI Manual Logger Web database connection: %v", err)
	}
	if !online {
		return Failf("PI Manual Logger Web cannot reach its SQL database.")
	}
	return nil
}

func checkManualLoggerUsername(c *Context) error {
	ml, err := c.ManualLogger()
	if err != nil {
		return err
	}
	name, err := ml.ManualLoggerUsername(c.Context())
	if err != nil {
		return Failf("Failed to query PI Manual Logger Web username: %v", err)
	}
	if strings.TrimSpace(name) == "" {
		return Failf("PI Manual Logger Web returned an empty username. Check the authentication settings of the site.")
	}
	c.Step("PI Manual Logger Web resolved the caller as %s", name)
	return nil
}

// checkManualLoggerCertificate reads the certificate the site presents and
// checks its validity window and chain.
func checkManualLoggerCertificate(c *Context) error {
	pi := c.PI()
	addr := net.JoinHostPort(pi.ManualLogger, strconv.Itoa(pi.ManualLoggerPort))

	c.Step("Read the certificate presented by %s", addr)
	dialer := &tls.Dialer{Config: &tls.Config{InsecureSkipVerify: true, ServerName: pi.ManualLogger}} //nolint:gosec // verified below
	conn, err := dialer.DialContext(c.Context(), "tcp", addr)
	if err != nil {
		return Failf("Failed to open a TLS connection to %s: %v", addr, err)
	}
	state := conn.(*tls.Conn).ConnectionState()
	_ = conn.Close()
	if len(state.PeerCertificates) == 0 {
		return Failf("%s did not present a certificate", addr)
	}

	leaf := state.PeerCertificates[0]
	now := c.Now()
	switch {
	case now.Before(leaf.NotBefore):
		return Failf("Certificate of %s is not valid before %s", addr, leaf.NotBefore.Format("2006-01-02"))
	case now.After(leaf.NotAfter):
		return Failf("Certificate of %s expired on %s", addr, leaf.NotAfter.Format("2006-01-02"))
	}

	intermediates := x509.NewCertPool()
	for _, cert := range state.PeerCertificates[1:] {
		intermediates.AddCert(cert)
	}
	_, err = leaf.Verify(x509.VerifyOptions{
		DNSName:       pi.ManualLogger,
		Roots:         c.TLSRoots(),
		Intermediates: intermediates,
		CurrentTime:   now,
	})
	if err != nil {
		return Failf("Certificate of %s is not trusted: %v", addr, err)
	}
	return nil
}
